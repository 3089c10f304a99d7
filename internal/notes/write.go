package notes

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes a rendered note to path, creating parent directories.
func WriteFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create notes dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write note file: %w", err)
	}
	return nil
}
