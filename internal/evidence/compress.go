package evidence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// WriteCompressed zstd-compresses text to path, creating parent directories.
func WriteCompressed(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create buffer dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	compressed := enc.EncodeAll([]byte(text), nil)
	_ = enc.Close()

	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return fmt.Errorf("failed to write buffer file: %w", err)
	}
	return nil
}

// ReadCompressed reads and decompresses a buffer file written by
// WriteCompressed.
func ReadCompressed(path string) (string, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read buffer file: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	text, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decompress buffer: %w", err)
	}
	return string(text), nil
}
