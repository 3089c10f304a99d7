package evidence

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Method is the closed set of extraction methods. The choice is made by a
// pure decision function, not by dispatch over extractor objects.
type Method int

const (
	// NoExtract means the context offers nothing to extract from.
	NoExtract Method = iota
	// DirectExtract reads text straight from a known, supported file.
	DirectExtract
	// OcrExtract recognizes text from a persisted frame.
	OcrExtract
)

// String implements fmt.Stringer for log output.
func (m Method) String() string {
	switch m {
	case DirectExtract:
		return "direct"
	case OcrExtract:
		return "ocr"
	default:
		return "none"
	}
}

// directFormats are the file formats supported for direct extraction.
var directFormats = map[string]struct{}{
	".pdf": {},
	".txt": {},
	".md":  {},
}

// ChooseMethod picks the extraction method from what is known about the
// context: a concrete supported file path gets direct extraction, a
// persisted frame gets OCR, anything else gets nothing. Pure.
func ChooseMethod(docPath string, haveFrame bool) Method {
	if docPath != "" {
		ext := strings.ToLower(filepath.Ext(docPath))
		if _, ok := directFormats[ext]; ok {
			return DirectExtract
		}
	}
	if haveFrame {
		return OcrExtract
	}
	return NoExtract
}

// ExtractDirect reads text from a supported file, bounded by maxTokens.
func ExtractDirect(path string, maxTokens int) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return extractPDF(path, maxTokens)
	case ".txt", ".md":
		return extractPlain(path, maxTokens)
	default:
		return "", fmt.Errorf("unsupported format %q", ext)
	}
}

func extractPDF(path string, maxTokens int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var buf bytes.Buffer
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return TruncateTokens(buf.String(), maxTokens), nil
}

func extractPlain(path string, maxTokens int) (string, error) {
	data, err := readFileCapped(path, maxTokens*4)
	if err != nil {
		return "", err
	}
	return TruncateTokens(string(data), maxTokens), nil
}
