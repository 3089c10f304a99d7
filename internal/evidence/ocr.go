package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// OCR is the contract the builder requires of an OCR engine. The core does
// not mandate a vendor; any engine that turns a frame file into text fits.
type OCR interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// TesseractOCR shells out to the tesseract binary. Using the binary instead
// of cgo bindings keeps the daemon free of native image-library build deps.
type TesseractOCR struct {
	Binary string
}

// NewTesseractOCR creates an OCR engine backed by the given binary name or
// path.
func NewTesseractOCR(binary string) *TesseractOCR {
	if binary == "" {
		binary = "tesseract"
	}
	return &TesseractOCR{Binary: binary}
}

// Recognize runs tesseract over the image and returns the recognized text.
func (t *TesseractOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, t.Binary, imagePath, "stdout")
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, errOut.String())
	}
	return out.String(), nil
}

// readFileCapped reads at most maxBytes from a file; 0 means unlimited.
func readFileCapped(path string, maxBytes int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, int64(maxBytes))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
