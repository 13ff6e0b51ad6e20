package keywords

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractResume reads a resume file and classifies its text. PDF files
// go through text extraction; anything else is read as plain text.
func (e *Extractor) ExtractResume(ctx context.Context, path string) (Classification, error) {
	text, err := ReadResume(path)
	if err != nil {
		return Classification{}, err
	}
	return e.Extract(ctx, text)
}

// ReadResume returns the text content of a resume file.
func ReadResume(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading resume: %w", err)
	}
	return string(b), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return sb.String(), nil
}
