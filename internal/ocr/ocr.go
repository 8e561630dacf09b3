// Package ocr recovers text from scanned permit forms, either locally with
// pdftotext or through the Mistral OCR API.
package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permit-cli/internal/config"
)

// Extractor extracts text from a scanned document held in memory.
type Extractor interface {
	ExtractText(ctx context.Context, content []byte, mimeType string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// DetectMIME returns the MIME type of a document, preferring the declared
// content type and falling back to magic bytes.
func DetectMIME(content []byte, declared string) string {
	if mt, _, _ := strings.Cut(strings.ToLower(declared), ";"); strings.TrimSpace(mt) != "" && mt != "application/octet-stream" {
		return strings.TrimSpace(mt)
	}
	switch {
	case len(content) >= 4 && string(content[:4]) == "%PDF":
		return "application/pdf"
	case len(content) >= 8 && string(content[1:4]) == "PNG":
		return "image/png"
	case len(content) >= 3 && content[0] == 0xFF && content[1] == 0xD8 && content[2] == 0xFF:
		return "image/jpeg"
	case len(content) >= 4 && (string(content[:4]) == "II*\x00" || string(content[:4]) == "MM\x00*"):
		return "image/tiff"
	}
	return "application/octet-stream"
}
