// Package docext turns uploaded documents into plain text for analysis.
package docext

import (
	"context"
	"strings"
)

// Extractor converts document content to text.
type Extractor interface {
	Extract(ctx context.Context, content string) (string, error)
}

// Passthrough returns content unchanged. Use it when text extraction happens
// upstream.
type Passthrough struct{}

// Extract implements Extractor.
func (Passthrough) Extract(_ context.Context, content string) (string, error) {
	return content, nil
}

// Auto extracts raw PDF bytes with PDFExtractor and passes anything else
// through, so callers may hand over either a PDF file or its extracted text.
type Auto struct {
	PDF PDFExtractor
}

// Extract implements Extractor.
func (a Auto) Extract(ctx context.Context, content string) (string, error) {
	if IsPDF(content) {
		return a.PDF.Extract(ctx, content)
	}
	return content, nil
}

// IsPDF reports whether content starts with the PDF file signature.
func IsPDF(content string) bool {
	return strings.HasPrefix(strings.TrimLeft(content, " \t\r\n\ufeff"), "%PDF-")
}

var (
	_ Extractor = Passthrough{}
	_ Extractor = Auto{}
	_ Extractor = PDFExtractor{}
)
