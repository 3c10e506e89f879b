package docext

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// HTMLExtractor converts HTML documents to markdown so headings and lists
// survive as paragraph structure.
type HTMLExtractor struct {
	conv *converter.Converter
}

// NewHTMLExtractor creates an HTML to markdown extractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract implements Extractor.
func (h *HTMLExtractor) Extract(_ context.Context, content string) (string, error) {
	md, err := h.conv.ConvertString(content)
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// IsHTML reports whether a file name has an HTML extension.
func IsHTML(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm")
}

var _ Extractor = (*HTMLExtractor)(nil)
