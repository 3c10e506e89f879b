package endpoints

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/proposer/internal/analysis"
	"github.com/jackzampolin/proposer/internal/docext"
)

// Document types accepted over the API. HTML is converted to markdown
// before analysis.
const (
	TypeMarkdown = "markdown"
	TypePDF      = "pdf"
	TypeHTML     = "html"
)

// EncodingBase64 marks Content as base64, used for binary PDF uploads.
const EncodingBase64 = "base64"

// AnalyzeRequest is the body of POST /api/analyze and POST /api/analyses.
type AnalyzeRequest struct {
	Content  string                     `json:"content"`
	Type     string                     `json:"type,omitempty"`     // markdown (default), pdf, html
	Encoding string                     `json:"encoding,omitempty"` // "" or "base64"
	Sections []analysis.ExistingSection `json:"sections"`
}

// ToAnalysisRequest decodes and converts the body into a pipeline request.
func (req AnalyzeRequest) ToAnalysisRequest(ctx context.Context) (analysis.Request, error) {
	content := req.Content
	switch req.Encoding {
	case "":
	case EncodingBase64:
		raw, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return analysis.Request{}, fmt.Errorf("invalid base64 content: %w", err)
		}
		content = string(raw)
	default:
		return analysis.Request{}, fmt.Errorf("unsupported encoding %q", req.Encoding)
	}

	docType := analysis.DocumentMarkdown
	switch strings.ToLower(req.Type) {
	case "", TypeMarkdown:
	case TypePDF:
		docType = analysis.DocumentPDF
	case TypeHTML:
		md, err := docext.NewHTMLExtractor().Extract(ctx, content)
		if err != nil {
			return analysis.Request{}, fmt.Errorf("convert html: %w", err)
		}
		content = md
	default:
		return analysis.Request{}, fmt.Errorf("unsupported document type %q", req.Type)
	}

	for i, s := range req.Sections {
		if s.ID == "" {
			return analysis.Request{}, fmt.Errorf("section %d has no id", i)
		}
	}

	return analysis.Request{
		Content:          content,
		ExistingSections: req.Sections,
		DocumentType:     docType,
	}, nil
}

// DetectType infers the document type from a file name.
func DetectType(path string) string {
	switch {
	case strings.EqualFold(filepath.Ext(path), ".pdf"):
		return TypePDF
	case docext.IsHTML(path):
		return TypeHTML
	default:
		return TypeMarkdown
	}
}

// ReadDocument builds an AnalyzeRequest from a file. docType overrides the
// type inferred from the file name. PDFs are base64 encoded.
func ReadDocument(path, docType string) (AnalyzeRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AnalyzeRequest{}, fmt.Errorf("read document: %w", err)
	}
	if docType == "" {
		docType = DetectType(path)
	}
	req := AnalyzeRequest{Type: docType, Content: string(data)}
	if docType == TypePDF || docext.IsPDF(req.Content) {
		req.Type = TypePDF
		req.Encoding = EncodingBase64
		req.Content = base64.StdEncoding.EncodeToString(data)
	}
	return req, nil
}

// LoadSections reads existing sections from a YAML or JSON file holding
// either a list or an object with a "sections" list. An empty path yields
// no sections.
func LoadSections(path string) ([]analysis.ExistingSection, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sections: %w", err)
	}
	return ParseSections(data)
}

// ParseSections parses YAML or JSON section data. YAML is routed through
// JSON so section content follows the same string-or-fields rules.
func ParseSections(data []byte) ([]analysis.ExistingSection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}
	if m, ok := doc.(map[string]any); ok {
		doc = m["sections"]
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}
	var sections []analysis.ExistingSection
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}
	return sections, nil
}
