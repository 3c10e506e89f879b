// Package analysis segments an uploaded document into candidate sections,
// matches them against a proposal's existing sections and merges matched
// content into place. Content that fits nowhere is returned with ranked
// placement suggestions.
package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DocumentType identifies how the uploaded content was produced.
type DocumentType string

const (
	DocumentMarkdown DocumentType = "markdown"
	DocumentPDF      DocumentType = "pdf"
)

// SectionType is the shape of an existing section's body.
type SectionType string

const (
	SectionText   SectionType = "text"
	SectionFields SectionType = "fields"
)

// FieldMap is the body of a "fields" section.
type FieldMap map[string]string

// SectionContent holds either a plain body or a field map. In JSON it is a
// string or an object.
type SectionContent struct {
	Text   string
	Fields FieldMap
}

// TextContent wraps a plain body.
func TextContent(s string) SectionContent {
	return SectionContent{Text: s}
}

// IsFields reports whether the content is a field map.
func (c SectionContent) IsFields() bool {
	return c.Fields != nil
}

// String renders the content as merge input. Field maps become "key: value"
// lines sorted by key; blank values are left out.
func (c SectionContent) String() string {
	if c.Fields == nil {
		return c.Text
	}
	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := c.Fields[k]
		if strings.TrimSpace(v) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, v)
	}
	return b.String()
}

// IsEmpty reports whether the content has no visible text. Field content is
// empty when every value is blank.
func (c SectionContent) IsEmpty() bool {
	return strings.TrimSpace(c.String()) == ""
}

// MarshalJSON implements json.Marshaler.
func (c SectionContent) MarshalJSON() ([]byte, error) {
	if c.Fields != nil {
		return json.Marshal(map[string]string(c.Fields))
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *SectionContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = SectionContent{Text: s}
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("section content must be a string or an object: %w", err)
	}
	fields := make(FieldMap, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			fields[k] = t
		case nil:
			fields[k] = ""
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return err
			}
			fields[k] = string(b)
		}
	}
	*c = SectionContent{Fields: fields}
	return nil
}

// ExistingSection is a section already present in the caller's proposal.
// The pipeline only reads it.
type ExistingSection struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Content SectionContent `json:"content"`
	Type    SectionType    `json:"type,omitempty"`
}

// CandidateSection is a provisional section extracted from the document.
type CandidateSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Tier names the strategy that produced a match.
type Tier string

const (
	TierExact     Tier = "exact"
	TierSubstring Tier = "substring"
	TierSemantic  Tier = "semantic"
)

// Confidence assigned by the title tiers.
const (
	ExactConfidence     = 1.0
	SubstringConfidence = 0.8
)

// SectionMatch scores a candidate against one existing section.
type SectionMatch struct {
	SectionID  string  `json:"sectionId"`
	Confidence float64 `json:"confidence"`
	Tier       Tier    `json:"tier,omitempty"`
}

// MergeType classifies how matched content was combined.
type MergeType string

const (
	MergeDirect      MergeType = "direct"
	MergePartial     MergeType = "partial"
	MergeEnhancement MergeType = "enhancement"
)

// AnalyzedSection is an existing section with document content merged in.
// Content is always text: a fields section comes back as its non-blank
// fields flattened to sorted "key: value" lines, merged or not.
type AnalyzedSection struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Confidence    float64           `json:"confidence"`
	SourceSection *CandidateSection `json:"sourceSection,omitempty"`
	MergeType     MergeType         `json:"mergeType"`
}

// PotentialSection is a placement suggestion for unmatched content.
type PotentialSection struct {
	SectionID string  `json:"sectionId"`
	Relevance float64 `json:"relevance"`
}

// UnmatchedEntry is document content that matched no existing section.
// PotentialSections is sorted by relevance, highest first.
type UnmatchedEntry struct {
	Title             string             `json:"title,omitempty"`
	Content           string             `json:"content"`
	PotentialSections []PotentialSection `json:"potentialSections"`
}

// Stage is a pipeline progress stage. Stages are reported in declaration order.
type Stage string

const (
	StageChunking   Stage = "chunking"
	StageProcessing Stage = "processing"
	StageMerging    Stage = "merging"
	StageMatching   Stage = "matching"
	StageAnalyzing  Stage = "analyzing"
)

// ProgressEvent reports pipeline progress. Current never decreases within a stage.
type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Result is the output of one analysis run.
type Result struct {
	Sections  []AnalyzedSection `json:"sections"`
	Unmatched []UnmatchedEntry  `json:"unmatched"`
	Progress  ProgressEvent     `json:"progress"`
}
