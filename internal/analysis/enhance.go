package analysis

import (
	"context"
	"errors"
	"strings"
)

// EnhanceRequest applies one placement suggestion: unmatched content is
// merged into the section the caller picked.
type EnhanceRequest struct {
	Section   ExistingSection `json:"section"`
	Title     string          `json:"title,omitempty"`
	Content   string          `json:"content"`
	Relevance float64         `json:"relevance"`
}

// Enhance merges req.Content into req.Section and reports the result with
// MergeType "enhancement".
func (a *Analyzer) Enhance(ctx context.Context, req EnhanceRequest) (*AnalyzedSection, error) {
	if req.Section.ID == "" {
		return nil, errors.New("section id is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("content is required")
	}

	content, err := a.merger.MergeContent(ctx, req.Section.Title, req.Content, req.Section.Content.String())
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = req.Section.Title
	}
	return &AnalyzedSection{
		ID:            req.Section.ID,
		Title:         req.Section.Title,
		Content:       content,
		Confidence:    clamp01(req.Relevance),
		SourceSection: &CandidateSection{Title: title, Content: req.Content},
		MergeType:     MergeEnhancement,
	}, nil
}
