package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/prompts/unmatched"
)

// UnmatchedAnalyzer suggests where leftover candidates could go, in a single
// model call for the whole set.
type UnmatchedAnalyzer struct {
	completer Completer
	prompts   *prompts.Resolver
	model     string
	timeout   time.Duration
	logger    *slog.Logger
}

// AnalyzeUnmatched returns one entry per candidate, in order, with ranked
// placement suggestions. If the model call fails the result is empty and the
// unmatched content is dropped. Only fatal errors and cancellation are returned.
func (ua *UnmatchedAnalyzer) AnalyzeUnmatched(ctx context.Context, candidates []CandidateSection, existing []ExistingSection) ([]UnmatchedEntry, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		// Nothing to suggest; keep the content visible to the caller.
		return entriesFor(candidates), nil
	}

	entries, err := ua.analyze(ctx, candidates, existing)
	if err == nil {
		return entries, nil
	}
	if stop := stopErr(ctx, err); stop != nil {
		return nil, stop
	}
	ua.logger.Warn("unmatched analysis failed, dropping unmatched content",
		"stage", StageAnalyzing, "count", len(candidates), "error", err)
	return nil, nil
}

func (ua *UnmatchedAnalyzer) analyze(ctx context.Context, candidates []CandidateSection, existing []ExistingSection) ([]UnmatchedEntry, error) {
	system, err := ua.prompts.Render(unmatched.SystemPromptKey, nil)
	if err != nil {
		return nil, err
	}
	data := unmatched.UserPromptData{
		Sections: make([]unmatched.SectionRef, len(existing)),
		Items:    make([]unmatched.Item, len(candidates)),
	}
	for i, s := range existing {
		data.Sections[i] = unmatched.SectionRef{ID: s.ID, Title: s.Title}
	}
	for i, c := range candidates {
		data.Items[i] = unmatched.Item{Index: i, Title: c.Title, Content: c.Content}
	}
	user, err := ua.prompts.Render(unmatched.UserPromptKey, data)
	if err != nil {
		return nil, err
	}

	raw, err := ua.completer.Complete(ctx, CompletionRequest{
		System:    system,
		User:      user,
		Model:     ua.model,
		JSON:      true,
		Schema:    unmatched.SchemaJSON(),
		Timeout:   ua.timeout,
		PromptKey: unmatched.UserPromptKey,
		Stage:     "unmatched",
	})
	if err != nil {
		return nil, err
	}

	result, err := decodeStructured[unmatched.Result](raw, unmatched.SchemaJSON())
	if err != nil {
		return nil, fmt.Errorf("decode unmatched analysis: %w", err)
	}
	return mapSuggestions(result.Analysis, candidates, existing), nil
}

// mapSuggestions attaches model suggestions to candidates by index, falling
// back to the entry's position when the index is out of range. Unknown
// section ids are dropped, relevance is clamped and each list is sorted by
// relevance, highest first.
func mapSuggestions(analysis []unmatched.Entry, candidates []CandidateSection, existing []ExistingSection) []UnmatchedEntry {
	known := make(map[string]bool, len(existing))
	for _, s := range existing {
		known[s.ID] = true
	}

	entries := entriesFor(candidates)
	for pos, a := range analysis {
		idx := a.Index
		if idx < 0 || idx >= len(entries) {
			idx = pos
		}
		if idx >= len(entries) {
			continue
		}

		entry := &entries[idx]
		for _, s := range a.PotentialSections {
			if !known[s.SectionID] {
				continue
			}
			rel := clamp01(s.Relevance)
			found := false
			for j := range entry.PotentialSections {
				if entry.PotentialSections[j].SectionID == s.SectionID {
					entry.PotentialSections[j].Relevance = max(entry.PotentialSections[j].Relevance, rel)
					found = true
					break
				}
			}
			if !found {
				entry.PotentialSections = append(entry.PotentialSections, PotentialSection{SectionID: s.SectionID, Relevance: rel})
			}
		}
	}

	for i := range entries {
		ps := entries[i].PotentialSections
		sort.SliceStable(ps, func(a, b int) bool { return ps[a].Relevance > ps[b].Relevance })
	}
	return entries
}

func entriesFor(candidates []CandidateSection) []UnmatchedEntry {
	entries := make([]UnmatchedEntry, len(candidates))
	for i, c := range candidates {
		entries[i] = UnmatchedEntry{
			Title:             c.Title,
			Content:           c.Content,
			PotentialSections: []PotentialSection{},
		}
	}
	return entries
}
