package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/prompts/match"
)

// Default matcher settings.
const (
	DefaultMatchBatchSize        = 3
	DefaultSemanticMinConfidence = 0.5
)

// Matcher scores candidates against existing sections with three tiers of
// increasing cost: exact title, title substring, then a semantic model call.
// The first tier that finds anything decides the result.
type Matcher struct {
	completer     Completer
	prompts       *prompts.Resolver
	model         string
	minConfidence float64
	batchSize     int
	timeout       time.Duration
	logger        *slog.Logger
}

// Match returns the matches for one candidate. A failed semantic call yields
// no matches and no error; only fatal errors and cancellation are returned.
func (m *Matcher) Match(ctx context.Context, candidate CandidateSection, existing []ExistingSection) ([]SectionMatch, error) {
	if len(existing) == 0 {
		return nil, nil
	}
	if matches := titleMatches(candidate, existing); len(matches) > 0 {
		return matches, nil
	}
	return m.semantic(ctx, candidate, existing)
}

// titleMatches runs the exact tier, then the substring tier if the exact
// tier found nothing.
func titleMatches(candidate CandidateSection, existing []ExistingSection) []SectionMatch {
	title := NormalizeTitle(candidate.Title)
	if title == "" {
		return nil
	}

	var exact []SectionMatch
	for _, s := range existing {
		if NormalizeTitle(s.Title) == title {
			exact = append(exact, SectionMatch{SectionID: s.ID, Confidence: ExactConfidence, Tier: TierExact})
		}
	}
	if len(exact) > 0 {
		return exact
	}

	var partial []SectionMatch
	for _, s := range existing {
		other := NormalizeTitle(s.Title)
		if other == "" {
			continue
		}
		if strings.Contains(title, other) || strings.Contains(other, title) {
			partial = append(partial, SectionMatch{SectionID: s.ID, Confidence: SubstringConfidence, Tier: TierSubstring})
		}
	}
	return partial
}

func (m *Matcher) semantic(ctx context.Context, candidate CandidateSection, existing []ExistingSection) ([]SectionMatch, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	matches, err := m.callSemantic(ctx, candidate, existing)
	if err == nil {
		return matches, nil
	}
	if stop := stopErr(ctx, err); stop != nil {
		return nil, stop
	}
	m.logger.Warn("semantic matching failed, treating candidate as unmatched",
		"stage", StageMatching, "candidate", candidate.Title, "error", err)
	return nil, nil
}

func (m *Matcher) callSemantic(ctx context.Context, candidate CandidateSection, existing []ExistingSection) ([]SectionMatch, error) {
	system, err := m.prompts.Render(match.SystemPromptKey, match.SystemPromptData{MinConfidence: m.minConfidence})
	if err != nil {
		return nil, err
	}
	refs := make([]match.SectionRef, len(existing))
	for i, s := range existing {
		refs[i] = match.SectionRef{ID: s.ID, Title: s.Title}
	}
	user, err := m.prompts.Render(match.UserPromptKey, match.UserPromptData{
		Title:    candidate.Title,
		Content:  candidate.Content,
		Sections: refs,
	})
	if err != nil {
		return nil, err
	}

	raw, err := m.completer.Complete(ctx, CompletionRequest{
		System:    system,
		User:      user,
		Model:     m.model,
		JSON:      true,
		Schema:    match.SchemaJSON(),
		Timeout:   m.timeout,
		PromptKey: match.UserPromptKey,
		Stage:     "match",
	})
	if err != nil {
		return nil, err
	}

	result, err := decodeStructured[match.Result](raw, match.SchemaJSON())
	if err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}
	return filterSemantic(result.Matches, existing, m.minConfidence), nil
}

// filterSemantic keeps model matches that name a known section and clear
// minConfidence. Confidence is clamped to [0, 1] and a section named more
// than once keeps its best score. The result is sorted by confidence, highest first.
func filterSemantic(raw []match.Match, existing []ExistingSection, minConfidence float64) []SectionMatch {
	known := make(map[string]bool, len(existing))
	for _, s := range existing {
		known[s.ID] = true
	}

	pos := make(map[string]int)
	var out []SectionMatch
	for _, r := range raw {
		if !known[r.SectionID] {
			continue
		}
		conf := clamp01(r.Confidence)
		if conf <= minConfidence {
			continue
		}
		if i, ok := pos[r.SectionID]; ok {
			out[i].Confidence = max(out[i].Confidence, conf)
			continue
		}
		pos[r.SectionID] = len(out)
		out = append(out, SectionMatch{SectionID: r.SectionID, Confidence: conf, Tier: TierSemantic})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// MatchAll matches every candidate. Candidates are processed in batches of
// batchSize: concurrently within a batch, batches one after another.
// Cancellation is checked before each batch. onBatch, if set, receives the
// number of candidates done after each batch. The result is indexed like
// candidates.
func (m *Matcher) MatchAll(ctx context.Context, candidates []CandidateSection, existing []ExistingSection, onBatch func(done, total int)) ([][]SectionMatch, error) {
	results := make([][]SectionMatch, len(candidates))
	batch := m.batchSize
	if batch <= 0 {
		batch = DefaultMatchBatchSize
	}

	for start := 0; start < len(candidates); start += batch {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		end := min(start+batch, len(candidates))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				matches, err := m.Match(gctx, candidates[i], existing)
				if err != nil {
					return err
				}
				results[i] = matches
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if onBatch != nil {
			onBatch(end, len(candidates))
		}
	}
	return results, nil
}
