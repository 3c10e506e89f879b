package analysis

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/proposer/internal/prompts/match"
)

var proposalSections = []ExistingSection{
	{ID: "s1", Title: "Executive Summary", Content: TextContent("")},
	{ID: "s2", Title: "Pricing", Content: TextContent("Old pricing.")},
	{ID: "s3", Title: "Team", Content: TextContent("")},
}

func TestMatcher_ExactTierShortCircuits(t *testing.T) {
	fc := newFakeCompleter()
	a := newTestAnalyzer(t, fc)

	matches, err := a.Matcher().Match(context.Background(), CandidateSection{Title: "  executive SUMMARY "}, proposalSections)
	require.NoError(t, err)
	assert.Equal(t, []SectionMatch{{SectionID: "s1", Confidence: 1.0, Tier: TierExact}}, matches)
	assert.Equal(t, 0, fc.count("match"))
}

func TestMatcher_SubstringTier(t *testing.T) {
	fc := newFakeCompleter()
	a := newTestAnalyzer(t, fc)

	matches, err := a.Matcher().Match(context.Background(), CandidateSection{Title: "Executive Summary Extended"}, proposalSections)
	require.NoError(t, err)
	assert.Equal(t, []SectionMatch{{SectionID: "s1", Confidence: 0.8, Tier: TierSubstring}}, matches)

	// Either direction.
	matches, err = a.Matcher().Match(context.Background(), CandidateSection{Title: "Summary"}, proposalSections)
	require.NoError(t, err)
	assert.Equal(t, []SectionMatch{{SectionID: "s1", Confidence: 0.8, Tier: TierSubstring}}, matches)
	assert.Equal(t, 0, fc.count("match"))
}

func TestMatcher_SemanticTier(t *testing.T) {
	fc := newFakeCompleter().on("match", reply(t, map[string]any{
		"matches": []map[string]any{
			{"sectionId": "s2", "confidence": 0.6},
			{"sectionId": "unknown", "confidence": 0.99},
			{"sectionId": "s3", "confidence": 0.4},
			{"sectionId": "s1", "confidence": 1.7},
			{"sectionId": "s2", "confidence": 0.9},
		},
	}))
	a := newTestAnalyzer(t, fc)

	matches, err := a.Matcher().Match(context.Background(), CandidateSection{Title: "Costs", Content: "Fees"}, proposalSections)
	require.NoError(t, err)
	assert.Equal(t, []SectionMatch{
		{SectionID: "s1", Confidence: 1.0, Tier: TierSemantic},
		{SectionID: "s2", Confidence: 0.9, Tier: TierSemantic},
	}, matches)
	require.Equal(t, 1, fc.count("match"))

	req := fc.requestsFor("match")[0]
	assert.Equal(t, match.UserPromptKey, req.PromptKey)
	assert.Contains(t, req.User, "id: s2 | title: Pricing")
	assert.Contains(t, req.System, "0.5")
}

func TestMatcher_SemanticFailureIsUnmatched(t *testing.T) {
	for name, h := range map[string]func(CompletionRequest) (string, error){
		"error":     fail(errTransport),
		"malformed": func(CompletionRequest) (string, error) { return "{not json", nil },
	} {
		t.Run(name, func(t *testing.T) {
			a := newTestAnalyzer(t, newFakeCompleter().on("match", h))
			matches, err := a.Matcher().Match(context.Background(), CandidateSection{Title: "Costs"}, proposalSections)
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestMatcher_SemanticFatalPropagates(t *testing.T) {
	a := newTestAnalyzer(t, newFakeCompleter().on("match", fail(fmt.Errorf("%w: 401", ErrFatal))))
	_, err := a.Matcher().Match(context.Background(), CandidateSection{Title: "Costs"}, proposalSections)
	require.ErrorIs(t, err, ErrFatal)
}

func TestMatcher_NoExistingSections(t *testing.T) {
	fc := newFakeCompleter()
	a := newTestAnalyzer(t, fc)
	matches, err := a.Matcher().Match(context.Background(), CandidateSection{Title: "Costs"}, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, 0, fc.count("match"))
}

func TestMatcher_MatchAllBatches(t *testing.T) {
	var inFlight, peak atomic.Int32
	fc := newFakeCompleter().on("match", func(req CompletionRequest) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return `{"matches": []}`, nil
	})
	a := newTestAnalyzer(t, fc)

	candidates := make([]CandidateSection, 7)
	for i := range candidates {
		candidates[i] = CandidateSection{Title: fmt.Sprintf("Topic %d", i)}
	}
	candidates[4] = CandidateSection{Title: "Team"}

	var batches []int
	results, err := a.Matcher().MatchAll(context.Background(), candidates, proposalSections, func(done, total int) {
		batches = append(batches, done)
		assert.Equal(t, 7, total)
	})
	require.NoError(t, err)
	require.Len(t, results, 7)
	assert.Equal(t, []SectionMatch{{SectionID: "s3", Confidence: 1.0, Tier: TierExact}}, results[4])
	assert.Empty(t, results[0])
	assert.Equal(t, []int{3, 6, 7}, batches)
	assert.LessOrEqual(t, peak.Load(), int32(DefaultMatchBatchSize))
	assert.Equal(t, 6, fc.count("match"))
}

func TestMatcher_MatchAllCancelledBetweenBatches(t *testing.T) {
	fc := newFakeCompleter().on("match", reply(t, map[string]any{"matches": []any{}}))
	a := newTestAnalyzer(t, fc)

	candidates := make([]CandidateSection, 6)
	for i := range candidates {
		candidates[i] = CandidateSection{Title: fmt.Sprintf("Topic %d", i)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := a.Matcher().MatchAll(ctx, candidates, proposalSections, func(done, total int) {
		cancel()
	})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 3, fc.count("match"))
}
