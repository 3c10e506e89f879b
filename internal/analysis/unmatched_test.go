package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmatchedAnalyzer_MapsSuggestions(t *testing.T) {
	fc := newFakeCompleter().on("unmatched", reply(t, map[string]any{
		"analysis": []map[string]any{
			{"index": 1, "potentialSections": []map[string]any{
				{"sectionId": "s3", "relevance": 0.4},
				{"sectionId": "nope", "relevance": 0.9},
				{"sectionId": "s2", "relevance": 1.4},
			}},
			{"index": 0, "potentialSections": []map[string]any{
				{"sectionId": "s1", "relevance": 0.7},
				{"sectionId": "s1", "relevance": 0.8},
			}},
		},
	}))
	a := newTestAnalyzer(t, fc)

	candidates := []CandidateSection{
		{Title: "Company History", Content: "Founded 1999."},
		{Title: "Budget", Content: "About 10k."},
	}
	entries, err := a.UnmatchedAnalyzer().AnalyzeUnmatched(context.Background(), candidates, proposalSections)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Founded 1999.", entries[0].Content)
	assert.Equal(t, []PotentialSection{{SectionID: "s1", Relevance: 0.8}}, entries[0].PotentialSections)
	assert.Equal(t, []PotentialSection{
		{SectionID: "s2", Relevance: 1.0},
		{SectionID: "s3", Relevance: 0.4},
	}, entries[1].PotentialSections)
	assert.Equal(t, 1, fc.count("unmatched"), "one batched call for all candidates")

	req := fc.requestsFor("unmatched")[0]
	assert.Contains(t, req.User, "[0] Company History")
	assert.Contains(t, req.User, "[1] Budget")
}

func TestUnmatchedAnalyzer_IndexFallsBackToPosition(t *testing.T) {
	fc := newFakeCompleter().on("unmatched", reply(t, map[string]any{
		"analysis": []map[string]any{
			{"index": 42, "potentialSections": []map[string]any{{"sectionId": "s2", "relevance": 0.6}}},
		},
	}))
	a := newTestAnalyzer(t, fc)

	entries, err := a.UnmatchedAnalyzer().AnalyzeUnmatched(context.Background(), []CandidateSection{{Title: "Budget", Content: "x"}}, proposalSections)
	require.NoError(t, err)
	assert.Equal(t, []PotentialSection{{SectionID: "s2", Relevance: 0.6}}, entries[0].PotentialSections)
}

func TestUnmatchedAnalyzer_FailureReturnsEmpty(t *testing.T) {
	a := newTestAnalyzer(t, newFakeCompleter().on("unmatched", fail(errTransport)))
	entries, err := a.UnmatchedAnalyzer().AnalyzeUnmatched(context.Background(), []CandidateSection{{Title: "Budget", Content: "x"}}, proposalSections)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnmatchedAnalyzer_NoCallWithoutInput(t *testing.T) {
	fc := newFakeCompleter()
	a := newTestAnalyzer(t, fc)

	entries, err := a.UnmatchedAnalyzer().AnalyzeUnmatched(context.Background(), nil, proposalSections)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = a.UnmatchedAnalyzer().AnalyzeUnmatched(context.Background(), []CandidateSection{{Title: "Budget", Content: "x"}}, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].PotentialSections)
	assert.Equal(t, 0, fc.count("unmatched"))
}
