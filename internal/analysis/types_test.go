package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExistingSection_ContentShapes(t *testing.T) {
	var sections []ExistingSection
	err := json.Unmarshal([]byte(`[
		{"id": "a", "title": "Summary", "content": "<p>Hi</p>", "type": "text"},
		{"id": "b", "title": "Contact", "content": {"name": "Ann", "phone": 555, "fax": null}, "type": "fields"},
		{"id": "c", "title": "Empty", "content": null}
	]`), &sections)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, "<p>Hi</p>", sections[0].Content.String())
	assert.False(t, sections[0].Content.IsFields())

	assert.True(t, sections[1].Content.IsFields())
	assert.Equal(t, "name: Ann\nphone: 555", sections[1].Content.String())

	assert.True(t, sections[2].Content.IsEmpty())

	out, err := json.Marshal(sections[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b","title":"Contact","content":{"fax":"","name":"Ann","phone":"555"},"type":"fields"}`, string(out))
}

func TestSectionContent_BlankFieldsAreEmpty(t *testing.T) {
	c := SectionContent{Fields: FieldMap{"amount": "", "currency": "  "}}
	assert.True(t, c.IsEmpty())
	assert.Equal(t, "", c.String())

	c.Fields["currency"] = "EUR"
	assert.False(t, c.IsEmpty())
	assert.Equal(t, "currency: EUR", c.String())
}

func TestSectionContent_RejectsOtherShapes(t *testing.T) {
	var c SectionContent
	assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &c))
}

func TestResult_JSONFieldNames(t *testing.T) {
	out, err := json.Marshal(Result{
		Sections: []AnalyzedSection{{ID: "s1", MergeType: MergeDirect, SourceSection: &CandidateSection{Title: "T"}}},
		Unmatched: []UnmatchedEntry{{Content: "c", PotentialSections: []PotentialSection{{SectionID: "s1", Relevance: 0.5}}}},
	})
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `"mergeType":"direct"`)
	assert.Contains(t, s, `"sourceSection":{`)
	assert.Contains(t, s, `"potentialSections":[{"sectionId":"s1","relevance":0.5}]`)
}
