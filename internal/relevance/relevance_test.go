package relevance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/complaintqa/internal/rag"
)

// results builds a retrieval batch from parallel scores and categories.
func results(scores []float32, categories []string) []rag.RetrievalResult {
	out := make([]rag.RetrievalResult, len(scores))
	for i, s := range scores {
		cat := ""
		if categories != nil {
			cat = categories[i]
		}
		out[i] = rag.RetrievalResult{
			Chunk: rag.Chunk{Position: i, Text: "chunk", Metadata: rag.ChunkMetadata{ComplaintID: string(rune('a' + i)), ProductCategory: cat}},
			Score: s,
			Rank:  i + 1,
		}
	}
	return out
}

func scoresOf(rs []rag.RetrievalResult) []float32 {
	out := make([]float32, len(rs))
	for i, r := range rs {
		out[i] = r.Score
	}
	return out
}

func Test_Evaluate_ScenarioA_DropsBelowThreshold(t *testing.T) {
	t.Parallel()
	out := DefaultPolicy().Evaluate(results([]float32{0.71, 0.68, 0.52, 0.40, 0.22}, nil), "")

	assert.Equal(t, Confident, out.State)
	assert.Equal(t, []float32{0.71, 0.68, 0.52, 0.40}, scoresOf(out.Evidence))
	assert.Equal(t, 1, out.Dropped)
	assert.Equal(t, 5, out.Retrieved)
	assert.Equal(t, 4, out.AboveThreshold)
	assert.Empty(t, out.Reference)
	assert.InDelta(t, 0.5775, out.AverageScore, 1e-5)
}

func Test_Evaluate_ScenarioB_AllBelowThreshold(t *testing.T) {
	t.Parallel()
	out := DefaultPolicy().Evaluate(results([]float32{0.34, 0.30, 0.29, 0.25, 0.21}, nil), "")

	assert.Equal(t, LowConfidence, out.State)
	assert.Empty(t, out.Evidence)
	assert.Equal(t, []float32{0.34, 0.30, 0.29}, scoresOf(out.Reference))
	assert.Zero(t, out.Dropped)
	assert.False(t, out.State.Sufficient())
}

func Test_Evaluate_LowConfidenceFewerThanReferenceLimit(t *testing.T) {
	t.Parallel()
	out := DefaultPolicy().Evaluate(results([]float32{0.2}, nil), "")

	assert.Equal(t, LowConfidence, out.State)
	assert.Len(t, out.Reference, 1)
}

func Test_Evaluate_NoEvidence(t *testing.T) {
	t.Parallel()
	out := DefaultPolicy().Evaluate(nil, "Credit Cards")

	assert.Equal(t, NoEvidence, out.State)
	assert.Empty(t, out.Evidence)
	assert.Empty(t, out.Reference)
	assert.Zero(t, out.Retrieved)
}

func Test_Evaluate_ScenarioD_NarrowsToCategory(t *testing.T) {
	t.Parallel()
	in := results(
		[]float32{0.70, 0.66, 0.55, 0.50, 0.41},
		[]string{"Money Transfers", "Credit Cards", "Personal Loans", "Credit Cards", "Savings Accounts"},
	)
	out := DefaultPolicy().Evaluate(in, "Credit Cards")

	require.Equal(t, Confident, out.State)
	require.Len(t, out.Evidence, 2)
	for _, r := range out.Evidence {
		assert.Equal(t, "Credit Cards", r.Chunk.Metadata.ProductCategory)
	}
	assert.Equal(t, []float32{0.66, 0.50}, scoresOf(out.Evidence))
	assert.True(t, out.Narrowed)
	assert.Equal(t, 2, out.CategoryMatches)
	assert.Equal(t, 3, out.Dropped)
	assert.Equal(t, 2, out.EvidenceCategoryMatches())
}

func Test_Evaluate_SingleCategoryMatchDoesNotNarrow(t *testing.T) {
	t.Parallel()
	in := results(
		[]float32{0.70, 0.66, 0.55},
		[]string{"Money Transfers", "Credit Cards", "Personal Loans"},
	)
	out := DefaultPolicy().Evaluate(in, "Credit Cards")

	assert.Equal(t, Confident, out.State)
	assert.Len(t, out.Evidence, 3)
	assert.False(t, out.Narrowed)
	assert.Equal(t, 1, out.CategoryMatches)
	assert.Equal(t, 1, out.EvidenceCategoryMatches())
}

func Test_Evaluate_CategoryMatchesCountOnlySurvivors(t *testing.T) {
	t.Parallel()
	// Two credit card results, but one is below the threshold.
	in := results(
		[]float32{0.70, 0.60, 0.30},
		[]string{"Credit Cards", "Money Transfers", "Credit Cards"},
	)
	out := DefaultPolicy().Evaluate(in, "Credit Cards")

	assert.False(t, out.Narrowed)
	assert.Equal(t, 1, out.CategoryMatches)
	assert.Len(t, out.Evidence, 2)
}

func Test_Evaluate_ConfigurableMinMatches(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	p.CategoryMinMatches = 1
	in := results([]float32{0.70, 0.66}, []string{"Money Transfers", "Credit Cards"})

	out := p.Evaluate(in, "Credit Cards")
	assert.True(t, out.Narrowed)
	assert.Len(t, out.Evidence, 1)
}

func Test_Evaluate_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()
	out := DefaultPolicy().Evaluate(results([]float32{0.35}, nil), "")
	assert.Equal(t, Confident, out.State)
}

func Test_Evaluate_Deterministic(t *testing.T) {
	t.Parallel()
	in := results([]float32{0.9, 0.5, 0.3, 0.2}, []string{"A", "B", "A", "A"})
	p := DefaultPolicy()
	assert.Equal(t, p.Evaluate(in, "A"), p.Evaluate(in, "A"))
}

func Test_Evaluate_DoesNotAliasInput(t *testing.T) {
	t.Parallel()
	in := results([]float32{0.2, 0.1}, nil)
	out := DefaultPolicy().Evaluate(in, "")
	out.Reference[0].Score = 99
	assert.InDelta(t, 0.2, in[0].Score, 1e-6)
}

func Test_Evaluate_TopScore(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.34, DefaultPolicy().Evaluate(results([]float32{0.34, 0.30}, nil), "").TopScore, 1e-6)
	assert.InDelta(t, 0.71, DefaultPolicy().Evaluate(results([]float32{0.71, 0.22}, nil), "").TopScore, 1e-6)
	assert.Zero(t, DefaultPolicy().Evaluate(nil, "").TopScore)
}

func Test_Policy_Tier(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	assert.Equal(t, TierHigh, p.Tier(0.6))
	assert.Equal(t, TierModerate, p.Tier(0.45))
	assert.Equal(t, TierModerate, p.Tier(0.59))
	assert.Equal(t, TierLower, p.Tier(0.44))
	assert.Equal(t, "High Relevance", TierHigh.String())
}

func Test_Policy_Validate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.CategoryMinMatches = 0
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.Threshold = 1.5
	assert.Error(t, bad.Validate())
}

func Test_State_StringAndJSON(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "CONFIDENT", Confident.String())
	assert.Equal(t, "LOW_CONFIDENCE", LowConfidence.String())
	assert.Equal(t, "NO_EVIDENCE", NoEvidence.String())

	b, err := json.Marshal(map[string]State{"state": LowConfidence})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"LOW_CONFIDENCE"}`, string(b))
}
