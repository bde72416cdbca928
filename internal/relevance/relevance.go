// Package relevance implements the post-retrieval gate that decides whether
// retrieved complaint passages are trustworthy enough to answer from.
//
// The gate is a pure function of the retrieved scores, their category
// matches, and the Policy. It yields one of three states:
//
//   - Confident: at least one result clears the threshold. Only surviving
//     results are kept, optionally narrowed to the requested category.
//   - LowConfidence: results were retrieved but none clear the threshold.
//     The top ReferenceLimit raw results are surfaced as reference material.
//   - NoEvidence: nothing was retrieved.
package relevance

import (
	"fmt"

	"github.com/54b3r/complaintqa/internal/rag"
)

// Default policy values, chosen empirically on a cosine scale where
// normalized embeddings score roughly 0.2 to 1.0.
const (
	// DefaultThreshold is the minimum similarity for trusted evidence.
	DefaultThreshold = 0.35

	// DefaultCategoryMinMatches is the number of category-matching survivors
	// needed before the evidence is narrowed to the category.
	DefaultCategoryMinMatches = 2

	// DefaultReferenceLimit is the number of raw results shown as reference
	// material in the low-confidence state.
	DefaultReferenceLimit = 3

	// DefaultHighScore is the lower bound of the high relevance tier.
	DefaultHighScore = 0.6

	// DefaultModerateScore is the lower bound of the moderate relevance tier.
	DefaultModerateScore = 0.45
)

// State is the outcome of the relevance gate.
type State int

const (
	// NoEvidence means retrieval returned nothing.
	NoEvidence State = iota

	// LowConfidence means results were retrieved but none cleared the threshold.
	LowConfidence

	// Confident means at least one result cleared the threshold.
	Confident
)

// String returns the canonical upper-case state name.
func (s State) String() string {
	switch s {
	case Confident:
		return "CONFIDENT"
	case LowConfidence:
		return "LOW_CONFIDENCE"
	case NoEvidence:
		return "NO_EVIDENCE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state as its canonical name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Sufficient reports whether the state supports a grounded answer. The
// prompt for any other state instructs the generator to state insufficiency.
func (s State) Sufficient() bool {
	return s == Confident
}

// Tier is a coarse relevance band for a similarity score.
type Tier int

const (
	// TierLower is below the moderate bound.
	TierLower Tier = iota

	// TierModerate is at or above the moderate bound.
	TierModerate

	// TierHigh is at or above the high bound.
	TierHigh
)

// String returns a human-readable tier label.
func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "High Relevance"
	case TierModerate:
		return "Moderate Relevance"
	default:
		return "Lower Relevance"
	}
}

// Policy holds the tunable gate parameters. The zero value is not useful;
// start from DefaultPolicy.
type Policy struct {
	// Threshold is the minimum similarity for a result to count as evidence.
	Threshold float32 `json:"threshold"`

	// CategoryMinMatches is how many surviving results must match the
	// requested category before evidence is narrowed to that category.
	CategoryMinMatches int `json:"category_min_matches"`

	// ReferenceLimit caps the raw results surfaced in the low-confidence state.
	ReferenceLimit int `json:"reference_limit"`

	// HighScore is the lower bound of TierHigh.
	HighScore float32 `json:"high_score"`

	// ModerateScore is the lower bound of TierModerate.
	ModerateScore float32 `json:"moderate_score"`
}

// DefaultPolicy returns the policy with the package defaults.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:          DefaultThreshold,
		CategoryMinMatches: DefaultCategoryMinMatches,
		ReferenceLimit:     DefaultReferenceLimit,
		HighScore:          DefaultHighScore,
		ModerateScore:      DefaultModerateScore,
	}
}

// Validate reports a policy whose bounds cannot produce a sensible gate.
func (p Policy) Validate() error {
	if p.Threshold < -1 || p.Threshold > 1 {
		return fmt.Errorf("relevance: threshold %.3f outside [-1, 1]", p.Threshold)
	}
	if p.CategoryMinMatches < 1 {
		return fmt.Errorf("relevance: category min matches must be at least 1, got %d", p.CategoryMinMatches)
	}
	if p.ReferenceLimit < 0 {
		return fmt.Errorf("relevance: reference limit must not be negative, got %d", p.ReferenceLimit)
	}
	if p.ModerateScore > p.HighScore {
		return fmt.Errorf("relevance: moderate bound %.3f above high bound %.3f", p.ModerateScore, p.HighScore)
	}
	return nil
}

// Tier classifies a single similarity score.
func (p Policy) Tier(score float32) Tier {
	switch {
	case score >= p.HighScore:
		return TierHigh
	case score >= p.ModerateScore:
		return TierModerate
	default:
		return TierLower
	}
}

// Outcome is the result of running the gate over one retrieval batch.
type Outcome struct {
	// State is the gate decision.
	State State

	// Evidence holds the trusted results in retrieval order. Empty unless
	// State is Confident.
	Evidence []rag.RetrievalResult

	// Reference holds the top raw results shown as low-relevance reference
	// material. Empty unless State is LowConfidence.
	Reference []rag.RetrievalResult

	// Retrieved is the number of raw results the gate received.
	Retrieved int

	// AboveThreshold is the number of results that cleared the threshold.
	AboveThreshold int

	// Category is the requested category, empty when none was requested.
	Category string

	// CategoryMatches is the number of above-threshold results whose
	// category equals Category.
	CategoryMatches int

	// Narrowed reports whether Evidence was narrowed to Category.
	Narrowed bool

	// Dropped is the number of raw results excluded from Evidence, by the
	// threshold or by category narrowing. Zero unless State is Confident.
	Dropped int

	// TopScore is the score of the first raw result, zero when nothing was
	// retrieved.
	TopScore float32

	// AverageScore is the mean score of Evidence, zero when Evidence is empty.
	AverageScore float32

	// Threshold is the threshold the gate applied.
	Threshold float32
}

// Evaluate runs the gate. results must be in retrieval order; category is
// the requested product category, or empty. The returned slices never alias
// results.
func (p Policy) Evaluate(results []rag.RetrievalResult, category string) Outcome {
	out := Outcome{
		State:     NoEvidence,
		Retrieved: len(results),
		Category:  category,
		Threshold: p.Threshold,
	}
	if len(results) == 0 {
		return out
	}
	out.TopScore = results[0].Score

	survivors := make([]rag.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.Score >= p.Threshold {
			survivors = append(survivors, r)
		}
	}
	out.AboveThreshold = len(survivors)

	if len(survivors) == 0 {
		out.State = LowConfidence
		out.Reference = append([]rag.RetrievalResult(nil), results[:min(p.ReferenceLimit, len(results))]...)
		return out
	}

	if category != "" {
		matched := make([]rag.RetrievalResult, 0, len(survivors))
		for _, r := range survivors {
			if r.Chunk.Metadata.ProductCategory == category {
				matched = append(matched, r)
			}
		}
		out.CategoryMatches = len(matched)
		if len(matched) >= p.CategoryMinMatches {
			survivors = matched
			out.Narrowed = true
		}
	}

	out.State = Confident
	out.Evidence = survivors
	out.Dropped = len(results) - len(survivors)

	var sum float32
	for _, r := range survivors {
		sum += r.Score
	}
	out.AverageScore = sum / float32(len(survivors))
	return out
}

// EvidenceCategoryMatches counts Evidence entries matching the requested
// category. It is zero when no category was requested.
func (o Outcome) EvidenceCategoryMatches() int {
	if o.Category == "" {
		return 0
	}
	n := 0
	for _, r := range o.Evidence {
		if r.Chunk.Metadata.ProductCategory == o.Category {
			n++
		}
	}
	return n
}
