package report

import (
	"github.com/54b3r/complaintqa/internal/pipeline"
	"github.com/54b3r/complaintqa/internal/rag"
	"github.com/54b3r/complaintqa/internal/relevance"
)

// LowRelevanceTier labels reference material shown below the threshold.
const LowRelevanceTier = "Low Relevance"

// Source is one retrieved chunk in a Document.
type Source struct {
	Rank            int     `json:"rank"`
	ComplaintID     string  `json:"complaint_id"`
	ProductCategory string  `json:"product_category"`
	Issue           string  `json:"issue"`
	DateReceived    string  `json:"date_received"`
	Score           float32 `json:"score"`
	Tier            string  `json:"tier"`
	Text            string  `json:"text"`
}

// Document is the JSON form of a pipeline response, shared by `cqa ask
// --json` and POST /api/query.
type Document struct {
	// ID identifies the answer in the query log. Empty on rejection.
	ID string `json:"id,omitempty"`
	// State is the relevance gate decision. Empty on rejection.
	State string `json:"state,omitempty"`
	// Category is the category used for retrieval, explicit or inferred.
	Category string `json:"category,omitempty"`
	// Answer is the generated answer, or the rejection message.
	Answer string `json:"answer"`
	// Evidence lists the sources the answer is grounded in.
	Evidence []Source `json:"evidence"`
	// Reference lists low-relevance material in the LOW_CONFIDENCE state.
	Reference []Source `json:"reference"`
	// Prompt is the exact prompt sent to the generator.
	Prompt string `json:"prompt,omitempty"`
	// Notes are the observations returned by Notes.
	Notes []string `json:"notes,omitempty"`
	// Rejection explains a refused question.
	Rejection *pipeline.Rejection `json:"rejection,omitempty"`
	// Fallback reports that the template answer replaced the model answer.
	Fallback bool `json:"fallback"`
	// Generator names the generator that produced Answer.
	Generator string `json:"generator,omitempty"`
}

// NewDocument converts resp to its JSON form. Evidence and Reference are
// never nil so they encode as empty arrays.
func NewDocument(resp *pipeline.Response, policy relevance.Policy) Document {
	doc := Document{
		Category:  resp.Category,
		Evidence:  []Source{},
		Reference: []Source{},
		Rejection: resp.Rejection,
	}
	if resp.Rejection != nil {
		doc.Answer = resp.Rejection.Message
		return doc
	}

	doc.ID = resp.ID
	doc.State = resp.State().String()
	doc.Answer = resp.Answer
	doc.Prompt = resp.Prompt
	doc.Fallback = resp.Fallback
	doc.Generator = resp.Generator
	doc.Notes = Notes(resp, policy)
	for _, r := range resp.Evidence {
		doc.Evidence = append(doc.Evidence, newSource(r, policy.Tier(r.Score).String()))
	}
	for _, r := range resp.Reference {
		doc.Reference = append(doc.Reference, newSource(r, LowRelevanceTier))
	}
	return doc
}

func newSource(r rag.RetrievalResult, tier string) Source {
	m := r.Chunk.Metadata
	return Source{
		Rank:            r.Rank,
		ComplaintID:     m.ComplaintID,
		ProductCategory: m.ProductCategory,
		Issue:           m.Issue,
		DateReceived:    m.DateReceived,
		Score:           r.Score,
		Tier:            tier,
		Text:            r.Chunk.Text,
	}
}
