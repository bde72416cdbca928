// Package prompt renders retrieved complaint evidence and a question into the
// instruction template sent to the generator. Every function here is pure.
package prompt

import (
	"fmt"
	"strings"

	"github.com/54b3r/complaintqa/internal/rag"
)

// Section headings and fixed lines of the prompt template. The template
// fallback generator parses prompts by these markers.
const (
	QuestionHeading     = "## User Question:"
	EvidenceHeading     = "## Relevant Complaint Evidence:"
	InstructionsHeading = "## Instructions:"
	AnalysisHeading     = "## Your Analysis:"

	// NoEvidenceSentinel replaces the context when no evidence is supplied.
	NoEvidenceSentinel = "No relevant complaints found in the database."

	// BlockDelimiter separates complaint blocks in the formatted context.
	BlockDelimiter = "\n---\n"

	// BlockPrefix opens every complaint block, followed by its sequence number.
	BlockPrefix = "[Complaint "

	// GroundingInstruction closes every prompt.
	GroundingInstruction = "Based on the complaint evidence above, provide a concise answer to the user's question. " +
		"If the evidence is insufficient, clearly state that you cannot answer based on the available information."

	// InsufficiencyNotice is appended to the instructions when the relevance
	// gate did not produce trusted evidence.
	InsufficiencyNotice = "IMPORTANT: The complaint evidence available for this question is insufficient. " +
		"None of it met the relevance threshold, so it must not be presented as conclusive. " +
		"State clearly that you cannot answer with confidence based on the available complaint data, " +
		"and do not invent facts, figures or trends."
)

// SystemRole is the default role preamble.
const SystemRole = `You are a senior financial analyst at CrediTrust Financial, a digital finance company operating in East Africa. Your role is to analyze customer complaints and provide concise, evidence-backed insights to Product, Support, and Compliance teams.

Your responses must:
1. Use ONLY the provided complaint evidence - never guess or make assumptions
2. Be concise and actionable
3. Cite specific complaint details when relevant
4. Clearly state when the provided context is insufficient to answer
5. Focus on business insights: trends, patterns, and actionable recommendations`

// Placeholders for missing metadata fields.
const (
	missingField    = "N/A"
	missingCategory = "Unknown"
)

// FormatContext renders results as numbered complaint blocks joined by
// BlockDelimiter, in the order given. Scores are printed to three decimals.
func FormatContext(results []rag.RetrievalResult) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		m := r.Chunk.Metadata
		var b strings.Builder
		fmt.Fprintf(&b, "%s%d]\n", BlockPrefix, i+1)
		fmt.Fprintf(&b, "Complaint ID: %s\n", orDefault(m.ComplaintID, missingField))
		fmt.Fprintf(&b, "Product: %s\n", orDefault(m.ProductCategory, missingCategory))
		fmt.Fprintf(&b, "Issue: %s\n", orDefault(m.Issue, missingField))
		fmt.Fprintf(&b, "Date: %s\n", orDefault(m.DateReceived, missingField))
		fmt.Fprintf(&b, "Relevance Score: %.3f\n", r.Score)
		fmt.Fprintf(&b, "Narrative: %s\n", r.Chunk.Text)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, BlockDelimiter)
}

// options collects BuildPrompt settings.
type options struct {
	role         string
	insufficient bool
}

// Option customises BuildPrompt.
type Option func(*options)

// WithInsufficiencyNotice instructs the generator to state that the
// evidence is insufficient rather than answer from it.
func WithInsufficiencyNotice() Option {
	return func(o *options) { o.insufficient = true }
}

// WithSystemRole replaces the default role preamble. An empty role keeps
// the default.
func WithSystemRole(role string) Option {
	return func(o *options) {
		if role != "" {
			o.role = role
		}
	}
}

// BuildPrompt concatenates the role preamble, the question, the context (or
// NoEvidenceSentinel when context is empty) and the closing instructions.
func BuildPrompt(question, context string, opts ...Option) string {
	o := options{role: SystemRole}
	for _, opt := range opts {
		opt(&o)
	}
	if context == "" {
		context = NoEvidenceSentinel
	}

	var b strings.Builder
	b.WriteString(o.role)
	b.WriteString("\n\n")
	b.WriteString(QuestionHeading + "\n")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(EvidenceHeading + "\n")
	b.WriteString(context)
	b.WriteString("\n\n")
	b.WriteString(InstructionsHeading + "\n")
	b.WriteString(GroundingInstruction)
	if o.insufficient {
		b.WriteString("\n")
		b.WriteString(InsufficiencyNotice)
	}
	b.WriteString("\n\n")
	b.WriteString(AnalysisHeading)
	return b.String()
}

// Insufficient reports whether the prompt carries InsufficiencyNotice.
func Insufficient(p string) bool {
	return strings.Contains(p, InsufficiencyNotice)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
