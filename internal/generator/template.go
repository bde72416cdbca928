package generator

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/54b3r/complaintqa/internal/rag"
	"github.com/54b3r/complaintqa/internal/relevance"
)

// TemplateName is the Name of TemplateGenerator.
const TemplateName = "template"

// maxListedIssues caps the issue labels named in a template answer.
const maxListedIssues = 3

// TemplateGenerator answers deterministically from the gate state and the
// context blocks of a Request. It never fails.
type TemplateGenerator struct{}

// NewTemplate returns a TemplateGenerator.
func NewTemplate() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Name implements Generator.
func (*TemplateGenerator) Name() string {
	return TemplateName
}

// Generate implements Generator.
func (*TemplateGenerator) Generate(_ context.Context, req *Request) (string, error) {
	return Template(req), nil
}

// Template returns the templated answer for req. Complaint IDs and issue
// labels come from req.Blocks only.
func Template(req *Request) string {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = "the question"
	}

	if req.State == relevance.NoEvidence || len(req.Blocks) == 0 {
		return fmt.Sprintf("I cannot answer %q based on the available complaint data. "+
			"Please refine your query or check if relevant complaints exist in the database.", question)
	}

	ids := make([]string, 0, len(req.Blocks))
	for _, r := range req.Blocks {
		ids = append(ids, orNA(r.Chunk.Metadata.ComplaintID))
	}

	if req.State == relevance.LowConfidence {
		return fmt.Sprintf("I cannot answer %q with confidence: none of the retrieved complaints met the relevance threshold. "+
			"The closest complaints (%s) are shown for reference only. "+
			"Please refine your query with product or issue terms.", question, strings.Join(ids, ", "))
	}

	n := len(req.Blocks)
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the retrieved complaint evidence, I can provide insights related to %q. ", question)
	fmt.Fprintf(&b, "%d relevant complaint excerpt%s (%s) %s retrieved",
		n, plural(n), strings.Join(ids, ", "), wasWere(n))
	if issues := topIssues(req.Blocks); len(issues) > 0 {
		fmt.Fprintf(&b, "; the issues raised most often are %s", strings.Join(issues, ", "))
	}
	b.WriteString(". Please review the complaint narratives for specific details.")
	return b.String()
}

// topIssues returns the most frequent issue labels with their counts, most
// frequent first, ties in first-seen order.
func topIssues(blocks []rag.RetrievalResult) []string {
	type tally struct {
		issue string
		n     int
	}
	var counts []tally
	for _, r := range blocks {
		issue := strings.TrimSpace(r.Chunk.Metadata.Issue)
		if issue == "" {
			continue
		}
		i := slices.IndexFunc(counts, func(t tally) bool { return t.issue == issue })
		if i < 0 {
			counts = append(counts, tally{issue: issue, n: 1})
			continue
		}
		counts[i].n++
	}
	slices.SortStableFunc(counts, func(a, b tally) int { return cmp.Compare(b.n, a.n) })

	out := make([]string, 0, min(len(counts), maxListedIssues))
	for _, c := range counts[:min(len(counts), maxListedIssues)] {
		out = append(out, fmt.Sprintf("%s (%d)", c.issue, c.n))
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}
