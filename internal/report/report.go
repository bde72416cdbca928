// Package report renders pipeline responses for the terminal. Each relevance
// state has its own layout: confident answers list their sources with
// relevance tiers, low-confidence answers show reference material under a
// warning, and no-evidence answers say so plainly.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/54b3r/complaintqa/internal/pipeline"
	"github.com/54b3r/complaintqa/internal/rag"
	"github.com/54b3r/complaintqa/internal/relevance"
)

// previewLen caps the narrative excerpt shown per source.
const previewLen = 300

// Suggestions are shown when no high-relevance sources were found.
var Suggestions = []string{
	"Rephrase your question with more specific terms",
	"Mention a product: Credit Cards, Personal Loans, Savings Accounts or Money Transfers",
	"Ask about a concrete issue such as fees, fraud, delays or customer service",
}

// Notes returns the one-line observations about a response's evidence:
// dropped results, category agreement and prompt trimming.
func Notes(resp *pipeline.Response, policy relevance.Policy) []string {
	var notes []string
	o := resp.Outcome
	switch o.State {
	case relevance.Confident:
		notes = append(notes, fmt.Sprintf("Average relevance: %.3f (%s)", o.AverageScore, policy.Tier(o.AverageScore)))
		if o.Dropped > 0 {
			notes = append(notes, fmt.Sprintf("%d low-relevance source%s filtered out (below %.2f similarity)",
				o.Dropped, plural(o.Dropped), o.Threshold))
		}
		if o.Category != "" {
			matches := o.EvidenceCategoryMatches()
			if matches == len(o.Evidence) {
				notes = append(notes, fmt.Sprintf("All sources match requested product category: %s", o.Category))
			} else if matches > 0 {
				notes = append(notes, fmt.Sprintf("%d/%d sources match requested product category: %s",
					matches, len(o.Evidence), o.Category))
			}
		}
	case relevance.LowConfidence:
		notes = append(notes, fmt.Sprintf("No sources met the relevance threshold of %.2f", o.Threshold))
	case relevance.NoEvidence:
		notes = append(notes, "No sources retrieved for this query.")
	}
	if resp.Trimmed > 0 {
		notes = append(notes, fmt.Sprintf("%d source%s omitted to fit the prompt budget", resp.Trimmed, plural(resp.Trimmed)))
	}
	if resp.Fallback {
		notes = append(notes, "The model backend failed; this answer was built from the evidence without it.")
	}
	return notes
}

// Write renders resp to w.
func Write(w io.Writer, resp *pipeline.Response, policy relevance.Policy) error {
	ew := &errWriter{w: w}

	if resp.Rejection != nil {
		ew.printf("%s\n", resp.Rejection.Message)
		return ew.err
	}

	ew.printf("Question: %s\n", resp.Question)
	if resp.Category != "" {
		ew.printf("Category: %s\n", resp.Category)
	}
	ew.printf("\nAnswer:\n%s\n", resp.Answer)

	switch resp.State() {
	case relevance.Confident:
		ew.printf("\nSources (%d):\n", len(resp.Evidence))
		for i, r := range resp.Evidence {
			writeSource(ew, i+1, r, policy.Tier(r.Score).String())
		}
	case relevance.LowConfidence:
		ew.printf("\nNo High-Relevance Sources Found\n")
		ew.printf("None of the retrieved complaints scored above %.2f. Try:\n", resp.Outcome.Threshold)
		for _, s := range Suggestions {
			ew.printf("  - %s\n", s)
		}
		ew.printf("\nClosest matches, for reference only (%d):\n", len(resp.Reference))
		for i, r := range resp.Reference {
			writeSource(ew, i+1, r, LowRelevanceTier)
		}
	}

	if notes := Notes(resp, policy); len(notes) > 0 {
		ew.printf("\n")
		for _, n := range notes {
			ew.printf("* %s\n", n)
		}
	}
	return ew.err
}

// WritePrompt renders the exact prompt under a heading.
func WritePrompt(w io.Writer, resp *pipeline.Response) error {
	if resp.Prompt == "" {
		return nil
	}
	_, err := fmt.Fprintf(w, "\n----- prompt -----\n%s\n------------------\n", resp.Prompt)
	return err
}

func writeSource(ew *errWriter, n int, r rag.RetrievalResult, label string) {
	m := r.Chunk.Metadata
	ew.printf("\n[%d] Complaint %s | %s | %s | %s\n", n, orNA(m.ComplaintID), orNA(m.ProductCategory), orNA(m.Issue), orNA(m.DateReceived))
	ew.printf("    Similarity: %.3f (%s)\n", r.Score, label)
	ew.printf("    %s\n", preview(r.Chunk.Text))
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= previewLen {
		return s
	}
	cut := strings.LastIndexByte(s[:previewLen], ' ')
	if cut <= 0 {
		cut = previewLen
	}
	return s[:cut] + "..."
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

// errWriter keeps the first write error so rendering code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
