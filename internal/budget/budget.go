// Package budget estimates prompt token counts and trims evidence so a
// prompt fits a model's input budget. Backends use different tokenizers, so
// estimation uses a conservative character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message token overhead most chat APIs add.
	messageOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimTail drops items from the end of items until render(items) fits within
// maxTokens, never going below keep items. items is assumed to be ordered
// most important first. A maxTokens of zero or less disables trimming.
// It returns the kept prefix and the number of items dropped.
func TrimTail[T any](items []T, render func([]T) string, maxTokens, keep int) ([]T, int) {
	if maxTokens <= 0 {
		return items, 0
	}
	n := len(items)
	for n > keep && Estimate(render(items[:n])) > maxTokens {
		n--
	}
	return items[:n], len(items) - n
}
