// Package scope decides whether a question belongs to complaint analysis
// before any retrieval work is done, and infers the product category a
// question mentions.
package scope

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinLength is the shortest trimmed question accepted.
const DefaultMinLength = 5

// Rejection messages shown to the user.
const (
	EmptyMessage = "Please enter a question to query the complaint analysis system."

	TooShortMessage = "Please ask a more detailed question about customer complaints."

	OffTopicMessage = "This question appears to be outside the scope of the CrediTrust Complaint Analysis System. " +
		"Please ask questions about:\n\n" +
		"- Customer complaints and issues\n" +
		"- Financial products (Credit Cards, Loans, Savings Accounts, Money Transfers)\n" +
		"- Billing, fees, transactions, fraud\n" +
		"- Customer service experiences\n" +
		"- Complaint patterns and trends\n\n" +
		"Example: 'What are the most common issues with Credit Cards?'"

	UnrelatedMessage = "This question doesn't appear to be related to customer complaints. " +
		"Please ask questions about CrediTrust Financial complaints, such as:\n\n" +
		"- What issues are customers reporting with [product]?\n" +
		"- Are there complaints about [specific issue]?\n" +
		"- What are common [product] complaints?\n" +
		"- How do customers describe [issue type]?"
)

// Classifier decides whether a question is in scope. reason is a
// user-facing message and is empty when the question is in scope.
// Implementations must be safe for concurrent use.
type Classifier interface {
	IsInScope(question string) (ok bool, reason string)
}

// CheckLength rejects empty or too-short questions. It returns the
// user-facing message and false on rejection.
func CheckLength(question string, minLength int) (string, bool) {
	q := strings.TrimSpace(question)
	if q == "" {
		return EmptyMessage, false
	}
	if utf8.RuneCountInString(q) < minLength {
		return TooShortMessage, false
	}
	return "", true
}

// KeywordClassifier is a substring heuristic: a question is in scope when it
// contains any Relevant keyword, and rejected with a message that depends on
// whether it also contains an OffTopic indicator.
type KeywordClassifier struct {
	// Relevant lists lower-case substrings that mark a complaint question.
	Relevant []string

	// OffTopic lists lower-case substrings that mark an unrelated question.
	OffTopic []string
}

// NewKeywordClassifier returns a classifier with the default keyword lists.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		Relevant: append([]string(nil), relevantKeywords...),
		OffTopic: append([]string(nil), offTopicKeywords...),
	}
}

// IsInScope implements Classifier.
func (k *KeywordClassifier) IsInScope(question string) (bool, string) {
	q := strings.ToLower(strings.TrimSpace(question))
	if containsAny(q, k.Relevant) {
		return true, ""
	}
	if containsAny(q, k.OffTopic) {
		return false, OffTopicMessage
	}
	return false, UnrelatedMessage
}

// AllowAll accepts every question.
type AllowAll struct{}

// IsInScope implements Classifier.
func (AllowAll) IsInScope(string) (bool, string) { return true, "" }

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

var relevantKeywords = []string{
	// complaints
	"complaint", "issue", "problem", "customer", "consumer", "report",
	// products
	"credit card", "personal loan", "loan", "savings account", "money transfer",
	"account", "billing", "bill", "fee", "charge",
	// financial terms
	"transaction", "payment", "fraud", "unauthorized", "dispute", "refund",
	"balance", "statement", "interest", "apr", "credit", "debit",
	// service
	"service", "support", "help", "assistance", "delay", "timely", "response",
	"respond", "resolve", "resolution", "approval", "approve", "denied",
	"denial", "application", "apply",
	// complaint types
	"collection", "debt", "identity theft", "mortgage", "prepaid card",
	// analysis verbs and question words
	"what", "how", "why", "when", "where", "common", "frequent", "trend",
	"pattern", "describe", "explain", "tell", "show", "find", "search",
	"analyze", "analysis", "summary", "overview", "most", "least", "often",
}

var offTopicKeywords = []string{
	"llm", "large language model", "machine learning", "deep learning",
	"neural network", "ai model", "gpt", "transformer", "embedding", "vector",
	"rag", "prompt engineering", "nlp", "natural language processing",
	"definition", "define", "history of",
	"python", "programming", "code", "algorithm", "software", "technology",
	"weather", "sports", "movie", "news", "recipe", "cooking",
}
