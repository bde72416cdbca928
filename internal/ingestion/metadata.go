package ingestion

import (
	"regexp"
	"strings"

	"github.com/54b3r/complaintqa/internal/scope"
)

// productAliases maps lowercase fragments of CFPB product labels to the
// category vocabulary. It is checked in order and the first match wins, so
// longer, more specific fragments come first.
var productAliases = []struct {
	fragment string
	category string
}{
	{"credit card", scope.CreditCards},
	{"prepaid card", scope.CreditCards},
	{"personal loan", scope.PersonalLoans},
	{"consumer loan", scope.PersonalLoans},
	{"payday loan", scope.PersonalLoans},
	{"savings account", scope.SavingsAccounts},
	{"bank account", scope.SavingsAccounts},
	{"money transfer", scope.MoneyTransfers},
	{"virtual currency", scope.MoneyTransfers},
}

// CategoryForProduct maps a CFPB product label (e.g. "Credit card or prepaid
// card") onto a product category. The boolean is false for products outside
// the category vocabulary, such as mortgages or debt collection.
func CategoryForProduct(product string) (string, bool) {
	p := strings.ToLower(strings.TrimSpace(product))
	if p == "" {
		return "", false
	}
	for _, a := range productAliases {
		if strings.Contains(p, a.fragment) {
			return a.category, true
		}
	}
	// Exact category names are accepted so pre-normalized exports load too.
	for _, c := range scope.Categories {
		if strings.EqualFold(p, c) {
			return c, true
		}
	}
	return "", false
}

// redaction matches the XXXX masks the CFPB puts over personal details,
// including date masks such as XX/XX/XXXX.
var redaction = regexp.MustCompile(`\b[X]{2,}(/[X]{2,})*\b`)

// CleanNarrative strips redaction masks and collapses whitespace. It returns
// an empty string for narratives with no remaining text.
func CleanNarrative(s string) string {
	s = redaction.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
