package scope

import "strings"

// Product categories of the complaint corpus. Category filtering is exact
// string equality against these values.
const (
	CreditCards     = "Credit Cards"
	PersonalLoans   = "Personal Loans"
	SavingsAccounts = "Savings Accounts"
	MoneyTransfers  = "Money Transfers"
)

// Categories is the known category vocabulary.
var Categories = []string{CreditCards, PersonalLoans, SavingsAccounts, MoneyTransfers}

// categoryKeywords is checked in order; the first keyword found wins.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"savings account", SavingsAccounts},
	{"savings", SavingsAccounts},
	{"credit card", CreditCards},
	{"personal loan", PersonalLoans},
	{"loan", PersonalLoans},
	{"money transfer", MoneyTransfers},
	{"transfer", MoneyTransfers},
}

// InferCategory returns the product category a question mentions, or "" if
// none. Callers decide whether to pass the result on as a filter.
func InferCategory(question string) string {
	q := strings.ToLower(question)
	for _, ck := range categoryKeywords {
		if strings.Contains(q, ck.keyword) {
			return ck.category
		}
	}
	return ""
}

// KnownCategory reports whether c is in the category vocabulary.
func KnownCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
