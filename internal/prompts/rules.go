// Package prompts holds the step directive table, the fixed business rules injected into
// every model prompt, and the localized message catalogue used when the model is not.
package prompts

import (
	"strconv"

	"github.com/BTreeMap/LeadPipe/internal/lang"
)

// DefaultMinLoanAmount is the smallest loan, in shekels, the business handles.
const DefaultMinLoanAmount int64 = 200000

// BusinessRules are the values the system prompt is rendered from. Keeping them out of the
// prompt text lets the engine apply the same threshold the model is told about.
type BusinessRules struct {
	BrandName       string
	MinLoanAmount   int64
	Currency        string
	RequireProperty bool
	DefaultLanguage lang.Code
	HistoryWindow   int
}

// DefaultRules returns the production rule set.
func DefaultRules() BusinessRules {
	return BusinessRules{
		BrandName:       "Admatenu Beytenu",
		MinLoanAmount:   DefaultMinLoanAmount,
		Currency:        "NIS",
		RequireProperty: true,
		DefaultLanguage: lang.Default,
		HistoryWindow:   10,
	}
}

// Qualifies reports whether amount meets the minimum.
func (r BusinessRules) Qualifies(amount int64) bool {
	return amount >= r.MinLoanAmount
}

// FormatAmount renders an amount with thousands separators, e.g. 200,000.
func FormatAmount(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := false
	if amount < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
