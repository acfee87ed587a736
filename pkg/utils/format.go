package utils

import (
	"fmt"
	"math"
)

// FormatUSD renders a dollar amount with two decimals and a thousands
// separator for readability.
func FormatUSD(amount float64) string {
	neg := amount < 0
	amount = math.Abs(amount)

	whole := int64(amount)
	frac := int(math.Round((amount - float64(whole)) * 100))
	if frac == 100 {
		whole++
		frac = 0
	}

	s := groupThousands(whole)
	out := fmt.Sprintf("$%s.%02d", s, frac)
	if neg {
		return "-" + out
	}
	return out
}

// FormatSignedPct renders a percentage with an explicit sign.
func FormatSignedPct(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}

// FormatQuantity renders a contract quantity at the precision venues
// commonly accept.
func FormatQuantity(qty float64) string {
	return fmt.Sprintf("%.3f", qty)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
