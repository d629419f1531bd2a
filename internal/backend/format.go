package backend

import (
	"fmt"
	"strings"
)

// FormatSGD renders an amount as "SGD $1,234.56". Negative amounts keep the
// sign before the dollar symbol.
func FormatSGD(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := fmt.Sprintf("%.2f", amount)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return fmt.Sprintf("SGD %s$%s.%s", sign, b.String(), frac)
}
