package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	priceNumber     = regexp.MustCompile(`\d+(?:\.\d+)?`)
	spacedThousands = regexp.MustCompile(`(\d)[ \x{00a0}\x{202f}](\d{3})`)
)

// ParsePrice extracts a non-negative amount from free-form price text.
// Currency symbols, letters and thousands separators are dropped and only the
// first number is read, so ranges yield their lower bound. A comma followed
// by exactly two trailing digits is read as a decimal mark. Unparseable input
// yields 0.
func ParsePrice(raw string) float64 {
	s := spacedThousands.ReplaceAllString(strings.TrimSpace(raw), "$1$2")
	token := ""
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != ','
	}) {
		if strings.ContainsAny(f, "0123456789") {
			token = f
			break
		}
	}
	if token == "" {
		return 0
	}
	if i := strings.LastIndex(token, ","); i >= 0 && !strings.Contains(token, ".") && len(token)-i == 3 {
		token = token[:i] + "." + token[i+1:]
	}
	token = strings.ReplaceAll(token, ",", "")
	m := priceNumber.FindString(token)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ConvertPrice applies rate to amount and rounds to cents. A non-positive
// rate passes the amount through unchanged. Negative results clamp to 0.
func ConvertPrice(amount, rate float64) float64 {
	if rate > 0 {
		amount *= rate
	}
	if amount < 0 || math.IsNaN(amount) {
		return 0
	}
	return math.Round(amount*100) / 100
}
