package helpers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// digit groups of three, then an optional one or two digit fraction
var priceNumber = regexp.MustCompile(`([0-9]+(?:[.,\x{00a0}\x{202f} ][0-9]{3})*)(?:[.,]([0-9]{1,2}))?`)

// ParsePrice pulls the first number out of a displayed price such as
// "£1,299.99", "1.299,99 €" or "AED 45". A separator followed by exactly
// three digits groups thousands, one followed by one or two digits is the
// decimal point.
func ParsePrice(text string) (float64, error) {
	m := priceNumber.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no price found in %q", text)
	}

	number := digitsOnly(m[1])
	if m[2] != "" {
		number += "." + m[2]
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	return value, nil
}

// PriceOrZero is ParsePrice for callers that treat garbage as "no price"
func PriceOrZero(text string) float64 {
	value, err := ParsePrice(text)
	if err != nil {
		return 0
	}
	return value
}

var countNumber = regexp.MustCompile(`[0-9]+(?:[.,\x{00a0} ][0-9]{3})*`)

// ParseCount reads counts such as "1,234 ratings"
func ParseCount(text string) int {
	match := countNumber.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(digitsOnly(match))
	if err != nil {
		return 0
	}
	return n
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
