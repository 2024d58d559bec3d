// Package price turns human-formatted price text into exact decimal amounts.
//
// Storefronts mix Latin American ("$47.990", "1.234,56") and US ("$1,234.56")
// separator conventions. Normalize classifies the separators from the shape of
// the text alone, so a single call handles both.
package price

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	canonicalRe = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)
	usdRe       = regexp.MustCompile(`USD|US\$`)
)

// Normalize parses raw price text. The second return value is false when no
// number could be recovered; that is a soft miss, never an error.
func Normalize(raw string) (decimal.Decimal, bool) {
	t := keepNumeric(strings.TrimSpace(raw))

	switch {
	case followedByThreeDigits(t, '.') && !strings.ContainsRune(t, ','):
		t = strings.ReplaceAll(t, ".", "")
	case followedByThreeDigits(t, ',') && !strings.ContainsRune(t, '.'):
		t = strings.ReplaceAll(t, ",", "")
	default:
		if dec, ok := decimalSeparator(t); ok {
			thousands := ","
			if dec == ',' {
				thousands = "."
			}
			t = strings.ReplaceAll(t, thousands, "")
			last := strings.LastIndexByte(t, dec)
			// "12.5.3" has no consistent reading
			if strings.IndexByte(t, dec) != last {
				return decimal.Decimal{}, false
			}
			t = t[:last] + "." + t[last+1:]
		} else {
			t = strings.NewReplacer(".", "", ",", "").Replace(t)
		}
	}

	t = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, t)

	if !canonicalRe.MatchString(t) {
		return decimal.Decimal{}, false
	}
	t = strings.TrimSuffix(t, ".")
	if strings.HasPrefix(t, ".") {
		t = "0" + t
	}

	d, err := decimal.NewFromString(t)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// keepNumeric drops everything but digits, separators and whitespace
func keepNumeric(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, s)
}

// followedByThreeDigits reports whether sep occurs followed by exactly three
// digits (a fourth digit, if any, disqualifies the occurrence).
func followedByThreeDigits(s string, sep byte) bool {
	for i := 0; i+3 < len(s); i++ {
		if s[i] != sep {
			continue
		}
		if !isDigit(s[i+1]) || !isDigit(s[i+2]) || !isDigit(s[i+3]) {
			continue
		}
		if i+4 < len(s) && isDigit(s[i+4]) {
			continue
		}
		return true
	}
	return false
}

// decimalSeparator returns the last separator when it is followed by one or
// two trailing digits.
func decimalSeparator(s string) (byte, bool) {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	idx := strings.LastIndexAny(s, ".,")
	if idx < 0 {
		return 0, false
	}
	tail := s[idx+1:]
	if len(tail) < 1 || len(tail) > 2 {
		return 0, false
	}
	for i := 0; i < len(tail); i++ {
		if !isDigit(tail[i]) {
			return 0, false
		}
	}
	return s[idx], true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// GuessCurrency infers an ISO currency code from symbols in the text.
// A bare "$" is read as CLP, the deployment's home market. Returns "" when
// nothing is recognizable so the caller can supply its own default.
func GuessCurrency(text string) string {
	switch {
	case usdRe.MatchString(text):
		return "USD"
	case strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(text, "$"):
		return "CLP"
	}
	return ""
}

var localeCurrencies = map[string]string{
	"es-cl": "CLP",
	"en-us": "USD",
	"es-us": "USD",
	"es-ar": "ARS",
	"es-mx": "MXN",
	"es-co": "COP",
	"es-pe": "PEN",
	"pt-br": "BRL",
	"es-es": "EUR",
	"de-de": "EUR",
	"fr-fr": "EUR",
	"it-it": "EUR",
}

// LocaleCurrency returns the region currency for a BCP-47 locale, or "".
func LocaleCurrency(locale string) string {
	return localeCurrencies[strings.ToLower(strings.ReplaceAll(locale, "_", "-"))]
}
