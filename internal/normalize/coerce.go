package normalize

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var nullSentinels = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
	"nan":  true,
	"n/a":  true,
	"na":   true,
	"-":    true,
}

// ParseNumber is the one numeric coercion used for every source field.
//
// Accepted inputs are Go numbers, json.Number and text. Text is trimmed and
// null sentinels ("", "null", "none", "nan", "n/a", "na", "-") fail. Plain
// decimal text parses as is. Anything else is reduced to digits, ',' and '.'
// (plus one leading '-'), then:
//   - with both separators present, the right-most one is the decimal mark
//     and the other is grouping;
//   - a single ',' or '.' is the decimal mark;
//   - a separator repeated with no other kind present is grouping.
//
// Failures, including NaN and infinities, return ok=false and never panic.
func ParseNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		return parseText(string(t))
	case string:
		return parseText(t)
	default:
		return 0, false
	}
}

// ParseCode parses an integral, positive code such as an IBGE municipality.
func ParseCode(v any) (int, bool) {
	f, ok := ParseNumber(v)
	if !ok || f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// Text renders a scalar field as trimmed text; nil becomes "".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func parseText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if nullSentinels[strings.ToLower(s)] {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return finite(f)
	}
	// overflow, or scientific notation that did not parse as a whole:
	// stripping would turn "1e400" into 1400
	if errors.Is(err, strconv.ErrRange) || hasExponent(s) {
		return 0, false
	}

	var b strings.Builder
	neg := false
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == ',' || r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			neg = true
		}
	}
	if digits == 0 {
		return 0, false
	}

	clean, ok := resolveSeparators(b.String())
	if !ok {
		return 0, false
	}
	f, err = strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return finite(f)
}

func resolveSeparators(s string) (string, bool) {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")

	switch {
	case commas > 0 && dots > 0:
		dec, group := ".", ","
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			dec, group = ",", "."
		}
		if strings.Count(s, dec) > 1 {
			return "", false
		}
		s = strings.ReplaceAll(s, group, "")
		return strings.Replace(s, dec, ".", 1), true
	case commas == 1:
		return strings.Replace(s, ",", ".", 1), true
	case commas > 1:
		return strings.ReplaceAll(s, ",", ""), true
	case dots > 1:
		return strings.ReplaceAll(s, ".", ""), true
	default:
		return s, true
	}
}

// hasExponent reports a digit followed by e/E, an optional sign and a digit.
func hasExponent(s string) bool {
	for i := 1; i < len(s)-1; i++ {
		if s[i] != 'e' && s[i] != 'E' {
			continue
		}
		if !isDigit(s[i-1]) {
			continue
		}
		j := i + 1
		if s[j] == '+' || s[j] == '-' {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
