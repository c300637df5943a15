package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var nan = math.NaN()

var (
	refMarks  = regexp.MustCompile(`\[[^\]]*\]`)
	firstInt  = regexp.MustCompile(`\d+`)
	yearRe    = regexp.MustCompile(`\b(1[89]\d\d|20\d\d)\b`)
	moneyRe   = regexp.MustCompile(`\$?\s*(\d[\d,.\s]*\d|\d)`)
	scaleWord = regexp.MustCompile(`(?i)\b(billion|bn|million|mn|m)\b`)
)

// NumberOptions configures ParseNumber. Zero separators mean auto-detect.
type NumberOptions struct {
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// StripRefs removes footnote markers like "[1]" or "[a]" and collapses whitespace.
func StripRefs(s string) string {
	s = refMarks.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// ParseNumber parses a locale-formatted number such as "1.234,5", "1,234.5" or "12%".
func ParseNumber(s string, opt NumberOptions) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, "%", "")
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0 && strings.Count(raw, ",") == 1 && len(raw)-cpos-1 != 3:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Float parses a plain number with auto-detected separators.
func Float(s string) (float64, bool) {
	return ParseNumber(StripRefs(s), NumberOptions{})
}

// FirstInt extracts the first run of digits, e.g. "4TS3" -> 4.
func FirstInt(s string) (float64, bool) {
	m := firstInt.FindString(StripRefs(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Year extracts a four digit year between 1800 and 2099.
func Year(s string) (float64, bool) {
	m := yearRe.FindString(StripRefs(s))
	if m == "" {
		return 0, false
	}
	v, _ := strconv.ParseFloat(m, 64)
	return v, true
}

// Dollars parses an amount like "$2,923,706,026" or "$1.5 billion" into dollars.
func Dollars(s string) (float64, bool) {
	clean := StripRefs(s)
	if i := strings.IndexByte(clean, '$'); i >= 0 {
		clean = clean[i:]
	}
	m := moneyRe.FindStringSubmatch(clean)
	if len(m) < 2 {
		return 0, false
	}
	num := strings.ReplaceAll(m[1], " ", "")
	var v float64
	if strings.Count(num, ",") > 0 && !strings.Contains(num, ".") {
		// US grouping only: "2,923,706,026"
		f, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		v = f
	} else {
		f, ok := ParseNumber(num, NumberOptions{DecimalSeparator: '.', ThousandsSeparator: ','})
		if !ok {
			return 0, false
		}
		v = f
	}
	if w := scaleWord.FindString(clean); w != "" {
		switch strings.ToLower(w) {
		case "billion", "bn":
			v *= 1e9
		case "million", "mn", "m":
			v *= 1e6
		}
	}
	return v, true
}
