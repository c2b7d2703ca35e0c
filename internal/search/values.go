package search

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// Value is one extracted index value.
//
// This is a sealed interface - only types in this package implement it.
// Each search parameter type extracts its own Value kind:
//   - token: TokenValue
//   - string: StringValue
//   - date: DateValue
//   - reference: ReferenceValue
//   - number: NumberValue
//
// Values are immutable once extracted; index rows share them freely.
type Value interface {
	valueNode() // Marker method - seals interface to this package
}

// TokenValue is a coded value: a Coding, an Identifier, a code, a boolean.
// System is empty when the source carries none.
type TokenValue struct {
	System string
	Code   string
}

func (TokenValue) valueNode() {}

// StringValue holds the original text and its folded form (lower case,
// accents removed) used for default and :contains matching.
type StringValue struct {
	Raw    string
	Folded string
}

func (StringValue) valueNode() {}

// DateValue is the half-open instant range [Lo, Hi) implied by a date,
// dateTime, instant or Period. "2024-03" covers the whole of March.
type DateValue struct {
	Lo time.Time
	Hi time.Time
}

func (DateValue) valueNode() {}

// ReferenceValue is a parsed reference. Target is zero for references the
// store cannot resolve (fragments, URNs, unparseable literals).
type ReferenceValue struct {
	Raw    string
	Target fhir.Identity
}

func (ReferenceValue) valueNode() {}

// NumberValue is a decimal with the implicit range of its precision:
// 72.5 covers [72.45, 72.55).
type NumberValue struct {
	Value float64
	Lo    float64
	Hi    float64
}

func (NumberValue) valueNode() {}

// Distant bounds for open-ended periods.
var (
	minTime = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

func extractTokens(dst []Value, node ir.IRValue) []Value {
	switch v := node.(type) {
	case ir.IRString:
		return append(dst, TokenValue{Code: string(v)})
	case ir.IRBool:
		return append(dst, TokenValue{Code: strconv.FormatBool(bool(v))})
	case ir.IRInt:
		return append(dst, TokenValue{Code: strconv.FormatInt(int64(v), 10)})
	case ir.IRObject:
		// CodeableConcept
		if codings, ok := v["coding"].(ir.IRArray); ok {
			for _, c := range codings {
				if co, ok := c.(ir.IRObject); ok && co.String("code") != "" {
					dst = append(dst, TokenValue{System: co.String("system"), Code: co.String("code")})
				}
			}
			return dst
		}
		// Coding
		if code := v.String("code"); code != "" {
			return append(dst, TokenValue{System: v.String("system"), Code: code})
		}
		// Identifier, ContactPoint
		if value := v.String("value"); value != "" {
			return append(dst, TokenValue{System: v.String("system"), Code: value})
		}
	}
	return dst
}

func extractStrings(dst []Value, node ir.IRValue) []Value {
	switch v := node.(type) {
	case ir.IRString:
		return append(dst, newStringValue(string(v)))
	case ir.IRObject:
		// HumanName, Address and similar: index every string part in key order.
		for _, k := range v.SortedKeys() {
			switch part := v[k].(type) {
			case ir.IRString:
				dst = append(dst, newStringValue(string(part)))
			case ir.IRArray:
				for _, elem := range part {
					if s, ok := elem.(ir.IRString); ok {
						dst = append(dst, newStringValue(string(s)))
					}
				}
			}
		}
	}
	return dst
}

func newStringValue(s string) StringValue {
	return StringValue{Raw: s, Folded: Fold(s)}
}

func extractDates(dst []Value, node ir.IRValue) []Value {
	switch v := node.(type) {
	case ir.IRString:
		if d, err := ParseDate(string(v)); err == nil {
			return append(dst, d)
		}
	case ir.IRObject:
		// Period
		start, hasStart := v["start"].(ir.IRString)
		end, hasEnd := v["end"].(ir.IRString)
		if !hasStart && !hasEnd {
			return dst
		}
		d := DateValue{Lo: minTime, Hi: maxTime}
		if hasStart {
			s, err := ParseDate(string(start))
			if err != nil {
				return dst
			}
			d.Lo = s.Lo
		}
		if hasEnd {
			e, err := ParseDate(string(end))
			if err != nil {
				return dst
			}
			d.Hi = e.Hi
		}
		return append(dst, d)
	}
	return dst
}

func extractReferences(dst []Value, node ir.IRValue) []Value {
	var raw string
	switch v := node.(type) {
	case ir.IRObject:
		raw = v.String("reference")
	case ir.IRString:
		raw = string(v)
	}
	if raw == "" {
		return dst
	}
	rv := ReferenceValue{Raw: raw}
	if ref, ok := fhir.ParseReference(raw); ok && ref.Resolvable() {
		rv.Target = ref.Target
	}
	return append(dst, rv)
}

func extractNumbers(dst []Value, node ir.IRValue) []Value {
	switch v := node.(type) {
	case ir.IRInt:
		return append(dst, numberWithPrecision(float64(v), string(strconv.AppendInt(nil, int64(v), 10))))
	case ir.IRDecimal:
		if n, err := ParseNumber(string(v)); err == nil {
			return append(dst, n)
		}
	}
	return dst
}

// ParseNumber parses a decimal literal and derives its precision range.
func ParseNumber(s string) (NumberValue, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NumberValue{}, err
	}
	return numberWithPrecision(f, s), nil
}

func numberWithPrecision(f float64, literal string) NumberValue {
	decimals := 0
	mantissa := strings.ToLower(literal)
	exp := 0
	if i := strings.IndexByte(mantissa, 'e'); i >= 0 {
		exp, _ = strconv.Atoi(mantissa[i+1:])
		mantissa = mantissa[:i]
	}
	if i := strings.IndexByte(mantissa, '.'); i >= 0 {
		decimals = len(mantissa) - i - 1
	}
	half := 0.5 * math.Pow10(exp-decimals)
	return NumberValue{Value: f, Lo: f - half, Hi: f + half}
}

// ParseDate parses a FHIR date, dateTime or instant into the range its
// precision implies. Values without a timezone are read as UTC.
func ParseDate(s string) (DateValue, error) {
	type layout struct {
		format string
		step   func(time.Time) time.Time
	}
	layouts := []layout{
		{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
		{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
		{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
		{"2006-01-02T15:04Z07:00", func(t time.Time) time.Time { return t.Add(time.Minute) }},
		{"2006-01-02T15:04", func(t time.Time) time.Time { return t.Add(time.Minute) }},
		{time.RFC3339Nano, func(t time.Time) time.Time { return t.Add(time.Second) }},
		{"2006-01-02T15:04:05.999999999", func(t time.Time) time.Time { return t.Add(time.Second) }},
	}
	for _, l := range layouts {
		t, err := time.Parse(l.format, s)
		if err != nil {
			continue
		}
		t = t.UTC()
		hi := l.step(t)
		if i := strings.IndexByte(s, 'T'); i >= 0 && strings.Contains(s[i:], ".") {
			// Fractional seconds narrow the range to the literal's precision.
			hi = t.Add(fractionStep(s))
		}
		return DateValue{Lo: t, Hi: hi}, nil
	}
	return DateValue{}, fhir.NewInvalidRequest("malformed date %q", s)
}

func fractionStep(s string) time.Duration {
	dot := strings.LastIndexByte(s, '.')
	if dot < 0 {
		return time.Second
	}
	digits := 0
	for _, r := range s[dot+1:] {
		if r < '0' || r > '9' {
			break
		}
		digits++
	}
	step := time.Second
	for i := 0; i < digits && step > time.Nanosecond; i++ {
		step /= 10
	}
	return step
}
