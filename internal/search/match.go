package search

import (
	"math"
	"strings"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
)

// Matches reports whether a record with the given extracted values of
// f.Param satisfies f.
func (f Filter) Matches(vals []Value) bool {
	if f.Modifier == ModifierMissing {
		return (len(vals) == 0) == f.Missing
	}
	if f.Modifier == ModifierNot {
		return !f.anyMatch(vals)
	}
	return f.anyMatch(vals)
}

func (f Filter) anyMatch(vals []Value) bool {
	for _, fv := range f.Values {
		for _, v := range vals {
			if f.matchOne(fv, v) {
				return true
			}
		}
	}
	return false
}

func (f Filter) matchOne(fv FilterValue, v Value) bool {
	switch val := v.(type) {
	case TokenValue:
		return matchToken(fv, val)
	case StringValue:
		switch f.Modifier {
		case ModifierExact:
			return val.Raw == fv.Raw
		case ModifierContains:
			return strings.Contains(val.Folded, fv.Folded)
		}
		return strings.HasPrefix(val.Folded, fv.Folded)
	case DateValue:
		return fv.Date != nil && matchRange(fv.Prefix, *fv.Date, val)
	case NumberValue:
		return fv.Number != nil && matchNumber(fv.Prefix, *fv.Number, val)
	case ReferenceValue:
		return f.Param.AllowsTarget(val.Target.Type) && matchReference(fv.Raw, f.TargetType, val)
	}
	return false
}

func matchToken(fv FilterValue, v TokenValue) bool {
	if fv.Token == nil {
		return false
	}
	if fv.HasSystem && fv.Token.System != v.System {
		return false
	}
	return fv.Token.Code == "" || fv.Token.Code == v.Code
}

func matchReference(raw, targetType string, v ReferenceValue) bool {
	if v.Target.IsZero() {
		return false
	}
	if targetType != "" && v.Target.Type != targetType {
		return false
	}
	if !strings.Contains(raw, "/") {
		return v.Target.ID == raw
	}
	ref, ok := fhir.ParseReference(raw)
	return ok && ref.Target == v.Target
}

// matchRange applies a prefix to a search range s and a target range t.
//
//	eq  s contains t        ne  not eq
//	gt  t extends above s   lt  t extends below s
//	ge  gt or eq            le  lt or eq
//	sa  t starts after s    eb  t ends before s
//	ap  t overlaps s widened by 10% of its distance from now
func matchRange(p Prefix, s, t DateValue) bool {
	eq := !t.Lo.Before(s.Lo) && !t.Hi.After(s.Hi)
	switch p {
	case PrefixEq:
		return eq
	case PrefixNe:
		return !eq
	case PrefixGt:
		return t.Hi.After(s.Hi)
	case PrefixLt:
		return t.Lo.Before(s.Lo)
	case PrefixGe:
		return eq || t.Hi.After(s.Hi)
	case PrefixLe:
		return eq || t.Lo.Before(s.Lo)
	case PrefixSa:
		return !t.Lo.Before(s.Hi)
	case PrefixEb:
		return !t.Hi.After(s.Lo)
	case PrefixAp:
		gap := Now().Sub(s.Lo)
		if gap < 0 {
			gap = -gap
		}
		widen := max(gap/10, 24*time.Hour)
		lo, hi := s.Lo.Add(-widen), s.Hi.Add(widen)
		return t.Lo.Before(hi) && t.Hi.After(lo)
	}
	return false
}

// matchNumber compares a target number against a search number. Equality
// uses the implicit precision range of the search value.
func matchNumber(p Prefix, s, t NumberValue) bool {
	eq := t.Value >= s.Lo && t.Value < s.Hi
	switch p {
	case PrefixEq:
		return eq
	case PrefixNe:
		return !eq
	case PrefixGt, PrefixSa:
		return t.Value > s.Value
	case PrefixLt, PrefixEb:
		return t.Value < s.Value
	case PrefixGe:
		return t.Value >= s.Value
	case PrefixLe:
		return t.Value <= s.Value
	case PrefixAp:
		return math.Abs(t.Value-s.Value) <= math.Abs(s.Value)*0.1
	}
	return false
}
