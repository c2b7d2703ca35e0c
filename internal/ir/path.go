package ir

import (
	"strings"
	"unicode"
)

// Select evaluates a dotted field path against v and returns every value it
// reaches, in document order. Arrays are flattened at every step, so
// "name.given" on a Patient yields each given name of each name.
//
// A segment ending in "[x]" matches a choice element: "effective[x]"
// matches "effectiveDateTime" and "effectivePeriod".
func Select(v IRValue, path string) []IRValue {
	if path == "" {
		return flatten(nil, v)
	}
	current := flatten(nil, v)
	for _, seg := range strings.Split(path, ".") {
		var next []IRValue
		for _, node := range current {
			obj, ok := node.(IRObject)
			if !ok {
				continue
			}
			if prefix, choice := strings.CutSuffix(seg, "[x]"); choice {
				for _, k := range obj.SortedKeys() {
					if isChoiceKey(k, prefix) {
						next = flatten(next, obj[k])
					}
				}
				continue
			}
			if child, ok := obj[seg]; ok {
				next = flatten(next, child)
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// SelectChoice is like Select but also reports the concrete key suffix
// a choice segment resolved to ("DateTime", "Period") for the final segment.
func SelectChoice(v IRValue, path string) (values []IRValue, kinds []string) {
	head, last := "", path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		head, last = path[:i], path[i+1:]
	}
	prefix, choice := strings.CutSuffix(last, "[x]")
	parents := []IRValue{v}
	if head != "" {
		parents = Select(v, head)
	}
	for _, p := range parents {
		obj, ok := p.(IRObject)
		if !ok {
			continue
		}
		if !choice {
			for _, val := range flatten(nil, obj[last]) {
				values = append(values, val)
				kinds = append(kinds, "")
			}
			continue
		}
		for _, k := range obj.SortedKeys() {
			if !isChoiceKey(k, prefix) {
				continue
			}
			for _, val := range flatten(nil, obj[k]) {
				values = append(values, val)
				kinds = append(kinds, k[len(prefix):])
			}
		}
	}
	return values, kinds
}

func isChoiceKey(key, prefix string) bool {
	if len(key) <= len(prefix) || !strings.HasPrefix(key, prefix) {
		return false
	}
	return unicode.IsUpper(rune(key[len(prefix)]))
}

func flatten(dst []IRValue, v IRValue) []IRValue {
	switch val := v.(type) {
	case nil, IRNull:
		return dst
	case IRArray:
		for _, elem := range val {
			dst = flatten(dst, elem)
		}
		return dst
	default:
		return append(dst, v)
	}
}

// Clone returns a deep copy of v. Stored bodies are never handed out
// directly; callers receive clones they are free to mutate.
func Clone(v IRValue) IRValue {
	switch val := v.(type) {
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case IRObject:
		return CloneObject(val)
	default:
		return v
	}
}

// CloneObject returns a deep copy of obj.
func CloneObject(obj IRObject) IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// Walk calls fn for every object node reachable from v, depth first in
// canonical key order. fn may replace values of the object it receives
// before its children are visited.
func Walk(v IRValue, fn func(IRObject)) {
	switch val := v.(type) {
	case IRArray:
		for _, elem := range val {
			Walk(elem, fn)
		}
	case IRObject:
		fn(val)
		for _, k := range val.SortedKeys() {
			Walk(val[k], fn)
		}
	}
}
