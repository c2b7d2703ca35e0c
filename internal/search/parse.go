package search

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
)

// ParseQuery builds a Query for resourceType from request parameters.
//
// Unknown parameters, unsupported modifiers, malformed values and malformed
// control parameters are InvalidRequest errors. A _count above
// limits.MaxCount is clamped; _count=0 is read as _summary=count.
func ParseQuery(reg *Registry, resourceType string, params url.Values, limits Limits) (*Query, error) {
	if !fhir.ValidResourceType(resourceType) {
		return nil, fhir.NewInvalidRequest("invalid resource type %q", resourceType)
	}
	if limits.MaxCount <= 0 {
		limits = DefaultLimits
	}
	q := &Query{ResourceType: resourceType, Count: limits.DefaultCount}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		for _, raw := range params[name] {
			if err := q.apply(reg, name, raw, limits); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

func (q *Query) apply(reg *Registry, name, raw string, limits Limits) error {
	switch name {
	case "_sort":
		return q.parseSort(reg, raw)
	case "_count":
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fhir.NewInvalidRequest("_count must be a non-negative integer, got %q", raw)
		}
		if n == 0 {
			q.Summary = SummaryCount
		}
		q.Count = min(n, limits.MaxCount)
		return nil
	case "_offset":
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fhir.NewInvalidRequest("_offset must be a non-negative integer, got %q", raw)
		}
		q.Offset = n
		return nil
	case "_elements":
		for _, e := range strings.Split(raw, ",") {
			e = strings.TrimSpace(e)
			if e == "" {
				return fhir.NewInvalidRequest("_elements contains an empty name")
			}
			q.Elements = append(q.Elements, e)
		}
		return nil
	case "_summary":
		mode := SummaryMode(raw)
		switch mode {
		case SummaryTrue, SummaryText, SummaryData, SummaryCount, SummaryFalse:
			// _count=0 already forced count mode
			if q.Summary != SummaryCount {
				q.Summary = mode
			}
			return nil
		}
		return fhir.NewInvalidRequest("unsupported _summary value %q", raw)
	case "_include", "_include:iterate":
		spec, err := parseInclude(reg, raw, true)
		if err != nil {
			return err
		}
		spec.Iterate = name == "_include:iterate"
		q.Include = append(q.Include, spec)
		return nil
	case "_revinclude", "_revinclude:iterate":
		spec, err := parseInclude(reg, raw, false)
		if err != nil {
			return err
		}
		spec.Iterate = name == "_revinclude:iterate"
		q.RevInclude = append(q.RevInclude, spec)
		return nil
	case "_total":
		switch raw {
		case "none":
			q.NoTotal = true
		case "accurate", "estimate":
		default:
			return fhir.NewInvalidRequest("unsupported _total value %q", raw)
		}
		return nil
	case "_format", "_pretty":
		return nil
	}

	f, err := parseFilter(reg, q.ResourceType, name, raw)
	if err != nil {
		return err
	}
	q.Filters = append(q.Filters, f)
	return nil
}

func (q *Query) parseSort(reg *Registry, raw string) error {
	for _, key := range strings.Split(raw, ",") {
		key = strings.TrimSpace(key)
		desc := strings.HasPrefix(key, "-")
		key = strings.TrimPrefix(key, "-")
		if key == "" {
			return fhir.NewInvalidRequest("_sort contains an empty key")
		}
		p, ok := reg.Lookup(q.ResourceType, key)
		if !ok {
			return fhir.NewInvalidRequest("unknown sort parameter %q for %s", key, q.ResourceType)
		}
		q.Sort = append(q.Sort, SortKey{Param: p, Descending: desc})
	}
	return nil
}

func parseInclude(reg *Registry, raw string, forward bool) (IncludeSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return IncludeSpec{}, fhir.NewInvalidRequest("malformed include %q: want Type:param[:Target]", raw)
	}
	spec := IncludeSpec{SourceType: parts[0], Param: parts[1]}
	if len(parts) == 3 {
		spec.TargetType = parts[2]
		if !fhir.ValidResourceType(spec.TargetType) {
			return IncludeSpec{}, fhir.NewInvalidRequest("malformed include %q: invalid target type", raw)
		}
	}
	if !fhir.ValidResourceType(spec.SourceType) {
		return IncludeSpec{}, fhir.NewInvalidRequest("malformed include %q: invalid source type", raw)
	}
	if spec.Param == "*" {
		if !forward {
			return IncludeSpec{}, fhir.NewInvalidRequest("_revinclude does not support wildcard: %q", raw)
		}
		spec.Wildcard = true
		return spec, nil
	}
	p, ok := reg.Lookup(spec.SourceType, spec.Param)
	if !ok || p.Type != catalog.TypeReference {
		return IncludeSpec{}, fhir.NewInvalidRequest("include %q: %s.%s is not a reference parameter", raw, spec.SourceType, spec.Param)
	}
	if spec.TargetType != "" && !p.AllowsTarget(spec.TargetType) {
		return IncludeSpec{}, fhir.NewInvalidRequest("include %q: %s.%s cannot reference %s", raw, spec.SourceType, spec.Param, spec.TargetType)
	}
	return spec, nil
}

func parseFilter(reg *Registry, resourceType, name, raw string) (Filter, error) {
	paramName, mod, _ := strings.Cut(name, ":")
	p, ok := reg.Lookup(resourceType, paramName)
	if !ok {
		return Filter{}, fhir.NewInvalidRequest("unknown search parameter %q for %s", paramName, resourceType)
	}
	f := Filter{Param: p, Modifier: Modifier(mod)}

	switch f.Modifier {
	case ModifierNone:
	case ModifierMissing:
		switch raw {
		case "true":
			f.Missing = true
		case "false":
		default:
			return Filter{}, fhir.NewInvalidRequest(":missing takes true or false, got %q", raw)
		}
		return f, nil
	case ModifierExact, ModifierContains:
		if p.Type != catalog.TypeString {
			return Filter{}, fhir.NewInvalidRequest("modifier :%s is not supported on %s parameter %q", mod, p.Type, paramName)
		}
	case ModifierNot:
		if p.Type != catalog.TypeToken {
			return Filter{}, fhir.NewInvalidRequest("modifier :not is not supported on %s parameter %q", p.Type, paramName)
		}
	default:
		if p.Type != catalog.TypeReference || !fhir.ValidResourceType(mod) {
			return Filter{}, fhir.NewInvalidRequest("unsupported modifier :%s on parameter %q", mod, paramName)
		}
		if !p.AllowsTarget(mod) {
			return Filter{}, fhir.NewInvalidRequest("parameter %q cannot reference %s", paramName, mod)
		}
		f.TargetType = mod
		f.Modifier = ModifierNone
	}

	for _, part := range splitEscaped(raw, ',') {
		fv, err := parseFilterValue(p, part)
		if err != nil {
			return Filter{}, err
		}
		f.Values = append(f.Values, fv)
	}
	if len(f.Values) == 0 {
		return Filter{}, fhir.NewInvalidRequest("empty value for parameter %q", paramName)
	}
	return f, nil
}

func parseFilterValue(p catalog.Param, raw string) (FilterValue, error) {
	fv := FilterValue{Raw: raw}
	switch p.Type {
	case catalog.TypeToken:
		parts := splitEscaped(raw, '|')
		switch len(parts) {
		case 1:
			fv.Token = &TokenValue{Code: unescape(parts[0])}
		case 2:
			fv.Token = &TokenValue{System: unescape(parts[0]), Code: unescape(parts[1])}
			fv.HasSystem = true
		default:
			return fv, fhir.NewInvalidRequest("malformed token %q", raw)
		}
		if fv.Token.Code == "" && !fv.HasSystem {
			return fv, fhir.NewInvalidRequest("empty token value for %q", p.Name)
		}
	case catalog.TypeString:
		fv.Raw = unescape(raw)
		fv.Folded = Fold(fv.Raw)
		if fv.Raw == "" {
			return fv, fhir.NewInvalidRequest("empty string value for %q", p.Name)
		}
	case catalog.TypeDate:
		prefix, rest := splitPrefix(raw)
		d, err := ParseDate(rest)
		if err != nil {
			return fv, err
		}
		fv.Prefix, fv.Date = prefix, &d
	case catalog.TypeNumber:
		prefix, rest := splitPrefix(raw)
		n, err := ParseNumber(rest)
		if err != nil {
			return fv, fhir.NewInvalidRequest("malformed number %q", raw)
		}
		fv.Prefix, fv.Number = prefix, &n
	case catalog.TypeReference:
		fv.Raw = unescape(raw)
		if strings.Contains(fv.Raw, "/") {
			if ref, ok := fhir.ParseReference(fv.Raw); !ok || !ref.Resolvable() {
				return fv, fhir.NewInvalidRequest("malformed reference %q", raw)
			}
		} else if !fhir.ValidID(fv.Raw) {
			return fv, fhir.NewInvalidRequest("malformed reference %q", raw)
		}
	}
	return fv, nil
}

func splitPrefix(raw string) (Prefix, string) {
	if len(raw) > 2 && prefixes[Prefix(raw[:2])] {
		return Prefix(raw[:2]), raw[2:]
	}
	return PrefixEq, raw
}

// splitEscaped splits s at every sep not preceded by a backslash. Escapes
// are kept; unescape removes them.
func splitEscaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
