package search

import (
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
)

// Prefix is the comparison prefix of a number or date search value.
type Prefix string

const (
	PrefixEq Prefix = "eq"
	PrefixNe Prefix = "ne"
	PrefixGt Prefix = "gt"
	PrefixLt Prefix = "lt"
	PrefixGe Prefix = "ge"
	PrefixLe Prefix = "le"
	PrefixSa Prefix = "sa"
	PrefixEb Prefix = "eb"
	PrefixAp Prefix = "ap"
)

var prefixes = map[Prefix]bool{
	PrefixEq: true, PrefixNe: true, PrefixGt: true, PrefixLt: true, PrefixGe: true,
	PrefixLe: true, PrefixSa: true, PrefixEb: true, PrefixAp: true,
}

// Modifier is the ":suffix" of a search parameter name.
type Modifier string

const (
	ModifierNone     Modifier = ""
	ModifierExact    Modifier = "exact"
	ModifierContains Modifier = "contains"
	ModifierNot      Modifier = "not"
	ModifierMissing  Modifier = "missing"
)

// SummaryMode is the _summary control value.
type SummaryMode string

const (
	SummaryNone  SummaryMode = ""
	SummaryTrue  SummaryMode = "true"
	SummaryText  SummaryMode = "text"
	SummaryData  SummaryMode = "data"
	SummaryCount SummaryMode = "count"
	SummaryFalse SummaryMode = "false"
)

// Query is a parsed search over one resource type.
//
// Semantics:
//
//	FROM <ResourceType> WHERE <Filters...> ORDER BY <Sort...>, creation
//	OFFSET <Offset> LIMIT <Count>
//
// Filters are conjunctive. Count <= 0 means unlimited; ParseQuery always
// sets a positive Count from its Limits. Elements, Summary, Include and
// RevInclude do not influence which ids match or the total.
type Query struct {
	ResourceType string
	Filters      []Filter
	Sort         []SortKey
	Offset       int
	Count        int
	Elements     []string
	Summary      SummaryMode
	Include      []IncludeSpec
	RevInclude   []IncludeSpec
	// NoTotal suppresses Bundle.total (_total=none).
	NoTotal bool
}

// Filter is one parameter constraint. A record matches when any extracted
// value satisfies any of Values; with ModifierNot, when none does.
type Filter struct {
	Param    catalog.Param
	Modifier Modifier
	// TargetType restricts reference filters (subject:Patient=...).
	TargetType string
	// Missing is set for ModifierMissing.
	Missing bool
	Values  []FilterValue
}

// FilterValue is one comma-separated alternative of a filter.
type FilterValue struct {
	Prefix Prefix
	Raw    string

	// Parsed forms; which one is set depends on the param type.
	Token  *TokenValue
	Folded string
	Date   *DateValue
	Number *NumberValue

	// HasSystem is set when a token was written system|code, |code or
	// system|, which constrains the system as well as the code.
	HasSystem bool
}

// SortKey orders results by one param.
type SortKey struct {
	Param      catalog.Param
	Descending bool
}

// IncludeSpec is one _include or _revinclude directive.
//
// For _include, SourceType records are scanned for references in Param;
// TargetType restricts which referenced records are added. Wildcard
// follows every reference param of SourceType.
//
// For _revinclude, SourceType records whose Param points at a primary
// record are added.
type IncludeSpec struct {
	SourceType string
	Param      string
	TargetType string
	Wildcard   bool
	Iterate    bool
}

// Limits bounds what ParseQuery accepts.
type Limits struct {
	DefaultCount int
	MaxCount     int
}

// DefaultLimits are used when the caller supplies none.
var DefaultLimits = Limits{DefaultCount: 20, MaxCount: 500}

// Now is used by the ap prefix; tests replace it.
var Now = time.Now
