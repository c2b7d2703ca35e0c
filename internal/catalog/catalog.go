package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed catalog.cue
var builtin []byte

// ParamType is the kind of a search parameter.
type ParamType string

const (
	TypeToken     ParamType = "token"
	TypeString    ParamType = "string"
	TypeDate      ParamType = "date"
	TypeReference ParamType = "reference"
	TypeNumber    ParamType = "number"
)

// Param declares one search parameter of a resource type.
//
// Values are extracted from Paths (dotted field paths evaluated with
// ir.Select) or from Expression (a FHIRPath expression). Exactly one of
// the two is set.
type Param struct {
	Name       string
	Type       ParamType
	Paths      []string
	Expression string
	Targets    []string
}

// AllowsTarget reports whether a reference param may point at resourceType.
// An empty target list allows every type.
func (p Param) AllowsTarget(resourceType string) bool {
	return len(p.Targets) == 0 || slices.Contains(p.Targets, resourceType)
}

// Hop is a one-hop expansion of a compartment: references held in Param of
// From records (compartment members or the root itself) are followed once.
type Hop struct {
	From  string
	Param string
}

// Compartment declares the records that belong to a root record.
type Compartment struct {
	// Members maps a resource type to the reference params whose values
	// place a record of that type in the compartment.
	Members map[string][]string
	OneHop  []Hop
}

// MemberTypes returns the member types sorted by name.
func (c Compartment) MemberTypes() []string {
	types := make([]string, 0, len(c.Members))
	for t := range c.Members {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Catalog is the declarative description of every resource type the store
// knows how to index, sweep and assemble.
type Catalog struct {
	params       map[string]map[string]Param
	compartments map[string]Compartment
	document     map[string][]string
	summary      map[string][]string
}

// Source is a named CUE document.
type Source struct {
	Name string
	Data []byte
}

// Default returns the built-in catalog. It panics if the embedded file is
// invalid, which is a build defect.
func Default() *Catalog {
	c, err := Load()
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in catalog invalid: %v", err))
	}
	return c
}

// LoadFile loads the built-in catalog unified with the overlay at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog overlay: %w", err)
	}
	return Load(Source{Name: path, Data: data})
}

// Load compiles the built-in catalog, unifies each overlay into it and
// decodes the result. Overlays may add types and parameters; a value that
// contradicts the built-in catalog is a unification error.
func Load(overlays ...Source) (*Catalog, error) {
	ctx := cuecontext.New()

	v := ctx.CompileBytes(builtin, cue.Filename("catalog.cue"))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	for _, o := range overlays {
		ov := ctx.CompileBytes(o.Data, cue.Filename(o.Name))
		if err := ov.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		v = v.Unify(ov)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	c := &Catalog{
		params:       make(map[string]map[string]Param),
		compartments: make(map[string]Compartment),
		document:     make(map[string][]string),
		summary:      make(map[string][]string),
	}
	if err := c.decodeParams(v.LookupPath(cue.ParsePath("searchParams"))); err != nil {
		return nil, err
	}
	if err := c.decodeCompartments(v.LookupPath(cue.ParsePath("compartments"))); err != nil {
		return nil, err
	}
	if err := decodeStringLists(v.LookupPath(cue.ParsePath("document")), c.document); err != nil {
		return nil, err
	}
	if err := decodeStringLists(v.LookupPath(cue.ParsePath("summary")), c.summary); err != nil {
		return nil, err
	}

	if res := c.Validate(); !res.OK() {
		return nil, &CompileError{Field: "catalog", Message: res.Error()}
	}
	return c, nil
}

func (c *Catalog) decodeParams(v cue.Value) error {
	types, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for types.Next() {
		resourceType := types.Label()
		byName := make(map[string]Param)

		params, err := types.Value().Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for params.Next() {
			p, err := decodeParam(params.Label(), params.Value())
			if err != nil {
				return err
			}
			byName[p.Name] = p
		}
		c.params[resourceType] = byName
	}
	return nil
}

func decodeParam(name string, v cue.Value) (Param, error) {
	p := Param{Name: name}

	typ, err := v.LookupPath(cue.ParsePath("type")).String()
	if err != nil {
		return p, formatCUEError(err)
	}
	p.Type = ParamType(typ)

	if pv := v.LookupPath(cue.ParsePath("path")); pv.Exists() {
		if err := pv.Decode(&p.Paths); err != nil {
			return p, formatCUEError(err)
		}
	}
	if ev := v.LookupPath(cue.ParsePath("expression")); ev.Exists() {
		if p.Expression, err = ev.String(); err != nil {
			return p, formatCUEError(err)
		}
	}
	if tv := v.LookupPath(cue.ParsePath("target")); tv.Exists() {
		if err := tv.Decode(&p.Targets); err != nil {
			return p, formatCUEError(err)
		}
	}

	if len(p.Paths) == 0 && p.Expression == "" {
		return p, &CompileError{Field: name, Message: "param needs a path or an expression", Pos: v.Pos()}
	}
	if len(p.Paths) > 0 && p.Expression != "" {
		return p, &CompileError{Field: name, Message: "param has both path and expression", Pos: v.Pos()}
	}
	return p, nil
}

func (c *Catalog) decodeCompartments(v cue.Value) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		root := iter.Label()
		comp := Compartment{Members: make(map[string][]string)}

		if err := decodeStringLists(iter.Value().LookupPath(cue.ParsePath("members")), comp.Members); err != nil {
			return err
		}

		hops, err := iter.Value().LookupPath(cue.ParsePath("oneHop")).List()
		if err != nil {
			return formatCUEError(err)
		}
		for hops.Next() {
			var h struct {
				From  string `json:"from"`
				Param string `json:"param"`
			}
			if err := hops.Value().Decode(&h); err != nil {
				return formatCUEError(err)
			}
			comp.OneHop = append(comp.OneHop, Hop{From: h.From, Param: h.Param})
		}
		c.compartments[root] = comp
	}
	return nil
}

func decodeStringLists(v cue.Value, dst map[string][]string) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		var list []string
		if err := iter.Value().Decode(&list); err != nil {
			return formatCUEError(err)
		}
		dst[iter.Label()] = list
	}
	return nil
}

// Params returns the declared params of resourceType keyed by name.
// The returned map must not be modified.
func (c *Catalog) Params(resourceType string) map[string]Param {
	return c.params[resourceType]
}

// Param looks up one param.
func (c *Catalog) Param(resourceType, name string) (Param, bool) {
	p, ok := c.params[resourceType][name]
	return p, ok
}

// Types returns every resource type with declared params, sorted.
func (c *Catalog) Types() []string {
	types := make([]string, 0, len(c.params))
	for t := range c.params {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// ReferenceParams returns the names of the reference params of
// resourceType, sorted.
func (c *Catalog) ReferenceParams(resourceType string) []string {
	var names []string
	for name, p := range c.params[resourceType] {
		if p.Type == TypeReference {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Compartment returns the compartment rooted at resourceType.
func (c *Catalog) Compartment(resourceType string) (Compartment, bool) {
	comp, ok := c.compartments[resourceType]
	return comp, ok
}

// DocumentParams returns the reference params followed out of resourceType
// during document assembly. Types without an entry follow every reference
// param.
func (c *Catalog) DocumentParams(resourceType string) []string {
	if names, ok := c.document[resourceType]; ok {
		return names
	}
	return c.ReferenceParams(resourceType)
}

// SummaryElements returns the top-level keys kept by _summary=true.
func (c *Catalog) SummaryElements(resourceType string) []string {
	if keys, ok := c.summary[resourceType]; ok {
		return keys
	}
	return c.summary["*"]
}

// CompileError is a catalog error with its source position when known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
