package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// Entry is an immutable snapshot of a record at one version.
// Tombstones have Deleted set and a nil Body.
type Entry struct {
	Identity    fhir.Identity
	Version     int
	Seq         int64
	LastUpdated time.Time
	Deleted     bool
	Body        ir.IRObject
}

// Ledger is the append-only version history of every record.
//
// Each identity owns a chain of entries whose versions form the dense
// sequence 1..n. Append is the only mutator. Entries are never modified after
// append, so a snapshot only copies chain headers and shares the entries.
//
// Ledger is not safe for concurrent use. The store serializes writers and
// excludes readers during writes.
type Ledger struct {
	chains map[string]map[string][]*Entry
	clock  *Clock
	count  int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		chains: make(map[string]map[string][]*Entry),
		clock:  NewClockAt(0),
	}
}

// Append adds the next version of id. A nil body with deleted set records a
// tombstone. The version is the previous version + 1 (1 for a new identity).
func (l *Ledger) Append(id fhir.Identity, body ir.IRObject, deleted bool, at time.Time) *Entry {
	byID := l.chains[id.Type]
	if byID == nil {
		byID = make(map[string][]*Entry)
		l.chains[id.Type] = byID
	}
	chain := byID[id.ID]
	e := &Entry{
		Identity:    id,
		Version:     len(chain) + 1,
		Seq:         l.clock.Next(),
		LastUpdated: at,
		Deleted:     deleted,
	}
	if !deleted {
		e.Body = body
	}
	byID[id.ID] = append(chain, e)
	l.count++
	return e
}

// Replay reinstalls an entry loaded from persistence. Entries must arrive in
// seq order with dense versions per identity.
func (l *Ledger) Replay(e *Entry) error {
	if e.Seq <= l.clock.Current() {
		return fmt.Errorf("replay %s v%d: seq %d not after %d", e.Identity, e.Version, e.Seq, l.clock.Current())
	}
	byID := l.chains[e.Identity.Type]
	if byID == nil {
		byID = make(map[string][]*Entry)
		l.chains[e.Identity.Type] = byID
	}
	chain := byID[e.Identity.ID]
	if e.Version != len(chain)+1 {
		return fmt.Errorf("replay %s: version %d after %d breaks version density", e.Identity, e.Version, len(chain))
	}
	byID[e.Identity.ID] = append(chain, e)
	l.clock.reset(e.Seq)
	l.count++
	return nil
}

// Head returns the latest entry of id, which may be a tombstone.
func (l *Ledger) Head(id fhir.Identity) (*Entry, bool) {
	chain := l.chains[id.Type][id.ID]
	if len(chain) == 0 {
		return nil, false
	}
	return chain[len(chain)-1], true
}

// Current returns the latest entry of id if it is live.
func (l *Ledger) Current(id fhir.Identity) (*Entry, bool) {
	e, ok := l.Head(id)
	if !ok || e.Deleted {
		return nil, false
	}
	return e, true
}

// Get returns a specific version of id, including tombstones.
func (l *Ledger) Get(id fhir.Identity, version int) (*Entry, error) {
	chain := l.chains[id.Type][id.ID]
	if version < 1 || version > len(chain) {
		return nil, fhir.NewVersionNotFound(id, version)
	}
	return chain[version-1], nil
}

// History returns every version of id, newest first.
func (l *Ledger) History(id fhir.Identity) ([]*Entry, error) {
	chain := l.chains[id.Type][id.ID]
	if len(chain) == 0 {
		return nil, fhir.NewNotFound(id)
	}
	out := slices.Clone(chain)
	slices.Reverse(out)
	return out, nil
}

// TypeHistory returns every entry of resourceType, newest first.
func (l *Ledger) TypeHistory(resourceType string) []*Entry {
	out := []*Entry{}
	for _, chain := range l.chains[resourceType] {
		out = append(out, chain...)
	}
	sortNewestFirst(out)
	return out
}

// SystemHistory returns every entry of every type, newest first.
func (l *Ledger) SystemHistory() []*Entry {
	out := make([]*Entry, 0, l.count)
	for _, byID := range l.chains {
		for _, chain := range byID {
			out = append(out, chain...)
		}
	}
	sortNewestFirst(out)
	return out
}

// Heads returns the head entry of every identity of resourceType in
// creation order (seq of version 1). Tombstoned heads are included.
func (l *Ledger) Heads(resourceType string) []*Entry {
	byID := l.chains[resourceType]
	chains := make([][]*Entry, 0, len(byID))
	for _, chain := range byID {
		chains = append(chains, chain)
	}
	slices.SortFunc(chains, func(a, b []*Entry) int {
		return cmpSeq(a[0].Seq, b[0].Seq)
	})
	out := make([]*Entry, len(chains))
	for i, chain := range chains {
		out[i] = chain[len(chain)-1]
	}
	return out
}

// Types returns the resource types with at least one entry, sorted.
func (l *Ledger) Types() []string {
	types := make([]string, 0, len(l.chains))
	for t := range l.chains {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Len returns the total number of entries.
func (l *Ledger) Len() int {
	return l.count
}

// Seq returns the seq of the most recent entry.
func (l *Ledger) Seq() int64 {
	return l.clock.Current()
}

func sortNewestFirst(entries []*Entry) {
	slices.SortFunc(entries, func(a, b *Entry) int {
		return cmpSeq(b.Seq, a.Seq)
	})
}

func cmpSeq(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
