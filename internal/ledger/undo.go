package ledger

import "github.com/winterop-com/fhirkit-sub003/internal/fhir"

// Mark is a rewind point for a single write session. Where Snapshot copies
// every chain header up front, a Mark saves the chain of an identity only
// when Save is called for it, so its cost follows the number of identities
// written rather than the size of the ledger.
type Mark struct {
	seq   int64
	count int
	saved map[fhir.Identity]savedChain
}

type savedChain struct {
	chain   []*Entry
	existed bool
}

// Mark records the current seq and entry count.
func (l *Ledger) Mark() *Mark {
	return &Mark{seq: l.clock.Current(), count: l.count, saved: make(map[fhir.Identity]savedChain)}
}

// Save records the chain of id as it is now. Only the first call per
// identity has an effect; it must precede the first Append to id after
// the mark.
func (l *Ledger) Save(m *Mark, id fhir.Identity) {
	if _, ok := m.saved[id]; ok {
		return
	}
	chain, ok := l.chains[id.Type][id.ID]
	m.saved[id] = savedChain{chain: chain[:len(chain):len(chain)], existed: ok}
}

// Rewind undoes every append made to saved identities since m and resets
// seq and the entry count. A mark may be rewound more than once.
func (l *Ledger) Rewind(m *Mark) {
	for id, sc := range m.saved {
		byID := l.chains[id.Type]
		if sc.existed {
			byID[id.ID] = sc.chain
			continue
		}
		delete(byID, id.ID)
		if len(byID) == 0 {
			delete(l.chains, id.Type)
		}
	}
	l.clock.reset(m.seq)
	l.count = m.count
}
