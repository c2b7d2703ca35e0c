package ledger

// Snapshot is an opaque capture of the whole ledger taken at transaction
// start. It shares entries with the live ledger and copies only the chain
// headers.
type Snapshot struct {
	chains map[string]map[string][]*Entry
	seq    int64
	count  int
}

// Snapshot captures the current ledger state.
func (l *Ledger) Snapshot() *Snapshot {
	return &Snapshot{chains: cloneChains(l.chains), seq: l.clock.Current(), count: l.count}
}

// Restore reinstalls s verbatim. Version numbering and seq resume from the
// values captured in s. A snapshot may be restored more than once.
func (l *Ledger) Restore(s *Snapshot) {
	l.chains = cloneChains(s.chains)
	l.clock.reset(s.seq)
	l.count = s.count
}

func cloneChains(src map[string]map[string][]*Entry) map[string]map[string][]*Entry {
	out := make(map[string]map[string][]*Entry, len(src))
	for t, byID := range src {
		cp := make(map[string][]*Entry, len(byID))
		for id, chain := range byID {
			// Full slice expression caps the copy so appends on either side
			// never write into the shared backing array.
			cp[id] = chain[:len(chain):len(chain)]
		}
		out[t] = cp
	}
	return out
}
