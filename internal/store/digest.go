package store

import (
	"context"
	"slices"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/ledger"
)

// Dump renders the whole store state as a value tree: the ledger seq, every
// entry oldest first and the identities currently indexed. Two stores with
// equal dumps are indistinguishable to every operation.
func (v *View) Dump() ir.IRObject {
	s := v.s
	history := s.ledger.SystemHistory()
	slices.Reverse(history)

	entries := make(ir.IRArray, len(history))
	for i, e := range history {
		entries[i] = dumpEntry(e)
	}

	indexed := ir.IRArray{}
	for _, t := range s.ledger.Types() {
		for _, row := range s.index.Rows(t) {
			indexed = append(indexed, ir.IRString(row.Identity.String()))
		}
	}

	return ir.IRObject{
		"seq":     ir.IRInt(s.ledger.Seq()),
		"entries": entries,
		"indexed": indexed,
	}
}

func dumpEntry(e *ledger.Entry) ir.IRObject {
	out := ir.IRObject{
		"type":        ir.IRString(e.Identity.Type),
		"id":          ir.IRString(e.Identity.ID),
		"version":     ir.IRInt(e.Version),
		"seq":         ir.IRInt(e.Seq),
		"lastUpdated": ir.IRString(fhir.FormatInstant(e.LastUpdated)),
		"deleted":     ir.IRBool(e.Deleted),
	}
	if e.Body != nil {
		out["body"] = e.Body
	}
	return out
}

// Digest returns the state hash of Dump. Equal digests mean byte-for-byte
// equal canonical dumps.
func (s *Store) Digest(ctx context.Context) (string, error) {
	var digest string
	err := s.View(ctx, func(v *View) error {
		var err error
		digest, err = ir.StateHash(v.Dump())
		return err
	})
	return digest, err
}
