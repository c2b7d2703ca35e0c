package store

import (
	"context"
	"fmt"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/ledger"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
)

// Tx is an exclusive write session. It holds the store write lock from
// Begin until Commit or Rollback, whichever comes first.
//
// A Tx from Begin journals the prior state of each identity it writes and
// rolls back by undoing just those. A Tx from BeginSnapshot captures the
// whole ledger and index up front and rolls back by reinstalling them.
//
//	tx, err := s.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Rollback() // no-op after Commit
//	...
//	return tx.Commit(ctx)
type Tx struct {
	View

	ledgerSnap *ledger.Snapshot
	indexSnap  *search.Snapshot

	mark *ledger.Mark
	// priorRows holds the index row of each written identity as it was
	// before its first write; nil when it had none.
	priorRows map[fhir.Identity]*search.Row

	written []*ledger.Entry
	policy  DeletePolicy
	done    bool
}

// Begin acquires the write lock. Rollback undoes only the identities the
// Tx wrote.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &Tx{
		View:      View{s: s},
		mark:      s.ledger.Mark(),
		priorRows: make(map[fhir.Identity]*search.Row),
		policy:    s.deletePolicy,
	}, nil
}

// BeginSnapshot acquires the write lock and snapshots the whole store.
// Rollback reinstalls the snapshot verbatim.
func (s *Store) BeginSnapshot(ctx context.Context) (*Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &Tx{
		View:       View{s: s},
		ledgerSnap: s.ledger.Snapshot(),
		indexSnap:  s.index.Snapshot(),
		policy:     s.deletePolicy,
	}, nil
}

// StrictDeletes makes Delete fail with NotFound on absent or deleted
// records for the rest of the Tx.
func (tx *Tx) StrictDeletes() {
	tx.policy = DeleteStrict
}

// Written returns the entries appended so far.
func (tx *Tx) Written() []*ledger.Entry {
	return tx.written
}

// Commit persists the appended entries and releases the lock. When the
// persister fails the Tx is rolled back and the error returned.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("commit: transaction already finished")
	}
	s := tx.s
	if s.persister != nil && len(tx.written) > 0 {
		if err := s.persister.Persist(ctx, tx.written); err != nil {
			s.logger.Error("persist failed, rolling back", "entries", len(tx.written), "error", err)
			tx.Rollback()
			return fmt.Errorf("commit: %w", err)
		}
	}
	tx.done = true
	s.mu.Unlock()
	return nil
}

// Rollback undoes every write of the Tx and releases the lock.
// It is a no-op once the Tx is finished.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	s := tx.s
	if tx.ledgerSnap != nil {
		s.ledger.Restore(tx.ledgerSnap)
		s.index.Restore(tx.indexSnap)
	} else {
		s.ledger.Rewind(tx.mark)
		for id, row := range tx.priorRows {
			if row == nil {
				s.index.Remove(id)
			} else {
				s.index.Put(row)
			}
		}
	}
	if len(tx.written) > 0 {
		s.logger.Debug("rolled back", "entries", len(tx.written), "seq", s.ledger.Seq())
	}
	tx.written = nil
	tx.done = true
	s.mu.Unlock()
}

// NewID returns a fresh server id.
func (tx *Tx) NewID() string {
	return tx.s.ids.Generate()
}

// Create stores body as version 1 of a new resource.
func (tx *Tx) Create(resourceType string, body ir.IRObject) (*Record, error) {
	if err := checkBody(resourceType, body); err != nil {
		return nil, err
	}
	id := body.String("id")
	if id == "" {
		id = tx.NewID()
	}
	ident, err := identity(resourceType, id)
	if err != nil {
		return nil, err
	}
	if tx.Exists(ident) {
		return nil, fhir.NewConflict(ident)
	}
	return tx.put(ident, body)
}

// Update writes the next version of resourceType/id. A zero
// expectedVersion makes the write unconditional, creating the record when
// absent. Otherwise the record must be live at exactly that version.
func (tx *Tx) Update(resourceType, id string, body ir.IRObject, expectedVersion int) (*Record, error) {
	ident, err := identity(resourceType, id)
	if err != nil {
		return nil, err
	}
	if err := checkBody(resourceType, body); err != nil {
		return nil, err
	}
	if bodyID := body.String("id"); bodyID != "" && bodyID != id {
		return nil, fhir.NewInvalidRequest("body id %q does not match %s", bodyID, ident)
	}
	if expectedVersion > 0 {
		cur, ok := tx.s.ledger.Current(ident)
		if !ok {
			return nil, fhir.NewNotFound(ident)
		}
		if cur.Version != expectedVersion {
			return nil, fhir.NewVersionConflict(ident, expectedVersion, cur.Version)
		}
	}
	return tx.put(ident, body)
}

// Delete appends a tombstone for resourceType/id and returns its version.
func (tx *Tx) Delete(resourceType, id string) (int, error) {
	ident, err := identity(resourceType, id)
	if err != nil {
		return 0, err
	}
	s := tx.s
	head, ok := s.ledger.Head(ident)
	if !ok || head.Deleted {
		if tx.policy == DeleteStrict {
			return 0, fhir.NewNotFound(ident)
		}
		if ok {
			return head.Version, nil
		}
		return 0, nil
	}

	tx.journal(ident)
	e := s.ledger.Append(ident, nil, true, tx.now())
	s.index.Remove(ident)
	tx.written = append(tx.written, e)
	s.logger.Debug("deleted", "type", ident.Type, "id", ident.ID, "version", e.Version)
	return e.Version, nil
}

// put stamps body as the next version of id. The index row is built before
// anything is appended so a failing body leaves no trace.
func (tx *Tx) put(id fhir.Identity, body ir.IRObject) (*Record, error) {
	s := tx.s
	version := 1
	if head, ok := s.ledger.Head(id); ok {
		version = head.Version + 1
	}
	at := tx.now()
	stamped := fhir.Stamp(body, id, version, at)

	row, err := s.buildRow(id, stamped)
	if err != nil {
		return nil, fhir.NewInvalidRequest("%s: %v", id, err)
	}

	tx.journal(id)
	e := s.ledger.Append(id, stamped, false, at)
	s.index.Put(row)
	tx.written = append(tx.written, e)
	s.logger.Debug("stored", "type", id.Type, "id", id.ID, "version", e.Version)
	return recordOf(e), nil
}

// journal saves the state of id before its first write in a journaled Tx.
func (tx *Tx) journal(id fhir.Identity) {
	if tx.mark == nil {
		return
	}
	tx.s.ledger.Save(tx.mark, id)
	if _, ok := tx.priorRows[id]; !ok {
		row, _ := tx.s.index.Row(id)
		tx.priorRows[id] = row
	}
}

// now truncates to the precision of meta.lastUpdated so persisted and
// in-memory timestamps agree.
func (tx *Tx) now() time.Time {
	return tx.s.clock.Now().UTC().Truncate(time.Millisecond)
}

func identity(resourceType, id string) (fhir.Identity, error) {
	if !fhir.ValidResourceType(resourceType) {
		return fhir.Identity{}, fhir.NewInvalidRequest("invalid resource type %q", resourceType)
	}
	if !fhir.ValidID(id) {
		return fhir.Identity{}, fhir.NewInvalidRequest("invalid id %q", id)
	}
	return fhir.NewIdentity(resourceType, id), nil
}

func checkBody(resourceType string, body ir.IRObject) error {
	if body == nil {
		return fhir.NewInvalidRequest("%s: missing body", resourceType)
	}
	if rt := body.String("resourceType"); rt != "" && rt != resourceType {
		return fhir.NewInvalidRequest("body resourceType %q does not match %q", rt, resourceType)
	}
	if _, ok := body["resourceType"]; ok && body.String("resourceType") == "" {
		return fhir.NewInvalidRequest("resourceType must be a string")
	}
	return nil
}
