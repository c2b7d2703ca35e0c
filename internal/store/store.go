package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/ledger"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
)

// Record is one version of a resource as returned to callers.
// Body is a private copy; tombstones have Deleted set and a nil Body.
type Record struct {
	Identity    fhir.Identity
	Version     int
	LastUpdated time.Time
	Deleted     bool
	Body        ir.IRObject
}

func recordOf(e *ledger.Entry) *Record {
	r := &Record{
		Identity:    e.Identity,
		Version:     e.Version,
		LastUpdated: e.LastUpdated,
		Deleted:     e.Deleted,
	}
	if e.Body != nil {
		r.Body = ir.CloneObject(e.Body)
	}
	return r
}

// Store owns the ledger and the index of every record.
type Store struct {
	mu     sync.RWMutex
	ledger *ledger.Ledger
	index  *search.Index

	clock        Clock
	ids          IDGenerator
	persister    Persister
	logger       *slog.Logger
	deletePolicy DeletePolicy
}

// New creates an empty store indexing with reg.
func New(reg *search.Registry, opts ...Option) *Store {
	s := &Store{
		ledger:       ledger.New(),
		index:        search.NewIndex(reg),
		clock:        systemClock{},
		ids:          UUIDv7Generator{},
		logger:       slog.Default(),
		deletePolicy: DeleteIdempotent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the search parameter registry of the store.
func (s *Store) Registry() *search.Registry {
	return s.index.Registry()
}

// Recover replays every entry of the configured persister into the store
// and rebuilds the index. The store must be empty. Returns the number of
// entries replayed.
func (s *Store) Recover(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ledger.Len() > 0 {
		return 0, fmt.Errorf("recover: store already holds %d entries", s.ledger.Len())
	}

	n := 0
	err := s.persister.Load(ctx, func(e *ledger.Entry) error {
		if err := s.ledger.Replay(e); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		s.ledger = ledger.New()
		return 0, fmt.Errorf("recover: %w", err)
	}

	for _, t := range s.ledger.Types() {
		for _, head := range s.ledger.Heads(t) {
			if head.Deleted {
				continue
			}
			row, err := s.buildRow(head.Identity, head.Body)
			if err != nil {
				s.ledger = ledger.New()
				s.index = search.NewIndex(s.index.Registry())
				return 0, fmt.Errorf("recover: index %s: %w", head.Identity, err)
			}
			s.index.Put(row)
		}
	}

	s.logger.Info("store recovered", "entries", n, "seq", s.ledger.Seq())
	return n, nil
}

// buildRow extracts the index row of id. Created is the seq of version 1,
// or the seq the next append will receive for a new identity.
func (s *Store) buildRow(id fhir.Identity, body ir.IRObject) (*search.Row, error) {
	created := s.ledger.Seq() + 1
	if first, err := s.ledger.Get(id, 1); err == nil {
		created = first.Seq
	}
	return s.index.Build(id, created, body)
}

// View runs fn under the read lock. fn must not retain v.
func (s *Store) View(ctx context.Context, fn func(v *View) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&View{s: s})
}

// update runs fn in its own Tx and commits it.
func (s *Store) update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Create stores body as version 1 of a new resource. A server id is
// assigned unless body carries one.
func (s *Store) Create(ctx context.Context, resourceType string, body ir.IRObject) (*Record, error) {
	var rec *Record
	err := s.update(ctx, func(tx *Tx) error {
		var err error
		rec, err = tx.Create(resourceType, body)
		return err
	})
	return rec, err
}

// Update writes the next version of resourceType/id, creating it when
// absent. A non-zero expectedVersion must equal the current version.
func (s *Store) Update(ctx context.Context, resourceType, id string, body ir.IRObject, expectedVersion int) (*Record, error) {
	var rec *Record
	err := s.update(ctx, func(tx *Tx) error {
		var err error
		rec, err = tx.Update(resourceType, id, body, expectedVersion)
		return err
	})
	return rec, err
}

// Delete tombstones resourceType/id and returns the tombstone version.
// Under DeleteIdempotent an absent or deleted record is not an error; the
// current version (0 when absent) is returned.
func (s *Store) Delete(ctx context.Context, resourceType, id string) (int, error) {
	var version int
	err := s.update(ctx, func(tx *Tx) error {
		var err error
		version, err = tx.Delete(resourceType, id)
		return err
	})
	return version, err
}

// Read returns the current version of a live record.
func (s *Store) Read(ctx context.Context, resourceType, id string) (*Record, error) {
	var rec *Record
	err := s.View(ctx, func(v *View) error {
		var err error
		rec, err = v.Read(fhir.NewIdentity(resourceType, id))
		return err
	})
	return rec, err
}

// ReadVersion returns any historical version, including tombstones.
func (s *Store) ReadVersion(ctx context.Context, resourceType, id string, version int) (*Record, error) {
	var rec *Record
	err := s.View(ctx, func(v *View) error {
		var err error
		rec, err = v.ReadVersion(fhir.NewIdentity(resourceType, id), version)
		return err
	})
	return rec, err
}

// History returns every version of a record, newest first.
func (s *Store) History(ctx context.Context, resourceType, id string) ([]*Record, error) {
	var recs []*Record
	err := s.View(ctx, func(v *View) error {
		var err error
		recs, err = v.History(fhir.NewIdentity(resourceType, id))
		return err
	})
	return recs, err
}

// TypeHistory returns every version of every record of resourceType,
// newest first.
func (s *Store) TypeHistory(ctx context.Context, resourceType string) ([]*Record, error) {
	var recs []*Record
	err := s.View(ctx, func(v *View) error {
		recs = v.TypeHistory(resourceType)
		return nil
	})
	return recs, err
}

// SystemHistory returns every version of every record, newest first.
func (s *Store) SystemHistory(ctx context.Context) ([]*Record, error) {
	var recs []*Record
	err := s.View(ctx, func(v *View) error {
		recs = v.SystemHistory()
		return nil
	})
	return recs, err
}

// Search evaluates q against the index.
func (s *Store) Search(ctx context.Context, q *search.Query) (search.Result, error) {
	var res search.Result
	err := s.View(ctx, func(v *View) error {
		res = v.Search(q)
		return nil
	})
	return res, err
}
