package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/ledger"
)

// Clock supplies meta.lastUpdated timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Persister makes committed ledger entries durable.
type Persister interface {
	// Persist writes entries atomically. Entries arrive in seq order.
	Persist(ctx context.Context, entries []*ledger.Entry) error
	// Load calls fn for every persisted entry in seq order.
	Load(ctx context.Context, fn func(*ledger.Entry) error) error
}

// DeletePolicy decides how Delete treats absent or already deleted records.
type DeletePolicy string

const (
	// DeleteIdempotent succeeds without appending a version.
	DeleteIdempotent DeletePolicy = "idempotent"
	// DeleteStrict fails with NotFound.
	DeleteStrict DeletePolicy = "strict"
)

// ParseDeletePolicy validates a configured policy name.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch p := DeletePolicy(s); p {
	case DeleteIdempotent, DeleteStrict:
		return p, nil
	case "":
		return DeleteIdempotent, nil
	default:
		return "", fmt.Errorf("unknown delete policy %q (want %q or %q)", s, DeleteIdempotent, DeleteStrict)
	}
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the timestamp source.
func WithClock(c Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithIDGenerator sets the server id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithPersister attaches a durable backend.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithDeletePolicy sets the policy for single Delete calls. Transactions
// always delete strictly.
func WithDeletePolicy(p DeletePolicy) Option {
	return func(s *Store) {
		s.deletePolicy = p
	}
}
