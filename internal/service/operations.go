package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/resolve"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
	"github.com/winterop-com/fhirkit-sub003/internal/transaction"
)

// Reader is the read-only view of the store.
type Reader interface {
	Read(ctx context.Context, resourceType, id string) (*store.Record, error)
	Search(ctx context.Context, resourceType string, params url.Values) (*fhir.Bundle, error)
}

var _ Reader = (*Operations)(nil)

// Operations implements every store operation over one Store.
type Operations struct {
	store    *store.Store
	resolver *resolve.Resolver
	executor *transaction.Executor

	base             string
	limits           search.Limits
	persistDocuments bool
	now              func() time.Time
	ids              store.IDGenerator
	logger           *slog.Logger
}

// Option configures Operations.
type Option func(*Operations)

// WithBaseURL sets the base of every fullUrl and link.
func WithBaseURL(base string) Option {
	return func(o *Operations) {
		o.base = base
	}
}

// WithSearchLimits sets the _count default and ceiling.
func WithSearchLimits(l search.Limits) Option {
	return func(o *Operations) {
		o.limits = l
	}
}

// WithResolver sets the resolver for includes, $everything and $document.
func WithResolver(r *resolve.Resolver) Option {
	return func(o *Operations) {
		o.resolver = r
	}
}

// WithDocumentPersistence stores every assembled document Bundle as a
// Bundle record.
func WithDocumentPersistence(enabled bool) Option {
	return func(o *Operations) {
		o.persistDocuments = enabled
	}
}

// WithClock sets the source of document timestamps.
func WithClock(c store.Clock) Option {
	return func(o *Operations) {
		o.now = c.Now
	}
}

// WithIDGenerator sets the source of document ids.
func WithIDGenerator(g store.IDGenerator) Option {
	return func(o *Operations) {
		o.ids = g
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Operations) {
		o.logger = l
	}
}

// New creates Operations over s.
func New(s *store.Store, opts ...Option) *Operations {
	o := &Operations{
		store:    s,
		resolver: resolve.New(),
		limits:   search.DefaultLimits,
		now:      time.Now,
		ids:      store.UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.executor = transaction.New(s,
		transaction.WithResolver(o.resolver),
		transaction.WithSearchLimits(o.limits),
		transaction.WithBaseURL(o.base),
		transaction.WithLogger(o.logger),
	)
	return o
}

// Store returns the underlying store.
func (o *Operations) Store() *store.Store {
	return o.store
}

// Create stores body as version 1 of a new record.
func (o *Operations) Create(ctx context.Context, resourceType string, body ir.IRObject) (*store.Record, error) {
	return o.store.Create(ctx, resourceType, body)
}

// Read returns the current version of a live record.
func (o *Operations) Read(ctx context.Context, resourceType, id string) (*store.Record, error) {
	return o.store.Read(ctx, resourceType, id)
}

// ReadVersion returns one historical version, which may be a tombstone.
func (o *Operations) ReadVersion(ctx context.Context, resourceType, id string, version int) (*store.Record, error) {
	return o.store.ReadVersion(ctx, resourceType, id, version)
}

// Update writes a new version; expectedVersion 0 skips the version check.
func (o *Operations) Update(ctx context.Context, resourceType, id string, body ir.IRObject, expectedVersion int) (*store.Record, error) {
	return o.store.Update(ctx, resourceType, id, body, expectedVersion)
}

// Delete tombstones a record and returns the tombstone version.
func (o *Operations) Delete(ctx context.Context, resourceType, id string) (int, error) {
	return o.store.Delete(ctx, resourceType, id)
}

// RunBatch applies every entry of a batch Bundle independently.
func (o *Operations) RunBatch(ctx context.Context, b *fhir.Bundle) (*fhir.Bundle, error) {
	return o.executor.RunBatch(ctx, b)
}

// RunTransaction applies a transaction Bundle all-or-nothing.
func (o *Operations) RunTransaction(ctx context.Context, b *fhir.Bundle) (*fhir.Bundle, error) {
	return o.executor.RunTransaction(ctx, b)
}

// Transact decodes a submitted Bundle and runs it as a batch or a
// transaction according to its type.
func (o *Operations) Transact(ctx context.Context, body ir.IRObject) (*fhir.Bundle, error) {
	return o.executor.Run(ctx, body)
}

func (o *Operations) identity(resourceType, id string) (fhir.Identity, error) {
	if !fhir.ValidResourceType(resourceType) {
		return fhir.Identity{}, fhir.NewInvalidRequest("invalid resource type %q", resourceType)
	}
	if !fhir.ValidID(id) {
		return fhir.Identity{}, fhir.NewInvalidRequest("invalid id %q", id)
	}
	return fhir.NewIdentity(resourceType, id), nil
}
