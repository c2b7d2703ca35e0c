package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/resolve"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// Executor runs batch and transaction Bundles.
type Executor struct {
	store    *store.Store
	resolver *resolve.Resolver
	limits   search.Limits
	base     string
	logger   *slog.Logger
	observer func(Phase)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) {
		x.logger = l
	}
}

// WithSearchLimits sets the _count limits of GET search entries.
func WithSearchLimits(l search.Limits) Option {
	return func(x *Executor) {
		x.limits = l
	}
}

// WithResolver sets the resolver used for _include in GET search entries.
func WithResolver(r *resolve.Resolver) Option {
	return func(x *Executor) {
		x.resolver = r
	}
}

// WithBaseURL sets the base of fullUrl values in search entry bundles.
func WithBaseURL(base string) Option {
	return func(x *Executor) {
		x.base = base
	}
}

// WithPhaseObserver registers fn to be called on every transaction phase
// change, while the store write lock is held.
func WithPhaseObserver(fn func(Phase)) Option {
	return func(x *Executor) {
		x.observer = fn
	}
}

// New creates an Executor over s.
func New(s *store.Store, opts ...Option) *Executor {
	x := &Executor{
		store:    s,
		resolver: resolve.New(),
		limits:   search.DefaultLimits,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Executor) enter(p Phase) {
	x.logger.Debug("transaction phase", "phase", p.String())
	if x.observer != nil {
		x.observer(p)
	}
}

// Run decodes body and dispatches on Bundle.type.
func (x *Executor) Run(ctx context.Context, body ir.IRObject) (*fhir.Bundle, error) {
	b, err := fhir.ParseBundle(body)
	if err != nil {
		return nil, err
	}
	switch b.Type {
	case fhir.BundleBatch:
		return x.RunBatch(ctx, b)
	case fhir.BundleTransaction:
		return x.RunTransaction(ctx, b)
	default:
		return nil, fhir.NewInvalidRequest("expected a batch or transaction Bundle, got type %q", b.Type)
	}
}

// RunBatch applies every entry independently. The response holds exactly
// one entry per input entry, in order; failures carry an OperationOutcome.
func (x *Executor) RunBatch(ctx context.Context, b *fhir.Bundle) (*fhir.Bundle, error) {
	if b.Type != fhir.BundleBatch {
		return nil, fhir.NewInvalidRequest("expected a batch Bundle, got type %q", b.Type)
	}

	out := &fhir.Bundle{Type: fhir.BundleBatchResponse, Entries: make([]fhir.Entry, len(b.Entries))}
	for i, e := range b.Entries {
		resp, err := x.runOne(ctx, e)
		if err != nil {
			x.logger.Debug("batch entry failed", "entry", i, "error", err)
			resp = failure(err)
		}
		out.Entries[i] = resp
	}
	return out, nil
}

func (x *Executor) runOne(ctx context.Context, e fhir.Entry) (fhir.Entry, error) {
	req, err := parseRequest(e)
	if err != nil {
		return fhir.Entry{}, err
	}
	tx, err := x.store.Begin(ctx)
	if err != nil {
		return fhir.Entry{}, err
	}
	defer tx.Rollback()

	resp, err := x.apply(tx, req)
	if err != nil {
		return fhir.Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return fhir.Entry{}, err
	}
	return resp, nil
}

// RunTransaction applies every entry in input order inside one Tx. On the
// first failure the store is restored verbatim and TransactionAborted is
// returned.
func (x *Executor) RunTransaction(ctx context.Context, b *fhir.Bundle) (*fhir.Bundle, error) {
	if b.Type != fhir.BundleTransaction {
		return nil, fhir.NewInvalidRequest("expected a transaction Bundle, got type %q", b.Type)
	}

	x.enter(PhaseIdle)
	reqs := make([]*request, len(b.Entries))
	for i, e := range b.Entries {
		req, err := parseRequest(e)
		if err != nil {
			x.logger.Info("transaction rejected", "entry", i, "error", err)
			return nil, fhir.NewTransactionAborted(i, err)
		}
		reqs[i] = req
	}

	tx, err := x.store.BeginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	tx.StrictDeletes()
	x.enter(PhaseSnapshotTaken)

	rewriteURNs(tx, b.Entries, reqs)

	x.enter(PhaseApplying)
	out := &fhir.Bundle{Type: fhir.BundleTransactionResponse, Entries: make([]fhir.Entry, len(reqs))}
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, x.abort(tx, i, err)
		}
		resp, err := x.apply(tx, req)
		if err != nil {
			return nil, x.abort(tx, i, err)
		}
		out.Entries[i] = resp
	}

	if err := tx.Commit(ctx); err != nil {
		x.enter(PhaseRolledBack)
		return nil, fmt.Errorf("transaction commit: %w", err)
	}
	x.enter(PhaseCommitted)
	x.logger.Debug("transaction committed", "entries", len(reqs))
	return out, nil
}

func (x *Executor) abort(tx *store.Tx, index int, cause error) error {
	tx.Rollback()
	x.enter(PhaseRolledBack)
	x.logger.Info("transaction rolled back", "entry", index, "error", cause)
	return fhir.NewTransactionAborted(index, cause)
}

// apply runs one request inside tx and renders its response entry.
func (x *Executor) apply(tx *store.Tx, req *request) (fhir.Entry, error) {
	id := fhir.NewIdentity(req.resourceType, req.id)

	switch req.kind {
	case opRead:
		rec, err := tx.Read(id)
		if err != nil {
			return fhir.Entry{}, err
		}
		return withResource(rec, http.StatusOK), nil

	case opVRead:
		rec, err := tx.ReadVersion(id, req.version)
		if err != nil {
			return fhir.Entry{}, err
		}
		if rec.Deleted {
			return fhir.Entry{}, &fhir.Error{
				Code:     fhir.ErrCodeNotFound,
				Message:  fmt.Sprintf("%s version %d is deleted", id, req.version),
				Identity: id,
			}
		}
		return withResource(rec, http.StatusOK), nil

	case opSearch:
		q, err := search.ParseQuery(tx.Registry(), req.resourceType, req.query, x.limits)
		if err != nil {
			return fhir.Entry{}, err
		}
		page, err := x.resolver.Search(&tx.View, q)
		if err != nil {
			return fhir.Entry{}, err
		}
		return fhir.Entry{
			Resource: page.Bundle(x.base, tx.Registry().Catalog()).ToIR(),
			Response: &fhir.EntryResponse{Status: fhir.StatusLine(http.StatusOK)},
		}, nil

	case opCreate:
		rec, err := tx.Create(req.resourceType, req.body)
		if err != nil {
			return fhir.Entry{}, err
		}
		return written(rec, http.StatusCreated), nil

	case opUpdate:
		rec, err := tx.Update(req.resourceType, req.id, req.body, req.expectedVersion)
		if err != nil {
			return fhir.Entry{}, err
		}
		status := http.StatusOK
		if rec.Version == 1 {
			status = http.StatusCreated
		}
		return written(rec, status), nil

	case opDelete:
		v, err := tx.Delete(req.resourceType, req.id)
		if err != nil {
			return fhir.Entry{}, err
		}
		resp := &fhir.EntryResponse{Status: fhir.StatusLine(http.StatusNoContent)}
		if v > 0 {
			resp.Etag = fhir.ETag(v)
		}
		return fhir.Entry{Response: resp}, nil
	}
	return fhir.Entry{}, fhir.NewInvalidRequest("unsupported request")
}

func written(rec *store.Record, status int) fhir.Entry {
	return fhir.Entry{
		Response: &fhir.EntryResponse{
			Status:       fhir.StatusLine(status),
			Location:     fhir.Location(rec.Identity, rec.Version),
			Etag:         fhir.ETag(rec.Version),
			LastModified: fhir.FormatInstant(rec.LastUpdated),
		},
	}
}

func withResource(rec *store.Record, status int) fhir.Entry {
	e := written(rec, status)
	e.Response.Location = ""
	e.Resource = rec.Body
	return e
}

func failure(err error) fhir.Entry {
	return fhir.Entry{Response: &fhir.EntryResponse{
		Status:  fhir.StatusLine(fhir.StatusFor(err)),
		Outcome: fhir.OutcomeFromError(err).ToIR(),
	}}
}
