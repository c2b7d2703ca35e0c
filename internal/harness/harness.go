package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/persist"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/service"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
	"github.com/winterop-com/fhirkit-sub003/internal/testutil"
)

// runner holds the store a scenario executes against.
type runner struct {
	reg    *search.Registry
	store  *store.Store
	ops    *service.Operations
	db     *persist.SQLite
	logger *slog.Logger
}

// Run executes a scenario against a fresh store and returns its result.
//
// Execution flow:
//  1. Build a store with a deterministic clock and sequential ids, backed
//     by an in-memory SQLite ledger when the scenario persists
//  2. Execute setup steps, which must all succeed
//  3. Execute steps, recording a trace event and checking expect clauses
//  4. Evaluate assertions against the final state
//
// A returned error means the scenario could not be executed at all; failed
// expectations are reported through Result.Pass and Result.Errors.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := search.NewRegistry(catalog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to build search registry: %w", err)
	}

	policy := store.DeleteIdempotent
	if s.DeletePolicy != "" {
		if policy, err = store.ParseDeletePolicy(s.DeletePolicy); err != nil {
			return nil, err
		}
	}

	clock := testutil.NewDeterministicClock()
	ids := testutil.NewSequentialIDs("id")
	storeOpts := []store.Option{
		store.WithClock(clock),
		store.WithIDGenerator(ids),
		store.WithDeletePolicy(policy),
		store.WithLogger(logger),
	}

	r := &runner{reg: reg, logger: logger}
	if s.Persist {
		r.db, err = persist.Open(":memory:", persist.WithDriver(persist.DriverPure), persist.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger database: %w", err)
		}
		defer r.db.Close()
		storeOpts = append(storeOpts, store.WithPersister(r.db))
	}
	r.store = store.New(reg, storeOpts...)
	r.ops = service.New(r.store,
		service.WithClock(clock),
		service.WithIDGenerator(ids),
		service.WithLogger(logger),
	)

	for i, step := range s.Setup {
		if _, _, err := r.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("setup[%d] %s %s failed: %w", i, step.Op, step.Target, err)
		}
	}

	result := NewResult()
	for i, step := range s.Steps {
		event, body, _ := r.execute(ctx, i, step)
		result.Trace = append(result.Trace, event)
		checkExpect(result, i, step.Expect, event, body)

		if step.Checkpoint != "" {
			digest, err := r.store.Digest(ctx)
			if err != nil {
				return nil, fmt.Errorf("steps[%d]: checkpoint %q: %w", i, step.Checkpoint, err)
			}
			result.Checkpoints[step.Checkpoint] = digest
		}
	}

	if result.Digest, err = r.store.Digest(ctx); err != nil {
		return nil, fmt.Errorf("failed to compute final digest: %w", err)
	}

	if err := r.evaluateAssertions(ctx, s.Assertions, result); err != nil {
		return nil, err
	}
	return result, nil
}

// execute runs one step. The returned body is the resource of a read or
// write, nil otherwise.
func (r *runner) execute(ctx context.Context, index int, step Step) (TraceEvent, ir.IRObject, error) {
	event := TraceEvent{Step: index, Op: step.Op, Target: step.Target}
	body, err := r.dispatch(ctx, step, &event)
	event.Outcome = outcomeOf(err)
	return event, body, err
}

func (r *runner) dispatch(ctx context.Context, step Step, event *TraceEvent) (ir.IRObject, error) {
	switch step.Op {
	case OpCreate:
		res, err := resourceOf(step)
		if err != nil {
			return nil, err
		}
		rec, err := r.ops.Create(ctx, step.Target, res)
		if err != nil {
			return nil, err
		}
		event.Target = rec.Identity.String()
		return recordBody(event, rec), nil

	case OpUpdate:
		res, err := resourceOf(step)
		if err != nil {
			return nil, err
		}
		id, _ := fhir.ParseIdentity(step.Target)
		rec, err := r.ops.Update(ctx, id.Type, id.ID, res, step.IfMatch)
		if err != nil {
			return nil, err
		}
		return recordBody(event, rec), nil

	case OpRead:
		id, _ := fhir.ParseIdentity(step.Target)
		rec, err := r.ops.Read(ctx, id.Type, id.ID)
		if err != nil {
			return nil, err
		}
		return recordBody(event, rec), nil

	case OpVRead:
		id, _ := fhir.ParseIdentity(step.Target)
		rec, err := r.ops.ReadVersion(ctx, id.Type, id.ID, step.Version)
		if err != nil {
			return nil, err
		}
		return recordBody(event, rec), nil

	case OpDelete:
		id, _ := fhir.ParseIdentity(step.Target)
		version, err := r.ops.Delete(ctx, id.Type, id.ID)
		if err != nil {
			return nil, err
		}
		event.Version = version
		return nil, nil

	case OpHistory:
		var (
			b   *fhir.Bundle
			err error
		)
		switch {
		case step.Target == "":
			b, err = r.ops.SystemHistory(ctx)
		case fhir.ValidResourceType(step.Target):
			b, err = r.ops.TypeHistory(ctx, step.Target)
		default:
			id, _ := fhir.ParseIdentity(step.Target)
			b, err = r.ops.History(ctx, id.Type, id.ID)
		}
		if err != nil {
			return nil, err
		}
		bundleEvent(event, b)
		return nil, nil

	case OpSearch:
		params, err := queryOf(step)
		if err != nil {
			return nil, err
		}
		b, err := r.ops.Search(ctx, step.Target, params)
		if err != nil {
			return nil, err
		}
		bundleEvent(event, b)
		return nil, nil

	case OpEverything:
		params, err := queryOf(step)
		if err != nil {
			return nil, err
		}
		id, _ := fhir.ParseIdentity(step.Target)
		b, err := r.ops.Everything(ctx, id.Type, id.ID, params)
		if err != nil {
			return nil, err
		}
		bundleEvent(event, b)
		return nil, nil

	case OpDocument:
		id, _ := fhir.ParseIdentity(step.Target)
		b, err := r.ops.Document(ctx, id.Type, id.ID)
		if err != nil {
			return nil, err
		}
		bundleEvent(event, b)
		return nil, nil

	case OpBundle:
		res, err := resourceOf(step)
		if err != nil {
			return nil, err
		}
		b, err := r.ops.Transact(ctx, res)
		if err != nil {
			if fe, ok := fhir.AsError(err); ok && fe.Code == fhir.ErrCodeTransactionAborted {
				event.EntryIndex = fhir.IntPtr(fe.EntryIndex)
			}
			return nil, err
		}
		event.Statuses = make([]string, 0, len(b.Entries))
		for _, e := range b.Entries {
			if e.Response != nil {
				event.Statuses = append(event.Statuses, e.Response.Status)
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

func recordBody(event *TraceEvent, rec *store.Record) ir.IRObject {
	event.Version = rec.Version
	return rec.Body
}

// bundleEvent copies the total and the entry identities of b into event.
// Entries are identified by fullUrl, which is Type/id without a base URL.
func bundleEvent(event *TraceEvent, b *fhir.Bundle) {
	if b.Total != nil {
		event.Total = fhir.IntPtr(*b.Total)
	}
	event.IDs = make([]string, 0, len(b.Entries))
	for _, e := range b.Entries {
		if e.FullURL != "" {
			event.IDs = append(event.IDs, e.FullURL)
		}
	}
}

func resourceOf(step Step) (ir.IRObject, error) {
	v, err := ir.FromAny(step.Resource)
	if err != nil {
		return nil, fmt.Errorf("failed to convert resource: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("resource must be an object, got %T", v)
	}
	return obj, nil
}

func queryOf(step Step) (url.Values, error) {
	params, err := url.ParseQuery(step.Query)
	if err != nil {
		return nil, fhir.NewInvalidRequest("malformed query %q: %v", step.Query, err)
	}
	return params, nil
}

// outcomeOf maps a step error to its trace outcome.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return string(fhir.IssueCodeFor(err))
}
