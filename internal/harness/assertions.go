package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Step, event.Op, event.Target, event.Outcome)
	}

	return buf.String()
}

// checkExpect compares a step's event and body against its expect clause.
// Without an expect clause the step must succeed.
func checkExpect(result *Result, index int, want *Expect, event TraceEvent, body ir.IRObject) {
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: ", index, event.Op, event.Target) + fmt.Sprintf(format, args...))
	}

	outcome := OutcomeOK
	if want != nil && want.Outcome != "" {
		outcome = want.Outcome
	}
	if event.Outcome != outcome {
		fail("outcome = %q, expected %q", event.Outcome, outcome)
		return
	}
	if want == nil {
		return
	}

	if want.Version != 0 && event.Version != want.Version {
		fail("version = %d, expected %d", event.Version, want.Version)
	}
	if want.Total != nil && (event.Total == nil || *event.Total != *want.Total) {
		fail("total = %s, expected %d", formatIntPtr(event.Total), *want.Total)
	}
	if want.IDs != nil && !slices.Equal(event.IDs, want.IDs) {
		fail("ids = %v, expected %v", event.IDs, want.IDs)
	}
	if want.Statuses != nil && !slices.Equal(event.Statuses, want.Statuses) {
		fail("statuses = %v, expected %v", event.Statuses, want.Statuses)
	}
	if want.EntryIndex != nil && (event.EntryIndex == nil || *event.EntryIndex != *want.EntryIndex) {
		fail("entry_index = %s, expected %d", formatIntPtr(event.EntryIndex), *want.EntryIndex)
	}
	if want.Body != nil {
		if err := matchBody(body, want.Body); err != nil {
			fail("%v", err)
		}
	}
}

// evaluateAssertions runs every assertion and records failures in result.
// Only infrastructure failures are returned as errors.
func (r *runner) evaluateAssertions(ctx context.Context, assertions []Assertion, result *Result) error {
	for i, a := range assertions {
		err := r.evaluate(ctx, a, result)
		if err == nil {
			continue
		}
		var ae *AssertionError
		if !errors.As(err, &ae) {
			return fmt.Errorf("assertions[%d] %s: %w", i, a.Type, err)
		}
		result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
	}
	return nil
}

func (r *runner) evaluate(ctx context.Context, a Assertion, result *Result) error {
	failed := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: result.Trace}
	}
	id, _ := fhir.ParseIdentity(a.Target)

	switch a.Type {
	case AssertCurrentVersion:
		rec, err := r.store.Read(ctx, id.Type, id.ID)
		if err != nil {
			return failed(fmt.Sprintf("%s at version %d", a.Target, a.Version), err.Error())
		}
		if rec.Version != a.Version {
			return failed(fmt.Sprintf("%s at version %d", a.Target, a.Version), fmt.Sprintf("version %d", rec.Version))
		}

	case AssertHistoryCount:
		recs, err := r.store.History(ctx, id.Type, id.ID)
		if err != nil {
			return failed(fmt.Sprintf("%d versions of %s", a.Count, a.Target), err.Error())
		}
		if len(recs) != a.Count {
			return failed(fmt.Sprintf("%d versions of %s", a.Count, a.Target), fmt.Sprintf("%d versions", len(recs)))
		}

	case AssertNotFound:
		rec, err := r.store.Read(ctx, id.Type, id.ID)
		if err == nil {
			return failed(a.Target+" not found", fmt.Sprintf("live at version %d", rec.Version))
		}
		if !fhir.IsNotFound(err) {
			return err
		}

	case AssertResource:
		rec, err := r.store.Read(ctx, id.Type, id.ID)
		if err != nil {
			return failed(fmt.Sprintf("%s matching %v", a.Target, a.Expect), err.Error())
		}
		if err := matchBody(rec.Body, a.Expect); err != nil {
			return failed(fmt.Sprintf("%s matching %v", a.Target, a.Expect), err.Error())
		}

	case AssertDigestEqual:
		first := result.Checkpoints[a.Checkpoints[0]]
		for _, name := range a.Checkpoints[1:] {
			if result.Checkpoints[name] != first {
				return failed(
					fmt.Sprintf("checkpoint %q equal to %q", name, a.Checkpoints[0]),
					fmt.Sprintf("%s != %s", result.Checkpoints[name], first),
				)
			}
		}

	case AssertReplayMatches:
		replayed := store.New(r.reg, store.WithPersister(r.db), store.WithLogger(r.logger))
		if _, err := replayed.Recover(ctx); err != nil {
			return err
		}
		digest, err := replayed.Digest(ctx)
		if err != nil {
			return err
		}
		if digest != result.Digest {
			return failed("replayed digest "+result.Digest, digest)
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// matchBody checks that want, converted to IR, is a subset of body.
func matchBody(body ir.IRObject, want map[string]any) error {
	if body == nil {
		return fmt.Errorf("no resource body to match")
	}
	expected, err := ir.FromAny(want)
	if err != nil {
		return fmt.Errorf("failed to convert expected body: %w", err)
	}
	return matchSubset("", body, expected)
}

// matchSubset reports the first path where actual does not contain expected.
// Objects match when every expected key matches; arrays must match
// element for element with equal length.
func matchSubset(path string, actual, expected ir.IRValue) error {
	switch exp := expected.(type) {
	case ir.IRObject:
		act, ok := actual.(ir.IRObject)
		if !ok {
			return fmt.Errorf("%s: expected object, got %T", pathOrRoot(path), actual)
		}
		for _, k := range exp.SortedKeys() {
			child := k
			if path != "" {
				child = path + "." + k
			}
			v, ok := act[k]
			if !ok {
				return fmt.Errorf("%s: missing", child)
			}
			if err := matchSubset(child, v, exp[k]); err != nil {
				return err
			}
		}
		return nil

	case ir.IRArray:
		act, ok := actual.(ir.IRArray)
		if !ok {
			return fmt.Errorf("%s: expected array, got %T", pathOrRoot(path), actual)
		}
		if len(act) != len(exp) {
			return fmt.Errorf("%s: expected %d elements, got %d", pathOrRoot(path), len(exp), len(act))
		}
		for i := range exp {
			if err := matchSubset(fmt.Sprintf("%s[%d]", path, i), act[i], exp[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if actual != expected {
		return fmt.Errorf("%s: got %v, expected %v", pathOrRoot(path), actual, expected)
	}
	return nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

func formatIntPtr(n *int) string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprint(*n)
}
