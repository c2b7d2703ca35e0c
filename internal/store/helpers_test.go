package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/ledger"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/testutil"
)

func testRegistry(t testing.TB) *search.Registry {
	t.Helper()
	reg, err := search.NewRegistry(catalog.Default())
	require.NoError(t, err)
	return reg
}

// createTestStore creates a deterministic store: ids id-1, id-2, ... and
// lastUpdated stepping one second from 2024-01-01.
func createTestStore(t testing.TB, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequentialIDs("id")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(testRegistry(t), append(base, opts...)...)
}

func body(t testing.TB, js string) ir.IRObject {
	t.Helper()
	obj, err := ir.UnmarshalObject([]byte(js))
	require.NoError(t, err)
	return obj
}

func digest(t *testing.T, s *Store) string {
	t.Helper()
	d, err := s.Digest(context.Background())
	require.NoError(t, err)
	return d
}

// memPersister records persisted entries and can be told to fail.
type memPersister struct {
	batches [][]string
	entries []*ledger.Entry
	fail    error
}

func (p *memPersister) Persist(_ context.Context, entries []*ledger.Entry) error {
	if p.fail != nil {
		return p.fail
	}
	var batch []string
	for _, e := range entries {
		batch = append(batch, fmt.Sprintf("%s/%d", e.Identity, e.Version))
	}
	p.batches = append(p.batches, batch)
	p.entries = append(p.entries, entries...)
	return nil
}

func (p *memPersister) Load(_ context.Context, fn func(*ledger.Entry) error) error {
	for _, e := range p.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}
