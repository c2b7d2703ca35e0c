package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/ledger"
)

// Load calls fn for every persisted entry in seq order. A body whose hash
// no longer matches aborts the load.
func (s *SQLite) Load(ctx context.Context, fn func(*ledger.Entry) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, resource_type, id, version, last_updated, deleted, body, body_hash
		FROM ledger_entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (*ledger.Entry, error) {
	var (
		e           ledger.Entry
		lastUpdated string
		body, hash  sql.NullString
	)
	if err := rows.Scan(&e.Seq, &e.Identity.Type, &e.Identity.ID, &e.Version,
		&lastUpdated, &e.Deleted, &body, &hash); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	t, err := time.Parse(fhir.InstantFormat, lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("seq %d: last_updated: %w", e.Seq, err)
	}
	e.LastUpdated = t.UTC()

	if body.Valid {
		obj, err := ir.UnmarshalObject([]byte(body.String))
		if err != nil {
			return nil, fmt.Errorf("seq %d: body: %w", e.Seq, err)
		}
		got, err := ir.BodyHash(obj)
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", e.Seq, err)
		}
		if got != hash.String {
			return nil, fmt.Errorf("seq %d: %s v%d body hash mismatch", e.Seq, e.Identity, e.Version)
		}
		e.Body = obj
	}
	return &e, nil
}

// LastSeq returns the highest persisted seq, or 0 for an empty ledger.
func (s *SQLite) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM ledger_entries`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// Count returns the number of persisted entries.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
