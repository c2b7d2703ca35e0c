package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/ledger"
)

// Persist inserts entries in one SQLite transaction. Either every entry is
// written or none is.
func (s *SQLite) Persist(ctx context.Context, entries []*ledger.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries
		(seq, resource_type, id, version, last_updated, deleted, body, body_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("persist: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		body, hash, err := marshalBody(e.Body)
		if err != nil {
			return fmt.Errorf("persist %s v%d: %w", e.Identity, e.Version, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.Seq,
			e.Identity.Type,
			e.Identity.ID,
			e.Version,
			fhir.FormatInstant(e.LastUpdated),
			e.Deleted,
			body,
			hash,
		); err != nil {
			return fmt.Errorf("persist %s v%d: %w", e.Identity, e.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: commit: %w", err)
	}
	return nil
}

// marshalBody returns nil for tombstones so the column stays NULL.
func marshalBody(body ir.IRObject) (any, any, error) {
	if body == nil {
		return nil, nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal body: %w", err)
	}
	hash, err := ir.BodyHash(body)
	if err != nil {
		return nil, nil, err
	}
	return string(data), hash, nil
}
