package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carechart/carechart/internal/platform/db"
)

type repoPG struct {
	q db.Querier
}

// NewRepo runs against a pool, a single connection or a transaction.
func NewRepo(q db.Querier) Repository {
	return &repoPG{q: q}
}

const entryCols = `id, action, patient_id, timestamp, details`

func (r *repoPG) Append(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_logs (`+entryCols+`)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, string(e.Action), e.PatientID, e.Timestamp, e.Details,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *repoPG) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+entryCols+` FROM audit_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit entries: %w", err)
	}
	return collectEntries(rows)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string, since time.Time, limit int) ([]*Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+entryCols+` FROM audit_logs
		WHERE patient_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC, id DESC
		LIMIT $3`, patientID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries for %s: %w", patientID, err)
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]*Entry, error) {
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &action, &e.PatientID, &e.Timestamp, &e.Details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
