package audit

import (
	"context"
	"time"
)

type Repository interface {
	// Append stores a new entry, assigning ID and Timestamp when unset.
	Append(ctx context.Context, e *Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)
	// ListByPatient returns up to limit entries for patientID recorded at or
	// after since, newest first. A zero since applies no lower bound.
	ListByPatient(ctx context.Context, patientID string, since time.Time, limit int) ([]*Entry, error)
}
