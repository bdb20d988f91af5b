package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists patients. Lookups return ErrNotFound when no record
// matches; writes that hit a unique index return a *ConflictError.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	// Update applies patch and stamps updatedAt, returning the rows modified.
	Update(ctx context.Context, id uuid.UUID, patch *Patch, updatedAt time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	Search(ctx context.Context, q Query) ([]*Patient, int, error)
	// Explain returns the raw JSON plan of executing the filter.
	Explain(ctx context.Context, f Filter) ([]byte, error)
	// Stats aggregates the patients table; RecentActivity is left empty.
	Stats(ctx context.Context, topAllergies int) (*Stats, error)
}
