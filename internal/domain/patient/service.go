package patient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carechart/carechart/internal/domain/audit"
	"github.com/carechart/carechart/internal/platform/cache"
)

const historyLimit = 50

type Service struct {
	patients Repository
	audit    audit.Repository
	logger   zerolog.Logger
	now      func() time.Time
	cache    cache.Cache
	statsTTL time.Duration
	statsGen atomic.Uint64
}

type Option func(*Service)

// WithClock overrides the time source used for timestamps and age rules.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStatsCache caches the statistics envelope for ttl.
func WithStatsCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
			s.statsTTL = ttl
		}
	}
}

func NewService(patients Repository, auditRepo audit.Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		patients: patients,
		audit:    auditRepo,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		cache:    cache.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a new record, returning its storage id.
func (s *Service) Create(ctx context.Context, p *Patient) (uuid.UUID, error) {
	p.normalize()
	if err := ValidateAt(p, s.now()).Err(); err != nil {
		return uuid.Nil, err
	}

	if err := s.ensureUnique(ctx, uuid.Nil, p.PatientID, p.ContactInfo.Email); err != nil {
		return uuid.Nil, err
	}

	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.patients.Create(ctx, p); err != nil {
		return uuid.Nil, err
	}

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionCreatePatient,
		PatientID: p.PatientID,
		Details:   map[string]any{"insertedId": p.ID.String()},
	})
	s.invalidateStats(ctx)
	return p.ID, nil
}

// ensureUnique is the fast-path check; the unique indexes remain the guarantee.
// self is excluded from the email lookup.
func (s *Service) ensureUnique(ctx context.Context, self uuid.UUID, patientID, email string) error {
	if patientID != "" {
		existing, err := s.patients.GetByPatientID(ctx, patientID)
		switch {
		case err == nil && existing.ID != self:
			return errPatientIDTaken
		case err != nil && !errors.Is(err, ErrNotFound):
			return fmt.Errorf("check patient id: %w", err)
		}
	}
	if email != "" {
		existing, err := s.patients.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != self:
			return errEmailTaken
		case err != nil && !errors.Is(err, ErrNotFound):
			return fmt.Errorf("check email: %w", err)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// Update applies a partial change and returns the modified count.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch *Patch) (int64, error) {
	current, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := ValidatePatch(current, patch, s.now()).Err(); err != nil {
		return 0, err
	}
	if patch.ContactInfo != nil && patch.ContactInfo.Email != current.ContactInfo.Email {
		if err := s.ensureUnique(ctx, id, "", patch.ContactInfo.Email); err != nil {
			return 0, err
		}
	}

	modified, err := s.patients.Update(ctx, id, patch, s.now())
	if err != nil {
		return 0, err
	}
	if modified == 0 {
		return 0, ErrNotFound
	}

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionUpdatePatient,
		PatientID: current.PatientID,
		Details: map[string]any{
			"updatedFields": patch.Fields(),
			"modifiedCount": modified,
		},
	})
	s.invalidateStats(ctx)
	return modified, nil
}

// Delete removes the record and returns the deleted count.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	current, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	deleted, err := s.patients.Delete(ctx, id)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, ErrNotFound
	}

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionDeletePatient,
		PatientID: current.PatientID,
		Details: map[string]any{
			"deletedPatient": map[string]any{
				"name":      current.Name,
				"patientId": current.PatientID,
				"deletedAt": s.now().Format(time.RFC3339Nano),
			},
		},
	})
	s.invalidateStats(ctx)
	return deleted, nil
}

func (s *Service) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	q := BuildQuery(params)
	patients, total, err := s.patients.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return &SearchResult{
		Patients:    patients,
		CurrentPage: q.Page.Page,
		TotalPages:  q.Page.TotalPages(total),
		Total:       total,
	}, nil
}

// History lists the audit trail of one record, newest first. Entries older
// than the record belong to an earlier record that used the same patientId.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]*audit.Entry, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByPatient(ctx, p.PatientID, p.CreatedAt, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	return entries, nil
}

// record appends an audit entry. A failed write is logged and never undoes
// the mutation it describes.
func (s *Service) record(ctx context.Context, e *audit.Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if err := s.audit.Append(ctx, e); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(e.Action)).
			Str("patient_id", e.PatientID).
			Msg("audit write failed")
	}
}
