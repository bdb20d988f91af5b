package patient

import (
	"errors"
	"sort"
	"strings"

	"github.com/hengadev/errsx"
)

var (
	ErrNotFound = errors.New("patient not found")
	ErrConflict = errors.New("patient conflict")
)

// ConflictError names the unique field that collided with an existing record.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

var (
	errPatientIDTaken = &ConflictError{Field: "patientId", Message: "Patient ID already exists"}
	errEmailTaken     = &ConflictError{Field: "email", Message: "Email address already exists"}
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields errsx.Map
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields.Get(k))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
