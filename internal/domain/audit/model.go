// Package audit stores the append-only trail of patient mutations.
package audit

import (
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreatePatient Action = "CREATE_PATIENT"
	ActionUpdatePatient Action = "UPDATE_PATIENT"
	ActionDeletePatient Action = "DELETE_PATIENT"
)

// Entry maps to the audit_logs table. PatientID is the business identifier
// (P001...), never the storage id.
type Entry struct {
	ID        uuid.UUID      `json:"_id"`
	Action    Action         `json:"action"`
	PatientID string         `json:"patientId"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
}
