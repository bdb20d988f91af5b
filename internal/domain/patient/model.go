// Package patient holds the patient record domain: validation, search,
// persistence, statistics and query diagnostics.
package patient

import (
	"time"

	"github.com/google/uuid"
)

const (
	GenderMale           = "Male"
	GenderFemale         = "Female"
	GenderOther          = "Other"
	GenderPreferNotToSay = "Prefer not to say"
)

var genders = map[string]bool{
	GenderMale:           true,
	GenderFemale:         true,
	GenderOther:          true,
	GenderPreferNotToSay: true,
}

type ContactInfo struct {
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// Patient maps to the patients table. DateOfBirth is kept in its wire form
// (YYYY-MM-DD); the repository converts it to a DATE column.
type Patient struct {
	ID                   uuid.UUID   `json:"_id"`
	PatientID            string      `json:"patientId"`
	Name                 string      `json:"name"`
	DateOfBirth          string      `json:"dateOfBirth"`
	Gender               string      `json:"gender"`
	ContactInfo          ContactInfo `json:"contactInfo"`
	Allergies            []string    `json:"allergies"`
	MedicalHistory       []string    `json:"medicalHistory"`
	CurrentPrescriptions []string    `json:"currentPrescriptions"`
	DoctorNotes          string      `json:"doctorNotes"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

// normalize makes array fields serialize as [] instead of null.
func (p *Patient) normalize() {
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	if p.MedicalHistory == nil {
		p.MedicalHistory = []string{}
	}
	if p.CurrentPrescriptions == nil {
		p.CurrentPrescriptions = []string{}
	}
}

// Patch is a partial update. A nil field is left untouched; ContactInfo and
// the array fields replace the stored value wholesale.
type Patch struct {
	PatientID            *string      `json:"patientId,omitempty"`
	Name                 *string      `json:"name,omitempty"`
	DateOfBirth          *string      `json:"dateOfBirth,omitempty"`
	Gender               *string      `json:"gender,omitempty"`
	ContactInfo          *ContactInfo `json:"contactInfo,omitempty"`
	Allergies            *[]string    `json:"allergies,omitempty"`
	MedicalHistory       *[]string    `json:"medicalHistory,omitempty"`
	CurrentPrescriptions *[]string    `json:"currentPrescriptions,omitempty"`
	DoctorNotes          *string      `json:"doctorNotes,omitempty"`
}

// Fields returns the wire names of the fields present in the patch.
func (p *Patch) Fields() []string {
	fields := []string{}
	if p.PatientID != nil {
		fields = append(fields, "patientId")
	}
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.DateOfBirth != nil {
		fields = append(fields, "dateOfBirth")
	}
	if p.Gender != nil {
		fields = append(fields, "gender")
	}
	if p.ContactInfo != nil {
		fields = append(fields, "contactInfo")
	}
	if p.Allergies != nil {
		fields = append(fields, "allergies")
	}
	if p.MedicalHistory != nil {
		fields = append(fields, "medicalHistory")
	}
	if p.CurrentPrescriptions != nil {
		fields = append(fields, "currentPrescriptions")
	}
	if p.DoctorNotes != nil {
		fields = append(fields, "doctorNotes")
	}
	return fields
}

// Apply copies the present fields onto dst.
func (p *Patch) Apply(dst *Patient) {
	if p.PatientID != nil {
		dst.PatientID = *p.PatientID
	}
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.DateOfBirth != nil {
		dst.DateOfBirth = *p.DateOfBirth
	}
	if p.Gender != nil {
		dst.Gender = *p.Gender
	}
	if p.ContactInfo != nil {
		dst.ContactInfo = *p.ContactInfo
	}
	if p.Allergies != nil {
		dst.Allergies = cloneStrings(*p.Allergies)
	}
	if p.MedicalHistory != nil {
		dst.MedicalHistory = cloneStrings(*p.MedicalHistory)
	}
	if p.CurrentPrescriptions != nil {
		dst.CurrentPrescriptions = cloneStrings(*p.CurrentPrescriptions)
	}
	if p.DoctorNotes != nil {
		dst.DoctorNotes = *p.DoctorNotes
	}
	dst.normalize()
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
