package patient

import (
	"regexp"
	"strings"
	"time"

	"github.com/hengadev/errsx"
)

const (
	dateLayout = "2006-01-02"
	maxAge     = 150
)

var (
	patientIDPattern = regexp.MustCompile(`^P\d{3,6}$`)
	namePattern      = regexp.MustCompile(`^[A-Za-z\s'-]+$`)
	phonePattern     = regexp.MustCompile(`^[+]?[1-9]\d{0,15}$`)
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneStripper    = strings.NewReplacer(" ", "", "\t", "", "(", "", ")", "", "-", "")
)

// ValidationResult is the outcome of checking a record. Errors holds one
// message per field key; IsValid is true exactly when Errors is empty.
type ValidationResult struct {
	IsValid bool      `json:"isValid"`
	Errors  errsx.Map `json:"errors"`
}

// Err returns the result as a *ValidationError, or nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Fields: r.Errors}
}

// Validate checks a full record against today's date.
func Validate(p *Patient) ValidationResult {
	return ValidateAt(p, time.Now())
}

// ValidateAt checks every field of p. All rules run; none short-circuits.
func ValidateAt(p *Patient, today time.Time) ValidationResult {
	return newResult(fieldErrors(p, today))
}

// patch field -> validation keys it can produce
var patchKeys = map[string][]string{
	"patientId":   {"patientId"},
	"name":        {"name"},
	"dateOfBirth": {"dateOfBirth"},
	"gender":      {"gender"},
	"contactInfo": {"phone", "email", "address"},
}

// ValidatePatch checks only the fields present in patch, using the same rules
// as a full record. A patch may not change the stored patientId.
func ValidatePatch(current *Patient, patch *Patch, today time.Time) ValidationResult {
	merged := *current
	patch.Apply(&merged)
	all := fieldErrors(&merged, today)

	var errs errsx.Map
	for _, field := range patch.Fields() {
		for _, key := range patchKeys[field] {
			if all.Has(key) {
				errs.Set(key, all[key])
			}
		}
	}
	if patch.PatientID != nil && *patch.PatientID != current.PatientID {
		errs.Set("patientId", "Patient ID cannot be changed")
	}
	return newResult(errs)
}

func newResult(errs errsx.Map) ValidationResult {
	return ValidationResult{IsValid: errs.IsEmpty(), Errors: errs}
}

// fieldErrors runs every rule; a rule that passes returns "" and Set skips it.
func fieldErrors(p *Patient, today time.Time) errsx.Map {
	var errs errsx.Map
	errs.Set("patientId", checkPatientID(p.PatientID))
	errs.Set("name", checkName(p.Name))
	errs.Set("dateOfBirth", checkDateOfBirth(p.DateOfBirth, today))
	errs.Set("gender", checkGender(p.Gender))
	errs.Set("phone", checkPhone(p.ContactInfo.Phone))
	errs.Set("email", checkEmail(p.ContactInfo.Email))
	errs.Set("address", checkAddress(p.ContactInfo.Address))
	return errs
}

func checkPatientID(v string) string {
	switch {
	case strings.TrimSpace(v) == "":
		return "Patient ID is required"
	case !patientIDPattern.MatchString(v):
		return "Patient ID must be in format P001-P999999"
	}
	return ""
}

func checkName(v string) string {
	trimmed := strings.TrimSpace(v)
	switch {
	case trimmed == "":
		return "Full name is required"
	case len(trimmed) < 2:
		return "Name must be at least 2 characters long"
	case !namePattern.MatchString(v):
		return "Name can only contain letters, spaces, hyphens, and apostrophes"
	}
	return ""
}

func checkDateOfBirth(v string, today time.Time) string {
	if strings.TrimSpace(v) == "" {
		return "Date of birth is required"
	}
	birth, err := parseDate(v)
	if err != nil {
		return "Please enter a valid date"
	}
	if birth.After(dateOf(today)) {
		return "Date of birth cannot be in the future"
	}
	if ageAt(birth, today) > maxAge {
		return "Please enter a realistic date of birth"
	}
	return ""
}

func checkGender(v string) string {
	switch {
	case v == "":
		return "Gender is required"
	case !genders[v]:
		return "Please select a valid gender"
	}
	return ""
}

func checkPhone(v string) string {
	switch {
	case strings.TrimSpace(v) == "":
		return "Phone number is required"
	case !phonePattern.MatchString(phoneStripper.Replace(v)):
		return "Please enter a valid phone number (e.g., +1 555-123-4567)"
	}
	return ""
}

func checkEmail(v string) string {
	switch {
	case strings.TrimSpace(v) == "":
		return "Email address is required"
	case !emailPattern.MatchString(v):
		return "Please enter a valid email address"
	}
	return ""
}

func checkAddress(v string) string {
	trimmed := strings.TrimSpace(v)
	switch {
	case trimmed == "":
		return "Address is required"
	case len(trimmed) < 10:
		return "Please enter a complete address"
	}
	return ""
}

// CalculateAge returns whole years elapsed since dob as of now.
func CalculateAge(dob string) (int, error) {
	return CalculateAgeAt(dob, time.Now())
}

// CalculateAgeAt returns whole years elapsed since dob as of today, one less
// when today's month/day precedes the birthday.
func CalculateAgeAt(dob string, today time.Time) (int, error) {
	birth, err := parseDate(dob)
	if err != nil {
		return 0, fmt.Errorf("parse date of birth %q: %w", dob, err)
	}
	return ageAt(birth, today), nil
}

func ageAt(birth, today time.Time) int {
	age := today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	return age
}

// parseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp, keeping only the
// calendar date.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return dateOf(t), nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
