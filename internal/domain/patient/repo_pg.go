package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/carechart/carechart/internal/platform/db"
)

type repoPG struct {
	q db.Querier
}

// NewRepo runs against a pool, a single connection or a transaction.
func NewRepo(q db.Querier) Repository {
	return &repoPG{q: q}
}

const patientCols = `id, patient_id, name, date_of_birth, gender, phone, email, address,
	allergies, medical_history, current_prescriptions, doctor_notes, created_at, updated_at`

const orderBy = `ORDER BY created_at DESC, id DESC`

// unique index name -> conflict it signals
var conflictsByIndex = map[string]*ConflictError{
	"patients_patient_id_key": errPatientIDTaken,
	"patients_email_key":      errEmailTaken,
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.normalize()

	_, err := r.q.Exec(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.PatientID, p.Name, dateArg(p.DateOfBirth), p.Gender,
		p.ContactInfo.Phone, p.ContactInfo.Email, p.ContactInfo.Address,
		p.Allergies, p.MedicalHistory, p.CurrentPrescriptions, p.DoctorNotes,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr("insert patient", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *repoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	return r.getOne(ctx, `patient_id = $1`, patientID)
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return r.getOne(ctx, `email = $1`, email)
}

func (r *repoPG) getOne(ctx context.Context, where string, arg any) (*Patient, error) {
	p, err := scanPatient(r.q.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, id uuid.UUID, patch *Patch, updatedAt time.Time) (int64, error) {
	args := []any{id}
	var sets []string
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.PatientID != nil {
		set("patient_id", *patch.PatientID)
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.DateOfBirth != nil {
		set("date_of_birth", dateArg(*patch.DateOfBirth))
	}
	if patch.Gender != nil {
		set("gender", *patch.Gender)
	}
	if patch.ContactInfo != nil {
		set("phone", patch.ContactInfo.Phone)
		set("email", patch.ContactInfo.Email)
		set("address", patch.ContactInfo.Address)
	}
	if patch.Allergies != nil {
		set("allergies", nonNil(*patch.Allergies))
	}
	if patch.MedicalHistory != nil {
		set("medical_history", nonNil(*patch.MedicalHistory))
	}
	if patch.CurrentPrescriptions != nil {
		set("current_prescriptions", nonNil(*patch.CurrentPrescriptions))
	}
	if patch.DoctorNotes != nil {
		set("doctor_notes", *patch.DoctorNotes)
	}
	set("updated_at", updatedAt)

	tag, err := r.q.Exec(ctx, `UPDATE patients SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return 0, mapWriteErr("update patient", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete patient: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Search(ctx context.Context, q Query) ([]*Patient, int, error) {
	where, args := q.Filter.Where(1)
	if where != "" {
		where = " WHERE " + where
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	n := len(args)
	dataSQL := fmt.Sprintf(`SELECT %s FROM patients%s %s LIMIT $%d OFFSET $%d`, patientCols, where, orderBy, n+1, n+2)
	rows, err := r.q.Query(ctx, dataSQL, append(args, q.Page.Take(), q.Page.Skip())...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate patients: %w", err)
	}
	return patients, total, nil
}

func (r *repoPG) Explain(ctx context.Context, f Filter) ([]byte, error) {
	where, args := f.Where(1)
	if where != "" {
		where = " WHERE " + where
	}

	var raw []byte
	err := r.q.QueryRow(ctx, `EXPLAIN (ANALYZE, FORMAT JSON) SELECT id FROM patients`+where+` `+orderBy, args...).Scan(&raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *repoPG) Stats(ctx context.Context, topAllergies int) (*Stats, error) {
	st := &Stats{}

	var avg pgtype.Float8
	var minAge, maxAge pgtype.Int4
	err := r.q.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM patients),
			AVG(age)::float8, MIN(age)::int, MAX(age)::int
		FROM (
			SELECT date_part('year', age(current_date, date_of_birth)) AS age
			FROM patients WHERE date_of_birth IS NOT NULL
		) ages`).Scan(&st.TotalPatients, &avg, &minAge, &maxAge)
	if err != nil {
		return nil, fmt.Errorf("patient age stats: %w", err)
	}
	st.AgeStatistics = AgeStatistics{AvgAge: avg.Float64, MinAge: int(minAge.Int32), MaxAge: int(maxAge.Int32)}

	st.GenderDistribution, err = r.buckets(ctx, `
		SELECT gender, COUNT(*) FROM patients
		GROUP BY gender
		ORDER BY COUNT(*) DESC, gender ASC`)
	if err != nil {
		return nil, fmt.Errorf("gender distribution: %w", err)
	}

	st.CommonAllergies, err = r.buckets(ctx, `
		SELECT a, COUNT(*) FROM patients, unnest(allergies) AS a
		GROUP BY a
		ORDER BY COUNT(*) DESC, a ASC
		LIMIT $1`, topAllergies)
	if err != nil {
		return nil, fmt.Errorf("common allergies: %w", err)
	}
	return st, nil
}

func (r *repoPG) buckets(ctx context.Context, sql string, args ...any) ([]Bucket, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.ID, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob pgtype.Date
	err := row.Scan(
		&p.ID, &p.PatientID, &p.Name, &dob, &p.Gender,
		&p.ContactInfo.Phone, &p.ContactInfo.Email, &p.ContactInfo.Address,
		&p.Allergies, &p.MedicalHistory, &p.CurrentPrescriptions, &p.DoctorNotes,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		p.DateOfBirth = dob.Time.Format(dateLayout)
	}
	p.normalize()
	return &p, nil
}

// dateArg converts a wire date into a DATE parameter, NULL when empty.
func dateArg(v string) any {
	if v == "" {
		return nil
	}
	t, err := parseDate(v)
	if err != nil {
		return nil
	}
	return t
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func mapWriteErr(op string, err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		if conflict, known := conflictsByIndex[constraint]; known {
			return conflict
		}
		return &ConflictError{Field: constraint, Message: "Patient already exists"}
	}
	return fmt.Errorf("%s: %w", op, err)
}
