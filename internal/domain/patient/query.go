package patient

import (
	"fmt"
	"strings"

	"github.com/carechart/carechart/pkg/pagination"
)

// SearchField selects which attribute a search term is matched against.
type SearchField string

const (
	FieldName           SearchField = "name"
	FieldPatientID      SearchField = "patientId"
	FieldAllergies      SearchField = "allergies"
	FieldMedicalHistory SearchField = "medicalHistory"
)

// column and whether it is a TEXT[] array
var fieldColumns = map[SearchField]struct {
	col   string
	array bool
}{
	FieldName:           {"name", false},
	FieldPatientID:      {"patient_id", false},
	FieldAllergies:      {"allergies", true},
	FieldMedicalHistory: {"medical_history", true},
}

// SearchParams are the raw list parameters of a search request.
type SearchParams struct {
	Search string
	Field  string
	Page   int
	Limit  int
}

// Filter matches records whose Fields contain Term as a case-insensitive
// substring. Fields are OR'ed. An empty Term matches every record.
type Filter struct {
	Term   string
	Fields []SearchField
}

func (f Filter) MatchAll() bool {
	return f.Term == "" || len(f.Fields) == 0
}

// Match evaluates the filter against a record in process.
func (f Filter) Match(p *Patient) bool {
	if f.MatchAll() {
		return true
	}
	term := strings.ToLower(f.Term)
	for _, field := range f.Fields {
		for _, v := range fieldValues(p, field) {
			if strings.Contains(strings.ToLower(v), term) {
				return true
			}
		}
	}
	return false
}

func fieldValues(p *Patient, field SearchField) []string {
	switch field {
	case FieldName:
		return []string{p.Name}
	case FieldPatientID:
		return []string{p.PatientID}
	case FieldAllergies:
		return p.Allergies
	case FieldMedicalHistory:
		return p.MedicalHistory
	}
	return nil
}

// Where renders the filter as a SQL predicate whose single placeholder is
// numbered idx. It returns an empty clause when the filter matches all.
func (f Filter) Where(idx int) (string, []any) {
	if f.MatchAll() {
		return "", nil
	}

	parts := make([]string, 0, len(f.Fields))
	for _, field := range f.Fields {
		c, ok := fieldColumns[field]
		if !ok {
			continue
		}
		if c.array {
			parts = append(parts, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(%s) AS v WHERE v ILIKE $%d)", c.col, idx))
		} else {
			parts = append(parts, fmt.Sprintf("%s ILIKE $%d", c.col, idx))
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", []any{"%" + escapeLike(f.Term) + "%"}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Query is a filter plus the page to fetch. Results are always ordered by
// createdAt DESC, _id DESC.
type Query struct {
	Filter Filter
	Page   pagination.Params
}

// BuildQuery translates list parameters into a Query.
func BuildQuery(params SearchParams) Query {
	return Query{
		Filter: searchFilter(params.Search, SearchField(params.Field)),
		Page:   pagination.New(params.Page, params.Limit),
	}
}

func searchFilter(term string, field SearchField) Filter {
	if term == "" {
		return Filter{}
	}
	switch field {
	case FieldName, FieldPatientID, FieldAllergies, FieldMedicalHistory:
		return Filter{Term: term, Fields: []SearchField{field}}
	default:
		return Filter{Term: term, Fields: []SearchField{FieldName, FieldPatientID}}
	}
}

// BroadFilter matches term against name, patientId and every element of
// allergies and medicalHistory. The diagnostics endpoint explains this filter.
func BroadFilter(term string) Filter {
	return Filter{
		Term:   term,
		Fields: []SearchField{FieldName, FieldPatientID, FieldAllergies, FieldMedicalHistory},
	}
}

// SearchResult is the paginated list envelope.
type SearchResult struct {
	Patients    []*Patient `json:"patients"`
	CurrentPage int        `json:"currentPage"`
	TotalPages  int        `json:"totalPages"`
	Total       int        `json:"total"`
}
