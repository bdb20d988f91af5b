package patient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQuery_EmptySearchMatchesAll(t *testing.T) {
	q := BuildQuery(SearchParams{Search: "", Field: "allergies", Page: 1, Limit: 10})

	assert.True(t, q.Filter.MatchAll())
	assert.True(t, q.Filter.Match(&Patient{Name: "anyone"}))

	where, args := q.Filter.Where(1)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestBuildQuery_Pagination(t *testing.T) {
	q := BuildQuery(SearchParams{Page: 2, Limit: 10})
	assert.Equal(t, 10, q.Page.Skip())
	assert.Equal(t, 10, q.Page.Take())
	assert.Equal(t, 3, q.Page.TotalPages(25))
	assert.Equal(t, 0, q.Page.TotalPages(0))
}

func TestBuildQuery_Fields(t *testing.T) {
	tests := []struct {
		field string
		want  []SearchField
	}{
		{"name", []SearchField{FieldName}},
		{"patientId", []SearchField{FieldPatientID}},
		{"allergies", []SearchField{FieldAllergies}},
		{"medicalHistory", []SearchField{FieldMedicalHistory}},
		{"doctorNotes", []SearchField{FieldName, FieldPatientID}},
		{"", []SearchField{FieldName, FieldPatientID}},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			q := BuildQuery(SearchParams{Search: "x", Field: tt.field, Page: 1, Limit: 10})
			assert.Equal(t, tt.want, q.Filter.Fields)
		})
	}
}

func TestFilter_MatchArrayElementCaseInsensitive(t *testing.T) {
	p := &Patient{Name: "Jane", PatientID: "P001", Allergies: []string{"Dust", "Penicillin"}}

	assert.True(t, BuildQuery(SearchParams{Search: "pen", Field: "allergies"}).Filter.Match(p))
	assert.False(t, BuildQuery(SearchParams{Search: "pen", Field: "medicalHistory"}).Filter.Match(p))
	assert.False(t, BuildQuery(SearchParams{Search: "pen", Field: "name"}).Filter.Match(p))
	assert.True(t, BuildQuery(SearchParams{Search: "p00", Field: "other"}).Filter.Match(p))
	assert.True(t, BuildQuery(SearchParams{Search: "JAN", Field: "name"}).Filter.Match(p))
}

func TestFilter_Where(t *testing.T) {
	where, args := Filter{Term: "pen", Fields: []SearchField{FieldAllergies}}.Where(1)
	assert.Equal(t, "(EXISTS (SELECT 1 FROM unnest(allergies) AS v WHERE v ILIKE $1))", where)
	assert.Equal(t, []any{"%pen%"}, args)

	where, _ = Filter{Term: "a", Fields: []SearchField{FieldName, FieldPatientID}}.Where(3)
	assert.Equal(t, "(name ILIKE $3 OR patient_id ILIKE $3)", where)
}

func TestFilter_WhereEscapesLikeMetacharacters(t *testing.T) {
	_, args := Filter{Term: `50%_off\`, Fields: []SearchField{FieldName}}.Where(1)
	assert.Equal(t, []any{`%50\%\_off\\%`}, args)
}

func TestFilter_MatchIsLiteral(t *testing.T) {
	p := &Patient{Name: "Anna"}
	assert.False(t, Filter{Term: "A%a", Fields: []SearchField{FieldName}}.Match(p))
	assert.False(t, Filter{Term: "n.a", Fields: []SearchField{FieldName}}.Match(p))
}

func TestBroadFilter(t *testing.T) {
	f := BroadFilter("asthma")
	p := &Patient{Name: "Bob", PatientID: "P010", MedicalHistory: []string{"Childhood Asthma"}}
	assert.True(t, f.Match(p))

	where, _ := f.Where(1)
	assert.Contains(t, where, "name ILIKE $1")
	assert.Contains(t, where, "patient_id ILIKE $1")
	assert.Contains(t, where, "unnest(allergies)")
	assert.Contains(t, where, "unnest(medical_history)")
}
