package patient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seqScanPlan = `[{
  "Plan": {
    "Node Type": "Sort",
    "Actual Rows": 2,
    "Actual Loops": 1,
    "Plans": [{
      "Node Type": "Seq Scan",
      "Relation Name": "patients",
      "Actual Rows": 2,
      "Actual Loops": 1,
      "Rows Removed by Filter": 48,
      "Plans": [{
        "Node Type": "Function Scan",
        "Function Name": "unnest",
        "Actual Rows": 0,
        "Actual Loops": 50
      }]
    }]
  },
  "Planning Time": 0.2,
  "Execution Time": 1.5
}]`

const bitmapPlan = `[{
  "Plan": {
    "Node Type": "Bitmap Heap Scan",
    "Relation Name": "patients",
    "Actual Rows": 3,
    "Actual Loops": 1,
    "Rows Removed by Index Recheck": 1,
    "Plans": [
      {"Node Type": "Bitmap Index Scan", "Index Name": "patients_name_trgm_idx", "Actual Rows": 4, "Actual Loops": 1},
      {"Node Type": "Bitmap Index Scan", "Index Name": "patients_name_trgm_idx", "Actual Rows": 4, "Actual Loops": 1}
    ]
  },
  "Execution Time": 250.0
}]`

func TestParseExplain_SeqScan(t *testing.T) {
	st, err := parseExplain([]byte(seqScanPlan))
	require.NoError(t, err)

	assert.Equal(t, int64(50), st.TotalDocsExamined)
	assert.Equal(t, int64(2), st.TotalDocsReturned)
	assert.Equal(t, 1.5, st.ExecutionTimeMillis)
	assert.NotNil(t, st.IndexesUsed)
	assert.Empty(t, st.IndexesUsed)
}

func TestParseExplain_Bitmap(t *testing.T) {
	st, err := parseExplain([]byte(bitmapPlan))
	require.NoError(t, err)

	assert.Equal(t, int64(4), st.TotalDocsExamined)
	assert.Equal(t, int64(3), st.TotalDocsReturned)
	assert.Equal(t, []string{"patients_name_trgm_idx"}, st.IndexesUsed)
}

func TestParseExplain_Invalid(t *testing.T) {
	_, err := parseExplain([]byte(`{"not":"a list"}`))
	assert.Error(t, err)

	_, err = parseExplain([]byte(`[]`))
	assert.Error(t, err)
}

func TestSuggestions(t *testing.T) {
	tests := []struct {
		name string
		st   ExecutionStats
		want []string
	}{
		{
			name: "healthy",
			st:   ExecutionStats{TotalDocsExamined: 10, TotalDocsReturned: 5, ExecutionTimeMillis: 3, IndexesUsed: []string{"idx"}},
			want: []string{"Query performance looks good!"},
		},
		{
			name: "everything wrong",
			st:   ExecutionStats{TotalDocsExamined: 1000, TotalDocsReturned: 2, ExecutionTimeMillis: 101},
			want: []string{
				"Consider adding more specific indexes to reduce document examination",
				"Query execution time is high, consider optimizing indexes",
				"No indexes were used, consider creating appropriate indexes",
			},
		},
		{
			name: "ratio boundary not exceeded",
			st:   ExecutionStats{TotalDocsExamined: 20, TotalDocsReturned: 2, ExecutionTimeMillis: 100, IndexesUsed: []string{"idx"}},
			want: []string{"Query performance looks good!"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Suggestions(&tt.st))
		})
	}
}

func TestService_AnalyzeQuery(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	svc.patients.(*mockPatientRepo).explain = []byte(seqScanPlan)

	p := validPatient()
	p.MedicalHistory = []string{"Asthma"}
	if _, err := svc.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	analysis, err := svc.AnalyzeQuery(ctx, "asth")
	require.NoError(t, err)
	assert.Len(t, analysis.Results, 1)
	assert.Equal(t, int64(50), analysis.Performance.TotalDocsExamined)
	assert.Equal(t, []string{
		"Consider adding more specific indexes to reduce document examination",
		"No indexes were used, consider creating appropriate indexes",
	}, analysis.Suggestions)
}

func TestService_AnalyzeQuery_RequiresQuery(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.AnalyzeQuery(context.Background(), "")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Query parameter is required", verr.Fields.Get("query"))
}
