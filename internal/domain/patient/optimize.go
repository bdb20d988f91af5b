package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hengadev/errsx"

	"github.com/carechart/carechart/pkg/pagination"
)

const (
	analyzeResultLimit = 10
	slowQueryMillis    = 100
	examineRatio       = 10
)

// ExecutionStats summarizes an EXPLAIN ANALYZE run.
type ExecutionStats struct {
	TotalDocsExamined   int64    `json:"totalDocsExamined"`
	TotalDocsReturned   int64    `json:"totalDocsReturned"`
	ExecutionTimeMillis float64  `json:"executionTimeMillis"`
	IndexesUsed         []string `json:"indexesUsed"`
}

type Analysis struct {
	Results     []*Patient      `json:"results"`
	Performance *ExecutionStats `json:"performance"`
	Suggestions []string        `json:"suggestions"`
}

// AnalyzeQuery explains the broad search for query and returns the first
// results alongside index suggestions.
func (s *Service) AnalyzeQuery(ctx context.Context, query string) (*Analysis, error) {
	if query == "" {
		var errs errsx.Map
		errs.Set("query", "Query parameter is required")
		return nil, &ValidationError{Fields: errs}
	}
	f := BroadFilter(query)

	raw, err := s.patients.Explain(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("explain query: %w", err)
	}
	stats, err := parseExplain(raw)
	if err != nil {
		return nil, err
	}

	results, _, err := s.patients.Search(ctx, Query{Filter: f, Page: pagination.New(1, analyzeResultLimit)})
	if err != nil {
		return nil, fmt.Errorf("fetch analyzed results: %w", err)
	}
	if results == nil {
		results = []*Patient{}
	}

	return &Analysis{
		Results:     results,
		Performance: stats,
		Suggestions: Suggestions(stats),
	}, nil
}

// Suggestions derives index advice from execution stats.
func Suggestions(st *ExecutionStats) []string {
	var out []string
	if st.TotalDocsExamined > st.TotalDocsReturned*examineRatio {
		out = append(out, "Consider adding more specific indexes to reduce document examination")
	}
	if st.ExecutionTimeMillis > slowQueryMillis {
		out = append(out, "Query execution time is high, consider optimizing indexes")
	}
	if len(st.IndexesUsed) == 0 {
		out = append(out, "No indexes were used, consider creating appropriate indexes")
	}
	if len(out) == 0 {
		out = append(out, "Query performance looks good!")
	}
	return out
}

type planNode struct {
	NodeType           string     `json:"Node Type"`
	RelationName       string     `json:"Relation Name"`
	IndexName          string     `json:"Index Name"`
	ActualRows         float64    `json:"Actual Rows"`
	ActualLoops        float64    `json:"Actual Loops"`
	RowsRemovedFilter  float64    `json:"Rows Removed by Filter"`
	RowsRemovedRecheck float64    `json:"Rows Removed by Index Recheck"`
	Plans              []planNode `json:"Plans"`
}

type explainOutput struct {
	Plan          planNode `json:"Plan"`
	ExecutionTime float64  `json:"Execution Time"`
}

// parseExplain reads the output of EXPLAIN (ANALYZE, FORMAT JSON). Rows read
// by relation scans, including those discarded by filters, count as
// examined; the root node's rows count as returned.
func parseExplain(raw []byte) (*ExecutionStats, error) {
	var out []explainOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode explain output: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("decode explain output: empty plan")
	}

	root := out[0]
	st := &ExecutionStats{
		TotalDocsReturned:   int64(root.Plan.ActualRows * loops(root.Plan)),
		ExecutionTimeMillis: root.ExecutionTime,
		IndexesUsed:         []string{},
	}
	seen := map[string]bool{}
	walkPlan(root.Plan, func(n planNode) {
		if n.RelationName != "" && strings.HasSuffix(n.NodeType, "Scan") {
			st.TotalDocsExamined += int64((n.ActualRows + n.RowsRemovedFilter + n.RowsRemovedRecheck) * loops(n))
		}
		if n.IndexName != "" && !seen[n.IndexName] {
			seen[n.IndexName] = true
			st.IndexesUsed = append(st.IndexesUsed, n.IndexName)
		}
	})
	return st, nil
}

func walkPlan(n planNode, visit func(planNode)) {
	visit(n)
	for _, child := range n.Plans {
		walkPlan(child, visit)
	}
}

func loops(n planNode) float64 {
	if n.ActualLoops <= 0 {
		return 1
	}
	return n.ActualLoops
}
