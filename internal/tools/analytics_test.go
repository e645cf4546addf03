package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

// fakeRows implements pgx.Rows over an in-memory result set.
type fakeRows struct {
	columns []string
	rows    [][]any
	pos     int
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}
func (r *fakeRows) Values() ([]any, error) { return r.rows[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	for i := range dest {
		if i >= len(row) {
			break
		}
		switch d := dest[i].(type) {
		case *int64:
			*d = row[i].(int64)
		case *any:
			*d = row[i]
		default:
			return fmt.Errorf("unsupported scan target %T", dest[i])
		}
	}
	return nil
}

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: c}
	}
	return fields
}

// fakeQuerier returns a canned result set and records the query.
type fakeQuerier struct {
	rows      *fakeRows
	lastQuery string
	lastArgs  []any
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.lastQuery = sql
	q.lastArgs = args
	return q.rows, nil
}

func TestQueryAnalyticsTruncation(t *testing.T) {
	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("org-%d", i), int64(i)}
	}
	q := &fakeQuerier{rows: &fakeRows{columns: []string{"name", "meetings"}, rows: rows}}

	a := NewAnalyticsTools(q, logger.NewNop())
	data, err := a.handleQuery(context.Background(), map[string]any{
		"query": "SELECT name, meetings FROM organizations LIMIT 100",
	})
	if err != nil {
		t.Fatalf("handleQuery: %v", err)
	}

	payload := data.(map[string]any)
	if payload["rowCount"] != 20 {
		t.Errorf("rowCount: got %v, want 20", payload["rowCount"])
	}
	if payload["totalRowCount"] != 25 {
		t.Errorf("totalRowCount: got %v, want 25", payload["totalRowCount"])
	}
	if payload["truncated"] != true {
		t.Error("truncated flag not set")
	}
	if got := len(payload["rows"].([]map[string]any)); got != 20 {
		t.Errorf("rows: got %d, want 20", got)
	}
}

func TestQueryAnalyticsNoTruncationUnderCap(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{
		columns: []string{"name"},
		rows:    [][]any{{"acme"}, {"globex"}},
	}}

	a := NewAnalyticsTools(q, logger.NewNop())
	data, err := a.handleQuery(context.Background(), map[string]any{
		"query": "SELECT name FROM organizations LIMIT 5",
	})
	if err != nil {
		t.Fatalf("handleQuery: %v", err)
	}

	payload := data.(map[string]any)
	if payload["rowCount"] != 2 || payload["totalRowCount"] != 2 {
		t.Errorf("counts: got %v/%v", payload["rowCount"], payload["totalRowCount"])
	}
	if payload["truncated"] != false {
		t.Error("truncated set on an under-cap result")
	}
}

func TestQueryAnalyticsRejectsWrites(t *testing.T) {
	tests := []string{
		"DELETE FROM organizations",
		"UPDATE organizations SET name = 'x'",
		"INSERT INTO meetings VALUES (1)",
		"SELECT 1; DROP TABLE organizations",
		"WITH d AS (DELETE FROM meetings RETURNING *) SELECT * FROM d",
		"WITH u AS (UPDATE deals SET stage = 'lost' RETURNING id) SELECT count(*) FROM u",
		"SELECT * FROM organizations WHERE name = 'x'; TRUNCATE meetings",
	}

	a := NewAnalyticsTools(&fakeQuerier{rows: &fakeRows{}}, logger.NewNop())
	for _, query := range tests {
		t.Run(query, func(t *testing.T) {
			if _, err := a.handleQuery(context.Background(), map[string]any{"query": query}); err == nil {
				t.Error("non-SELECT statement was accepted")
			}
		})
	}
}

func TestQueryAnalyticsAllowsReads(t *testing.T) {
	tests := []string{
		"SELECT created_at, updated_at FROM meetings LIMIT 5",
		"SELECT name FROM organizations WHERE outcome = 'deleted items' LIMIT 5",
		"WITH recent AS (SELECT * FROM meetings WHERE held_at > now() - interval '30 days') SELECT count(*) FROM recent",
		"SELECT topic FROM meetings WHERE topic = 'a; b' LIMIT 1",
	}

	for _, query := range tests {
		t.Run(query, func(t *testing.T) {
			q := &fakeQuerier{rows: &fakeRows{columns: []string{"c"}}}
			a := NewAnalyticsTools(q, logger.NewNop())
			if _, err := a.handleQuery(context.Background(), map[string]any{"query": query}); err != nil {
				t.Errorf("read-only statement rejected: %v", err)
			}
		})
	}
}

func TestQueryAnalyticsPassesParams(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{columns: []string{"name"}}}

	a := NewAnalyticsTools(q, logger.NewNop())
	_, err := a.handleQuery(context.Background(), map[string]any{
		"query":  "SELECT name FROM organizations WHERE industry = $1 LIMIT 5",
		"params": []any{"software"},
	})
	if err != nil {
		t.Fatalf("handleQuery: %v", err)
	}

	if len(q.lastArgs) != 1 || q.lastArgs[0] != "software" {
		t.Errorf("params: got %v", q.lastArgs)
	}
}

func TestAnalyzeRelationsGroupByValidation(t *testing.T) {
	a := NewAnalyticsTools(&fakeQuerier{rows: &fakeRows{}}, logger.NewNop())

	if _, err := a.handleAnalyzeRelations(context.Background(), map[string]any{
		"groupBy": "color",
	}); err == nil {
		t.Error("invalid groupBy was accepted")
	}
}

func TestAnalyzeRelationsBuildsScopedQuery(t *testing.T) {
	q := &fakeQuerier{rows: &fakeRows{
		columns: []string{"bucket", "count", "latest"},
		rows:    [][]any{{"software", int64(12), nil}},
	}}

	a := NewAnalyticsTools(q, logger.NewNop())
	data, err := a.handleAnalyzeRelations(context.Background(), map[string]any{
		"groupBy": "category",
		"year":    float64(2025), // JSON numbers arrive as float64
		"limit":   float64(5),
	})
	if err != nil {
		t.Fatalf("handleAnalyzeRelations: %v", err)
	}

	payload := data.(map[string]any)
	if payload["groupedBy"] != "industry" {
		t.Errorf("groupedBy: got %v", payload["groupedBy"])
	}
	if payload["groupCount"] != 1 {
		t.Errorf("groupCount: got %v", payload["groupCount"])
	}
	// Year filter becomes $1, limit becomes the trailing parameter.
	if len(q.lastArgs) != 2 || q.lastArgs[0] != 2025 || q.lastArgs[1] != 5 {
		t.Errorf("args: got %v", q.lastArgs)
	}
}
