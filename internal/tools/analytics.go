package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/deckforge-ai/presentation-platform/internal/model"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
)

// MaxQueryRows is the hard server-side row cap on analytics results.
// Results beyond the cap are silently truncated and flagged, never an
// error.
const MaxQueryRows = 20

// maxRelationGroups caps aggregation result size.
const maxRelationGroups = 50

// Querier is the subset of pgxpool.Pool the analytics tools need. Narrow
// so tests can fake it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AnalyticsTools executes read-only queries against the analytics store.
type AnalyticsTools struct {
	db     Querier
	logger *logger.Logger
}

// NewAnalyticsTools creates the analytics tool backend. The pool is
// constructed once at process start and injected here; tools never reach
// for ambient global state.
func NewAnalyticsTools(db Querier, log *logger.Logger) *AnalyticsTools {
	return &AnalyticsTools{db: db, logger: log}
}

// RegisterAnalyticsTools adds query_analytics and analyze_relations to the
// registry.
func RegisterAnalyticsTools(r *Registry, a *AnalyticsTools) {
	r.Register(&Tool{
		Spec: model.ToolSpec{
			Name: "query_analytics",
			Description: "Run a parameterized read-only SQL query against the analytics PostgreSQL database. " +
				"Tables: organizations(id, business_id, name, industry, revenue_eur, employee_count), " +
				"meetings(id, organization_id, held_at, topic, outcome), " +
				"deals(id, organization_id, closed_at, value_eur, stage). " +
				"Always include a LIMIT clause; the server additionally caps results at 20 rows and sets " +
				"truncated=true with the real totalRowCount when more matched. " +
				"Use positional placeholders ($1, $2, ...) with the params array. " +
				`Example: {"query": "SELECT name, revenue_eur FROM organizations WHERE industry = $1 ORDER BY revenue_eur DESC LIMIT 10", "params": ["software"]}`,
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "A single SELECT statement. Other statement kinds are rejected.",
				},
				"params": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Positional query parameters, in $1..$n order. Optional.",
				},
			},
			Required: []string{"query"},
		},
		Hint:    "check the table and column names in the tool description, and keep the statement a plain SELECT",
		Handler: a.handleQuery,
	})

	r.Register(&Tool{
		Spec: model.ToolSpec{
			Name: "analyze_relations",
			Description: "Aggregate meeting records from the analytics database. " +
				"groupBy selects the bucket: \"entity\" groups by organization, \"category\" by industry, " +
				"\"time\" by calendar month, \"all\" returns a single overall count. Default is \"entity\". " +
				"Optional year and entityId narrow the scope. limit caps the number of groups (default 10, max 50). " +
				"sortBy is \"count\" (default) or \"date\" (most recent activity first). " +
				"includeDetails=true adds the latest meeting topic per group. " +
				`Example: {"year": 2025, "groupBy": "category", "limit": 5}`,
			Properties: map[string]any{
				"year": map[string]any{
					"type":        "integer",
					"description": "Restrict to meetings held in this calendar year. Optional.",
				},
				"entityId": map[string]any{
					"type":        "integer",
					"description": "Restrict to one organization id. Optional.",
				},
				"groupBy": map[string]any{
					"type": "string",
					"enum": []any{"entity", "category", "time", "all"},
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of groups to return (default 10, max 50).",
				},
				"sortBy": map[string]any{
					"type": "string",
					"enum": []any{"count", "date"},
				},
				"includeDetails": map[string]any{
					"type":        "boolean",
					"description": "Include the most recent meeting topic per group.",
				},
			},
		},
		Hint:    "groupBy must be one of entity, category, time, all",
		Handler: a.handleAnalyzeRelations,
	})
}

// handleQuery runs an arbitrary parameterized SELECT with the hard row cap.
func (a *AnalyticsTools) handleQuery(ctx context.Context, args map[string]any) (any, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return nil, errors.New("query is required")
	}
	if err := ensureReadOnly(query); err != nil {
		return nil, err
	}

	var params []any
	if raw, ok := args["params"].([]any); ok {
		params = raw
	}

	rows, err := a.db.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns := columnNames(rows)

	var results []map[string]any
	total := 0
	for rows.Next() {
		total++
		if total > MaxQueryRows {
			continue // keep counting for totalRowCount, drop the row
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]any, len(values))
		for i, v := range values {
			if i < len(columns) {
				row[columns[i]] = v
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return map[string]any{
		"rows":          results,
		"rowCount":      len(results),
		"totalRowCount": total,
		"truncated":     total > MaxQueryRows,
	}, nil
}

// handleAnalyzeRelations aggregates meetings by entity, industry, or time
// bucket.
func (a *AnalyticsTools) handleAnalyzeRelations(ctx context.Context, args map[string]any) (any, error) {
	groupBy := stringArg(args, "groupBy")
	if groupBy == "" {
		groupBy = "entity"
	}

	limit := 10
	if n, ok := intArg(args, "limit"); ok && n > 0 {
		limit = n
	}
	if limit > maxRelationGroups {
		limit = maxRelationGroups
	}

	var (
		where  []string
		params []any
	)
	if year, ok := intArg(args, "year"); ok && year > 0 {
		params = append(params, year)
		where = append(where, fmt.Sprintf("EXTRACT(YEAR FROM m.held_at) = $%d", len(params)))
	}
	if entityID, ok := intArg(args, "entityId"); ok && entityID > 0 {
		params = append(params, entityID)
		where = append(where, fmt.Sprintf("m.organization_id = $%d", len(params)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var groupExpr, label string
	switch groupBy {
	case "entity":
		groupExpr, label = "o.name", "organization"
	case "category":
		groupExpr, label = "o.industry", "industry"
	case "time":
		groupExpr, label = "to_char(date_trunc('month', m.held_at), 'YYYY-MM')", "month"
	case "all":
		groupExpr, label = "", ""
	default:
		return nil, fmt.Errorf("unsupported groupBy %q", groupBy)
	}

	if groupBy == "all" {
		query := "SELECT COUNT(*), MAX(m.held_at) FROM meetings m" + whereClause
		rows, err := a.db.Query(ctx, query, params...)
		if err != nil {
			return nil, fmt.Errorf("aggregation failed: %w", err)
		}
		defer rows.Close()

		var count int64
		var latest any
		if rows.Next() {
			if err := rows.Scan(&count, &latest); err != nil {
				return nil, fmt.Errorf("read aggregate: %w", err)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("aggregation failed: %w", err)
		}
		return map[string]any{"totalMeetings": count, "latestMeeting": latest}, nil
	}

	order := "count DESC"
	if stringArg(args, "sortBy") == "date" {
		order = "latest DESC"
	}

	selectCols := groupExpr + " AS bucket, COUNT(*) AS count, MAX(m.held_at) AS latest"
	if boolArg(args, "includeDetails") {
		selectCols += ", (array_agg(m.topic ORDER BY m.held_at DESC))[1] AS latest_topic"
	}

	params = append(params, limit)
	query := fmt.Sprintf(
		"SELECT %s FROM meetings m JOIN organizations o ON o.id = m.organization_id%s GROUP BY bucket ORDER BY %s LIMIT $%d",
		selectCols, whereClause, order, len(params),
	)

	rows, err := a.db.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}
	defer rows.Close()

	columns := columnNames(rows)
	var groups []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read group: %w", err)
		}
		group := make(map[string]any, len(values))
		for i, v := range values {
			if i < len(columns) {
				group[columns[i]] = v
			}
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	return map[string]any{
		"groupedBy":  label,
		"groups":     groups,
		"groupCount": len(groups),
	}, nil
}

var dmlKeywordPattern = regexp.MustCompile(`\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|merge|copy)\b`)

// ensureReadOnly rejects anything that is not a single SELECT statement.
// All tools in this system are read-only against live backends. Keyword
// scanning runs with string literals and quoted identifiers blanked out,
// so a WITH clause cannot smuggle in a data-modifying CTE and a literal
// like 'deleted' does not false-positive.
func ensureReadOnly(query string) error {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(trimmed, "select") && !strings.HasPrefix(trimmed, "with") {
		return errors.New("only SELECT statements are allowed")
	}

	stripped := stripQuoted(trimmed)
	if i := strings.Index(stripped, ";"); i >= 0 && i != len(stripped)-1 {
		return errors.New("multiple statements are not allowed")
	}
	if kw := dmlKeywordPattern.FindString(stripped); kw != "" {
		return fmt.Errorf("statement contains %s; only reads are allowed", strings.ToUpper(kw))
	}
	return nil
}

// stripQuoted blanks single-quoted literals (honoring '' escapes) and
// double-quoted identifiers.
func stripQuoted(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			for i++; i < len(s); i++ {
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						i++
						continue
					}
					break
				}
			}
			b.WriteByte(' ')
		case '"':
			for i++; i < len(s) && s[i] != '"'; i++ {
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func columnNames(rows pgx.Rows) []string {
	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f.Name)
	}
	return names
}
