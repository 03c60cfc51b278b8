package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"case-retriever/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the case corpus table unless configuration overrides it.
const DefaultTable = "case_documents"

// lexicalColumns maps searchable API field names onto their columns. Only
// these may carry a weight; anything else is rejected before reaching SQL.
var lexicalColumns = map[string]string{
	"id":                 "id",
	"title":              "title",
	"module":             "module",
	"description":        "description",
	"steps":              "steps",
	"expectedResults":    "expected_results",
	"preRequisites":      "pre_requisites",
	"summary":            "summary",
	"businessValue":      "business_value",
	"acceptanceCriteria": "acceptance_criteria",
}

// filterColumns maps filterable classification fields onto their columns.
var filterColumns = map[string]string{
	"module":   "module",
	"priority": "priority",
	"risk":     "risk",
	"type":     "doc_type",
}

// candidateColumns is the scan order shared by the lexical and vector repos.
const candidateColumns = `id, coalesce(module, ''), coalesce(title, ''), coalesce(description, ''),
	coalesce(steps, ''), coalesce(expected_results, ''), coalesce(pre_requisites, ''),
	coalesce(priority, ''), coalesce(risk, ''), coalesce(doc_type, ''),
	coalesce(story_key, ''), coalesce(summary, ''), coalesce(business_value, ''),
	coalesce(acceptance_criteria, ''), coalesce(metadata, '{}'::jsonb)`

// tsTokenPattern strips characters that carry meaning inside tsquery syntax.
var tsTokenPattern = regexp.MustCompile(`[^\pL\pN_]+`)

type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type caseSearchRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewCaseSearchRepository creates the lexical search repository over the
// given table. An empty table name selects DefaultTable.
func NewCaseSearchRepository(pool *pgxpool.Pool, table string) domain.CaseSearchRepository {
	return &caseSearchRepository{pool: pool, table: sanitizeTable(table)}
}

func (r *caseSearchRepository) getExecutor(ctx context.Context) dbExecutor {
	if tx := ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *caseSearchRepository) SearchLexical(ctx context.Context, query string, limit int, filters domain.SearchFilters, weights domain.FieldWeights) ([]domain.Candidate, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, domain.Invalid("query must not be empty")
	}
	if limit <= 0 {
		return nil, domain.Invalid("limit must be positive, got %d", limit)
	}
	if len(weights) == 0 {
		weights = domain.DefaultFieldWeights()
	}

	scoreExpr, err := buildScoreExpr(weights)
	if err != nil {
		return nil, err
	}
	filterSQL, filterArgs, err := buildFilterClause(filters, 4)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT %s, %s AS score
		FROM %s
		WHERE (to_tsvector('english', searchable) @@ to_tsquery('english', nullif($2, ''))
			OR $1 <%% searchable)%s
		ORDER BY score DESC, id ASC
		LIMIT $3
	`, candidateColumns, scoreExpr, r.table, filterSQL)

	args := append([]interface{}{q, buildPrefixQuery(q), limit}, filterArgs...)
	rows, err := r.getExecutor(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "lexical search", err)
	}
	defer rows.Close()

	return scanCandidates(rows, domain.SourceLexical)
}

// buildScoreExpr sums per-field full-text rank plus trigram similarity, each
// multiplied by the field weight. Fields are iterated in sorted order so the
// generated SQL is stable.
func buildScoreExpr(weights domain.FieldWeights) (string, error) {
	fields := make([]string, 0, len(weights))
	for field := range weights {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var sb strings.Builder
	for i, field := range fields {
		col, ok := lexicalColumns[field]
		if !ok {
			return "", domain.Invalid("unknown searchable field %q", field)
		}
		w := weights[field]
		if w < 0 {
			return "", domain.Invalid("weight for field %q must not be negative", field)
		}
		if i > 0 {
			sb.WriteString("\n\t\t\t+ ")
		}
		fmt.Fprintf(&sb,
			"%g * (coalesce(ts_rank_cd(to_tsvector('english', coalesce(%s, '')), to_tsquery('english', nullif($2, ''))), 0) + coalesce(word_similarity($1, %s), 0))",
			w, col, col)
	}
	return sb.String(), nil
}

// buildPrefixQuery turns free text into an OR-of-prefixes tsquery so partial
// terms still match ("canc" finds "cancellation").
func buildPrefixQuery(query string) string {
	var terms []string
	for _, token := range strings.Fields(query) {
		token = tsTokenPattern.ReplaceAllString(token, "")
		if token == "" {
			continue
		}
		terms = append(terms, token+":*")
	}
	return strings.Join(terms, " | ")
}

// buildFilterClause renders AND-composed equality predicates. Placeholders
// start at firstArg.
func buildFilterClause(filters domain.SearchFilters, firstArg int) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		col, ok := filterColumns[key]
		if !ok {
			return "", nil, domain.Invalid("unknown filter field %q", key)
		}
		fmt.Fprintf(&sb, "\n\t\t\tAND %s = $%d", col, firstArg+len(args))
		args = append(args, filters[key])
	}
	return sb.String(), args, nil
}

func scanCandidates(rows pgx.Rows, source domain.CandidateSource) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for rows.Next() {
		var doc domain.CaseDocument
		var score float64
		if err := rows.Scan(
			&doc.ID, &doc.Module, &doc.Title, &doc.Description,
			&doc.Steps, &doc.ExpectedResults, &doc.PreRequisites,
			&doc.Priority, &doc.Risk, &doc.Type,
			&doc.Key, &doc.Summary, &doc.BusinessValue,
			&doc.AcceptanceCriteria, &doc.Metadata,
			&score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, domain.Candidate{
			Document: doc,
			Score:    score,
			Rank:     len(out) + 1,
			Source:   source,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func sanitizeTable(table string) string {
	if table == "" {
		table = DefaultTable
	}
	return pgx.Identifier{table}.Sanitize()
}
