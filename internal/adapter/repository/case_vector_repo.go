package repository

import (
	"context"
	"fmt"

	"case-retriever/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// efSearchCeiling bounds the HNSW probe width regardless of what the caller
// asks for.
const efSearchCeiling = 1000

type caseVectorRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewCaseVectorRepository creates the ANN search repository over the given
// table. An empty table name selects DefaultTable.
func NewCaseVectorRepository(pool *pgxpool.Pool, table string) domain.CaseVectorRepository {
	return &caseVectorRepository{pool: pool, table: sanitizeTable(table)}
}

func (r *caseVectorRepository) SearchVector(ctx context.Context, embedding []float32, limit, numCandidates int, filters domain.SearchFilters) ([]domain.Candidate, error) {
	if len(embedding) == 0 {
		return nil, domain.Invalid("embedding must not be empty")
	}
	if limit <= 0 {
		return nil, domain.Invalid("limit must be positive, got %d", limit)
	}
	if numCandidates <= 0 {
		numCandidates = limit * 2
		if numCandidates < 100 {
			numCandidates = 100
		}
	}

	filterSQL, filterArgs, err := buildFilterClause(filters, 3)
	if err != nil {
		return nil, err
	}

	// Cosine distance d is in [0,2]; (2-d)/2 maps it onto a [0,1] similarity
	// where 1 means identical direction.
	sql := fmt.Sprintf(`
		SELECT %s, (2 - (embedding <=> $1)) / 2 AS score
		FROM %s
		WHERE embedding IS NOT NULL%s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, candidateColumns, r.table, filterSQL)
	args := append([]interface{}{pgvector.NewVector(embedding), limit}, filterArgs...)

	// SET LOCAL scopes the probe width to one transaction, so the widened
	// ef_search never leaks into unrelated pool traffic.
	run := func(ctx context.Context, tx pgx.Tx) ([]domain.Candidate, error) {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", r.efSearch(limit, numCandidates))); err != nil {
			return nil, domain.WrapError(domain.ErrBackendUnavailable, "vector search", err)
		}
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return nil, domain.WrapError(domain.ErrBackendUnavailable, "vector search", err)
		}
		defer rows.Close()
		return scanCandidates(rows, domain.SourceVector)
	}

	if tx := ExtractTx(ctx); tx != nil {
		return run(ctx, tx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "vector search", err)
	}
	defer tx.Rollback(ctx)

	out, err := run(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "vector search", err)
	}
	return out, nil
}

func (r *caseVectorRepository) efSearch(limit, numCandidates int) int {
	ef := numCandidates
	if ef < limit {
		ef = limit
	}
	if ef > efSearchCeiling {
		ef = efSearchCeiling
	}
	return ef
}
