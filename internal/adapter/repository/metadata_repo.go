package repository

import (
	"context"
	"fmt"

	"case-retriever/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type metadataRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewMetadataRepository creates the classification value reader.
func NewMetadataRepository(pool *pgxpool.Pool, table string) domain.MetadataRepository {
	return &metadataRepository{pool: pool, table: sanitizeTable(table)}
}

func (r *metadataRepository) getExecutor(ctx context.Context) dbExecutor {
	if tx := ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *metadataRepository) DistinctValues(ctx context.Context) (*domain.DistinctMetadata, error) {
	out := &domain.DistinctMetadata{}
	for _, part := range []struct {
		column string
		target *[]string
	}{
		{"module", &out.Modules},
		{"priority", &out.Priorities},
		{"risk", &out.Risks},
		{"doc_type", &out.Types},
	} {
		values, err := r.distinctColumn(ctx, part.column)
		if err != nil {
			return nil, err
		}
		*part.target = values
	}
	return out, nil
}

func (r *metadataRepository) distinctColumn(ctx context.Context, column string) ([]string, error) {
	sql := fmt.Sprintf(`
		SELECT DISTINCT %s
		FROM %s
		WHERE %s IS NOT NULL AND %s <> ''
		ORDER BY %s
	`, column, r.table, column, column, column)

	rows, err := r.getExecutor(ctx).Query(ctx, sql)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "distinct "+column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return values, nil
}
