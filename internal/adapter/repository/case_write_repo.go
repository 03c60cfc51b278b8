package repository

import (
	"context"
	"fmt"

	"case-retriever/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type caseWriteRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewCaseWriteRepository creates the bulk loader's corpus view.
func NewCaseWriteRepository(pool *pgxpool.Pool, table string) domain.CaseWriteRepository {
	return &caseWriteRepository{pool: pool, table: sanitizeTable(table)}
}

func (r *caseWriteRepository) getExecutor(ctx context.Context) dbExecutor {
	if tx := ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *caseWriteRepository) ListMissingEmbeddings(ctx context.Context, ids []string, limit int) ([]domain.CaseDocument, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE embedding IS NULL
	`, candidateColumns, r.table)

	var args []interface{}
	if len(ids) > 0 {
		args = append(args, ids)
		sql += fmt.Sprintf("\t\t\tAND id = ANY($%d)\n", len(args))
	}
	sql += "\t\tORDER BY id\n"
	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf("\t\tLIMIT $%d\n", len(args))
	}

	rows, err := r.getExecutor(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "list missing embeddings", err)
	}
	defer rows.Close()

	var docs []domain.CaseDocument
	for rows.Next() {
		var doc domain.CaseDocument
		if err := rows.Scan(
			&doc.ID, &doc.Module, &doc.Title, &doc.Description,
			&doc.Steps, &doc.ExpectedResults, &doc.PreRequisites,
			&doc.Priority, &doc.Risk, &doc.Type,
			&doc.Key, &doc.Summary, &doc.BusinessValue,
			&doc.AcceptanceCriteria, &doc.Metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, nil
}

func (r *caseWriteRepository) CountEmbeddingCoverage(ctx context.Context) (int64, int64, error) {
	sql := fmt.Sprintf(`SELECT count(*), count(embedding) FROM %s`, r.table)

	var total, embedded int64
	if err := r.getExecutor(ctx).QueryRow(ctx, sql).Scan(&total, &embedded); err != nil {
		return 0, 0, domain.WrapError(domain.ErrBackendUnavailable, "count embedding coverage", err)
	}
	return total, embedded, nil
}

func (r *caseWriteRepository) UpdateEmbeddings(ctx context.Context, updates []domain.EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`
		UPDATE %s
		SET embedding = $2, embedded_at = now()
		WHERE id = $1
	`, r.table)

	batch := &pgx.Batch{}
	for _, update := range updates {
		batch.Queue(sql, update.ID, pgvector.NewVector(update.Embedding))
	}

	results := r.getExecutor(ctx).SendBatch(ctx, batch)
	defer results.Close()

	for i := range updates {
		if _, err := results.Exec(); err != nil {
			return domain.WrapError(domain.ErrBackendUnavailable,
				fmt.Sprintf("update embedding %s", updates[i].ID), err)
		}
	}
	return nil
}
