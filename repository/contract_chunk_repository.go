package repository

import (
	"context"
	"fmt"

	"laborlens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Default multiplier applied to the similarity of chunks whose article
// number matches the boost article.
const DefaultBoostFactor = 1.5

// ContractChunkRepository handles database operations for contract chunks
type ContractChunkRepository struct {
	db *pgxpool.Pool
}

// NewContractChunkRepository creates a new contract chunk repository
func NewContractChunkRepository(db *pgxpool.Pool) *ContractChunkRepository {
	return &ContractChunkRepository{db: db}
}

// Replace atomically swaps a document's chunks: all existing rows for the
// document are deleted and the new set inserted in one transaction.
func (r *ContractChunkRepository) Replace(ctx context.Context, documentID uuid.UUID, chunks []models.ContractChunk) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM contract_chunks WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("failed to delete existing chunks: %w", err)
	}

	query := `
		INSERT INTO contract_chunks (
			id, document_id, article_number, paragraph_index, chunk_index,
			content, embedding, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, chunk := range chunks {
		_, err := tx.Exec(
			ctx, query,
			chunk.ID,
			documentID,
			chunk.ArticleNumber,
			chunk.ParagraphIndex,
			chunk.ChunkIndex,
			chunk.Content,
			pgvector.NewVector(chunk.Embedding),
			chunk.Metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert contract chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	return tx.Commit(ctx)
}

// Search performs a cosine k-NN search scoped to one document. When
// boostArticle is set, chunks of that article get their similarity
// multiplied by boostFactor and ordering follows the boosted score.
func (r *ContractChunkRepository) Search(
	ctx context.Context,
	documentID uuid.UUID,
	embedding []float32,
	k int,
	boostArticle *int,
	boostFactor float64,
) ([]models.ContractChunk, error) {
	if k <= 0 {
		k = 8
	}
	if boostFactor <= 0 {
		boostFactor = DefaultBoostFactor
	}

	score := "1 - (embedding <=> $2)"
	args := []interface{}{documentID, pgvector.NewVector(embedding)}
	if boostArticle != nil {
		args = append(args, *boostArticle, boostFactor)
		score = fmt.Sprintf(
			"CASE WHEN article_number = $3 THEN (1 - (embedding <=> $2)) * $4 ELSE 1 - (embedding <=> $2) END")
	}
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT
			id,
			document_id,
			article_number,
			paragraph_index,
			chunk_index,
			content,
			metadata,
			%s AS similarity
		FROM contract_chunks
		WHERE document_id = $1
		ORDER BY similarity DESC
		LIMIT $%d`, score, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ContractChunk
	for rows.Next() {
		var chunk models.ContractChunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.ArticleNumber,
			&chunk.ParagraphIndex,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.Metadata,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contract chunks: %w", err)
	}

	return chunks, nil
}

// CountByDocument returns the number of chunks ingested for a document
func (r *ContractChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM contract_chunks WHERE document_id = $1", documentID).Scan(&count)
	return count, err
}
