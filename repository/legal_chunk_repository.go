package repository

import (
	"context"
	"fmt"

	"laborlens-backend/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// LegalChunkRepository handles database operations for the legal corpus
type LegalChunkRepository struct {
	db *pgxpool.Pool
}

// NewLegalChunkRepository creates a new legal chunk repository
func NewLegalChunkRepository(db *pgxpool.Pool) *LegalChunkRepository {
	return &LegalChunkRepository{db: db}
}

// Upsert inserts legal chunks, skipping rows whose (external_id, chunk_index)
// already exist. Re-ingesting the same source file is a no-op, not an error.
// Returns the number of rows actually inserted.
func (r *LegalChunkRepository) Upsert(ctx context.Context, chunks []models.LegalChunk) (int, error) {
	query := `
		INSERT INTO legal_chunks (
			id, external_id, chunk_index, source_type, title, content,
			file_path, embedding, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id, chunk_index) DO NOTHING`

	inserted := 0
	for _, chunk := range chunks {
		tag, err := r.db.Exec(
			ctx, query,
			chunk.ID,
			chunk.ExternalID,
			chunk.ChunkIndex,
			chunk.SourceType,
			chunk.Title,
			chunk.Content,
			chunk.FilePath,
			pgvector.NewVector(chunk.Embedding),
			chunk.Metadata,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert legal chunk %s/%d: %w", chunk.ExternalID, chunk.ChunkIndex, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Search performs a cosine k-NN search over the legal corpus. The
// "source_type" filter matches the source_type column; any other filter is
// matched by equality against the chunk's JSONB metadata, and a key absent
// from the metadata matches nothing.
func (r *LegalChunkRepository) Search(
	ctx context.Context,
	embedding []float32,
	k int,
	filters map[string]string,
) ([]models.LegalChunk, error) {
	if k <= 0 {
		k = 8
	}

	args := []interface{}{pgvector.NewVector(embedding)}
	where := ""
	for key, value := range filters {
		if key == "source_type" {
			args = append(args, value)
			where += fmt.Sprintf(" AND source_type = $%d", len(args))
			continue
		}
		args = append(args, key, value)
		where += fmt.Sprintf(" AND metadata->>$%d = $%d", len(args)-1, len(args))
	}
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT
			id,
			external_id,
			chunk_index,
			source_type,
			title,
			content,
			file_path,
			metadata,
			1 - (embedding <=> $1) AS similarity
		FROM legal_chunks
		WHERE TRUE%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, where, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query legal chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.LegalChunk
	for rows.Next() {
		var chunk models.LegalChunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.ExternalID,
			&chunk.ChunkIndex,
			&chunk.SourceType,
			&chunk.Title,
			&chunk.Content,
			&chunk.FilePath,
			&chunk.Metadata,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan legal chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legal chunks: %w", err)
	}

	return chunks, nil
}

// Count returns the total number of legal chunks in the corpus
func (r *LegalChunkRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM legal_chunks").Scan(&count)
	return count, err
}
