package repository

import (
	"context"
	"time"

	"laborlens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalysisRecord is a persisted analysis report row
type AnalysisRecord struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	RiskScore  int
	RiskLevel  models.RiskLevel
	Report     models.AnalysisReport
	CreatedAt  time.Time
}

// AnalysisRepository handles database operations for finished reports
type AnalysisRepository struct {
	db *pgxpool.Pool
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Create persists a finished analysis report
func (r *AnalysisRepository) Create(ctx context.Context, rec *AnalysisRecord) error {
	query := `
		INSERT INTO analyses (
			id, document_id, risk_score, risk_level, report
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	return r.db.QueryRow(
		ctx, query,
		rec.ID,
		rec.DocumentID,
		rec.RiskScore,
		rec.RiskLevel,
		rec.Report,
	).Scan(&rec.CreatedAt)
}

// GetByID retrieves a persisted analysis by ID
func (r *AnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*AnalysisRecord, error) {
	rec := &AnalysisRecord{}
	query := `
		SELECT id, document_id, risk_score, risk_level, report, created_at
		FROM analyses
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.DocumentID,
		&rec.RiskScore,
		&rec.RiskLevel,
		&rec.Report,
		&rec.CreatedAt,
	)

	if err != nil {
		return nil, err
	}

	return rec, nil
}

// ListByDocumentID retrieves analyses for a document, newest first
func (r *AnalysisRepository) ListByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*AnalysisRecord, error) {
	query := `
		SELECT id, document_id, risk_score, risk_level, report, created_at
		FROM analyses
		WHERE document_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*AnalysisRecord
	for rows.Next() {
		rec := &AnalysisRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.DocumentID,
			&rec.RiskScore,
			&rec.RiskLevel,
			&rec.Report,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}
