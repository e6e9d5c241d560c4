package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"laborlens-backend/llm"
	"laborlens-backend/models"

	"golang.org/x/sync/errgroup"
)

// SituationRequest carries an ad-hoc legal situation to diagnose. Profile
// holds optional worker attributes (employment type, tenure, weekly hours)
// passed through to the prompt.
type SituationRequest struct {
	Text         string
	CategoryHint models.IssueCategory
	Profile      map[string]string
}

type llmSituationResponse struct {
	Summary            string   `json:"summary"`
	LegalAssessment    string   `json:"legal_assessment"`
	RecommendedActions []string `json:"recommended_actions"`
}

// AnalyzeSituation diagnoses a described situation against the legal corpus.
// One query embedding is shared across the general search and a cases-only
// secondary search, which run concurrently.
func (s *AnalysisService) AnalyzeSituation(ctx context.Context, req SituationRequest) (*models.DiagnosisReport, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyQuery
	}

	embedding, err := s.embedder.EmbedOne(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed situation: %w", err)
	}

	var legalChunks, caseChunks []models.GroundingChunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var filters map[string]string
		if req.CategoryHint != "" {
			filters = map[string]string{"topic_main": string(req.CategoryHint)}
		}
		chunks, err := s.searchWithEmbedding(gctx, embedding, s.cfg.VectorTopK, filters)
		if err != nil {
			log.Printf("Warning: situation legal search failed: %v", err)
			return nil
		}
		legalChunks = chunks
		return nil
	})
	g.Go(func() error {
		chunks, err := s.searchWithEmbedding(gctx, embedding, 3, map[string]string{"source_type": "case"})
		if err != nil {
			log.Printf("Warning: situation case search failed: %v", err)
			return nil
		}
		caseChunks = chunks
		return nil
	})
	_ = g.Wait()

	prompt := buildSituationPrompt(req.Text, req.Profile, legalChunks, caseChunks)
	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	raw, err := s.llmClient.Complete(llmCtx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPreamble},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: s.cfg.LLMTemperature,
		JSONOutput:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("situation generation failed: %w", err)
	}

	var parsed llmSituationResponse
	candidate := extractBalancedObject(stripCodeFences(raw))
	if candidate == "" {
		return nil, fmt.Errorf("%w: no JSON object in situation response", ErrLLMInvalidOutput)
	}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		repaired := longestBalancedPrefix(candidate)
		if repaired == "" || json.Unmarshal([]byte(repaired), &parsed) != nil {
			return nil, fmt.Errorf("%w: %v", ErrLLMInvalidOutput, err)
		}
	}

	report := &models.DiagnosisReport{
		Summary:            parsed.Summary,
		LegalAssessment:    parsed.LegalAssessment,
		RecommendedActions: parsed.RecommendedActions,
		RelatedCases:       caseChunks,
		RetrievedContexts:  legalChunks,
		CreatedAt:          time.Now().UTC(),
	}
	if report.RelatedCases == nil {
		report.RelatedCases = []models.GroundingChunk{}
	}
	if report.RetrievedContexts == nil {
		report.RetrievedContexts = []models.GroundingChunk{}
	}
	return report, nil
}

// searchWithEmbedding queries the legal corpus with a precomputed embedding,
// applying the same threshold gate as SearchLegal.
func (s *AnalysisService) searchWithEmbedding(
	ctx context.Context,
	embedding []float32,
	k int,
	filters map[string]string,
) ([]models.GroundingChunk, error) {
	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
	defer cancel()

	candidates, err := s.retrieval.legalRepo.Search(searchCtx, embedding, k, filters)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 || candidates[0].Similarity < s.cfg.SimilarityThreshold {
		return nil, nil
	}

	chunks := make([]models.GroundingChunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = models.NewGroundingChunk(c)
	}
	return chunks, nil
}
