package service

import (
	"context"
	"fmt"
	"strings"

	"laborlens-backend/llm"
	"laborlens-backend/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ChatRequest carries a grounded chat turn. History is the prior
// conversation, oldest first.
type ChatRequest struct {
	Query           string
	DocumentIDs     []uuid.UUID
	SelectedIssue   *models.Issue
	AnalysisSummary string
	History         []llm.Message
}

// Chat answers a free-form question grounded in the same dual retrieval the
// analysis uses. The answer is Markdown; no structured parsing applies.
func (s *AnalysisService) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if strings.TrimSpace(req.Query) == "" {
		return "", ErrEmptyQuery
	}

	var contractChunks []models.ContractChunk
	var legalChunks []models.GroundingChunk

	g, gctx := errgroup.WithContext(ctx)
	if len(req.DocumentIDs) > 0 {
		g.Go(func() error {
			for _, docID := range req.DocumentIDs {
				chunks, err := s.retrieval.SearchContract(gctx, docID, req.Query, s.cfg.VectorTopK, req.SelectedIssue)
				if err != nil {
					continue
				}
				contractChunks = append(contractChunks, chunks...)
			}
			return nil
		})
	}
	g.Go(func() error {
		chunks, err := s.retrieval.SearchLegal(gctx, req.Query, s.cfg.VectorTopK, "", s.cfg.DiversityEnabled)
		if err == nil {
			legalChunks = chunks
		}
		return nil
	})
	_ = g.Wait()

	prompt := buildChatPrompt(req.Query, contractChunks, legalChunks, req.SelectedIssue, req.AnalysisSummary)

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPreamble})
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	answer, err := s.llmClient.Complete(llmCtx, llm.Request{
		Messages:    messages,
		Temperature: s.cfg.LLMTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat generation failed: %w", err)
	}
	return answer, nil
}
