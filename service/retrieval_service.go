package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"laborlens-backend/models"

	"github.com/google/uuid"
)

// Embedder converts text into dense vectors, caching repeated inputs
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// LegalSearcher is the gateway to the legal corpus collection
type LegalSearcher interface {
	Search(ctx context.Context, embedding []float32, k int, filters map[string]string) ([]models.LegalChunk, error)
}

// ContractSearcher is the gateway to the contract chunk collection
type ContractSearcher interface {
	Search(ctx context.Context, documentID uuid.UUID, embedding []float32, k int, boostArticle *int, boostFactor float64) ([]models.ContractChunk, error)
	Replace(ctx context.Context, documentID uuid.UUID, chunks []models.ContractChunk) error
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
}

const (
	// number of candidates requested when the diversity quota is applied
	diversityCandidateK = 20
	// caps applied when composing an issue-scoped query
	issueClauseLimit = 500
	issueReasonLimit = 500
	contractQueryLen = 2000
)

// RetrievalService assembles grounded context from the contract's own chunks
// and the external legal corpus, under threshold and diversity constraints.
type RetrievalService struct {
	embedder     Embedder
	legalRepo    LegalSearcher
	contractRepo ContractSearcher
	cfg          Config
}

// RetrievalServiceOption is a functional option for RetrievalService
type RetrievalServiceOption func(*RetrievalService)

// RetrievalWithEmbedder sets the embedder
func RetrievalWithEmbedder(e Embedder) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.embedder = e
	}
}

// RetrievalWithLegalSearcher sets the legal corpus gateway
func RetrievalWithLegalSearcher(r LegalSearcher) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.legalRepo = r
	}
}

// RetrievalWithContractSearcher sets the contract chunk gateway
func RetrievalWithContractSearcher(r ContractSearcher) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.contractRepo = r
	}
}

// RetrievalWithConfig sets the engine configuration
func RetrievalWithConfig(cfg Config) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.cfg = cfg
	}
}

// NewRetrievalService creates a new retrieval service
func NewRetrievalService(opts ...RetrievalServiceOption) *RetrievalService {
	s := &RetrievalService{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchLegal retrieves grounding chunks from the legal corpus. An empty
// category applies no metadata filter. When ensureDiversity is set, the
// source-type quota in applyDiversityQuota shapes the selection. If the top
// candidate scores below the similarity threshold the whole retrieval is
// discarded: low-confidence context is worse than none.
func (s *RetrievalService) SearchLegal(
	ctx context.Context,
	query string,
	k int,
	category models.IssueCategory,
	ensureDiversity bool,
) ([]models.GroundingChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = s.cfg.VectorTopK
	}

	embedding, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filters map[string]string
	if category != "" {
		filters = map[string]string{"topic_main": string(category)}
	}

	candidateK := k
	if ensureDiversity {
		candidateK = diversityCandidateK
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
	defer cancel()
	candidates, err := s.legalRepo.Search(searchCtx, embedding, candidateK, filters)
	if err != nil {
		log.Printf("Warning: legal search failed, returning empty context: %v", err)
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// threshold gate on the best candidate
	if candidates[0].Similarity < s.cfg.SimilarityThreshold {
		return nil, nil
	}

	selected := candidates
	if ensureDiversity {
		selected = applyDiversityQuota(candidates, k)
	}
	if len(selected) > k {
		selected = selected[:k]
	}

	chunks := make([]models.GroundingChunk, len(selected))
	for i, c := range selected {
		chunks[i] = models.NewGroundingChunk(c)
	}
	return chunks, nil
}

// SearchContract retrieves chunks of one document. When boostIssue carries an
// article number, matching chunks are boosted in the store.
func (s *RetrievalService) SearchContract(
	ctx context.Context,
	documentID uuid.UUID,
	query string,
	k int,
	boostIssue *models.Issue,
) ([]models.ContractChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = s.cfg.VectorTopK
	}

	embedding, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var boostArticle *int
	if boostIssue != nil {
		boostArticle = issueArticleNumber(boostIssue)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
	defer cancel()
	chunks, err := s.contractRepo.Search(searchCtx, documentID, embedding, k, boostArticle, 0)
	if err != nil {
		log.Printf("Warning: contract search failed, returning empty context: %v", err)
		return nil, nil
	}
	return chunks, nil
}

// BuildContractQuery builds the contract-level retrieval query: the user's
// description first, then the head of the contract text.
func (s *RetrievalService) BuildContractQuery(text, description string) string {
	var b strings.Builder
	if strings.TrimSpace(description) != "" {
		b.WriteString(strings.TrimSpace(description))
		b.WriteString("\n")
	}
	b.WriteString(truncateRunes(text, contractQueryLen))
	return b.String()
}

// BuildIssueQuery composes an issue-scoped query from the verbatim clause
// text, the stated rationale and the category tag.
func (s *RetrievalService) BuildIssueQuery(issue models.Issue) string {
	var parts []string
	if issue.OriginalText != "" {
		parts = append(parts, truncateRunes(issue.OriginalText, issueClauseLimit))
	}
	if issue.Reason != "" {
		parts = append(parts, truncateRunes(issue.Reason, issueReasonLimit))
	}
	if issue.Category != "" {
		parts = append(parts, "[분류: "+string(issue.Category)+"]")
	}
	return strings.Join(parts, "\n")
}

// applyDiversityQuota selects candidates so that the main source-type
// families are represented when present: at least one law, at least one of
// manual/standard_contract, and one case. Remaining slots fill by original
// similarity order and the final set re-sorts by similarity. Pure top-k
// collapses the context to a single source type (usually statutes), starving
// the model of complementary guidance.
func applyDiversityQuota(candidates []models.LegalChunk, k int) []models.LegalChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	taken := make([]bool, len(candidates))
	var selected []models.LegalChunk

	take := func(want func(models.SourceType) bool) {
		for i, c := range candidates {
			if taken[i] {
				continue
			}
			if want(c.SourceType) {
				taken[i] = true
				selected = append(selected, c)
				return
			}
		}
	}

	take(func(t models.SourceType) bool { return t == models.SourceTypeLaw })
	take(func(t models.SourceType) bool {
		return t == models.SourceTypeManual || t == models.SourceTypeStandardContract
	})
	take(func(t models.SourceType) bool { return t == models.SourceTypeCase })

	// fill remaining slots by similarity order
	for i, c := range candidates {
		if len(selected) >= k {
			break
		}
		if !taken[i] {
			taken[i] = true
			selected = append(selected, c)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Similarity > selected[j].Similarity
	})
	if len(selected) > k {
		selected = selected[:k]
	}
	return selected
}

// issueArticleNumber extracts an article number hint from an issue's clause
// reference, e.g. a clause id of the form "article-4".
func issueArticleNumber(issue *models.Issue) *int {
	if issue.ClauseID == nil {
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(*issue.ClauseID, "article-%d", &n); err == nil && n > 0 {
		return &n
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
