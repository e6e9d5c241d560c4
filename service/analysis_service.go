package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"laborlens-backend/chunker"
	"laborlens-backend/extract"
	"laborlens-backend/llm"
	"laborlens-backend/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DocumentStore persists uploaded documents
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

// AnalysisService runs the full contract analysis pipeline: prompt assembly,
// LLM invocation, structured output parsing, rule-based post-processing and
// per-issue re-retrieval.
type AnalysisService struct {
	retrieval *RetrievalService
	llmClient llm.Client
	docRepo   DocumentStore
	embedder  Embedder
	chunks    *chunker.ArticleChunker
	extractor *extract.Extractor
	cfg       Config
}

// AnalysisServiceOption is a functional option for AnalysisService
type AnalysisServiceOption func(*AnalysisService)

// AnalysisWithRetrieval sets the retrieval service
func AnalysisWithRetrieval(r *RetrievalService) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.retrieval = r
	}
}

// AnalysisWithLLMClient sets the LLM client
func AnalysisWithLLMClient(c llm.Client) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.llmClient = c
	}
}

// AnalysisWithDocumentStore sets the document store
func AnalysisWithDocumentStore(d DocumentStore) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.docRepo = d
	}
}

// AnalysisWithEmbedder sets the embedder used at ingestion
func AnalysisWithEmbedder(e Embedder) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.embedder = e
	}
}

// AnalysisWithChunker sets the article chunker
func AnalysisWithChunker(c *chunker.ArticleChunker) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.chunks = c
	}
}

// AnalysisWithExtractor sets the text extractor
func AnalysisWithExtractor(e *extract.Extractor) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.extractor = e
	}
}

// AnalysisWithConfig sets the engine configuration
func AnalysisWithConfig(cfg Config) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.cfg = cfg
	}
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(opts ...AnalysisServiceOption) *AnalysisService {
	s := &AnalysisService{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunks == nil {
		s.chunks = chunker.NewArticleChunker(0, 0)
	}
	if s.extractor == nil {
		s.extractor = extract.NewExtractor()
	}
	return s
}

// IngestDocument extracts text from the file at path, chunks it, embeds the
// chunks in one batch and replaces the document's chunk set in the store.
// Ingestion strictly precedes any retrieval that consumes the document ID.
func (s *AnalysisService) IngestDocument(
	ctx context.Context,
	path string,
	title string,
	formatHint extract.Format,
) (*models.Document, error) {
	text, err := s.extractor.Extract(path, formatHint)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:       uuid.New(),
		Title:    title,
		MimeType: string(formatHint),
		Content:  text,
	}

	pieces, err := s.chunks.Chunk(text, map[string]interface{}{"document_id": doc.ID.String()})
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}
	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed contract chunks: %w", err)
	}

	chunks := make([]models.ContractChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.ContractChunk{
			ID:            uuid.New(),
			DocumentID:    doc.ID,
			ArticleNumber: p.ArticleNumber,
			ChunkIndex:    p.ChunkIndex,
			Content:       p.Content,
			Embedding:     vectors[i],
			Metadata:      p.Metadata,
		}
	}

	if s.docRepo != nil {
		if err := s.docRepo.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to persist document: %w", err)
		}
	}
	if err := s.retrieval.contractRepo.Replace(ctx, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("%w: failed to ingest contract chunks: %v", ErrVectorStoreUnavailable, err)
	}

	return doc, nil
}

// AnalyzeContractRequest carries an analysis request. DocumentID is optional;
// when absent (or when its chunks were never ingested) the analysis falls
// back to legal-only retrieval.
type AnalyzeContractRequest struct {
	Text        string
	Description string
	Title       string
	DocumentID  *uuid.UUID
}

// AnalyzeContract runs the full analysis pipeline over a contract text and
// returns the structured risk report.
func (s *AnalysisService) AnalyzeContract(ctx context.Context, req AnalyzeContractRequest) (*models.AnalysisReport, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyQuery
	}

	// phase 1-2: contract-level query plus rule-based pre-scan
	query := s.retrieval.BuildContractQuery(req.Text, req.Description)
	matches := ScanToxicPatterns(req.Text)
	description := req.Description
	if hint := BuildPatternHint(matches); hint != "" {
		if description != "" {
			description += "\n\n"
		}
		description += hint
	}

	// phase 3: dual retrieval, concurrent; either failure degrades to empty
	contractChunks, legalChunks := s.dualRetrieve(ctx, query, req.DocumentID)

	// phase 4-5: prompt assembly and LLM call
	prompt := buildAnalysisPrompt(req.Text, description, contractChunks, legalChunks)
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
		return nil, fmt.Errorf("analysis generation failed: %w", err)
	}

	// phase 6: parse with the repair ladder
	parsed, err := parseAnalysisResponse(raw)
	if err != nil {
		return nil, err
	}

	issues := make([]models.Issue, 0, len(parsed.Issues))
	for i, li := range parsed.Issues {
		issues = append(issues, li.toIssue(fmt.Sprintf("issue-%d", i+1)))
	}
	if len(issues) > s.cfg.MaxIssues {
		issues = issues[:s.cfg.MaxIssues]
	}

	// phase 7: per-issue re-retrieval, non-fatal per issue
	for i := range issues {
		s.regroundIssue(ctx, &issues[i])
	}

	// phase 8: rule-based safety net for missed wage waiver clauses; the
	// cap re-applies afterwards so the net cannot push past MaxIssues
	issues = EnsureWageWaiverIssue(issues, matches)
	issues = capIssues(issues, s.cfg.MaxIssues)

	// phase 9: anchor original_text spans in the document text
	for i := range issues {
		anchorIssue(&issues[i], req.Text)
	}

	report := s.buildReport(req, parsed, issues, legalChunks)
	return report, nil
}

// capIssues trims the list to max by dropping the lowest-severity issues,
// later ones first. Rule-synthesized issues are never dropped.
func capIssues(issues []models.Issue, max int) []models.Issue {
	if max <= 0 || len(issues) <= max {
		return issues
	}
	for len(issues) > max {
		drop := -1
		for i := len(issues) - 1; i >= 0; i-- {
			if strings.HasPrefix(issues[i].IssueID, "rule-") {
				continue
			}
			if drop == -1 || severityWeight[issues[i].Severity] < severityWeight[issues[drop].Severity] {
				drop = i
			}
		}
		if drop == -1 {
			return issues[:max]
		}
		issues = append(issues[:drop], issues[drop+1:]...)
	}
	return issues
}

// dualRetrieve runs contract-internal and legal search concurrently. Each
// side degrades to an empty list on failure; the other still proceeds.
func (s *AnalysisService) dualRetrieve(
	ctx context.Context,
	query string,
	documentID *uuid.UUID,
) ([]models.ContractChunk, []models.GroundingChunk) {
	var contractChunks []models.ContractChunk
	var legalChunks []models.GroundingChunk

	g, gctx := errgroup.WithContext(ctx)

	if documentID != nil {
		g.Go(func() error {
			count, err := s.retrieval.contractRepo.CountByDocument(gctx, *documentID)
			if err != nil || count == 0 {
				log.Printf("Warning: contract chunks not available for %s, falling back to legal-only retrieval", documentID)
				return nil
			}
			chunks, err := s.retrieval.SearchContract(gctx, *documentID, query, s.cfg.VectorTopK, nil)
			if err != nil {
				log.Printf("Warning: contract retrieval failed: %v", err)
				return nil
			}
			contractChunks = chunks
			return nil
		})
	}

	g.Go(func() error {
		chunks, err := s.retrieval.SearchLegal(gctx, query, s.cfg.VectorTopK, "", s.cfg.DiversityEnabled)
		if err != nil {
			log.Printf("Warning: legal retrieval failed: %v", err)
			return nil
		}
		legalChunks = chunks
		return nil
	})

	_ = g.Wait()
	return contractChunks, legalChunks
}

// regroundIssue replaces an issue's legal basis with an issue-scoped search
// filtered to its category. Failure leaves the model-provided basis in place.
func (s *AnalysisService) regroundIssue(ctx context.Context, issue *models.Issue) {
	query := s.retrieval.BuildIssueQuery(*issue)
	if strings.TrimSpace(query) == "" {
		return
	}

	chunks, err := s.retrieval.SearchLegal(ctx, query, 3, issue.Category, false)
	if err != nil {
		log.Printf("Warning: re-retrieval failed for issue %s: %v", issue.IssueID, err)
		return
	}
	if len(chunks) == 0 {
		return
	}
	// similarity alone cannot tell supporting from contradicting authority,
	// so re-retrieved chunks stay unclear until a rule marks them otherwise
	for i := range chunks {
		chunks[i].Status = models.BasisUnclear
	}
	issue.LegalBasis = chunks
}

// buildReport assembles the final report, deriving the risk level from the
// score and recording an override when the model disagreed.
func (s *AnalysisService) buildReport(
	req AnalyzeContractRequest,
	parsed *llmAnalysisResponse,
	issues []models.Issue,
	legalChunks []models.GroundingChunk,
) *models.AnalysisReport {
	score := parsed.RiskScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	derived := models.RiskLevelFromScore(score)
	level := derived
	overridden := false
	if parsed.RiskLevel != "" && models.RiskLevel(parsed.RiskLevel) != derived {
		level = models.RiskLevel(parsed.RiskLevel)
		overridden = true
		log.Printf("Warning: model overrode risk level: score %d derives %s, model said %s", score, derived, level)
	}

	summary := parsed.Summary
	if len(legalChunks) == 0 && !strings.Contains(summary, "법령 근거 없음") {
		summary = strings.TrimSpace(summary + "\n(법령 근거 없음)")
	}

	report := &models.AnalysisReport{
		Title:             req.Title,
		RiskScore:         score,
		RiskLevel:         level,
		LevelOverridden:   overridden,
		Sections:          computeSectionScores(issues),
		Issues:            issues,
		Summary:           summary,
		Recommendations:   parsed.Recommendations,
		RetrievedContexts: legalChunks,
		ContractText:      req.Text,
		Clauses:           buildClauses(req.Text),
		HighlightedTexts:  buildHighlights(issues),
		CreatedAt:         time.Now().UTC(),
	}
	if req.DocumentID != nil {
		report.DocID = *req.DocumentID
	}
	if report.RetrievedContexts == nil {
		report.RetrievedContexts = []models.GroundingChunk{}
	}
	if report.Issues == nil {
		report.Issues = []models.Issue{}
	}
	return report
}

// severity weights for the per-topic section breakdown
var severityWeight = map[models.Severity]int{
	models.SeverityLow:    1,
	models.SeverityMedium: 2,
	models.SeverityHigh:   3,
}

// computeSectionScores derives the per-topic breakdown from issue categories,
// severity-weighted and capped at 100.
func computeSectionScores(issues []models.Issue) models.SectionScores {
	var scores models.SectionScores
	add := func(target *int, severity models.Severity) {
		*target += severityWeight[severity] * 25
		if *target > 100 {
			*target = 100
		}
	}
	for _, issue := range issues {
		switch issue.Category {
		case models.CategoryWorkingHours:
			add(&scores.WorkingHours, issue.Severity)
		case models.CategoryWage:
			add(&scores.Wage, issue.Severity)
		case models.CategoryProbationTermination:
			add(&scores.ProbationTermination, issue.Severity)
		case models.CategoryStockOptionIP:
			add(&scores.StockOptionIP, issue.Severity)
		}
	}
	return scores
}

// anchorIssue locates an issue's original_text inside the document text.
// Exact match first, then progressively shorter prefixes expanded to the
// surrounding sentence. No anchor found leaves the indices nil; fabricated
// positions are worse than none.
func anchorIssue(issue *models.Issue, docText string) {
	if strings.TrimSpace(issue.OriginalText) == "" {
		return
	}

	original := strings.TrimSpace(issue.OriginalText)
	if idx := strings.Index(docText, original); idx >= 0 {
		start, end := idx, idx+len(original)
		issue.StartIndex = &start
		issue.EndIndex = &end
		return
	}

	for _, prefixLen := range []int{100, 50} {
		prefix := truncateRunes(original, prefixLen)
		if len(prefix) == len(original) {
			continue
		}
		idx := strings.Index(docText, prefix)
		if idx < 0 {
			continue
		}
		start, end := expandToSentence(docText, idx, idx+len(prefix))
		issue.StartIndex = &start
		issue.EndIndex = &end
		return
	}
}

// expandToSentence widens a byte span to the enclosing sentence boundaries
func expandToSentence(text string, start, end int) (int, int) {
	for start > 0 {
		c := text[start-1]
		if c == '.' || c == '\n' {
			break
		}
		start--
	}
	for end < len(text) {
		c := text[end]
		end++
		if c == '.' || c == '\n' {
			break
		}
	}
	return start, end
}

// buildClauses derives clause references from the document's article headings
func buildClauses(text string) []models.Clause {
	var clauses []models.Clause
	for _, sec := range chunker.Sections(text) {
		if sec.ArticleNumber == nil {
			continue
		}
		n := *sec.ArticleNumber
		clauses = append(clauses, models.Clause{
			ClauseID:      fmt.Sprintf("article-%d", n),
			ArticleNumber: &n,
			Text:          truncateRunes(sec.Text, 500),
		})
	}
	return clauses
}

// buildHighlights lists the anchored spans of all issues
func buildHighlights(issues []models.Issue) []models.HighlightedText {
	var highlights []models.HighlightedText
	for _, issue := range issues {
		if issue.StartIndex == nil || issue.EndIndex == nil {
			continue
		}
		highlights = append(highlights, models.HighlightedText{
			IssueID:    issue.IssueID,
			StartIndex: *issue.StartIndex,
			EndIndex:   *issue.EndIndex,
			Text:       issue.OriginalText,
		})
	}
	return highlights
}
