package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"laborlens-backend/llm"
	"laborlens-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	response string
	err      error
	requests []llm.Request
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeContractSearcher struct {
	count     int64
	chunks    []models.ContractChunk
	err       error
	searches  int
	lastK     int
	lastBoost *int
}

func (f *fakeContractSearcher) Search(ctx context.Context, documentID uuid.UUID, embedding []float32, k int, boostArticle *int, boostFactor float64) ([]models.ContractChunk, error) {
	f.searches++
	f.lastK = k
	f.lastBoost = boostArticle
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func (f *fakeContractSearcher) Replace(ctx context.Context, documentID uuid.UUID, chunks []models.ContractChunk) error {
	return nil
}

func (f *fakeContractSearcher) CountByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	return f.count, nil
}

const contractText = `근로계약서

제1조 (목적) 본 계약은 근로조건을 정함을 목적으로 한다.
제5조 (임금) 을은 추가 수당을 청구하지 않기로 합의한다.
제6조 (근로시간) 근로시간은 주 40시간으로 한다.`

func newTestAnalysis(llmClient llm.Client, legal *fakeLegalSearcher) *AnalysisService {
	return newTestAnalysisWithContract(llmClient, legal, &fakeContractSearcher{})
}

func newTestAnalysisWithContract(llmClient llm.Client, legal *fakeLegalSearcher, contract *fakeContractSearcher) *AnalysisService {
	retrieval := NewRetrievalService(
		RetrievalWithEmbedder(&fakeEmbedder{}),
		RetrievalWithLegalSearcher(legal),
		RetrievalWithContractSearcher(contract),
	)
	return NewAnalysisService(
		AnalysisWithRetrieval(retrieval),
		AnalysisWithLLMClient(llmClient),
		AnalysisWithEmbedder(&fakeEmbedder{}),
	)
}

func TestAnalyzeContractFullPipeline(t *testing.T) {
	llmClient := &fakeLLM{response: `{
		"risk_score": 75,
		"risk_level": "high",
		"summary": "수당 포기 조항 등 위험 요소가 있습니다.",
		"issues": [
			{
				"issue_id": "issue-1",
				"clause_id": "article-5",
				"category": "wage",
				"severity": "high",
				"summary": "추가 수당 청구 포기",
				"reason": "가산수당 의무는 배제할 수 없음",
				"original_text": "을은 추가 수당을 청구하지 않기로 합의한다.",
				"legal_basis": ["근로기준법 제56조"]
			}
		],
		"recommendations": [{"title": "조항 삭제 요청", "description": "제5조의 포기 문구 삭제를 요구하세요."}]
	}`}
	legal := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "근로기준법 제56조", 0.85),
	}}

	s := newTestAnalysis(llmClient, legal)
	report, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{
		Text:  contractText,
		Title: "개발자 근로계약서",
	})
	require.NoError(t, err)

	assert.Equal(t, 75, report.RiskScore)
	assert.Equal(t, models.RiskLevelHigh, report.RiskLevel)
	assert.False(t, report.LevelOverridden)
	require.Len(t, report.Issues, 1)

	issue := report.Issues[0]
	// re-retrieval replaced the model's basis with grounded chunks; their
	// stance stays unclear since similarity search cannot establish it
	require.NotEmpty(t, issue.LegalBasis)
	assert.Equal(t, "근로기준법 제56조", issue.LegalBasis[0].Title)
	assert.Equal(t, models.BasisUnclear, issue.LegalBasis[0].Status)

	// anchored to the exact span in the document
	require.NotNil(t, issue.StartIndex)
	require.NotNil(t, issue.EndIndex)
	assert.Equal(t, issue.OriginalText, contractText[*issue.StartIndex:*issue.EndIndex])

	// clauses derived from article headings
	require.Len(t, report.Clauses, 3)
	assert.Equal(t, "article-1", report.Clauses[0].ClauseID)

	// highlights follow anchored issues
	require.Len(t, report.HighlightedTexts, 1)
	assert.Equal(t, "issue-1", report.HighlightedTexts[0].IssueID)

	assert.NotEmpty(t, report.RetrievedContexts)
	assert.Equal(t, contractText, report.ContractText)
}

func TestAnalyzeContractSynthesizesWageWaiverIssue(t *testing.T) {
	// the model misses the waiver clause entirely
	llmClient := &fakeLLM{response: `{
		"risk_score": 20,
		"risk_level": "low",
		"summary": "특이사항 없음",
		"issues": [],
		"recommendations": []
	}`}
	legal := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "근로기준법", 0.8),
	}}

	s := newTestAnalysis(llmClient, legal)
	report, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{Text: contractText})
	require.NoError(t, err)

	require.Len(t, report.Issues, 1)
	synth := report.Issues[0]
	assert.Equal(t, "rule-wage-waiver", synth.IssueID)
	assert.Equal(t, models.SeverityHigh, synth.Severity)
	require.NotEmpty(t, synth.LegalBasis)

	// the detected pattern is surfaced to the model as a hint
	require.NotEmpty(t, llmClient.requests)
	prompt := llmClient.requests[0].Messages[len(llmClient.requests[0].Messages)-1].Content
	assert.Contains(t, prompt, "[시스템 참고]")
}

func TestAnalyzeContractLevelOverride(t *testing.T) {
	llmClient := &fakeLLM{response: `{
		"risk_score": 30,
		"risk_level": "high",
		"summary": "모델이 수준을 상향했습니다.",
		"issues": [],
		"recommendations": []
	}`}
	legal := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "근로기준법", 0.8),
	}}

	s := newTestAnalysis(llmClient, legal)
	report, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{
		Text: "제1조 (목적) 본 계약은 근로조건을 정함을 목적으로 한다.",
	})
	require.NoError(t, err)

	assert.Equal(t, 30, report.RiskScore)
	assert.Equal(t, models.RiskLevelHigh, report.RiskLevel)
	assert.True(t, report.LevelOverridden)
}

func TestAnalyzeContractDegradedRetrieval(t *testing.T) {
	llmClient := &fakeLLM{response: `{
		"risk_score": 10,
		"risk_level": "low",
		"summary": "특이사항 없음",
		"issues": [],
		"recommendations": []
	}`}
	legal := &fakeLegalSearcher{err: errors.New("pgvector down")}

	s := newTestAnalysis(llmClient, legal)
	report, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{
		Text: "제1조 (목적) 본 계약은 근로조건을 정함을 목적으로 한다.",
	})
	require.NoError(t, err)

	assert.Empty(t, report.RetrievedContexts)
	assert.Contains(t, report.Summary, "법령 근거 없음")
}

func TestAnalyzeContractMergesIngestedDocumentChunks(t *testing.T) {
	article := 6
	contract := &fakeContractSearcher{
		count: 3,
		chunks: []models.ContractChunk{
			{ID: uuid.New(), ArticleNumber: &article, ChunkIndex: 2, Content: "근로시간은 주 40시간으로 한다."},
		},
	}
	llmClient := &fakeLLM{response: `{
		"risk_score": 15,
		"risk_level": "low",
		"summary": "특이사항 없음",
		"issues": [],
		"recommendations": []
	}`}
	legal := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "근로기준법", 0.8),
	}}

	s := newTestAnalysisWithContract(llmClient, legal, contract)
	docID := uuid.New()
	report, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{
		Text:       contractText,
		DocumentID: &docID,
	})
	require.NoError(t, err)

	assert.Equal(t, docID, report.DocID)
	assert.Equal(t, 1, contract.searches)

	// the retrieved chunk lands in the contract-context section of the prompt
	require.NotEmpty(t, llmClient.requests)
	prompt := llmClient.requests[0].Messages[len(llmClient.requests[0].Messages)-1].Content
	assert.Contains(t, prompt, "계약서 내용:")
	assert.Contains(t, prompt, "[제6조] 근로시간은 주 40시간으로 한다.")
}

func TestAnalyzeContractSkipsContractSearchBeforeIngestion(t *testing.T) {
	// chunks were never ingested for this document id
	contract := &fakeContractSearcher{
		count: 0,
		chunks: []models.ContractChunk{
			{ID: uuid.New(), Content: "검색되면 안 되는 내용"},
		},
	}
	llmClient := &fakeLLM{response: `{
		"risk_score": 15,
		"risk_level": "low",
		"summary": "특이사항 없음",
		"issues": [],
		"recommendations": []
	}`}

	s := newTestAnalysisWithContract(llmClient, &fakeLegalSearcher{}, contract)
	docID := uuid.New()
	_, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{
		Text:       "제1조 (목적) 본 계약은 근로조건을 정함을 목적으로 한다.",
		DocumentID: &docID,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, contract.searches)
	require.NotEmpty(t, llmClient.requests)
	prompt := llmClient.requests[0].Messages[len(llmClient.requests[0].Messages)-1].Content
	assert.NotContains(t, prompt, "검색되면 안 되는 내용")
}

func TestAnalyzeContractIssueCapHoldsAfterSafetyNet(t *testing.T) {
	// two model issues fill the cap; the waiver net must still fit by
	// evicting the lowest-severity one
	llmClient := &fakeLLM{response: `{
		"risk_score": 40,
		"risk_level": "medium",
		"summary": "위험 조항 다수",
		"issues": [
			{"issue_id": "issue-1", "category": "working_hours", "severity": "medium", "summary": "근로시간 초과", "reason": "확인 필요", "original_text": "제6조", "legal_basis": []},
			{"issue_id": "issue-2", "category": "non_compete", "severity": "low", "summary": "경업금지", "reason": "확인 필요", "original_text": "제1조", "legal_basis": []}
		],
		"recommendations": []
	}`}
	cfg := DefaultConfig()
	cfg.MaxIssues = 2
	retrieval := NewRetrievalService(
		RetrievalWithEmbedder(&fakeEmbedder{}),
		RetrievalWithLegalSearcher(&fakeLegalSearcher{}),
		RetrievalWithContractSearcher(&fakeContractSearcher{}),
		RetrievalWithConfig(cfg),
	)
	s := NewAnalysisService(
		AnalysisWithRetrieval(retrieval),
		AnalysisWithLLMClient(llmClient),
		AnalysisWithEmbedder(&fakeEmbedder{}),
		AnalysisWithConfig(cfg),
	)

	report, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{Text: contractText})
	require.NoError(t, err)

	require.Len(t, report.Issues, 2)
	ids := []string{report.Issues[0].IssueID, report.Issues[1].IssueID}
	assert.Contains(t, ids, "rule-wage-waiver")
	assert.Contains(t, ids, "issue-1")
	assert.NotContains(t, ids, "issue-2")
}

func TestAnalyzeContractEmptyText(t *testing.T) {
	s := newTestAnalysis(&fakeLLM{}, &fakeLegalSearcher{})
	_, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAnalyzeContractLLMFailure(t *testing.T) {
	s := newTestAnalysis(&fakeLLM{err: llm.ErrUnavailable}, &fakeLegalSearcher{})
	_, err := s.AnalyzeContract(context.Background(), AnalyzeContractRequest{
		Text: "제1조 (목적) 본 계약은 근로조건을 정함을 목적으로 한다.",
	})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestComputeSectionScores(t *testing.T) {
	issues := []models.Issue{
		{Category: models.CategoryWage, Severity: models.SeverityHigh},
		{Category: models.CategoryWage, Severity: models.SeverityMedium},
		{Category: models.CategoryWorkingHours, Severity: models.SeverityLow},
		{Category: models.CategoryOther, Severity: models.SeverityHigh},
	}

	scores := computeSectionScores(issues)
	assert.Equal(t, 100, scores.Wage)
	assert.Equal(t, 25, scores.WorkingHours)
	assert.Equal(t, 0, scores.ProbationTermination)
	assert.Equal(t, 0, scores.StockOptionIP)
}

func TestAnchorIssuePrefixFallback(t *testing.T) {
	sentence := "가산수당은 통상임금의 백분의 오십 이상으로 한다. "
	doc := "제5조 (수당) " + strings.Repeat(sentence, 8)
	// model paraphrased the tail, so only a long prefix matches the document
	issue := models.Issue{
		OriginalText: truncateRunes(strings.Repeat(sentence, 8), 150) + " 그리고 원문에 없는 문장이 이어진다.",
	}

	anchorIssue(&issue, doc)
	require.NotNil(t, issue.StartIndex)
	require.NotNil(t, issue.EndIndex)
	anchored := doc[*issue.StartIndex:*issue.EndIndex]
	assert.Contains(t, anchored, "한다.")
}

func TestAnchorIssueNoMatchLeavesNil(t *testing.T) {
	issue := models.Issue{OriginalText: "계약서에 존재하지 않는 문장"}
	anchorIssue(&issue, "제1조 (목적) 본 계약은 근로조건을 정한다.")
	assert.Nil(t, issue.StartIndex)
	assert.Nil(t, issue.EndIndex)
}

func TestAnalyzeSituation(t *testing.T) {
	llmClient := &fakeLLM{response: `{
		"summary": "연장근로 수당 미지급 상황",
		"legal_assessment": "근로기준법 제56조 위반 소지가 있습니다.",
		"recommended_actions": ["임금명세서 확보", "노동청 진정 검토"]
	}`}
	legal := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "근로기준법 제56조", 0.8),
	}}

	s := newTestAnalysis(llmClient, legal)
	report, err := s.AnalyzeSituation(context.Background(), SituationRequest{
		Text: "야근을 매일 하는데 수당을 받지 못하고 있습니다.",
	})
	require.NoError(t, err)

	assert.Equal(t, "연장근로 수당 미지급 상황", report.Summary)
	assert.Len(t, report.RecommendedActions, 2)
	assert.NotEmpty(t, report.RetrievedContexts)
}

func TestAnalyzeSituationEmptyText(t *testing.T) {
	s := newTestAnalysis(&fakeLLM{}, &fakeLegalSearcher{})
	_, err := s.AnalyzeSituation(context.Background(), SituationRequest{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestChatGroundedAnswer(t *testing.T) {
	llmClient := &fakeLLM{response: "수습기간에도 최저임금의 90% 이상을 지급해야 합니다."}
	legal := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "최저임금법", 0.8),
	}}

	s := newTestAnalysis(llmClient, legal)
	answer, err := s.Chat(context.Background(), ChatRequest{Query: "수습기간 급여는 얼마인가요?"})
	require.NoError(t, err)
	assert.Contains(t, answer, "최저임금")

	// history precedes the grounded prompt
	_, err = s.Chat(context.Background(), ChatRequest{
		Query:   "더 자세히 알려주세요",
		History: []llm.Message{{Role: llm.RoleUser, Content: "이전 질문"}, {Role: llm.RoleAssistant, Content: "이전 답변"}},
	})
	require.NoError(t, err)
	last := llmClient.requests[len(llmClient.requests)-1]
	require.Len(t, last.Messages, 4)
	assert.Equal(t, llm.RoleSystem, last.Messages[0].Role)
	assert.Equal(t, "이전 질문", last.Messages[1].Content)
}
