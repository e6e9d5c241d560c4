package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"laborlens-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeLegalSearcher struct {
	results     []models.LegalChunk
	err         error
	lastK       int
	lastFilters map[string]string
}

func (f *fakeLegalSearcher) Search(ctx context.Context, embedding []float32, k int, filters map[string]string) ([]models.LegalChunk, error) {
	f.lastK = k
	f.lastFilters = filters
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func legalChunk(sourceType models.SourceType, title string, similarity float64) models.LegalChunk {
	return models.LegalChunk{
		ID:         uuid.New(),
		SourceType: sourceType,
		Title:      title,
		Content:    title + " 본문",
		Similarity: similarity,
	}
}

func newTestRetrieval(searcher *fakeLegalSearcher) *RetrievalService {
	return NewRetrievalService(
		RetrievalWithEmbedder(&fakeEmbedder{}),
		RetrievalWithLegalSearcher(searcher),
	)
}

func TestSearchLegalEmptyQuery(t *testing.T) {
	s := newTestRetrieval(&fakeLegalSearcher{})
	_, err := s.SearchLegal(context.Background(), "   ", 8, "", false)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchLegalThresholdGate(t *testing.T) {
	searcher := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "근로기준법", 0.35),
		legalChunk(models.SourceTypeManual, "해설서", 0.30),
	}}
	s := newTestRetrieval(searcher)

	chunks, err := s.SearchLegal(context.Background(), "수습기간 급여", 8, "", false)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestSearchLegalReturnsProjectedChunks(t *testing.T) {
	searcher := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "근로기준법 제56조", 0.82),
		legalChunk(models.SourceTypeCase, "판례 2019다1234", 0.75),
	}}
	s := newTestRetrieval(searcher)

	chunks, err := s.SearchLegal(context.Background(), "연장 근로 수당", 8, "", false)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "근로기준법 제56조", chunks[0].Title)
	assert.InDelta(t, 0.82, chunks[0].Score, 1e-9)
}

func TestSearchLegalCategoryFilter(t *testing.T) {
	searcher := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "근로기준법", 0.8),
	}}
	s := newTestRetrieval(searcher)

	_, err := s.SearchLegal(context.Background(), "임금", 8, models.CategoryWage, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"topic_main": "wage"}, searcher.lastFilters)
}

func TestSearchLegalDiversityRequestsCandidates(t *testing.T) {
	searcher := &fakeLegalSearcher{results: []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "법", 0.9),
	}}
	s := newTestRetrieval(searcher)

	_, err := s.SearchLegal(context.Background(), "임금", 5, "", true)
	require.NoError(t, err)
	assert.Equal(t, diversityCandidateK, searcher.lastK)
}

func TestSearchLegalDegradesOnStoreFailure(t *testing.T) {
	searcher := &fakeLegalSearcher{err: errors.New("connection refused")}
	s := newTestRetrieval(searcher)

	chunks, err := s.SearchLegal(context.Background(), "임금", 8, "", false)
	assert.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestApplyDiversityQuota(t *testing.T) {
	// top-3 by similarity are all laws; quota must pull in a manual and a case
	candidates := []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "법1", 0.95),
		legalChunk(models.SourceTypeLaw, "법2", 0.94),
		legalChunk(models.SourceTypeLaw, "법3", 0.93),
		legalChunk(models.SourceTypeManual, "매뉴얼", 0.80),
		legalChunk(models.SourceTypeCase, "판례", 0.70),
	}

	selected := applyDiversityQuota(candidates, 3)
	require.Len(t, selected, 3)

	types := map[models.SourceType]int{}
	for _, c := range selected {
		types[c.SourceType]++
	}
	assert.Equal(t, 1, types[models.SourceTypeLaw])
	assert.Equal(t, 1, types[models.SourceTypeManual])
	assert.Equal(t, 1, types[models.SourceTypeCase])

	// final order re-sorted by similarity
	for i := 1; i < len(selected); i++ {
		assert.GreaterOrEqual(t, selected[i-1].Similarity, selected[i].Similarity)
	}
}

func TestApplyDiversityQuotaFillsWhenFamiliesMissing(t *testing.T) {
	candidates := []models.LegalChunk{
		legalChunk(models.SourceTypeLaw, "법1", 0.95),
		legalChunk(models.SourceTypeLaw, "법2", 0.94),
		legalChunk(models.SourceTypeLaw, "법3", 0.93),
	}

	selected := applyDiversityQuota(candidates, 3)
	require.Len(t, selected, 3)
	assert.Equal(t, "법1", selected[0].Title)
}

func newTestContractRetrieval(searcher *fakeContractSearcher) *RetrievalService {
	return NewRetrievalService(
		RetrievalWithEmbedder(&fakeEmbedder{}),
		RetrievalWithContractSearcher(searcher),
	)
}

func TestSearchContractEmptyQuery(t *testing.T) {
	s := newTestContractRetrieval(&fakeContractSearcher{})
	_, err := s.SearchContract(context.Background(), uuid.New(), "   ", 8, nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchContractBoostsIssueArticle(t *testing.T) {
	article := 5
	searcher := &fakeContractSearcher{chunks: []models.ContractChunk{
		{ID: uuid.New(), ArticleNumber: &article, Content: "을은 추가 수당을 청구하지 않기로 합의한다."},
	}}
	s := newTestContractRetrieval(searcher)

	clause := "article-5"
	issue := &models.Issue{ClauseID: &clause}
	chunks, err := s.SearchContract(context.Background(), uuid.New(), "추가 수당 청구 포기", 4, issue)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 4, searcher.lastK)
	require.NotNil(t, searcher.lastBoost)
	assert.Equal(t, 5, *searcher.lastBoost)
}

func TestSearchContractNoBoostWithoutClauseID(t *testing.T) {
	searcher := &fakeContractSearcher{}
	s := newTestContractRetrieval(searcher)

	_, err := s.SearchContract(context.Background(), uuid.New(), "근로시간", 0, &models.Issue{})
	require.NoError(t, err)
	assert.Nil(t, searcher.lastBoost)
	// zero k falls back to the configured top-k
	assert.Equal(t, DefaultConfig().VectorTopK, searcher.lastK)
}

func TestSearchContractDegradesOnStoreFailure(t *testing.T) {
	searcher := &fakeContractSearcher{err: errors.New("pgvector down")}
	s := newTestContractRetrieval(searcher)

	chunks, err := s.SearchContract(context.Background(), uuid.New(), "근로시간", 8, nil)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestBuildContractQuery(t *testing.T) {
	s := newTestRetrieval(&fakeLegalSearcher{})

	long := strings.Repeat("가", 3000)
	query := s.BuildContractQuery(long, "스타트업 개발자 연봉계약서")

	assert.True(t, strings.HasPrefix(query, "스타트업 개발자 연봉계약서\n"))
	assert.LessOrEqual(t, len([]rune(query)), contractQueryLen+len([]rune("스타트업 개발자 연봉계약서\n")))
}

func TestBuildIssueQuery(t *testing.T) {
	s := newTestRetrieval(&fakeLegalSearcher{})

	issue := models.Issue{
		Category:     models.CategoryWage,
		Reason:       "가산수당 지급 의무 위반 소지",
		OriginalText: "추가 수당은 청구하지 않기로 합의한다",
	}

	query := s.BuildIssueQuery(issue)
	assert.Contains(t, query, issue.OriginalText)
	assert.Contains(t, query, issue.Reason)
	assert.Contains(t, query, "[분류: wage]")
}

func TestBuildIssueQueryTruncatesLongClause(t *testing.T) {
	s := newTestRetrieval(&fakeLegalSearcher{})

	issue := models.Issue{OriginalText: strings.Repeat("조", 900)}
	query := s.BuildIssueQuery(issue)
	assert.Len(t, []rune(query), issueClauseLimit)
}

func TestIssueArticleNumber(t *testing.T) {
	clause := "article-4"
	n := issueArticleNumber(&models.Issue{ClauseID: &clause})
	require.NotNil(t, n)
	assert.Equal(t, 4, *n)

	bad := "clause-x"
	assert.Nil(t, issueArticleNumber(&models.Issue{ClauseID: &bad}))
	assert.Nil(t, issueArticleNumber(&models.Issue{}))
}
