package service

import (
	"testing"

	"laborlens-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waiverClause = "제7조 (임금) 을은 연장, 야간 또는 휴일 근로에 따른 추가 수당을 회사에 청구하지 않기로 합의한다."

func TestScanToxicPatternsDetectsWageWaiver(t *testing.T) {
	matches := ScanToxicPatterns(waiverClause)
	require.NotEmpty(t, matches)
	assert.Equal(t, "wage_waiver_agreement", matches[0].Pattern.Name)
	assert.Equal(t, models.CategoryWage, matches[0].Pattern.Category)
	assert.Contains(t, matches[0].Excerpt, "청구하지 않기로 합의")
}

func TestScanToxicPatternsInclusiveWage(t *testing.T) {
	text := "본 계약의 임금은 포괄임금제로 하며, 을은 추가로 발생하는 수당을 청구하지 않는다."
	matches := ScanToxicPatterns(text)
	require.NotEmpty(t, matches)
	assert.Equal(t, "inclusive_wage_waiver", matches[0].Pattern.Name)
}

func TestScanToxicPatternsCleanContract(t *testing.T) {
	text := "제7조 (임금) 회사는 연장 근로에 대하여 통상임금의 100분의 50을 가산하여 지급한다."
	assert.Empty(t, ScanToxicPatterns(text))
}

func TestBuildPatternHint(t *testing.T) {
	matches := ScanToxicPatterns(waiverClause)
	require.NotEmpty(t, matches)

	hint := BuildPatternHint(matches)
	assert.Contains(t, hint, "[시스템 참고]")
	assert.Contains(t, hint, matches[0].Pattern.Hint)

	assert.Empty(t, BuildPatternHint(nil))
}

func TestEnsureWageWaiverIssueSynthesizes(t *testing.T) {
	matches := ScanToxicPatterns(waiverClause)
	require.NotEmpty(t, matches)

	// the model returned an unrelated issue only
	issues := []models.Issue{
		{IssueID: "issue-1", Category: models.CategoryWorkingHours, Severity: models.SeverityMedium, Summary: "주 52시간 초과"},
	}

	out := EnsureWageWaiverIssue(issues, matches)
	require.Len(t, out, 2)

	synth := out[1]
	assert.Equal(t, "rule-wage-waiver", synth.IssueID)
	assert.Equal(t, models.CategoryWage, synth.Category)
	assert.Equal(t, models.SeverityHigh, synth.Severity)
	assert.Equal(t, matches[0].Excerpt, synth.OriginalText)
	require.Len(t, synth.LegalBasis, 2)
	for _, basis := range synth.LegalBasis {
		assert.Equal(t, models.BasisContradicts, basis.Status)
		assert.Equal(t, models.SourceTypeLaw, basis.SourceType)
	}
}

func TestEnsureWageWaiverIssueSkipsWhenCovered(t *testing.T) {
	matches := ScanToxicPatterns(waiverClause)
	require.NotEmpty(t, matches)

	issues := []models.Issue{
		{IssueID: "issue-1", Category: models.CategoryWage, Severity: models.SeverityHigh, Summary: "추가 수당 청구 포기 조항"},
	}

	out := EnsureWageWaiverIssue(issues, matches)
	assert.Len(t, out, 1)
}

func TestEnsureWageWaiverIssueNoMatches(t *testing.T) {
	issues := []models.Issue{{IssueID: "issue-1", Category: models.CategoryWage, Summary: "수당"}}
	out := EnsureWageWaiverIssue(issues, nil)
	assert.Len(t, out, 1)
}

func TestCoversWageWaiverRequiresWageCategory(t *testing.T) {
	// keyword present but wrong category does not count as coverage
	issue := models.Issue{Category: models.CategoryOther, Summary: "수당 청구 포기"}
	assert.False(t, coversWageWaiver(issue))

	issue.Category = models.CategoryWage
	assert.True(t, coversWageWaiver(issue))
}
