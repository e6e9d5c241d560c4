package service

import (
	"regexp"
	"strings"

	"laborlens-backend/models"
)

// ToxicPattern is a rule-based detector for a domain-critical clause the
// model is known to miss under load. The pattern list must stay in sync with
// the analysis prompt; do not remove entries because "the model usually
// catches this".
type ToxicPattern struct {
	Name     string
	Category models.IssueCategory
	Regex    *regexp.Regexp
	Hint     string
}

// PatternMatch records one detected toxic clause
type PatternMatch struct {
	Pattern ToxicPattern
	Excerpt string
	Start   int
	End     int
}

var wageWaiverPatterns = []ToxicPattern{
	{
		Name:     "wage_waiver_agreement",
		Category: models.CategoryWage,
		Regex:    regexp.MustCompile(`(?im)추가\s*수당[^\n]*청구하지\s+않기로\s+합의`),
		Hint:     "추가 수당 청구 포기 합의 조항",
	},
	{
		Name:     "overtime_allowance_waiver",
		Category: models.CategoryWage,
		Regex:    regexp.MustCompile(`(?im)연장.?야간.?휴일\s*근로\s*수당[^\n]*별도로\s*청구하지\s+않`),
		Hint:     "연장·야간·휴일 근로수당 별도 청구 포기 조항",
	},
	{
		Name:     "inclusive_wage_waiver",
		Category: models.CategoryWage,
		Regex:    regexp.MustCompile(`(?im)포괄임금[^\n]*추가[^\n]*수당[^\n]*청구하지\s+않`),
		Hint:     "포괄임금제를 이유로 한 추가 수당 청구 포기 조항",
	},
	{
		Name:     "statutory_allowance_waiver",
		Category: models.CategoryWage,
		Regex:    regexp.MustCompile(`(?im)법정\s*수당[^\n]*청구하지\s+않`),
		Hint:     "법정 수당 청구 포기 조항",
	},
}

// keywords used to decide whether a returned issue already covers a wage
// waiver finding
var wageWaiverKeywords = []string{"수당", "청구", "포괄임금", "포기"}

// ScanToxicPatterns scans raw contract text for known toxic clauses
func ScanToxicPatterns(text string) []PatternMatch {
	var matches []PatternMatch
	for _, p := range wageWaiverPatterns {
		loc := p.Regex.FindStringIndex(text)
		if loc == nil {
			continue
		}
		matches = append(matches, PatternMatch{
			Pattern: p,
			Excerpt: text[loc[0]:loc[1]],
			Start:   loc[0],
			End:     loc[1],
		})
	}
	return matches
}

// BuildPatternHint renders a system hint asking the model to evaluate each
// detected pattern as a distinct issue. The hint is additive; it never
// replaces the user's own description.
func BuildPatternHint(matches []PatternMatch) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[시스템 참고] 다음 유형의 조항이 계약서에서 감지되었습니다. 각각을 별도의 문제로 평가하세요:\n")
	for _, m := range matches {
		b.WriteString("- ")
		b.WriteString(m.Pattern.Hint)
		b.WriteString("\n")
	}
	return b.String()
}

// coversWageWaiver reports whether an issue already covers a wage waiver
// finding, by category or by keyword intersection on its text fields.
func coversWageWaiver(issue models.Issue) bool {
	if issue.Category == models.CategoryWage {
		combined := issue.Summary + " " + issue.Reason + " " + issue.OriginalText
		for _, kw := range wageWaiverKeywords {
			if strings.Contains(combined, kw) {
				return true
			}
		}
	}
	return false
}

// wageWaiverLegalBasis is the fixed statutory basis attached to a
// synthesized wage waiver issue.
func wageWaiverLegalBasis() []models.GroundingChunk {
	return []models.GroundingChunk{
		{
			SourceID:   "krlabor-standards-act-15",
			SourceType: models.SourceTypeLaw,
			Title:      "근로기준법 제15조(이 법을 위반한 근로계약)",
			Snippet:    "이 법에서 정하는 기준에 미치지 못하는 근로조건을 정한 근로계약은 그 부분에 한정하여 무효로 한다.",
			Score:      1.0,
			Status:     models.BasisContradicts,
		},
		{
			SourceID:   "krlabor-standards-act-56",
			SourceType: models.SourceTypeLaw,
			Title:      "근로기준법 제56조(연장·야간 및 휴일 근로)",
			Snippet:    "사용자는 연장근로에 대하여는 통상임금의 100분의 50 이상을 가산하여 근로자에게 지급하여야 한다.",
			Score:      1.0,
			Status:     models.BasisContradicts,
		},
	}
}

// EnsureWageWaiverIssue appends a synthesized high-severity wage issue when a
// waiver pattern was detected in the text but no returned issue covers it.
func EnsureWageWaiverIssue(issues []models.Issue, matches []PatternMatch) []models.Issue {
	if len(matches) == 0 {
		return issues
	}
	for _, issue := range issues {
		if coversWageWaiver(issue) {
			return issues
		}
	}

	m := matches[0]
	return append(issues, models.Issue{
		IssueID:      "rule-wage-waiver",
		Category:     models.CategoryWage,
		Severity:     models.SeverityHigh,
		Summary:      "법정 수당 청구를 포기하게 하는 조항이 포함되어 있습니다",
		Reason:       "근로기준법에서 정하는 기준에 미달하는 근로조건을 정한 계약은 그 부분에 한하여 무효이며(제15조), 연장·야간·휴일 근로에 대한 가산수당 지급 의무(제56조)는 당사자 합의로 배제할 수 없습니다.",
		OriginalText: m.Excerpt,
		LegalBasis:   wageWaiverLegalBasis(),
	})
}
