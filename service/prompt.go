package service

import (
	"fmt"
	"strings"

	"laborlens-backend/models"
)

const (
	// contract text is truncated to this many runes inside the prompt
	promptContractLimit = 12000
	systemPreamble      = "당신은 한국 노동법에 정통한 근로계약서 검토 전문가입니다. 반드시 요청된 형식으로만 답하고, 법적 근거가 불확실한 내용은 추측하지 마세요."
)

const analysisJSONSchema = `{
  "risk_score": <0-100 정수>,
  "risk_level": "low" | "medium" | "high",
  "summary": "<전체 평가 요약>",
  "issues": [
    {
      "issue_id": "<고유 문자열>",
      "clause_id": "<article-N 형식, 해당 조항을 알 수 없으면 생략>",
      "category": "wage" | "working_hours" | "probation_termination" | "stock_option_ip" | "leave" | "non_compete" | "other",
      "severity": "low" | "medium" | "high",
      "summary": "<문제 요약>",
      "reason": "<법적 근거를 포함한 판단 이유>",
      "original_text": "<계약서 원문에서 그대로 가져온 문구>",
      "suggested_revision": "<수정 제안, 없으면 생략>",
      "legal_basis": ["<근거 법령/자료명>"]
    }
  ],
  "recommendations": [
    {"title": "<제목>", "description": "<설명>", "steps": ["<단계>"]}
  ]
}`

// buildAnalysisPrompt composes the contract analysis prompt: role preamble,
// task description, truncated contract text, the retrieved contract chunks
// and legal chunks, and the strict JSON schema for the response.
func buildAnalysisPrompt(
	contractText string,
	description string,
	contractChunks []models.ContractChunk,
	legalChunks []models.GroundingChunk,
) string {
	var contractSection strings.Builder
	for _, c := range contractChunks {
		if c.ArticleNumber != nil {
			contractSection.WriteString(fmt.Sprintf("[제%d조] ", *c.ArticleNumber))
		}
		contractSection.WriteString(c.Content)
		contractSection.WriteString("\n\n")
	}

	var legalSection strings.Builder
	for _, c := range legalChunks {
		legalSection.WriteString(fmt.Sprintf("[%s] %s\n%s\n\n", c.SourceType, c.Title, c.Snippet))
	}
	if legalSection.Len() == 0 {
		legalSection.WriteString("(검색된 법령 근거 없음. 일반적인 노동법 지식에 기반하여 평가하되, 근거가 불확실한 항목은 명시하세요)\n")
	}

	taskDescription := description
	if strings.TrimSpace(taskDescription) == "" {
		taskDescription = "이 근로계약서의 위험 요소를 평가해 주세요."
	}

	return fmt.Sprintf(`다음 근로계약서를 검토하고 위험 요소를 평가하세요.

요청 사항:
%s

계약서 전문 (일부 생략될 수 있음):
%s

계약서 내용:
%s

관련 법령/가이드라인:
%s

평가 기준:
- 근로기준법 등 강행법규 위반 여부 (임금, 근로시간, 수습, 해고 등)
- 근로자에게 일방적으로 불리한 조항
- original_text에는 반드시 계약서 원문의 문구를 그대로 인용하세요. 바꿔 쓰거나 요약하지 마세요.
- 각 issue의 legal_basis에는 판단 근거가 된 법령이나 자료를 명시하세요.

아래 JSON 스키마로만 응답하세요. JSON 외의 텍스트를 포함하지 마세요:
%s`,
		taskDescription,
		truncateRunes(contractText, promptContractLimit),
		contractSection.String(),
		legalSection.String(),
		analysisJSONSchema,
	)
}

// buildChatPrompt composes a grounded chat prompt carrying the retrieved
// context, the selected issue and the analysis summary when present.
func buildChatPrompt(
	query string,
	contractChunks []models.ContractChunk,
	legalChunks []models.GroundingChunk,
	selectedIssue *models.Issue,
	analysisSummary string,
) string {
	var b strings.Builder
	b.WriteString("다음 자료를 참고하여 사용자의 질문에 답하세요. 답변은 마크다운 형식으로 작성하세요.\n\n")

	if len(contractChunks) > 0 {
		b.WriteString("계약서 내용:\n")
		for _, c := range contractChunks {
			if c.ArticleNumber != nil {
				b.WriteString(fmt.Sprintf("[제%d조] ", *c.ArticleNumber))
			}
			b.WriteString(c.Content)
			b.WriteString("\n\n")
		}
	}

	if len(legalChunks) > 0 {
		b.WriteString("관련 법령/가이드라인:\n")
		for _, c := range legalChunks {
			b.WriteString(fmt.Sprintf("[%s] %s\n%s\n\n", c.SourceType, c.Title, c.Snippet))
		}
	}

	if selectedIssue != nil {
		b.WriteString(fmt.Sprintf("사용자가 보고 있는 문제 항목:\n- 분류: %s\n- 요약: %s\n- 원문: %s\n\n",
			selectedIssue.Category, selectedIssue.Summary, selectedIssue.OriginalText))
	}

	if strings.TrimSpace(analysisSummary) != "" {
		b.WriteString("기존 분석 요약:\n")
		b.WriteString(analysisSummary)
		b.WriteString("\n\n")
	}

	b.WriteString("질문:\n")
	b.WriteString(query)
	return b.String()
}

const situationJSONSchema = `{
  "summary": "<상황 요약>",
  "legal_assessment": "<법적 평가>",
  "recommended_actions": ["<권고 행동>"]
}`

// buildSituationPrompt composes the ad-hoc situation analysis prompt
func buildSituationPrompt(
	situation string,
	profile map[string]string,
	legalChunks []models.GroundingChunk,
	caseChunks []models.GroundingChunk,
) string {
	var profileSection strings.Builder
	for k, v := range profile {
		if strings.TrimSpace(v) == "" {
			continue
		}
		profileSection.WriteString(fmt.Sprintf("- %s: %s\n", k, v))
	}

	var legalSection strings.Builder
	for _, c := range legalChunks {
		legalSection.WriteString(fmt.Sprintf("[%s] %s\n%s\n\n", c.SourceType, c.Title, c.Snippet))
	}
	if legalSection.Len() == 0 {
		legalSection.WriteString("(검색된 법령 근거 없음)\n")
	}

	var caseSection strings.Builder
	for _, c := range caseChunks {
		caseSection.WriteString(fmt.Sprintf("%s\n%s\n\n", c.Title, c.Snippet))
	}
	if caseSection.Len() == 0 {
		caseSection.WriteString("(유사 사례 없음)\n")
	}

	return fmt.Sprintf(`다음 노동 관련 상황을 진단하세요.

상황 설명:
%s

근로자 정보:
%s

관련 법령/가이드라인:
%s

유사 사례:
%s

아래 JSON 스키마로만 응답하세요:
%s`,
		situation,
		profileSection.String(),
		legalSection.String(),
		caseSection.String(),
		situationJSONSchema,
	)
}
