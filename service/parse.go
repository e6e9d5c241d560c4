package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"laborlens-backend/models"
)

// llmAnalysisResponse is the JSON contract the model is instructed to return
// for contract analysis.
type llmAnalysisResponse struct {
	RiskScore       int                     `json:"risk_score"`
	RiskLevel       string                  `json:"risk_level"`
	Summary         string                  `json:"summary"`
	Issues          []llmIssue              `json:"issues"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

type llmIssue struct {
	IssueID           string            `json:"issue_id"`
	ClauseID          string            `json:"clause_id"`
	Category          string            `json:"category"`
	Severity          string            `json:"severity"`
	Summary           string            `json:"summary"`
	Reason            string            `json:"reason"`
	OriginalText      string            `json:"original_text"`
	SuggestedRevision string            `json:"suggested_revision"`
	LegalBasis        []json.RawMessage `json:"legal_basis"`
}

// parseAnalysisResponse extracts the structured analysis from raw model
// output. The ladder: strip code fences, parse the outermost balanced
// object; on failure retry from the longest balanced prefix; on second
// failure fall back to regex field extraction. Returns ErrLLMInvalidOutput
// only when even the regex pass recovers nothing.
func parseAnalysisResponse(raw string) (*llmAnalysisResponse, error) {
	text := stripCodeFences(raw)

	candidate := extractBalancedObject(text)
	if candidate != "" {
		var resp llmAnalysisResponse
		if err := json.Unmarshal([]byte(candidate), &resp); err == nil {
			return &resp, nil
		}

		// repair: retry from the longest prefix that balances
		if repaired := longestBalancedPrefix(candidate); repaired != "" && repaired != candidate {
			var resp llmAnalysisResponse
			if err := json.Unmarshal([]byte(repaired), &resp); err == nil {
				return &resp, nil
			}
		}
	}

	resp := regexExtractAnalysis(text)
	if resp == nil {
		return nil, fmt.Errorf("%w: no parseable structure in %d bytes", ErrLLMInvalidOutput, len(raw))
	}
	return resp, nil
}

// stripCodeFences removes markdown code fences around the payload
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	var kept []string
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return s
	}
	return strings.Join(kept, "\n")
}

// extractBalancedObject returns the outermost balanced {...} in s, or ""
func extractBalancedObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	// unbalanced: hand back the tail from the first brace for repair
	return s[start:]
}

// longestBalancedPrefix truncates s at the last position where braces and
// brackets balance, closing any still-open scopes.
func longestBalancedPrefix(s string) string {
	var stack []byte
	lastGood := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) >= 1 {
				// a value closed cleanly at some depth; a viable cut point
				// even when the truncation lands inside a nested object
				lastGood = i
			}
			if len(stack) == 0 {
				return s[:i+1]
			}
		}
	}

	if lastGood == -1 {
		return ""
	}

	// close whatever is still open past the last complete value
	prefix := s[:lastGood+1]
	var closers []byte
	var depthStack []byte
	inString = false
	escaped = false
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depthStack = append(depthStack, c)
		case '}', ']':
			depthStack = depthStack[:len(depthStack)-1]
		}
	}
	for i := len(depthStack) - 1; i >= 0; i-- {
		if depthStack[i] == '{' {
			closers = append(closers, '}')
		} else {
			closers = append(closers, ']')
		}
	}
	return prefix + string(closers)
}

var (
	riskScoreRe = regexp.MustCompile(`"risk_score"\s*:\s*(\d+)`)
	riskLevelRe = regexp.MustCompile(`"risk_level"\s*:\s*"(low|medium|high)"`)
	summaryRe   = regexp.MustCompile(`"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	issueRe     = regexp.MustCompile(`\{[^{}]*"category"\s*:\s*"[^"]+"[^{}]*\}`)
)

// regexExtractAnalysis is the last rung of the repair ladder: pull the
// top-level fields and any flat issue objects straight out of the text.
func regexExtractAnalysis(s string) *llmAnalysisResponse {
	resp := &llmAnalysisResponse{}
	found := false

	if m := riskScoreRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			resp.RiskScore = v
			found = true
		}
	}
	if m := riskLevelRe.FindStringSubmatch(s); m != nil {
		resp.RiskLevel = m[1]
		found = true
	}
	if m := summaryRe.FindStringSubmatch(s); m != nil {
		if unquoted, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
			resp.Summary = unquoted
		} else {
			resp.Summary = m[1]
		}
		found = true
	}

	for _, raw := range issueRe.FindAllString(s, -1) {
		var issue llmIssue
		if err := json.Unmarshal([]byte(raw), &issue); err == nil && issue.Category != "" {
			resp.Issues = append(resp.Issues, issue)
			found = true
		}
	}

	if !found {
		return nil
	}
	return resp
}

// toIssue converts a raw model issue into the typed model, validating enums
// and decoding the mixed string-or-object legal_basis list.
func (li llmIssue) toIssue(fallbackID string) models.Issue {
	issue := models.Issue{
		IssueID:      li.IssueID,
		Category:     normalizeCategory(li.Category),
		Severity:     normalizeSeverity(li.Severity),
		Summary:      li.Summary,
		Reason:       li.Reason,
		OriginalText: li.OriginalText,
	}
	if issue.IssueID == "" {
		issue.IssueID = fallbackID
	}
	if li.ClauseID != "" {
		clauseID := li.ClauseID
		issue.ClauseID = &clauseID
	}
	if li.SuggestedRevision != "" {
		rev := li.SuggestedRevision
		issue.SuggestedRevision = &rev
	}

	for _, raw := range li.LegalBasis {
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			issue.LegalBasis = append(issue.LegalBasis, models.GroundingChunk{
				Title:  asString,
				Status: models.BasisUnclear,
			})
			continue
		}
		var asChunk models.GroundingChunk
		if err := json.Unmarshal(raw, &asChunk); err == nil {
			if asChunk.Status == "" {
				asChunk.Status = models.BasisUnclear
			}
			issue.LegalBasis = append(issue.LegalBasis, asChunk)
		}
	}

	return issue
}

func normalizeCategory(s string) models.IssueCategory {
	switch models.IssueCategory(strings.ToLower(strings.TrimSpace(s))) {
	case models.CategoryWage:
		return models.CategoryWage
	case models.CategoryWorkingHours:
		return models.CategoryWorkingHours
	case models.CategoryProbationTermination:
		return models.CategoryProbationTermination
	case models.CategoryStockOptionIP:
		return models.CategoryStockOptionIP
	case models.CategoryLeave:
		return models.CategoryLeave
	case models.CategoryNonCompete:
		return models.CategoryNonCompete
	default:
		return models.CategoryOther
	}
}

func normalizeSeverity(s string) models.Severity {
	switch models.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
