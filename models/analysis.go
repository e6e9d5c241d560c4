package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity of an issue
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskLevel represents the overall risk level of a report
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// Risk score thresholds that derive a risk level from a numeric score
const (
	RiskScoreHighThreshold   = 70
	RiskScoreMediumThreshold = 40
)

// RiskLevelFromScore derives a risk level from a 0-100 risk score
func RiskLevelFromScore(score int) RiskLevel {
	switch {
	case score >= RiskScoreHighThreshold:
		return RiskLevelHigh
	case score >= RiskScoreMediumThreshold:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// IssueCategory classifies a risk finding
type IssueCategory string

const (
	CategoryWage                 IssueCategory = "wage"
	CategoryWorkingHours         IssueCategory = "working_hours"
	CategoryProbationTermination IssueCategory = "probation_termination"
	CategoryStockOptionIP        IssueCategory = "stock_option_ip"
	CategoryLeave                IssueCategory = "leave"
	CategoryNonCompete           IssueCategory = "non_compete"
	CategoryOther                IssueCategory = "other"
)

// Issue is a single risk finding extracted from a contract, categorized and
// grounded in legal chunks. If OriginalText is found verbatim in the document,
// StartIndex/EndIndex anchor it; otherwise they stay nil.
type Issue struct {
	IssueID           string           `json:"issueId"`
	ClauseID          *string          `json:"clauseId,omitempty"`
	Category          IssueCategory    `json:"category"`
	Severity          Severity         `json:"severity"`
	Summary           string           `json:"summary"`
	Reason            string           `json:"reason"`
	OriginalText      string           `json:"originalText,omitempty"`
	SuggestedRevision *string          `json:"suggestedRevision,omitempty"`
	StartIndex        *int             `json:"startIndex,omitempty"`
	EndIndex          *int             `json:"endIndex,omitempty"`
	LegalBasis        []GroundingChunk `json:"legalBasis"`
}

// Recommendation is an actionable advice block in a report
type Recommendation struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps,omitempty"`
}

// SectionScores is the per-topic score breakdown, computed from issue
// categories weighted by severity.
type SectionScores struct {
	WorkingHours         int `json:"working_hours"`
	Wage                 int `json:"wage"`
	ProbationTermination int `json:"probation_termination"`
	StockOptionIP        int `json:"stock_option_ip"`
}

// Clause is a contract clause reference surfaced alongside the report
type Clause struct {
	ClauseID      string `json:"clauseId"`
	ArticleNumber *int   `json:"articleNumber,omitempty"`
	Text          string `json:"text"`
}

// HighlightedText marks a span of the contract text tied to an issue
type HighlightedText struct {
	IssueID    string `json:"issueId"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
	Text       string `json:"text"`
}

// AnalysisReport is the root analysis output. RiskLevel is derived from
// RiskScore thresholds unless the LLM explicitly overrode it, in which case
// LevelOverridden records the override.
type AnalysisReport struct {
	DocID             uuid.UUID         `json:"docId"`
	Title             string            `json:"title"`
	RiskScore         int               `json:"riskScore"`
	RiskLevel         RiskLevel         `json:"riskLevel"`
	LevelOverridden   bool              `json:"levelOverridden,omitempty"`
	Sections          SectionScores     `json:"sections"`
	Issues            []Issue           `json:"issues"`
	Summary           string            `json:"summary"`
	Recommendations   []Recommendation  `json:"recommendations,omitempty"`
	RetrievedContexts []GroundingChunk  `json:"retrievedContexts"`
	ContractText      string            `json:"contractText"`
	Clauses           []Clause          `json:"clauses,omitempty"`
	HighlightedTexts  []HighlightedText `json:"highlightedTexts,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Value implements driver.Valuer for JSONB persistence of reports
func (r AnalysisReport) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB
func (r *AnalysisReport) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, r)
}

// DiagnosisReport is the output of an ad-hoc legal situation analysis
type DiagnosisReport struct {
	Summary            string           `json:"summary"`
	LegalAssessment    string           `json:"legalAssessment"`
	RecommendedActions []string         `json:"recommendedActions"`
	RelatedCases       []GroundingChunk `json:"relatedCases"`
	RetrievedContexts  []GroundingChunk `json:"retrievedContexts"`
	CreatedAt          time.Time        `json:"createdAt"`
}
