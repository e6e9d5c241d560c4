package handlers

import (
	"net/http"

	"laborlens-backend/llm"
	"laborlens-backend/models"
	"laborlens-backend/repository"
	"laborlens-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AnalysisHandler handles HTTP requests for contract analysis
type AnalysisHandler struct {
	analysisService *service.AnalysisService
	analysisRepo    *repository.AnalysisRepository
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analysisService *service.AnalysisService, analysisRepo *repository.AnalysisRepository) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		analysisRepo:    analysisRepo,
	}
}

// AnalyzeRequest represents the request body for running an analysis
type AnalyzeRequest struct {
	Text        string  `json:"text" binding:"required"`
	Description string  `json:"description"`
	Title       string  `json:"title"`
	DocumentID  *string `json:"document_id"`
}

// Analyze handles POST /api/analyses
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	serviceReq := service.AnalyzeContractRequest{
		Text:        req.Text,
		Description: req.Description,
		Title:       req.Title,
	}
	if req.DocumentID != nil {
		docID, err := uuid.Parse(*req.DocumentID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_DOCUMENT_ID",
					"message": "Invalid document_id format",
				},
			})
			return
		}
		serviceReq.DocumentID = &docID
	}

	report, err := h.analysisService.AnalyzeContract(c.Request.Context(), serviceReq)
	if err != nil {
		status := http.StatusInternalServerError
		code := "ANALYSIS_FAILED"
		if err == service.ErrEmptyQuery {
			status = http.StatusBadRequest
			code = "INVALID_REQUEST"
		}
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	rec := &repository.AnalysisRecord{
		DocumentID: report.DocID,
		RiskScore:  report.RiskScore,
		RiskLevel:  report.RiskLevel,
		Report:     *report,
	}
	if h.analysisRepo != nil {
		if err := h.analysisRepo.Create(c.Request.Context(), rec); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "PERSIST_FAILED",
					"message": err.Error(),
				},
			})
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"analysis_id": rec.ID,
			"report":      report,
		},
	})
}

// GetAnalysis handles GET /api/analyses/:id
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid analysis ID format",
			},
		})
		return
	}

	rec, err := h.analysisRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == pgx.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Analysis not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RETRIEVAL_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rec,
	})
}

// ListDocumentAnalyses handles GET /api/documents/:id/analyses
func (h *AnalysisHandler) ListDocumentAnalyses(c *gin.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid document ID format",
			},
		})
		return
	}

	recs, err := h.analysisRepo.ListByDocumentID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RETRIEVAL_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    recs,
	})
}

// ChatMessage is one prior conversation turn
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the request body for a grounded chat turn
type ChatRequest struct {
	Query           string        `json:"query" binding:"required"`
	DocumentIDs     []string      `json:"document_ids"`
	SelectedIssue   *models.Issue `json:"selected_issue"`
	AnalysisSummary string        `json:"analysis_summary"`
	History         []ChatMessage `json:"history"`
}

// toLLMMessage maps a wire chat turn onto the LLM message type. Unknown
// roles default to user.
func toLLMMessage(msg ChatMessage) llm.Message {
	role := llm.RoleUser
	switch msg.Role {
	case "assistant", "model":
		role = llm.RoleAssistant
	case "system":
		role = llm.RoleSystem
	}
	return llm.Message{Role: role, Content: msg.Content}
}

// Chat handles POST /api/chat
func (h *AnalysisHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	serviceReq := service.ChatRequest{
		Query:           req.Query,
		SelectedIssue:   req.SelectedIssue,
		AnalysisSummary: req.AnalysisSummary,
	}
	for _, idStr := range req.DocumentIDs {
		docID, err := uuid.Parse(idStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_DOCUMENT_ID",
					"message": "Invalid document_ids entry",
				},
			})
			return
		}
		serviceReq.DocumentIDs = append(serviceReq.DocumentIDs, docID)
	}
	for _, msg := range req.History {
		serviceReq.History = append(serviceReq.History, toLLMMessage(msg))
	}

	answer, err := h.analysisService.Chat(c.Request.Context(), serviceReq)
	if err != nil {
		status := http.StatusInternalServerError
		code := "CHAT_FAILED"
		if err == service.ErrEmptyQuery {
			status = http.StatusBadRequest
			code = "INVALID_REQUEST"
		}
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"answer": answer,
		},
	})
}

// SituationRequest represents the request body for a situation diagnosis
type SituationRequest struct {
	Text         string            `json:"text" binding:"required"`
	CategoryHint string            `json:"category_hint"`
	Profile      map[string]string `json:"profile"`
}

// AnalyzeSituation handles POST /api/situations
func (h *AnalysisHandler) AnalyzeSituation(c *gin.Context) {
	var req SituationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	serviceReq := service.SituationRequest{
		Text:         req.Text,
		CategoryHint: models.IssueCategory(req.CategoryHint),
		Profile:      req.Profile,
	}

	report, err := h.analysisService.AnalyzeSituation(c.Request.Context(), serviceReq)
	if err != nil {
		status := http.StatusInternalServerError
		code := "DIAGNOSIS_FAILED"
		if err == service.ErrEmptyQuery {
			status = http.StatusBadRequest
			code = "INVALID_REQUEST"
		}
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}
