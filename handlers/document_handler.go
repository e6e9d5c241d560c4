package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"laborlens-backend/extract"
	"laborlens-backend/repository"
	"laborlens-backend/service"
	"laborlens-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DocumentHandler handles HTTP requests for contract document upload and
// retrieval. Upload runs the full ingestion pipeline before returning, so a
// successful response means the document is immediately analyzable.
type DocumentHandler struct {
	analysisService *service.AnalysisService
	docRepo         *repository.DocumentRepository
	storage         storage.Storage
	maxFileSize     int64
	allowedExts     map[string]bool
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(analysisService *service.AnalysisService, docRepo *repository.DocumentRepository, store storage.Storage) *DocumentHandler {
	return &DocumentHandler{
		analysisService: analysisService,
		docRepo:         docRepo,
		storage:         store,
		maxFileSize:     10 * 1024 * 1024, // 10MB
		allowedExts: map[string]bool{
			".pdf":  true,
			".hwpx": true,
			".html": true,
			".htm":  true,
			".txt":  true,
		},
	}
}

// Upload handles POST /api/documents/upload
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "File is required",
			},
		})
		return
	}

	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize),
			},
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !h.allowedExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILE_TYPE",
				"message": "File type not allowed. Allowed types: PDF, HWPX, HTML, TXT",
			},
		})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(fileHeader.Filename), ext)
	}

	// Extraction tools read from disk, so the upload lands in a temp file
	// before ingestion.
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_OPEN_ERROR",
				"message": err.Error(),
			},
		})
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src, err := fileHeader.Open()
	if err != nil {
		tmp.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_OPEN_ERROR",
				"message": err.Error(),
			},
		})
		return
	}
	_, copyErr := tmp.ReadFrom(src)
	src.Close()
	tmp.Close()
	if copyErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_OPEN_ERROR",
				"message": copyErr.Error(),
			},
		})
		return
	}

	doc, err := h.analysisService.IngestDocument(c.Request.Context(), tmpPath, title, extract.DetectFormat(fileHeader.Filename))
	if err != nil {
		status := http.StatusInternalServerError
		code := "INGESTION_FAILED"
		if _, ok := err.(*extract.ExtractionError); ok {
			status = http.StatusUnprocessableEntity
			code = "EXTRACTION_FAILED"
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

	// Archive the original file. The document is already ingested, so an
	// archive failure is logged but does not fail the upload.
	var storagePath string
	if h.storage != nil {
		original, err := os.Open(tmpPath)
		if err == nil {
			storagePath, err = h.storage.Upload(c.Request.Context(), doc.ID, fileHeader.Filename, original)
			original.Close()
		}
		if err != nil {
			log.Printf("Warning: failed to archive original file for %s: %v", doc.ID, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"id":           doc.ID,
			"title":        doc.Title,
			"mime_type":    doc.MimeType,
			"text_length":  len(doc.Content),
			"storage_path": storagePath,
			"created_at":   doc.CreatedAt,
		},
	})
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
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

	doc, err := h.docRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == pgx.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Document not found",
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
		"data":    doc,
	})
}

// ListDocuments handles GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docRepo.List(c.Request.Context(), 50)
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
		"data":    docs,
	})
}
