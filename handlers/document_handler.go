package handlers

import (
	"context"
	"errors"
	"net/http"

	"regadvisor-backend/models"
	"regadvisor-backend/repository"
	"regadvisor-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentHandler handles HTTP requests for regulatory documents
type DocumentHandler struct {
	documentRepo repository.DocumentRepository
	passageRepo  repository.PassageRepository
	ingestion    *service.IngestionService
	logger       *zap.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentRepo repository.DocumentRepository, passageRepo repository.PassageRepository, ingestion *service.IngestionService, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{
		documentRepo: documentRepo,
		passageRepo:  passageRepo,
		ingestion:    ingestion,
		logger:       logger,
	}
}

// CreateDocumentRequest represents the request body for registering a document
type CreateDocumentRequest struct {
	Source         string   `json:"source" binding:"required"`
	Type           string   `json:"type" binding:"required"`
	Title          string   `json:"title" binding:"required"`
	Categories     []string `json:"categories"`
	ShortTitle     *string  `json:"short_title"`
	DocumentNumber *string  `json:"document_number"`
	SourceURL      string   `json:"source_url"`
	Language       string   `json:"language"`
	FullText       *string  `json:"full_text"`
	Summary        *string  `json:"summary"`
}

// CreateDocument handles POST /api/documents
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
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

	doc := &models.Document{
		ID:             uuid.New(),
		Source:         req.Source,
		Type:           models.DocumentType(req.Type),
		Categories:     req.Categories,
		Title:          req.Title,
		ShortTitle:     req.ShortTitle,
		DocumentNumber: req.DocumentNumber,
		SourceURL:      req.SourceURL,
		Language:       req.Language,
		FullText:       req.FullText,
		Summary:        req.Summary,
		Status:         models.StatusPending,
	}
	if doc.Language == "" {
		doc.Language = "en"
	}

	if err := doc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	if err := h.documentRepo.Create(c.Request.Context(), doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CREATE_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    doc,
	})
}

// ListDocuments handles GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	filter := models.DocumentFilter{
		Source:   c.Query("source"),
		Category: c.Query("category"),
	}

	docs, err := h.documentRepo.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIST_FAILED",
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

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
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

	doc, err := h.documentRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
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
				"code":    "GET_FAILED",
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

// IngestDocument handles POST /api/documents/:id/ingest. Segmentation and
// embedding run in the background; the endpoint returns immediately and
// clients poll the document status.
func (h *DocumentHandler) IngestDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
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

	// Fail fast on unknown documents before accepting the job
	if _, err := h.documentRepo.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
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
				"code":    "GET_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	// Detached from the request context: ingestion outlives the HTTP call
	go func() {
		status, err := h.ingestion.Process(context.Background(), id)
		if err != nil {
			h.logger.Error("background ingestion failed",
				zap.String("document_id", id.String()),
				zap.Error(err))
			return
		}
		h.logger.Info("background ingestion finished",
			zap.String("document_id", id.String()),
			zap.String("status", string(status)))
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"document_id": id,
			"status":      models.StatusPending,
			"message":     "Ingestion started. Poll GET /api/documents/:id for status.",
		},
	})
}

// GetDocumentPassages handles GET /api/documents/:id/passages
func (h *DocumentHandler) GetDocumentPassages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
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

	passages, err := h.passageRepo.GetByDocument(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    passages,
	})
}
