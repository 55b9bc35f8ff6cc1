package handlers

import (
	"errors"
	"net/http"

	"regadvisor-backend/models"
	"regadvisor-backend/providers"
	"regadvisor-backend/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QuestionHandler handles HTTP requests for compliance questions
type QuestionHandler struct {
	answerService *service.AnswerService
	logger        *zap.Logger
}

// NewQuestionHandler creates a new question handler
func NewQuestionHandler(answerService *service.AnswerService, logger *zap.Logger) *QuestionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionHandler{
		answerService: answerService,
		logger:        logger,
	}
}

// AskQuestionRequest represents the request body for asking a question
type AskQuestionRequest struct {
	Question string               `json:"question" binding:"required"`
	History  []models.ChatMessage `json:"history"`
	Source   string               `json:"source"`
	Category string               `json:"category"`
}

// AskQuestion handles POST /api/questions
func (h *QuestionHandler) AskQuestion(c *gin.Context) {
	var req AskQuestionRequest
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

	filter := models.DocumentFilter{
		Source:   req.Source,
		Category: req.Category,
	}

	answer, err := h.answerService.Answer(c.Request.Context(), req.Question, req.History, filter)
	if err != nil {
		if errors.Is(err, providers.ErrEmbeddingUnavailable) || errors.Is(err, providers.ErrGenerationUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "PROVIDER_UNAVAILABLE",
					"message": err.Error(),
				},
			})
			return
		}
		h.logger.Error("failed to answer question", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ANSWER_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    answer,
	})
}
