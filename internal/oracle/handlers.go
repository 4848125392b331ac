package oracle

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/cordonlabs/cordon/internal/freeze"
	"github.com/cordonlabs/cordon/internal/validation"
)

// Handler provides HTTP endpoints for the analysis channel.
type Handler struct {
	service *Service
}

// NewHandler creates a new oracle handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) analysis routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/threats/:id/analysis", h.GetAnalysis)
}

// RegisterOracleRoutes sets up oracle-identity routes. The caller applies
// the oracle auth middleware to the group.
func (h *Handler) RegisterOracleRoutes(r *gin.RouterGroup) {
	r.POST("/analysis", h.SubmitAnalysis)
	r.GET("/pending", h.ListPending)
}

// SubmitRequest is the verdict payload from the analyst.
type SubmitRequest struct {
	ThreatID        string `json:"threatId" binding:"required"`
	AnalysisText    string `json:"analysisText"`
	SuggestedAction string `json:"suggestedAction" binding:"required"`
	IsCritical      bool   `json:"isCritical"`
}

// SubmitAnalysis handles POST /v1/oracle/analysis
func (h *Handler) SubmitAnalysis(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if !validation.IsValidHash(req.ThreatID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "threatId must be a 32-byte hex hash",
		})
		return
	}

	a, err := h.service.SubmitAnalysis(
		c.Request.Context(),
		common.HexToHash(req.ThreatID),
		req.AnalysisText,
		freeze.Action(req.SuggestedAction),
		req.IsCritical,
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No analysis request for this threat",
			})
		case errors.Is(err, ErrAlreadyCompleted):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_completed",
				"message": "Analysis already submitted for this threat",
			})
		case errors.Is(err, freeze.ErrInvalidAction):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_action",
				"message": "suggestedAction must be execute, revert or simulate",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "submit_failed",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"analysis": a})
}

// GetAnalysis handles GET /v1/threats/:id/analysis
func (h *Handler) GetAnalysis(c *gin.Context) {
	id := c.Param("id")
	if !validation.IsValidHash(id) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "threat id must be a 32-byte hex hash",
		})
		return
	}

	a, err := h.service.GetAnalysis(c.Request.Context(), common.HexToHash(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"analysis": a})
}

// ListPending handles GET /v1/oracle/pending
func (h *Handler) ListPending(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	pending, err := h.service.ListPending(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pending": pending,
		"count":   len(pending),
	})
}
