package registry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/cordonlabs/cordon/internal/validation"
)

// Handler provides HTTP endpoints for target registration.
type Handler struct {
	service *Service
}

// NewHandler creates a new registry handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) registry routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/targets", h.ListTargets)
	r.GET("/targets/:address", h.GetTarget)
}

// RegisterAdminRoutes sets up owner-only registry routes. The caller applies
// the admin auth middleware to the group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/targets", h.RegisterTarget)
	r.DELETE("/targets/:address", h.DeregisterTarget)
}

// RegisterRequest is the payload for registering a target.
type RegisterRequest struct {
	Address string `json:"address" binding:"required"`
	Level   int    `json:"protectionLevel" binding:"required"`
}

// RegisterTarget handles POST /v1/admin/targets
func (h *Handler) RegisterTarget(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAddress("address", req.Address),
		validation.ValidLevel("protectionLevel", req.Level),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	target, err := h.service.Register(c.Request.Context(), common.HexToAddress(req.Address), req.Level)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidLevel), errors.Is(err, ErrInvalidTarget):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "register_failed",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"target": target})
}

// DeregisterTarget handles DELETE /v1/admin/targets/:address
func (h *Handler) DeregisterTarget(c *gin.Context) {
	addr := validation.SanitizeAddress(c.Param("address"))
	if !validation.IsValidAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "address must be a 0x-prefixed 40-hex-char address",
		})
		return
	}

	err := h.service.Deregister(c.Request.Context(), common.HexToAddress(addr))
	if err != nil {
		if errors.Is(err, ErrNotProtected) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_protected",
				"message": "Target is not under protection",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "deregister_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deregistered"})
}

// GetTarget handles GET /v1/targets/:address
func (h *Handler) GetTarget(c *gin.Context) {
	addr := validation.SanitizeAddress(c.Param("address"))
	if !validation.IsValidAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "address must be a 0x-prefixed 40-hex-char address",
		})
		return
	}

	target, err := h.service.Get(c.Request.Context(), common.HexToAddress(addr))
	if err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Target not registered",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"target": target})
}

// ListTargets handles GET /v1/targets
func (h *Handler) ListTargets(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	activeOnly := c.Query("all") != "true"

	targets, err := h.service.List(c.Request.Context(), activeOnly, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"targets": targets,
		"count":   len(targets),
	})
}
