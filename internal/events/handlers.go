package events

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler serves the recent audit-event query API from a Recorder.
type Handler struct {
	recorder *Recorder
}

// NewHandler creates a new events handler.
func NewHandler(recorder *Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// RegisterRoutes sets up the events routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/events", h.ListEvents)
}

// ListEvents handles GET /v1/events
func (h *Handler) ListEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	eventType := EventType(c.Query("type"))

	recent := h.recorder.Recent(eventType, limit)
	c.JSON(http.StatusOK, gin.H{
		"events": recent,
		"count":  len(recent),
	})
}
