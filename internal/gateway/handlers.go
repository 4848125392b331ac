package gateway

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/cordonlabs/cordon/internal/detector"
	"github.com/cordonlabs/cordon/internal/freeze"
	"github.com/cordonlabs/cordon/internal/registry"
	"github.com/cordonlabs/cordon/internal/validation"
)

// Handler provides the submission, query, resolution and config endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new gateway handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the open gateway routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/submit", h.Submit)
	r.GET("/threats", h.ListThreats)
	r.GET("/threats/:id", h.GetThreat)
	r.POST("/threats/:id/resolve", h.SelfResolve)
	r.GET("/frozen", h.ListFrozen)
	r.GET("/stats", h.GetStats)
}

// RegisterAdminRoutes sets up owner-only routes. The caller applies the
// admin auth middleware to the group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/threats/:id/override", h.OwnerOverride)
	r.GET("/config", h.GetConfig)
	r.PUT("/config", h.UpdateConfig)
}

// SubmitRequest is a call attempt as submitted over HTTP. The transport
// supplies the environment signals the runtime would normally attach.
type SubmitRequest struct {
	Caller           string `json:"caller" binding:"required"`
	Origin           string `json:"origin"`
	Target           string `json:"target" binding:"required"`
	Payload          string `json:"payload"`
	Value            string `json:"value"`
	CallerIsContract bool   `json:"callerIsContract"`
	CallerBalance    string `json:"callerBalance"`
	PriorityFee      string `json:"priorityFee"`
	GasRemaining     uint64 `json:"gasRemaining"`
	CallDepth        int    `json:"callDepth"`
}

// Submit handles POST /v1/submit
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAddress("caller", req.Caller),
		validation.ValidAddress("target", req.Target),
		validation.ValidHexPayload("payload", req.Payload),
		validation.ValidAmount("value", req.Value),
		validation.ValidAmount("callerBalance", req.CallerBalance),
		validation.ValidAmount("priorityFee", req.PriorityFee),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	attempt, err := attemptFromRequest(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	result, err := h.service.Submit(c.Request.Context(), attempt)
	if err != nil {
		var frozen *FrozenError
		switch {
		case errors.As(err, &frozen):
			// 423 Locked: the call exists but is blocked pending resolution.
			c.JSON(http.StatusLocked, gin.H{
				"error":        "frozen",
				"message":      frozen.Error(),
				"threatId":     frozen.ThreatID.Hex(),
				"level":        frozen.Level.String(),
				"vulnType":     string(frozen.Type),
				"freezeExpiry": frozen.FreezeExpiry,
			})
		case errors.Is(err, registry.ErrNotProtected):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "target_not_protected",
				"message": "Target is not registered for protection",
			})
		case errors.Is(err, ErrNoForwarder):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "forwarding_failed",
				"message": err.Error(),
			})
		default:
			// Target-level failure, propagated unchanged.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "forwarding_failed",
				"message": err.Error(),
			})
		}
		return
	}

	resp := gin.H{
		"forwarded": result.Forwarded,
		"result":    common.Bytes2Hex(result.Result),
		"level":     result.Level.String(),
	}
	if result.ThreatID != nil {
		resp["threatId"] = result.ThreatID.Hex()
		resp["vulnType"] = string(result.Type)
	}
	c.JSON(http.StatusOK, resp)
}

// GetThreat handles GET /v1/threats/:id
func (h *Handler) GetThreat(c *gin.Context) {
	id := c.Param("id")
	if !validation.IsValidHash(id) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "threat id must be a 32-byte hex hash",
		})
		return
	}

	rec, err := h.service.Ledger().GetThreat(c.Request.Context(), common.HexToHash(id))
	if err != nil {
		if errors.Is(err, freeze.ErrThreatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No threat record with this id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	resp := gin.H{"threat": threatView(rec)}
	if fc, err := h.service.Ledger().GetFrozenCall(c.Request.Context(), rec.ID); err == nil {
		resp["frozenCall"] = fc
		resp["status"] = fc.Status(h.service.clock.Unit())
	}
	c.JSON(http.StatusOK, resp)
}

// ListThreats handles GET /v1/threats
func (h *Handler) ListThreats(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	recs, err := h.service.Ledger().ListThreats(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	views := make([]gin.H, len(recs))
	for i, rec := range recs {
		views[i] = threatView(rec)
	}
	c.JSON(http.StatusOK, gin.H{"threats": views, "count": len(views)})
}

// ListFrozen handles GET /v1/frozen
func (h *Handler) ListFrozen(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	frozen, err := h.service.Ledger().ListActiveFrozen(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	now := h.service.clock.Unit()
	out := make([]gin.H, len(frozen))
	for i, fc := range frozen {
		out[i] = gin.H{
			"threatId":     fc.ThreatID.Hex(),
			"initiator":    fc.Initiator.Hex(),
			"frozenAt":     fc.FrozenAt,
			"frozenAtUnit": fc.FrozenAtUnit,
			"freezeExpiry": fc.FreezeExpiry,
			"status":       fc.Status(now),
		}
	}
	c.JSON(http.StatusOK, gin.H{"frozen": out, "count": len(out), "unit": now})
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats": h.service.Stats().Snapshot(),
		"unit":  h.service.clock.Unit(),
	})
}

// ResolveRequest is the payload for resolution endpoints.
type ResolveRequest struct {
	Action string `json:"action" binding:"required"`
	Caller string `json:"caller"` // self-resolution only
}

// SelfResolve handles POST /v1/threats/:id/resolve
func (h *Handler) SelfResolve(c *gin.Context) {
	h.resolve(c, false)
}

// OwnerOverride handles POST /v1/admin/threats/:id/override
func (h *Handler) OwnerOverride(c *gin.Context) {
	h.resolve(c, true)
}

func (h *Handler) resolve(c *gin.Context, owner bool) {
	id := c.Param("id")
	if !validation.IsValidHash(id) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "threat id must be a 32-byte hex hash",
		})
		return
	}

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	action, err := freeze.ParseAction(req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_action",
			"message": "action must be execute, revert or simulate",
		})
		return
	}

	var caller common.Address
	if !owner {
		if !validation.IsValidAddress(req.Caller) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "caller must be a 0x-prefixed 40-hex-char address",
			})
			return
		}
		caller = common.HexToAddress(req.Caller)
	}

	res, err := h.service.Resolve(c.Request.Context(), common.HexToHash(id), caller, action, owner)
	if err != nil {
		h.writeResolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resolution": res})
}

func (h *Handler) writeResolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, freeze.ErrSimulationRequested):
		// Control flow, not a fault: a fresh analysis request was emitted
		// and the caller should retry once the verdict lands.
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "simulation_requested",
			"message": "Re-analysis requested; retry after the new verdict",
		})
	case errors.Is(err, freeze.ErrNotFrozen):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_frozen",
			"message": "No frozen call for this threat",
		})
	case errors.Is(err, freeze.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_resolved",
			"message": "Frozen call already executed or cancelled",
		})
	case errors.Is(err, freeze.ErrFreezeExpired):
		c.JSON(http.StatusGone, gin.H{
			"error":   "freeze_expired",
			"message": "Freeze window has expired; the call is permanently stuck",
		})
	case errors.Is(err, freeze.ErrNotInitiator):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "not_initiator",
			"message": "Only the original initiator may self-resolve",
		})
	case errors.Is(err, freeze.ErrCriticalThreat):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "critical_threat",
			"message": "Critical threats may only be resolved by the owner",
		})
	case errors.Is(err, freeze.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_action",
			"message": "action must be execute, revert or simulate",
		})
	default:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "resolution_failed",
			"message": err.Error(),
		})
	}
}

// ConfigView is the runtime-tunable configuration as exposed over HTTP.
type ConfigView struct {
	FreezeDuration     uint64 `json:"freezeDuration"`
	MinBalance         string `json:"minBalance"`
	LargeValue         string `json:"largeValue"`
	LowGasFloor        uint64 `json:"lowGasFloor"`
	MaxCallDepth       int    `json:"maxCallDepth"`
	SuspiciousCalls    int    `json:"suspiciousCalls"`
	HighFrequencyCalls int    `json:"highFrequencyCalls"`
	PriorityFee        string `json:"priorityFee"`
	WithdrawMultiplier int64  `json:"withdrawMultiplier"`
	MaxWithdrawal      string `json:"maxWithdrawal"`
	PatternWindow      uint64 `json:"patternWindow"`
	RapidWithdrawals   int    `json:"rapidWithdrawals"`
}

// GetConfig handles GET /v1/admin/config
func (h *Handler) GetConfig(c *gin.Context) {
	th := h.service.Detector().Config().Thresholds()
	c.JSON(http.StatusOK, gin.H{"config": ConfigView{
		FreezeDuration:     h.service.Ledger().FreezeDuration(),
		MinBalance:         th.MinBalance.String(),
		LargeValue:         th.LargeValue.String(),
		LowGasFloor:        th.LowGasFloor,
		MaxCallDepth:       th.MaxCallDepth,
		SuspiciousCalls:    th.SuspiciousCalls,
		HighFrequencyCalls: th.HighFrequencyCalls,
		PriorityFee:        th.PriorityFee.String(),
		WithdrawMultiplier: th.WithdrawMultiplier,
		MaxWithdrawal:      th.MaxWithdrawal.String(),
		PatternWindow:      th.PatternWindow,
		RapidWithdrawals:   th.RapidWithdrawals,
	}})
}

// UpdateConfigRequest carries partial threshold updates; absent fields keep
// their current values so each knob is independently settable.
type UpdateConfigRequest struct {
	FreezeDuration     *uint64 `json:"freezeDuration"`
	MinBalance         *string `json:"minBalance"`
	LargeValue         *string `json:"largeValue"`
	LowGasFloor        *uint64 `json:"lowGasFloor"`
	MaxCallDepth       *int    `json:"maxCallDepth"`
	SuspiciousCalls    *int    `json:"suspiciousCalls"`
	HighFrequencyCalls *int    `json:"highFrequencyCalls"`
	PriorityFee        *string `json:"priorityFee"`
	WithdrawMultiplier *int64  `json:"withdrawMultiplier"`
	MaxWithdrawal      *string `json:"maxWithdrawal"`
	PatternWindow      *uint64 `json:"patternWindow"`
	RapidWithdrawals   *int    `json:"rapidWithdrawals"`
}

// UpdateConfig handles PUT /v1/admin/config
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if req.FreezeDuration != nil {
		if err := h.service.Ledger().SetFreezeDuration(*req.FreezeDuration); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": err.Error(),
			})
			return
		}
	}

	var t detector.Thresholds
	var parseErr string
	parse := func(field string, s *string) *big.Int {
		if s == nil {
			return nil
		}
		n, ok := new(big.Int).SetString(*s, 10)
		if !ok || n.Sign() < 0 {
			parseErr = field + " must be a non-negative integer"
			return nil
		}
		return n
	}
	t.MinBalance = parse("minBalance", req.MinBalance)
	t.LargeValue = parse("largeValue", req.LargeValue)
	t.PriorityFee = parse("priorityFee", req.PriorityFee)
	t.MaxWithdrawal = parse("maxWithdrawal", req.MaxWithdrawal)
	if parseErr != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": parseErr,
		})
		return
	}
	if req.LowGasFloor != nil {
		t.LowGasFloor = *req.LowGasFloor
	}
	if req.MaxCallDepth != nil {
		t.MaxCallDepth = *req.MaxCallDepth
	}
	if req.SuspiciousCalls != nil {
		t.SuspiciousCalls = *req.SuspiciousCalls
	}
	if req.HighFrequencyCalls != nil {
		t.HighFrequencyCalls = *req.HighFrequencyCalls
	}
	if req.WithdrawMultiplier != nil {
		t.WithdrawMultiplier = *req.WithdrawMultiplier
	}
	if req.PatternWindow != nil {
		t.PatternWindow = *req.PatternWindow
	}
	if req.RapidWithdrawals != nil {
		t.RapidWithdrawals = *req.RapidWithdrawals
	}
	h.service.Detector().Config().SetThresholds(t)

	h.GetConfig(c)
}

func attemptFromRequest(req *SubmitRequest) (*detector.Attempt, error) {
	a := &detector.Attempt{
		Caller:           common.HexToAddress(req.Caller),
		Target:           common.HexToAddress(req.Target),
		Payload:          common.FromHex(req.Payload),
		Value:            new(big.Int),
		CallerBalance:    new(big.Int),
		PriorityFee:      new(big.Int),
		CallerIsContract: req.CallerIsContract,
		GasRemaining:     req.GasRemaining,
		CallDepth:        req.CallDepth,
		At:               time.Now().UTC(),
	}
	a.Origin = a.Caller
	if req.Origin != "" {
		if !validation.IsValidAddress(req.Origin) {
			return nil, errors.New("origin must be a 0x-prefixed 40-hex-char address")
		}
		a.Origin = common.HexToAddress(req.Origin)
	}
	if req.Value != "" {
		a.Value.SetString(req.Value, 10)
	}
	if req.CallerBalance != "" {
		a.CallerBalance.SetString(req.CallerBalance, 10)
	}
	if req.PriorityFee != "" {
		a.PriorityFee.SetString(req.PriorityFee, 10)
	}
	return a, nil
}

func threatView(rec *freeze.ThreatRecord) gin.H {
	view := gin.H{
		"threatId":     rec.ID.Hex(),
		"caller":       rec.Caller.Hex(),
		"target":       rec.Target.Hex(),
		"payload":      common.Bytes2Hex(rec.Payload),
		"value":        rec.Value.String(),
		"unit":         rec.Unit,
		"at":           rec.At,
		"level":        rec.Level.String(),
		"vulnType":     string(rec.Type),
		"heuristic":    rec.Heuristic,
		"reason":       rec.Reason,
		"freezeExpiry": rec.FreezeExpiry,
		"isMitigated":  rec.Mitigated,
	}
	if len(rec.MitigationResult) > 0 {
		view["mitigationResult"] = common.Bytes2Hex(rec.MitigationResult)
	}
	return view
}
