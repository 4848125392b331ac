package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordonlabs/cordon/internal/freeze"
)

func setupRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	h := NewHandler(f.svc)

	r := gin.New()
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	h.RegisterAdminRoutes(v1.Group("/admin"))
	return r, f
}

func submitBody(caller, target string, payload []byte, value string) string {
	return fmt.Sprintf(`{"caller":%q,"target":%q,"payload":%q,"value":%q,"callerBalance":"10000000000000000000","gasRemaining":5000000,"callDepth":1}`,
		caller, target, "0x"+fmt.Sprintf("%x", payload), value)
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitEndpointForwardsCleanCall(t *testing.T) {
	r, f := setupRouter(t)
	target := addr(2)
	mustRegister(t, f, target, 3)

	body := submitBody(addr(1).Hex(), target.Hex(), nil, "0")
	w := postJSON(r, "/v1/submit", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Forwarded bool   `json:"forwarded"`
		Level     string `json:"level"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Forwarded)
	assert.Equal(t, "NONE", resp.Level)
}

func TestSubmitEndpointFrozenResponse(t *testing.T) {
	r, f := setupRouter(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)

	depositBody := submitBody(caller.Hex(), target.Hex(), depositAttempt(caller, target, 100).Payload, "100")
	require.Equal(t, http.StatusOK, postJSON(r, "/v1/submit", depositBody).Code)
	f.clock.Advance(1)
	require.Equal(t, http.StatusOK, postJSON(r, "/v1/submit", depositBody).Code)
	f.clock.Advance(1)

	withdrawBody := submitBody(caller.Hex(), target.Hex(), callPayload("withdraw(uint256)", 1500), "0")
	w := postJSON(r, "/v1/submit", withdrawBody)
	require.Equal(t, http.StatusLocked, w.Code, w.Body.String())

	var resp struct {
		Error        string `json:"error"`
		ThreatID     string `json:"threatId"`
		Level        string `json:"level"`
		VulnType     string `json:"vulnType"`
		FreezeExpiry uint64 `json:"freezeExpiry"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "frozen", resp.Error)
	assert.Equal(t, "HIGH", resp.Level)
	assert.Equal(t, "LARGE_WITHDRAWAL", resp.VulnType)
	assert.Len(t, resp.ThreatID, 66)
	assert.Equal(t, f.clock.Unit()+freeze.DefaultFreezeDuration, resp.FreezeExpiry)
}

func TestSubmitEndpointUnprotectedTarget(t *testing.T) {
	r, _ := setupRouter(t)

	body := submitBody(addr(1).Hex(), addr(2).Hex(), nil, "0")
	w := postJSON(r, "/v1/submit", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "target_not_protected")
}

func TestSubmitEndpointValidation(t *testing.T) {
	r, _ := setupRouter(t)

	w := postJSON(r, "/v1/submit", `{"caller":"bogus","target":"also-bogus"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}

func frozenThreatID(t *testing.T, r *gin.Engine, f *fixture, caller, target string) string {
	t.Helper()
	depositBody := submitBody(caller, target, callPayload("deposit()", 0)[:4], "100")
	require.Equal(t, http.StatusOK, postJSON(r, "/v1/submit", depositBody).Code)
	f.clock.Advance(1)
	require.Equal(t, http.StatusOK, postJSON(r, "/v1/submit", depositBody).Code)
	f.clock.Advance(1)

	withdrawBody := submitBody(caller, target, callPayload("withdraw(uint256)", 1500), "0")
	w := postJSON(r, "/v1/submit", withdrawBody)
	require.Equal(t, http.StatusLocked, w.Code, w.Body.String())

	var resp struct {
		ThreatID string `json:"threatId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ThreatID
}

func TestGetThreatEndpoint(t *testing.T) {
	r, f := setupRouter(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)
	id := frozenThreatID(t, r, f, caller.Hex(), target.Hex())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/threats/"+id, nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Threat struct {
			Level    string `json:"level"`
			VulnType string `json:"vulnType"`
		} `json:"threat"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "HIGH", resp.Threat.Level)
	assert.Equal(t, "LARGE_WITHDRAWAL", resp.Threat.VulnType)
	assert.Equal(t, "FROZEN", resp.Status)
}

func TestGetThreatNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/threats/0x"+strings.Repeat("ab", 32), nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetThreatRejectsBadID(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/threats/not-a-hash", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveEndpointSelfRevert(t *testing.T) {
	r, f := setupRouter(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)
	id := frozenThreatID(t, r, f, caller.Hex(), target.Hex())

	body := fmt.Sprintf(`{"action":"revert","caller":%q}`, caller.Hex())
	w := postJSON(r, "/v1/threats/"+id+"/resolve", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Resolution freeze.Resolution `json:"resolution"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Resolution.Cancelled)

	// Resolving again conflicts.
	w = postJSON(r, "/v1/threats/"+id+"/resolve", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResolveEndpointStrangerForbidden(t *testing.T) {
	r, f := setupRouter(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)
	id := frozenThreatID(t, r, f, caller.Hex(), target.Hex())

	body := fmt.Sprintf(`{"action":"revert","caller":%q}`, addr(7).Hex())
	w := postJSON(r, "/v1/threats/"+id+"/resolve", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not_initiator")
}

func TestResolveEndpointSimulateAccepted(t *testing.T) {
	r, f := setupRouter(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)
	id := frozenThreatID(t, r, f, caller.Hex(), target.Hex())

	body := fmt.Sprintf(`{"action":"simulate","caller":%q}`, caller.Hex())
	w := postJSON(r, "/v1/threats/"+id+"/resolve", body)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "simulation_requested")
}

func TestOverrideEndpoint(t *testing.T) {
	r, f := setupRouter(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)
	id := frozenThreatID(t, r, f, caller.Hex(), target.Hex())

	w := postJSON(r, "/v1/admin/threats/"+id+"/override", `{"action":"execute"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Resolution freeze.Resolution `json:"resolution"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Resolution.Executed)
}

func TestResolveEndpointBadAction(t *testing.T) {
	r, f := setupRouter(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)
	id := frozenThreatID(t, r, f, caller.Hex(), target.Hex())

	body := fmt.Sprintf(`{"action":"approve","caller":%q}`, caller.Hex())
	w := postJSON(r, "/v1/threats/"+id+"/resolve", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_action")
}

func TestListFrozenEndpoint(t *testing.T) {
	r, f := setupRouter(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)
	frozenThreatID(t, r, f, caller.Hex(), target.Hex())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/frozen", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestStatsEndpoint(t *testing.T) {
	r, f := setupRouter(t)
	target := addr(2)
	mustRegister(t, f, target, 3)

	body := submitBody(addr(1).Hex(), target.Hex(), nil, "0")
	require.Equal(t, http.StatusOK, postJSON(r, "/v1/submit", body).Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/stats", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stats Snapshot `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Stats.CallsForwarded)
}

func TestConfigEndpoints(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/admin/config", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var before struct {
		Config ConfigView `json:"config"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
	assert.Equal(t, uint64(freeze.DefaultFreezeDuration), before.Config.FreezeDuration)

	update := `{"freezeDuration":60,"maxWithdrawal":"5000","suspiciousCalls":8}`
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("PUT", "/v1/admin/config", strings.NewReader(update))
	req2.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())

	var after struct {
		Config ConfigView `json:"config"`
	}
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &after))
	assert.Equal(t, uint64(60), after.Config.FreezeDuration)
	assert.Equal(t, "5000", after.Config.MaxWithdrawal)
	assert.Equal(t, 8, after.Config.SuspiciousCalls)
	// Untouched knobs keep their values.
	assert.Equal(t, before.Config.MinBalance, after.Config.MinBalance)
}

func TestConfigUpdateRejectsBadAmount(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/v1/admin/config", strings.NewReader(`{"largeValue":"-5"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigUpdateRejectsZeroFreeze(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/v1/admin/config", strings.NewReader(`{"freezeDuration":0}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}