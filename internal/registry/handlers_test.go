package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service := NewService(NewMemoryStore(), testLogger())
	h := NewHandler(service)

	r := gin.New()
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	h.RegisterAdminRoutes(v1.Group("/admin"))
	return r, service
}

func TestRegisterTargetEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	body := `{"address":"0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa","protectionLevel":4}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/targets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Target ProtectedTarget `json:"target"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Target.ProtectionLevel)
	assert.True(t, resp.Target.Protected)
}

func TestRegisterTargetRejectsBadLevel(t *testing.T) {
	r, _ := setupRouter(t)

	body := `{"address":"0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa","protectionLevel":9}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/targets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterTargetRejectsBadAddress(t *testing.T) {
	r, _ := setupRouter(t)

	body := `{"address":"not-an-address","protectionLevel":3}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/targets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTargetEndpoint(t *testing.T) {
	r, service := setupRouter(t)
	addr := testAddr(1)
	_, err := service.Register(t.Context(), addr, 2)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/targets/"+addr.Hex(), nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGetTargetNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/targets/"+testAddr(9).Hex(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeregisterEndpoint(t *testing.T) {
	r, service := setupRouter(t)
	addr := testAddr(2)
	_, err := service.Register(t.Context(), addr, 3)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/v1/admin/targets/"+addr.Hex(), nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ok, err := service.IsProtected(t.Context(), addr)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeregisterUnprotectedTarget(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/v1/admin/targets/"+testAddr(8).Hex(), nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "not_protected")
}

func TestListTargetsEndpoint(t *testing.T) {
	r, service := setupRouter(t)
	_, _ = service.Register(t.Context(), testAddr(3), 1)
	_, _ = service.Register(t.Context(), testAddr(4), 5)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/targets", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}
