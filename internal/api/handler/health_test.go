package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	specpkg "github.com/botdesk/botdesk/api"
	"github.com/botdesk/botdesk/internal/api/handler"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type healthEnvelope struct {
	Data struct {
		Status   string `json:"status"`
		Version  string `json:"version"`
		Database struct {
			Configured bool `json:"configured"`
			Connected  bool `json:"connected"`
		} `json:"database"`
	} `json:"data"`
}

func getHealth(t *testing.T, h *handler.HealthHandler) healthEnvelope {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env healthEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealth_Healthy(t *testing.T) {
	env := getHealth(t, handler.NewHealthHandler(stubPinger{}, "1.2.3"))

	assert.Equal(t, "healthy", env.Data.Status)
	assert.Equal(t, "1.2.3", env.Data.Version)
	assert.True(t, env.Data.Database.Configured)
	assert.True(t, env.Data.Database.Connected)
}

func TestHealth_DatabaseDown(t *testing.T) {
	env := getHealth(t, handler.NewHealthHandler(stubPinger{err: errors.New("down")}, "dev"))

	assert.Equal(t, "degraded", env.Data.Status)
	assert.False(t, env.Data.Database.Connected)
}

func TestHealth_MemoryStorage(t *testing.T) {
	env := getHealth(t, handler.NewHealthHandler(nil, "dev"))

	assert.Equal(t, "healthy", env.Data.Status)
	assert.False(t, env.Data.Database.Configured)
}

func TestOpenAPIHandler_ServesJSON(t *testing.T) {
	require.NotEmpty(t, specpkg.OpenAPISpec, "embedded OpenAPI spec should not be empty")

	h := handler.NewOpenAPIHandler(specpkg.OpenAPISpec, "")
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc), "embedded spec should produce valid JSON")
	assert.Equal(t, "3.0.3", doc["openapi"])
}

func TestOpenAPIHandler_StampsVersion(t *testing.T) {
	h := handler.NewOpenAPIHandler(specpkg.OpenAPISpec, "1.4.2")

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var doc struct {
			Info struct {
				Version string `json:"version"`
			} `json:"info"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "1.4.2", doc.Info.Version)
	}
}

func TestOpenAPIHandler_MissingInfo(t *testing.T) {
	h := handler.NewOpenAPIHandler([]byte("openapi: 3.0.3\npaths: {}\n"), "1.0.0")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOpenAPIHandler_InvalidYAML(t *testing.T) {
	h := handler.NewOpenAPIHandler([]byte("a: [unclosed"), "")
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
