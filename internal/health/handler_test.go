package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestReady(t *testing.T) {
	t.Parallel()

	ok := NewHandler(pinger{}, time.Now(), ":8080", "tok", nil)
	rec := httptest.NewRecorder()
	ok.Ready(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewHandler(pinger{err: errors.New("refused")}, time.Now(), ":8080", "tok", nil)
	rec = httptest.NewRecorder()
	down.Ready(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestFullRequiresToken(t *testing.T) {
	t.Parallel()

	h := NewHandler(pinger{}, time.Now(), ":8080", "tok", func() map[string]int {
		return map[string]int{"active_alterations": 2}
	})
	rec := httptest.NewRecorder()
	h.Full(rec, httptest.NewRequest(http.MethodGet, "/health/full", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/health/full", nil)
	req.Header.Set("X-Internal-Token", "tok")
	rec = httptest.NewRecorder()
	h.Full(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Engine map[string]int `json:"engine"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Engine["active_alterations"])
}
