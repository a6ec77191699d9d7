package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/valuation/internal/draft"
	"github.com/matthewbaird/valuation/internal/store"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRecovery(t *testing.T) {
	logs := observeLogs(t)
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/valuations", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec)["code"])
	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["panic"])
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogging(t *testing.T) {
	logs := observeLogs(t)
	h := middleware.RequestID(Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "x")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/valuations", nil)
	req.Header.Set("X-Actor", "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	all := logs.FilterMessage("request").All()
	require.Len(t, all, 2)

	ok := all[0].ContextMap()
	assert.Equal(t, zap.InfoLevel, all[0].Level)
	assert.Equal(t, "POST", ok["method"])
	assert.Equal(t, int64(http.StatusCreated), ok["status"])
	assert.Equal(t, "alice", ok["actor"])
	assert.NotEmpty(t, ok["request_id"])

	assert.Equal(t, zap.WarnLevel, all[1].Level)
	assert.Equal(t, int64(http.StatusInternalServerError), all[1].ContextMap()["status"])
}

func TestStoreErrorToHTTP(t *testing.T) {
	observeLogs(t)
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{store.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("loading: %w", draft.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{store.ErrNotEditable, http.StatusConflict, "NOT_EDITABLE"},
		{store.ErrConflict, http.StatusConflict, "INVALID_TRANSITION"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			storeErrorToHTTP(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec)["code"])
		})
	}
}

func TestStoreErrorToHTTP_HidesInternalDetail(t *testing.T) {
	logs := observeLogs(t)
	rec := httptest.NewRecorder()
	storeErrorToHTTP(rec, errors.New("disk on fire"))
	assert.NotContains(t, rec.Body.String(), "disk on fire")
	assert.Equal(t, 1, logs.FilterMessage("internal error").Len())
}

func TestParseAuditContext(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := parseAuditContext(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_ACTOR", decodeError(t, rec)["code"])

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Actor", "meera")
	req.Header.Set("X-Role", "manager")
	req.Header.Set("X-Correlation-ID", "c-1")
	info, ok := parseAuditContext(httptest.NewRecorder(), req)
	require.True(t, ok)
	assert.Equal(t, "meera", info.Actor)
	assert.Equal(t, "user", info.Source)
	assert.True(t, info.IsManager())
	require.NotNil(t, info.CorrelationID)
	assert.Equal(t, "c-1", *info.CorrelationID)
}

func TestParsePagination(t *testing.T) {
	p := parsePagination(httptest.NewRequest(http.MethodGet, "/?page_size=500&offset=40", nil))
	assert.Equal(t, Pagination{Limit: 100, Offset: 40}, p)

	p = parsePagination(httptest.NewRequest(http.MethodGet, "/?page_size=-1&offset=x", nil))
	assert.Equal(t, Pagination{Limit: 20, Offset: 0}, p)
}

func TestParseUUID(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		if id, ok := parseUUID(w, r, "id"); ok {
			got = id
			w.WriteHeader(http.StatusNoContent)
		}
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/3F2A9C1E-0000-4000-8000-000000000000", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "3f2a9c1e-0000-4000-8000-000000000000", got)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decodeError(t, rec)["error"], "invalid UUID"))
}
