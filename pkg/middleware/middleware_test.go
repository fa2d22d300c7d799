package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/workflow-console/pkg/composables"
	"github.com/iota-uz/workflow-console/pkg/constants"
	"github.com/iota-uz/workflow-console/pkg/httpapi"
)

func TestWithLogger_PropagatesRequestIDAndLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	var seenID string
	var seenBody string
	h := WithLogger(logger, DefaultLoggerOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = composables.UseRequestID(r.Context())
		_, ok := composables.UseRequestStart(r.Context())
		require.True(t, ok)
		b, _ := io.ReadAll(r.Body)
		seenBody = string(b)
		composables.UseLogger(r.Context()).Info("inside")
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/workflows/api/sessions", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "req-42", seenID)
	require.Equal(t, `{"a":1}`, seenBody)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))

	var inside *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "inside" {
			inside = e
		}
	}
	require.NotNil(t, inside)
	require.Equal(t, "req-42", inside.Data["request-id"])
}

func TestWithLogger_RecoversPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := WithLogger(logger, DefaultLoggerOptions())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Equal(t, "INTERNAL_SERVER_ERROR", env.Code)
	require.NotEmpty(t, env.Meta["request_id"])
	require.Equal(t, "panic recovered in request handler", hook.LastEntry().Message)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mw := RateLimit(RateLimitConfig{
		RequestsPerPeriod: 1,
		Store:             NewMemoryStore(),
		KeyFunc:           func(*http.Request) string { return "fixed" },
	})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Equal(t, "RATE_LIMITED", env.Code)
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	h := RateLimit(RateLimitConfig{RequestsPerPeriod: 0})(next)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestProvide(t *testing.T) {
	var got any
	h := Provide(constants.AppKey, "app")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Context().Value(constants.AppKey)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "app", got)
}

func TestCors_Preflight(t *testing.T) {
	h := Cors("http://localhost:3000")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/workflows/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
