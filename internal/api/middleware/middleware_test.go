package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/propledger/internal/api/middleware"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func TestLogging(t *testing.T) {
	t.Run("logs request and passes through", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		wrapped := middleware.Logging(logger)(http.HandlerFunc(ok))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(middleware.OrganizationHeader, "org-1")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "/test", entry["path"])
		assert.Equal(t, "org-1", entry["organization_id"])
		assert.EqualValues(t, 200, entry["status"])
	})

	t.Run("captures non-200 status codes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		wrapped := middleware.Logging(logger)(handler)

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/down", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "ERROR", entry["level"])
		assert.EqualValues(t, 503, entry["status"])
	})
}

func TestCORS(t *testing.T) {
	cfg := middleware.CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}

	wrapped := middleware.CORS(cfg)(http.HandlerFunc(ok))

	t.Run("sets CORS headers for allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("does not set CORS headers for disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://evil.com")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("handles OPTIONS preflight request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard allows any origin without credentials", func(t *testing.T) {
		any := middleware.CORS(middleware.CORSConfig{AllowedOrigins: []string{"*"}})(http.HandlerFunc(ok))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "https://books.example.com")
		rec := httptest.NewRecorder()

		any.ServeHTTP(rec, req)

		assert.Equal(t, "https://books.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := middleware.DefaultCORSConfig()

	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:3000")
	assert.Contains(t, cfg.AllowedMethods, "GET")
	assert.Contains(t, cfg.AllowedHeaders, middleware.OrganizationHeader)
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("rejects requests over the burst", func(t *testing.T) {
		wrapped := middleware.RateLimit(0.001, 2, logger)(http.HandlerFunc(ok))

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules", nil))
			codes = append(codes, rec.Code)
		}

		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("zero rate disables limiting", func(t *testing.T) {
		wrapped := middleware.RateLimit(0, 0, logger)(http.HandlerFunc(ok))

		for i := 0; i < 10; i++ {
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestOrganization(t *testing.T) {
	var seen string
	wrapped := middleware.Organization(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.OrganizationFrom(r.Context()).OrganizationID
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("stores organization in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
		req.Header.Set(middleware.OrganizationHeader, " org-1 ")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "org-1", seen)
	})

	t.Run("rejects missing organization", func(t *testing.T) {
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "ORGANIZATION_REQUIRED")
	})
}
