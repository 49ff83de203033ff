package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragchat/internal/cache"
	"github.com/fyrsmithlabs/ragchat/internal/chat"
	"github.com/fyrsmithlabs/ragchat/internal/fileindex"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
	"github.com/fyrsmithlabs/ragchat/internal/provider"
	"github.com/fyrsmithlabs/ragchat/internal/sanitize"
)

type fakeAsker struct {
	mu   sync.Mutex
	reqs []chat.AskRequest
	ans  *chat.Answer
	err  error
}

func (f *fakeAsker) Ask(_ context.Context, req chat.AskRequest) (*chat.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	ans := *f.ans
	ans.RequestID = req.RequestID
	return &ans, nil
}

func (f *fakeAsker) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeProber struct {
	configured bool
	err        error
}

func (p *fakeProber) Name() string                { return "gemini" }
func (p *fakeProber) Configured() bool            { return p.configured }
func (p *fakeProber) Probe(context.Context) error { return p.err }

type testServer struct {
	*Server
	asker  *fakeAsker
	prober *fakeProber
	cache  *chat.Cache
	logger *logging.TestLogger
}

func setupTestServer(t *testing.T, mutate ...func(*Deps)) *testServer {
	t.Helper()

	c, err := cache.New[chat.CachedAnswer](cache.Options{Metrics: metrics.NewNop()})
	require.NoError(t, err)

	asker := &fakeAsker{ans: &chat.Answer{
		Answer: "Dùng StudentController.Create.",
		Sources: []chat.Source{{
			FileName: "StudentController.cs", FilePath: "Controllers/StudentController.cs",
			CodeSnippet: "public class StudentController {}", Score: 15,
		}},
		FollowUpQuestions: []string{"Làm sao sửa sinh viên?"},
		Duration:          1500 * time.Millisecond,
	}}
	prober := &fakeProber{configured: true}
	logger := logging.NewTestLogger()

	deps := Deps{
		Chat:     asker,
		Provider: prober,
		Cache:    c,
		Gatherer: prometheus.NewRegistry(),
		Logger:   logger.Logger,
	}
	for _, m := range mutate {
		m(&deps)
	}

	server, err := NewServer(deps, &Config{Host: "localhost", Port: 0})
	require.NoError(t, err)
	return &testServer{Server: server, asker: asker, prober: prober, cache: c, logger: logger}
}

func postAsk(t *testing.T, s *Server, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp
}

func TestNewServer(t *testing.T) {
	c, err := cache.New[chat.CachedAnswer](cache.Options{})
	require.NoError(t, err)
	valid := Deps{Chat: &fakeAsker{}, Provider: &fakeProber{}, Cache: c, Logger: logging.NewNop()}

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(valid, nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
		assert.Equal(t, 10, server.config.AskRatePerMinute)
		assert.Equal(t, 2, server.config.AskBurst)
		assert.Equal(t, 5*time.Second, server.config.ProbeTimeout)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		deps := valid
		deps.Logger = nil
		_, err := NewServer(deps, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when chat is nil", func(t *testing.T) {
		deps := valid
		deps.Chat = nil
		_, err := NewServer(deps, nil)
		assert.Error(t, err)
	})

	t.Run("returns error when provider is nil", func(t *testing.T) {
		deps := valid
		deps.Provider = nil
		_, err := NewServer(deps, nil)
		assert.Error(t, err)
	})
}

func TestHandleAsk(t *testing.T) {
	t.Run("returns the answer", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postAsk(t, server.Server, `{"question":"Làm sao thêm sinh viên?"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Dùng StudentController.Create.", resp.Answer)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, "Controllers/StudentController.cs", resp.Sources[0].FilePath)
		assert.Equal(t, []string{"Làm sao sửa sinh viên?"}, resp.FollowUpQuestions)
		assert.Equal(t, int64(1500), resp.DurationMs)
		assert.False(t, resp.FromCache)
		assert.Len(t, resp.RequestID, 8)
		assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), resp.RequestID)
	})

	t.Run("uses camelCase field names", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postAsk(t, server.Server, `{"question":"Làm sao thêm sinh viên?"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		for _, k := range []string{"answer", "sources", "followUpQuestions", "requestId", "durationMs", "fromCache"} {
			assert.Contains(t, raw, k)
		}
		src := raw["sources"].([]any)[0].(map[string]any)
		for _, k := range []string{"fileName", "filePath", "codeSnippet", "score"} {
			assert.Contains(t, src, k)
		}
	})

	t.Run("role from header wins over body", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postAsk(t, server.Server, `{"question":"Làm sao thêm sinh viên?","role":"Student"}`, HeaderUserRole, "Admin")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Admin", server.asker.reqs[0].Role)
	})

	t.Run("role from body", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postAsk(t, server.Server, `{"question":"Làm sao thêm sinh viên?","role":"Teacher"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Teacher", server.asker.reqs[0].Role)
	})

	t.Run("short question is a validation error", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postAsk(t, server.Server, `{"question":"hi"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		assert.Equal(t, []string{"Question must be between 3 and 1000 characters"}, resp.Error.ValidationErrors["question"])
		assert.Equal(t, 0, server.asker.calls())
	})

	t.Run("missing question is a validation error", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postAsk(t, server.Server, `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, []string{"Question is required"}, resp.Error.ValidationErrors["question"])
	})

	t.Run("long question is a validation error", func(t *testing.T) {
		server := setupTestServer(t)

		body, err := json.Marshal(AskRequest{Question: strings.Repeat("ô", 1001)})
		require.NoError(t, err)
		rec := postAsk(t, server.Server, string(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postAsk(t, server.Server, "invalid json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Error.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		server := setupTestServer(t)

		body, err := json.Marshal(AskRequest{Question: strings.Repeat("a", 20*1024)})
		require.NoError(t, err)
		rec := postAsk(t, server.Server, string(body))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, 0, server.asker.calls())
	})
}

func TestHandleAsk_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter int
	}{
		{"invalid input", fmt.Errorf("%w: question contains potentially harmful content", sanitize.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT", 0},
		{"cancelled", fmt.Errorf("%w: context canceled", provider.ErrCancelled), StatusClientClosedRequest, "REQUEST_CANCELLED", 0},
		{"rate limited", fmt.Errorf("%w: all 2 keys", provider.ErrRateLimited), http.StatusServiceUnavailable, "EXTERNAL_API_ERROR", 60},
		{"unavailable", fmt.Errorf("%w: 503", provider.ErrServiceUnavailable), http.StatusServiceUnavailable, "EXTERNAL_API_ERROR", 0},
		{"upstream", fmt.Errorf("%w: 401", provider.ErrUpstream), http.StatusInternalServerError, "AI_SERVICE_ERROR", 0},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t)
			server.asker.err = tt.err

			rec := postAsk(t, server.Server, `{"question":"Làm sao thêm sinh viên?"}`)
			assert.Equal(t, tt.status, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.retryAfter, resp.Error.RetryAfter)
			assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), resp.RequestID)
			if tt.retryAfter > 0 {
				assert.Equal(t, "60", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestHandleAsk_RateLimited(t *testing.T) {
	server := setupTestServer(t)

	for i := 0; i < 2; i++ {
		rec := postAsk(t, server.Server, `{"question":"Làm sao thêm sinh viên?"}`)
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	rec := postAsk(t, server.Server, `{"question":"Làm sao thêm sinh viên?"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Error.Code)
	assert.Equal(t, 2, server.asker.calls())
	server.logger.AssertLogged(t, zapcore.WarnLevel, "rate limit exceeded")

	other := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"Làm sao thêm sinh viên?"}`))
	other.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	other.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per client")
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "RAG Chat API", resp.Service)
		assert.True(t, resp.Checks.AIService.Healthy)
		assert.Equal(t, "gemini", resp.Checks.AIService.Provider)
		assert.True(t, resp.Checks.Cache.Healthy)
		assert.Equal(t, 0, resp.Checks.Cache.Size)
		assert.Equal(t, "1h0m0s", resp.Checks.Cache.MaxAge)
		assert.True(t, resp.Checks.Configuration.Healthy)
	})

	t.Run("probe failure degrades", func(t *testing.T) {
		server := setupTestServer(t)
		server.prober.err = provider.ErrServiceUnavailable

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.False(t, resp.Checks.AIService.Healthy)
		assert.NotEmpty(t, resp.Checks.AIService.Error)
		assert.True(t, resp.Checks.Configuration.Healthy)
	})

	t.Run("no credentials", func(t *testing.T) {
		server := setupTestServer(t)
		server.prober.configured = false

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Checks.Configuration.Healthy)
		assert.False(t, resp.Checks.AIService.Healthy)
	})
}

func TestHandleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.CacheHits.Inc()
	server := setupTestServer(t, func(d *Deps) { d.Gatherer = reg })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ragchat_cache_hits_total 1")
}

func TestHandleRefresh(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "StudentController.cs"), []byte("class StudentController {}"), 0o600))

	idx, err := fileindex.New(fileindex.Options{Root: root, TTL: time.Minute, Extensions: []string{".cs"}})
	require.NoError(t, err)
	server := setupTestServer(t, func(d *Deps) { d.Index = idx })

	req := httptest.NewRequest(http.MethodPost, "/index/refresh", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Files)
	assert.False(t, resp.ScannedAt.IsZero())
	assert.False(t, idx.Stale())
}

func TestHandleRefresh_NotRegisteredWithoutIndex(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/index/refresh", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
}

func TestServerLifecycle(t *testing.T) {
	server := setupTestServer(t)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Regexp(t, `^[0-9a-f]{8}$`, rec.Header().Get(echo.HeaderXRequestID))
		server.logger.AssertField(t, "http request", "request.id", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t)
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		rec := httptest.NewRecorder()
		assert.NotPanics(t, func() {
			server.echo.ServeHTTP(rec, req)
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Error.Code)
	})

	t.Run("handler returns the server", func(t *testing.T) {
		server := setupTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader([]byte(`{"question":"Làm sao thêm sinh viên?"}`)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
