package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/chat"
	"github.com/fyrsmithlabs/ragchat/internal/sanitize"
)

// HeaderUserRole carries the caller's role when the body does not.
const HeaderUserRole = "X-User-Role"

const (
	serviceName   = "RAG Chat API"
	cacheWarnSize = 10000
)

// AskRequest is the request body for POST /ask.
type AskRequest struct {
	Question string `json:"question"`
	Role     string `json:"role,omitempty"`
}

// AskResponse is the response body for POST /ask.
type AskResponse struct {
	Answer            string        `json:"answer"`
	Sources           []chat.Source `json:"sources"`
	FollowUpQuestions []string      `json:"followUpQuestions"`
	RequestID         string        `json:"requestId"`
	DurationMs        int64         `json:"durationMs"`
	FromCache         bool          `json:"fromCache"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string       `json:"status"`
	Service   string       `json:"service"`
	Timestamp time.Time    `json:"timestamp"`
	Checks    HealthChecks `json:"checks"`
}

// HealthChecks holds the individual health checks.
type HealthChecks struct {
	AIService     AIServiceCheck     `json:"aiService"`
	Cache         CacheCheck         `json:"cache"`
	Configuration ConfigurationCheck `json:"configuration"`
}

// AIServiceCheck is the result of a live provider probe.
type AIServiceCheck struct {
	Healthy      bool   `json:"healthy"`
	Provider     string `json:"provider"`
	Configured   bool   `json:"configured"`
	ResponseTime string `json:"responseTime,omitempty"`
	Error        string `json:"error,omitempty"`
}

// CacheCheck reports the response cache size.
type CacheCheck struct {
	Healthy bool   `json:"healthy"`
	Size    int    `json:"size"`
	MaxAge  string `json:"maxAge"`
	Warning string `json:"warning,omitempty"`
}

// ConfigurationCheck reports whether credentials are loaded.
type ConfigurationCheck struct {
	Healthy  bool   `json:"healthy"`
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

// RefreshResponse is the response body for POST /index/refresh.
type RefreshResponse struct {
	Files     int       `json:"files"`
	ScannedAt time.Time `json:"scannedAt"`
}

func (s *Server) handleAsk(c echo.Context) error {
	ctx := c.Request().Context()

	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid ask request", zap.Error(err))
		return s.fail(c, http.StatusBadRequest, apiError{
			Code:             "VALIDATION_ERROR",
			Message:          "Invalid request data",
			ValidationErrors: map[string][]string{"body": {"Request body must be a JSON object"}},
		})
	}
	if msg := validateQuestion(req.Question); msg != "" {
		return s.fail(c, http.StatusBadRequest, apiError{
			Code:             "VALIDATION_ERROR",
			Message:          "Invalid request data",
			ValidationErrors: map[string][]string{"question": {msg}},
		})
	}

	role := strings.TrimSpace(c.Request().Header.Get(HeaderUserRole))
	if role == "" {
		role = strings.TrimSpace(req.Role)
	}

	ans, err := s.deps.Chat.Ask(ctx, chat.AskRequest{
		Question:  req.Question,
		Role:      role,
		RequestID: requestID(c),
	})
	if err != nil {
		status, body := errorResponse(err)
		return s.fail(c, status, body)
	}

	sources := ans.Sources
	if sources == nil {
		sources = []chat.Source{}
	}
	followUps := ans.FollowUpQuestions
	if followUps == nil {
		followUps = []string{}
	}
	return c.JSON(http.StatusOK, AskResponse{
		Answer:            ans.Answer,
		Sources:           sources,
		FollowUpQuestions: followUps,
		RequestID:         ans.RequestID,
		DurationMs:        ans.Duration.Milliseconds(),
		FromCache:         ans.FromCache,
	})
}

// validateQuestion returns a field message for a question outside the
// accepted length, or "" when it is acceptable.
func validateQuestion(q string) string {
	n := utf8.RuneCountInString(strings.TrimSpace(q))
	switch {
	case n == 0:
		return "Question is required"
	case n < sanitize.MinQuestionLength || n > sanitize.MaxQuestionLength:
		return fmt.Sprintf("Question must be between %d and %d characters",
			sanitize.MinQuestionLength, sanitize.MaxQuestionLength)
	}
	return ""
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	checks := HealthChecks{
		AIService:     s.checkAIService(ctx),
		Cache:         s.checkCache(),
		Configuration: s.checkConfiguration(),
	}
	healthy := checks.AIService.Healthy && checks.Cache.Healthy && checks.Configuration.Healthy

	resp := HealthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: s.now().UTC(),
		Checks:    checks,
	}
	if !healthy {
		resp.Status = "degraded"
		s.logger.Warn(ctx, "health check degraded",
			zap.Bool("ai_service", checks.AIService.Healthy),
			zap.Bool("cache", checks.Cache.Healthy),
			zap.Bool("configuration", checks.Configuration.Healthy))
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) checkAIService(ctx context.Context) AIServiceCheck {
	p := s.deps.Provider
	check := AIServiceCheck{Provider: p.Name(), Configured: p.Configured()}
	if !check.Configured {
		check.Error = "no API credentials configured"
		return check
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	defer cancel()

	start := time.Now()
	if err := p.Probe(ctx); err != nil {
		check.Error = err.Error()
		return check
	}
	check.Healthy = true
	check.ResponseTime = fmt.Sprintf("%dms", time.Since(start).Milliseconds())
	return check
}

func (s *Server) checkCache() CacheCheck {
	size := s.deps.Cache.Len()
	check := CacheCheck{
		Healthy: size < cacheWarnSize,
		Size:    size,
		MaxAge:  s.deps.Cache.TTL().String(),
	}
	if !check.Healthy {
		check.Warning = "Cache size is large, consider clearing old entries"
	}
	return check
}

func (s *Server) checkConfiguration() ConfigurationCheck {
	p := s.deps.Provider
	if p.Configured() {
		return ConfigurationCheck{Healthy: true, Provider: p.Name(), Message: "AI service is properly configured"}
	}
	return ConfigurationCheck{Provider: p.Name(), Message: "AI service is not configured. Set ai.api_keys or AI_API_KEYS"}
}

func (s *Server) handleRefresh(c echo.Context) error {
	ctx := c.Request().Context()

	s.deps.Index.Invalidate()
	files, err := s.deps.Index.Files(ctx)
	if err != nil {
		s.logger.Error(ctx, "index refresh failed", zap.Error(err))
		return s.fail(c, http.StatusInternalServerError, apiError{
			Code:    "INDEX_ERROR",
			Message: "Failed to refresh the file index",
			Details: err.Error(),
		})
	}

	s.logger.Info(ctx, "index refreshed", zap.Int("files", len(files)))
	return c.JSON(http.StatusOK, RefreshResponse{Files: len(files), ScannedAt: s.deps.Index.LastScan().UTC()})
}
