package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/provider"
	"github.com/fyrsmithlabs/ragchat/internal/sanitize"
)

// StatusClientClosedRequest is returned when the caller went away before
// an answer was produced.
const StatusClientClosedRequest = 499

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     apiError  `json:"error"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type apiError struct {
	Code             string              `json:"code"`
	Message          string              `json:"message"`
	Details          string              `json:"details,omitempty"`
	ValidationErrors map[string][]string `json:"validationErrors,omitempty"`
	RetryAfter       int                 `json:"retryAfter,omitempty"`
}

// errorResponse maps a pipeline error to its status and body.
func errorResponse(err error) (int, apiError) {
	switch {
	case errors.Is(err, sanitize.ErrInvalidInput):
		return http.StatusBadRequest, apiError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, provider.ErrCancelled), errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, apiError{Code: "REQUEST_CANCELLED", Message: "Request was cancelled"}
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusServiceUnavailable, apiError{
			Code:       "EXTERNAL_API_ERROR",
			Message:    "AI service is rate limited. Please try again later.",
			Details:    err.Error(),
			RetryAfter: 60,
		}
	case errors.Is(err, provider.ErrServiceUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, apiError{
			Code:    "EXTERNAL_API_ERROR",
			Message: "AI service is temporarily unavailable. Please try again later.",
			Details: err.Error(),
		}
	case errors.Is(err, provider.ErrUpstream):
		return http.StatusInternalServerError, apiError{
			Code:    "AI_SERVICE_ERROR",
			Message: "Failed to generate answer. Please try again.",
			Details: err.Error(),
		}
	default:
		return http.StatusInternalServerError, apiError{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred. Please try again.",
			Details: err.Error(),
		}
	}
}

func (s *Server) fail(c echo.Context, status int, e apiError) error {
	if e.RetryAfter > 0 {
		c.Response().Header().Set("Retry-After", "60")
	}
	return c.JSON(status, ErrorResponse{
		Success:   false,
		Error:     e,
		RequestID: requestID(c),
		Timestamp: s.now().UTC(),
	})
}

// handleError renders errors that escape handlers, such as routing misses
// and body limit rejections, in the same shape as pipeline errors.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := apiError{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred. Please try again."}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch status {
		case http.StatusNotFound:
			body = apiError{Code: "NOT_FOUND", Message: "Resource not found"}
		case http.StatusMethodNotAllowed:
			body = apiError{Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed"}
		case http.StatusRequestEntityTooLarge:
			body = apiError{Code: "VALIDATION_ERROR", Message: "Request body too large"}
		case http.StatusBadRequest:
			body = apiError{Code: "VALIDATION_ERROR", Message: "Invalid request data"}
		case http.StatusInternalServerError:
		default:
			body = apiError{Code: "HTTP_ERROR", Message: http.StatusText(status)}
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "unhandled request error", zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	if werr := s.fail(c, status, body); werr != nil {
		s.logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(werr))
	}
}
