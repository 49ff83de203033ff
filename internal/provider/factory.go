package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/ragchat/internal/config"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
)

// New builds the configured backend wrapped in key rotation.
func New(cfg config.AIConfig, logger *logging.Logger, m *metrics.Metrics) (*Rotating, error) {
	httpClient := &http.Client{Timeout: time.Duration(cfg.RequestTimeout)}

	var backend Backend
	switch cfg.Provider {
	case config.ProviderGemini:
		backend = NewGemini(GeminiOptions{Model: cfg.Model, BaseURL: cfg.BaseURL, HTTPClient: httpClient})
	case config.ProviderOpenAI:
		backend = NewOpenAI(OpenAIOptions{Model: cfg.Model, BaseURL: cfg.BaseURL, HTTPClient: httpClient})
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}

	return NewRotating(backend, NewCredentialPool(cfg.APIKeys.Values()), RotatingOptions{
		RetryDelay:        time.Duration(cfg.RetryDelay),
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger,
		Metrics:           m,
	}), nil
}
