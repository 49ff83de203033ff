package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash-exp"

// GeminiOptions configures the Gemini backend.
type GeminiOptions struct {
	Model string
	// BaseURL overrides the Gemini API endpoint, for tests and proxies.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini is a Backend over the Gemini API. One genai client is kept per
// API key.
type Gemini struct {
	model      string
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGemini creates a Gemini backend.
func NewGemini(opts GeminiOptions) *Gemini {
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		model:      model,
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		clients:    make(map[string]*genai.Client),
	}
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cli, ok := g.clients[apiKey]; ok {
		return cli, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %v", ErrUpstream, err)
	}
	g.clients[apiKey] = cli
	return cli, nil
}

// Call sends one generateContent request with apiKey.
func (g *Gemini) Call(ctx context.Context, apiKey string, req Request) (string, error) {
	cli, err := g.client(ctx, apiKey)
	if err != nil {
		return "", err
	}

	p := geminiParams(req.Kind)
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.Temperature),
		MaxOutputTokens: p.MaxTokens,
	}
	if p.TopP > 0 {
		cfg.TopP = genai.Ptr(p.TopP)
	}
	if p.TopK > 0 {
		cfg.TopK = genai.Ptr(p.TopK)
	}

	resp, err := cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: geminiPrompt(req)}}}},
		cfg,
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Code: apiErr.Code, Message: apiErr.Message}
		}
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response from gemini", ErrUpstream)
	}
	return text, nil
}

var _ Backend = (*Gemini)(nil)
