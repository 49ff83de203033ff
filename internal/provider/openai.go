package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4-turbo-preview"

	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultTimeout       = 60 * time.Second
	maxErrorBody         = 512
)

// OpenAIOptions configures the OpenAI backend.
type OpenAIOptions struct {
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAI is a Backend over the chat completions API.
type OpenAI struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	o := &OpenAI{
		model:      opts.Model,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
	}
	if o.model == "" {
		o.model = DefaultOpenAIModel
	}
	if o.baseURL == "" {
		o.baseURL = defaultOpenAIBaseURL
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return o
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int32         `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Name returns "openai".
func (o *OpenAI) Name() string { return "openai" }

// Call sends one chat completion request with apiKey.
func (o *OpenAI) Call(ctx context.Context, apiKey string, req Request) (string, error) {
	p := openAIParams(req.Kind)
	body, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    openAIMessages(req),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrUpstream, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading openai response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := ""
		var errResp chatError
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		} else {
			msg = truncate(string(data), maxErrorBody)
		}
		return "", &StatusError{Code: resp.StatusCode, Message: msg}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrUpstream, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty response from openai", ErrUpstream)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Backend = (*OpenAI)(nil)
