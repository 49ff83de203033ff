package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Call(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Xem GradeService.  "}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIOptions{BaseURL: srv.URL + "/"})
	text, err := o.Call(context.Background(), "sk-test", Request{Question: "điểm?", Context: "[GradeService.cs]\n..."})
	require.NoError(t, err)
	assert.Equal(t, "Xem GradeService.", text)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
	assert.Equal(t, int32(1500), got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, SystemPrompt(""), got.Messages[0].Content)
	assert.Equal(t, "[GradeService.cs]\n...\n\n---\n\nQuestion: điểm?", got.Messages[1].Content)
}

func TestOpenAI_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`, "Rate limit reached"},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`, "Incorrect API key"},
		{"plain body", http.StatusBadGateway, `upstream hiccup`, "upstream hiccup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenAI(OpenAIOptions{BaseURL: srv.URL}).Call(context.Background(), "k", Request{Question: "q"})
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Code)
			assert.Equal(t, tt.msg, se.Message)
		})
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(OpenAIOptions{BaseURL: srv.URL}).Call(context.Background(), "k", Request{Question: "q"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestOpenAI_FollowUpMessages(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(OpenAIOptions{BaseURL: srv.URL}).Call(context.Background(), "k",
		Request{Kind: KindFollowUp, Question: "q", Context: "a"})
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, FollowUpPrompt("q", "a"), got.Messages[0].Content)
	assert.Equal(t, int32(200), got.MaxTokens)
}

func TestSystemPrompt(t *testing.T) {
	assert.NotContains(t, SystemPrompt(""), "User:")
	assert.True(t, len(SystemPrompt(" Teacher ")) > len(SystemPrompt("")))
	assert.Contains(t, SystemPrompt(" Teacher "), " User: Teacher")
}
