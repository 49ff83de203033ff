// Package provider generates answers from an LLM backend, rotating over a
// pool of API keys when one is rate limited.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Kind selects the prompt template and generation parameters.
type Kind int

const (
	// KindAnswer answers a question from retrieved source context.
	KindAnswer Kind = iota
	// KindFollowUp suggests questions that follow a previous answer.
	KindFollowUp
	// KindProbe is a minimal call used by health checks.
	KindProbe
)

func (k Kind) String() string {
	switch k {
	case KindAnswer:
		return "answer"
	case KindFollowUp:
		return "followup"
	case KindProbe:
		return "probe"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is one generation request.
type Request struct {
	Question string
	// Context is the retrieved source text for KindAnswer and the answer
	// excerpt for KindFollowUp.
	Context string
	Role    string
	Kind    Kind
}

// Provider generates text for a Request.
type Provider interface {
	Name() string
	Configured() bool
	Generate(ctx context.Context, req Request) (string, error)
}

// Backend makes exactly one upstream call with one API key. A non-2xx
// reply is returned as a *StatusError.
type Backend interface {
	Name() string
	Call(ctx context.Context, apiKey string, req Request) (string, error)
}

const baseSystemPrompt = "AI Assistant for Student Management System (ASP.NET Core 8 + Angular 17).\n" +
	"Answer in Vietnamese. Be concise. Use code examples from context when relevant."

const probePrompt = "Reply with OK."

// SystemPrompt returns the system instruction, naming role when set.
func SystemPrompt(role string) string {
	if role = strings.TrimSpace(role); role != "" {
		return baseSystemPrompt + " User: " + role
	}
	return baseSystemPrompt
}

// FollowUpPrompt asks for three short follow-up questions, one per line.
func FollowUpPrompt(question, answerExcerpt string) string {
	var b strings.Builder
	b.WriteString("Dựa vào câu hỏi và câu trả lời dưới đây, gợi ý 3 câu hỏi tiếp theo mà người dùng có thể quan tâm.\n\n")
	b.WriteString("Câu hỏi: ")
	b.WriteString(question)
	b.WriteString("\nCâu trả lời: ")
	b.WriteString(answerExcerpt)
	b.WriteString("...\n\n")
	b.WriteString("Yêu cầu:\n")
	b.WriteString("- Chỉ trả về 3 câu hỏi, mỗi câu một dòng\n")
	b.WriteString("- Không đánh số, không gạch đầu dòng\n")
	b.WriteString("- Ngắn gọn, liên quan đến ASP.NET Core hoặc Angular")
	return b.String()
}

// params are the sampling settings for one Kind.
type params struct {
	Temperature float32
	TopP        float32
	TopK        float32
	MaxTokens   int32
}

// geminiParams returns the Gemini generation settings for k.
func geminiParams(k Kind) params {
	switch k {
	case KindFollowUp:
		return params{Temperature: 0.8, MaxTokens: 200}
	case KindProbe:
		return params{Temperature: 0, MaxTokens: 5}
	default:
		return params{Temperature: 1.0, TopP: 0.8, TopK: 1, MaxTokens: 800}
	}
}

// openAIParams returns the OpenAI chat settings for k.
func openAIParams(k Kind) params {
	switch k {
	case KindFollowUp:
		return params{Temperature: 0.8, MaxTokens: 200}
	case KindProbe:
		return params{Temperature: 0, MaxTokens: 5}
	default:
		return params{Temperature: 0.7, MaxTokens: 1500}
	}
}

// geminiPrompt renders req as a single Gemini prompt.
func geminiPrompt(req Request) string {
	switch req.Kind {
	case KindFollowUp:
		return FollowUpPrompt(req.Question, req.Context)
	case KindProbe:
		return probePrompt
	default:
		return SystemPrompt(req.Role) + "\n\nContext:\n" + req.Context + "\n\nQ: " + req.Question + "\nA:"
	}
}

// openAIMessages renders req as chat messages.
func openAIMessages(req Request) []chatMessage {
	switch req.Kind {
	case KindFollowUp:
		return []chatMessage{{Role: "user", Content: FollowUpPrompt(req.Question, req.Context)}}
	case KindProbe:
		return []chatMessage{{Role: "user", Content: probePrompt}}
	default:
		return []chatMessage{
			{Role: "system", Content: SystemPrompt(req.Role)},
			{Role: "user", Content: req.Context + "\n\n---\n\nQuestion: " + req.Question},
		}
	}
}
