// Package chat runs the ask pipeline: sanitize, cache lookup, retrieval,
// generation, caching and follow-up suggestions.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/cache"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
	"github.com/fyrsmithlabs/ragchat/internal/provider"
	"github.com/fyrsmithlabs/ragchat/internal/retrieval"
	"github.com/fyrsmithlabs/ragchat/internal/sanitize"
	"github.com/fyrsmithlabs/ragchat/internal/secrets"
)

const (
	tracerName = "github.com/fyrsmithlabs/ragchat/internal/chat"

	// DefaultTopK is the number of files retrieved per question.
	DefaultTopK = 5

	snippetRunes = 500
)

// Stage is a step of the ask pipeline.
type Stage int

const (
	StageIdle Stage = iota
	StageSanitizing
	StageCacheCheck
	StageCacheHit
	StageRetrieving
	StageGenerating
	StageFollowUp
	StageDone
	StageFailed
)

var stageNames = [...]string{
	"idle", "sanitizing", "cache_check", "cache_hit", "retrieving",
	"generating", "follow_up", "done", "failed",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageObserver is told of every stage transition of one Ask call.
type StageObserver func(ctx context.Context, stage Stage)

// Source is a file cited by an answer.
type Source struct {
	FileName    string  `json:"fileName"`
	FilePath    string  `json:"filePath"`
	CodeSnippet string  `json:"codeSnippet"`
	Score       float64 `json:"score"`
}

// CachedAnswer is what the response cache stores per question.
type CachedAnswer struct {
	Answer  string
	Sources []Source
}

// Cache is the response cache used by Service.
type Cache = cache.ResponseCache[CachedAnswer]

// AskRequest is one question.
type AskRequest struct {
	Question string
	Role     string
	// RequestID is generated when empty.
	RequestID string
}

// Answer is the pipeline result.
type Answer struct {
	Answer            string
	Sources           []Source
	FollowUpQuestions []string
	RequestID         string
	Duration          time.Duration
	FromCache         bool
}

// Options configures a Service.
type Options struct {
	Retriever retrieval.Retriever
	Provider  provider.Provider
	Cache     *Cache
	FollowUps *FollowUps
	Scrubber  secrets.Scrubber
	TopK      int
	Observer  StageObserver

	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

// Service answers questions about the indexed codebase.
type Service struct {
	retriever retrieval.Retriever
	provider  provider.Provider
	cache     *Cache
	followUps *FollowUps
	scrubber  secrets.Scrubber
	topK      int
	observer  StageObserver

	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewService creates a Service. Retriever, Provider and Cache are required.
func NewService(opts Options) (*Service, error) {
	if opts.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache is required")
	}

	s := &Service{
		retriever: opts.Retriever,
		provider:  opts.Provider,
		cache:     opts.Cache,
		followUps: opts.FollowUps,
		scrubber:  opts.Scrubber,
		topK:      opts.TopK,
		observer:  opts.Observer,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
	}
	if s.topK <= 0 {
		s.topK = DefaultTopK
	}
	if s.scrubber == nil {
		s.scrubber = secrets.Noop{}
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.followUps == nil {
		s.followUps = NewFollowUps(s.provider, s.logger, s.metrics)
	}
	return s, nil
}

// Provider returns the answer provider.
func (s *Service) Provider() provider.Provider { return s.provider }

// Cache returns the response cache.
func (s *Service) Cache() *Cache { return s.cache }

// NewRequestID returns the first eight hex characters of a random UUID.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Ask runs the pipeline for one question. Errors keep their kind:
// sanitize.ErrInvalidInput, or one of the provider errors.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = logging.RequestIDFromContext(ctx)
	}
	if requestID == "" {
		requestID = NewRequestID()
	}
	ctx = logging.WithRequestID(ctx, requestID)
	if req.Role != "" {
		ctx = logging.WithRole(ctx, req.Role)
	}

	ctx, span := s.tracer.Start(ctx, "chat.Ask", trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()

	ans, outcome, err := s.ask(ctx, req)
	s.metrics.AskDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		s.observe(ctx, span, StageFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.logFailure(ctx, outcome, err)
		return nil, err
	}

	ans.RequestID = requestID
	ans.Duration = time.Since(start)
	s.observe(ctx, span, StageDone)
	span.SetAttributes(
		attribute.Bool("from_cache", ans.FromCache),
		attribute.Int("sources", len(ans.Sources)),
	)
	span.SetStatus(codes.Ok, outcome)
	s.logger.Info(ctx, "question answered",
		zap.Bool("from_cache", ans.FromCache),
		zap.Int("sources", len(ans.Sources)),
		zap.Int("follow_ups", len(ans.FollowUpQuestions)),
		zap.Duration("duration", ans.Duration))
	return ans, nil
}

func (s *Service) ask(ctx context.Context, req AskRequest) (*Answer, string, error) {
	span := trace.SpanFromContext(ctx)

	s.observe(ctx, span, StageSanitizing)
	if err := sanitize.ValidateQuestion(req.Question); err != nil {
		return nil, "invalid_input", err
	}
	question, err := sanitize.Question(req.Question)
	if err != nil {
		return nil, "invalid_input", err
	}

	s.observe(ctx, span, StageCacheCheck)
	if hit, ok := s.cache.Get(question); ok {
		s.observe(ctx, span, StageCacheHit)
		s.observe(ctx, span, StageFollowUp)
		return &Answer{
			Answer:            hit.Answer,
			Sources:           hit.Sources,
			FollowUpQuestions: s.followUps.Suggest(ctx, question, hit.Answer),
			FromCache:         true,
		}, "cache_hit", nil
	}

	s.observe(ctx, span, StageRetrieving)
	docs, err := s.retriever.FindRelevant(ctx, question, s.topK)
	if err != nil {
		s.logger.Warn(ctx, "retrieval failed, answering without context", zap.Error(err))
		docs = nil
	}
	docs = s.scrub(ctx, docs)

	s.observe(ctx, span, StageGenerating)
	text, err := s.provider.Generate(ctx, provider.Request{
		Question: question,
		Context:  retrieval.BuildContext(docs),
		Role:     req.Role,
		Kind:     provider.KindAnswer,
	})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, provider.ErrCancelled) {
			err = fmt.Errorf("%w: %v", provider.ErrCancelled, err)
		}
		return nil, outcomeFor(err), err
	}

	sources := buildSources(docs)
	s.cache.Put(question, CachedAnswer{Answer: text, Sources: sources})

	s.observe(ctx, span, StageFollowUp)
	return &Answer{
		Answer:            text,
		Sources:           sources,
		FollowUpQuestions: s.followUps.Suggest(ctx, question, text),
	}, "ok", nil
}

// scrub redacts secrets from document content before it reaches the
// prompt or the response.
func (s *Service) scrub(ctx context.Context, docs []retrieval.Document) []retrieval.Document {
	if !s.scrubber.Enabled() || len(docs) == 0 {
		return docs
	}
	out := make([]retrieval.Document, len(docs))
	for i, d := range docs {
		res := s.scrubber.Scrub(d.Content)
		if n := res.Findings(); n > 0 {
			s.logger.Debug(ctx, "secrets redacted from source",
				zap.String("path", d.FilePath),
				zap.Int("findings", n))
		}
		d.Content = res.Scrubbed
		out[i] = d
	}
	return out
}

func buildSources(docs []retrieval.Document) []Source {
	sources := make([]Source, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, Source{
			FileName:    d.FileName,
			FilePath:    d.FilePath,
			CodeSnippet: truncateRunes(d.Content, snippetRunes),
			Score:       d.Score,
		})
	}
	return sources
}

func (s *Service) observe(ctx context.Context, span trace.Span, stage Stage) {
	span.AddEvent(stage.String())
	if s.observer != nil {
		s.observer(ctx, stage)
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, sanitize.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, provider.ErrCancelled):
		return "cancelled"
	case errors.Is(err, provider.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, provider.ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, provider.ErrUpstream):
		return "upstream_error"
	default:
		return "error"
	}
}

func (s *Service) logFailure(ctx context.Context, outcome string, err error) {
	switch outcome {
	case "invalid_input":
		s.logger.Info(ctx, "question rejected", zap.Error(err))
	case "cancelled":
		s.logger.Info(ctx, "request cancelled", zap.Error(err))
	case "rate_limited", "unavailable":
		s.logger.Warn(ctx, "AI service unavailable", zap.String("outcome", outcome), zap.Error(err))
	default:
		s.logger.Error(ctx, "answer generation failed", zap.String("outcome", outcome), zap.Error(err))
	}
}
