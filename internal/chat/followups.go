package chat

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
	"github.com/fyrsmithlabs/ragchat/internal/provider"
)

const (
	maxFollowUps         = 3
	minFollowUpRunes     = 10
	followUpExcerptRunes = 300
)

// listMarker matches leading bullets and numbering such as "-", "*", "•",
// "1.", "2)".
var listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

// FollowUps suggests questions a user may ask after an answer.
type FollowUps struct {
	provider provider.Provider
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewFollowUps creates a FollowUps generator backed by p.
func NewFollowUps(p provider.Provider, logger *logging.Logger, m *metrics.Metrics) *FollowUps {
	if logger == nil {
		logger = logging.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &FollowUps{provider: p, logger: logger, metrics: m}
}

// Suggest returns up to three follow-up questions. It never fails: any
// error yields an empty slice.
func (f *FollowUps) Suggest(ctx context.Context, question, answer string) []string {
	if f == nil || f.provider == nil {
		return []string{}
	}

	text, err := f.provider.Generate(ctx, provider.Request{
		Kind:     provider.KindFollowUp,
		Question: question,
		Context:  truncateRunes(answer, followUpExcerptRunes),
	})
	if err != nil {
		f.metrics.FollowUpsFailed.Inc()
		f.logger.Debug(ctx, "follow-up generation failed", zap.Error(err))
		return []string{}
	}
	return parseFollowUps(text)
}

func parseFollowUps(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if utf8.RuneCountInString(line) < minFollowUpRunes {
			continue
		}
		out = append(out, line)
		if len(out) == maxFollowUps {
			break
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
