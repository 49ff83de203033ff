// Package secrets redacts credentials from source content before it is
// sent to an LLM or returned as a citation snippet.
package secrets

import (
	"fmt"
	"regexp"
	"sort"
)

// Rule defines a secret detection rule.
type Rule struct {
	ID          string
	Description string
	Pattern     string
}

// Config configures the scrubber.
type Config struct {
	Enabled         bool
	Rules           []Rule
	RedactionString string
}

// DefaultConfig returns a configuration with the built-in rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Rules:           DefaultRules(),
		RedactionString: "[REDACTED]",
	}
}

// Result describes one scrub pass. Matched values are never retained.
type Result struct {
	Scrubbed string
	ByRule   map[string]int
}

// Findings returns the total number of redactions.
func (r Result) Findings() int {
	n := 0
	for _, c := range r.ByRule {
		n += c
	}
	return n
}

// Scrubber detects and redacts secrets from content.
type Scrubber interface {
	Scrub(content string) Result
	Enabled() bool
}

type compiledRule struct {
	id      string
	pattern *regexp.Regexp
}

type scrubber struct {
	rules       []compiledRule
	replacement string
}

// New compiles cfg into a Scrubber. A nil cfg uses DefaultConfig; a
// disabled cfg yields a Noop scrubber.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return Noop{}, nil
	}

	s := &scrubber{replacement: cfg.RedactionString}
	if s.replacement == "" {
		s.replacement = "[REDACTED]"
	}
	for i, rule := range cfg.Rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		s.rules = append(s.rules, compiledRule{id: rule.ID, pattern: re})
	}
	return s, nil
}

// MustNew is New that panics on error, for use with static configs.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

type span struct{ start, end int }

func (s *scrubber) Scrub(content string) Result {
	res := Result{Scrubbed: content, ByRule: map[string]int{}}

	var spans []span
	for _, rule := range s.rules {
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			spans = append(spans, span{m[0], m[1]})
			res.ByRule[rule.id]++
		}
	}
	if len(spans) == 0 {
		return res
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	out := make([]byte, 0, len(content))
	prev := 0
	for _, sp := range merged {
		out = append(out, content[prev:sp.start]...)
		out = append(out, s.replacement...)
		prev = sp.end
	}
	out = append(out, content[prev:]...)
	res.Scrubbed = string(out)
	return res
}

func (s *scrubber) Enabled() bool { return true }

// Noop returns content unchanged.
type Noop struct{}

func (Noop) Scrub(content string) Result {
	return Result{Scrubbed: content, ByRule: map[string]int{}}
}

func (Noop) Enabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = Noop{}
)
