package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrub_DefaultRules(t *testing.T) {
	s := MustNew(nil)

	tests := []struct {
		name   string
		input  string
		leak   string
		ruleID string
	}{
		{
			name:   "connection string",
			input:  `"DefaultConnection": "Server=.;Database=Sms;User Id=sa;Password=P@ssw0rd!;"`,
			leak:   "P@ssw0rd!",
			ruleID: "connection-string-password",
		},
		{
			name:   "jwt signing key",
			input:  `"Jwt": { "Key": "super-long-signing-key-value" }`,
			leak:   "super-long-signing-key-value",
			ruleID: "json-secret",
		},
		{
			name:   "google key",
			input:  "const key = AIza" + strings.Repeat("A", 35) + ";",
			leak:   "AIza" + strings.Repeat("A", 35),
			ruleID: "google-api-key",
		},
		{
			name:   "openai key",
			input:  "OPENAI=sk-" + strings.Repeat("b", 40),
			leak:   "sk-" + strings.Repeat("b", 40),
			ruleID: "openai-api-key",
		},
		{
			name:   "database url",
			input:  "postgres://admin:hunter22@db:5432/sms",
			leak:   "hunter22",
			ruleID: "database-url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Scrub(tt.input)
			assert.NotContains(t, res.Scrubbed, tt.leak)
			assert.Contains(t, res.Scrubbed, "[REDACTED]")
			assert.Positive(t, res.ByRule[tt.ruleID])
			assert.Positive(t, res.Findings())
		})
	}
}

func TestScrub_LeavesOrdinaryCode(t *testing.T) {
	s := MustNew(nil)
	code := "public class StudentController : ControllerBase\n{\n    public IActionResult Get() => Ok();\n}"

	res := s.Scrub(code)
	assert.Equal(t, code, res.Scrubbed)
	assert.Zero(t, res.Findings())
}

func TestScrub_MergesOverlaps(t *testing.T) {
	s := MustNew(&Config{
		Enabled: true,
		Rules: []Rule{
			{ID: "a", Pattern: `abc`},
			{ID: "b", Pattern: `bcd`},
		},
		RedactionString: "X",
	})

	res := s.Scrub("1abcd2")
	assert.Equal(t, "1X2", res.Scrubbed)
	assert.Equal(t, 2, res.Findings())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&Config{Enabled: true, Rules: []Rule{{Pattern: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ID is required")

	_, err = New(&Config{Enabled: true, Rules: []Rule{{ID: "bad", Pattern: "[("}}})
	require.Error(t, err)

	_, err = New(&Config{Enabled: true, Rules: []Rule{{ID: "empty"}}})
	require.Error(t, err)
}

func TestNew_Disabled(t *testing.T) {
	s, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	res := s.Scrub("Password=secret123;")
	assert.Equal(t, "Password=secret123;", res.Scrubbed)
}
