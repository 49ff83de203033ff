// internal/config/types.go
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret wraps strings that should be redacted in logs and serialization.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return strings.TrimSpace(string(s)) != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// MarshalText implements encoding.TextMarshaler. Always returns redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SecretList is an ordered set of credentials. From a single string it
// splits on commas, so AI_API_KEYS=k1,k2 yields two keys.
type SecretList []Secret

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *SecretList) UnmarshalText(text []byte) error {
	var out SecretList
	for _, part := range strings.Split(string(text), ",") {
		if s := Secret(strings.TrimSpace(part)); s.IsSet() {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// Values returns the raw credential values, skipping blanks.
func (l SecretList) Values() []string {
	out := make([]string, 0, len(l))
	for _, s := range l {
		if s.IsSet() {
			out = append(out, strings.TrimSpace(s.Value()))
		}
	}
	return out
}

// String implements fmt.Stringer without revealing any value.
func (l SecretList) String() string {
	return fmt.Sprintf("[REDACTED x%d]", len(l.Values()))
}
