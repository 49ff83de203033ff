package secrets

// DefaultRules covers credentials that commonly sit in ASP.NET and Angular
// sources: appsettings connection strings, JWT signing keys, LLM provider
// keys, and generic password assignments.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "connection-string-password",
			Description: "Password inside an ADO.NET connection string",
			Pattern:     `(?i)(?:password|pwd)\s*=\s*[^;"'\s]+`,
		},
		{
			ID:          "database-url",
			Description: "Database URL with embedded credentials",
			Pattern:     `(?i)(?:postgres|postgresql|mysql|mongodb|redis|sqlserver)://[^:\s]+:[^@\s]+@[^\s"']+`,
		},
		{
			ID:          "json-secret",
			Description: "Secret-looking JSON property such as appsettings Jwt:Key",
			Pattern:     `(?i)"(?:[a-z]*secret|[a-z]*password|apikey|api_key|jwtkey|signingkey|key)"\s*:\s*"[^"]{8,}"`,
		},
		{
			ID:          "generic-assignment",
			Description: "Secret or password assigned in code",
			Pattern:     `(?i)(?:secret|password|passwd|api[_-]?key)\s*[:=]\s*['"][^'"\s]{8,}['"]`,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]{5,}\.eyJ[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]+`,
		},
		{
			ID:          "google-api-key",
			Description: "Google API key",
			Pattern:     `AIza[0-9A-Za-z_\-]{35}`,
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API key",
			Pattern:     `sk-(?:proj-)?[A-Za-z0-9_\-]{20,}`,
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}`,
		},
		{
			ID:          "private-key",
			Description: "PEM private key header",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----`,
		},
	}
}
