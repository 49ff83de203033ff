// Package config provides configuration loading for ragchat.
//
// Values come from built-in defaults, an optional YAML file, and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Config holds the complete ragchat configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Index     IndexConfig     `koanf:"index"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	AI        AIConfig        `koanf:"ai"`
	Cache     CacheConfig     `koanf:"cache"`
	Secrets   SecretsConfig   `koanf:"secrets"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// AskRatePerMinute limits /ask per client IP. Zero means the default.
	AskRatePerMinute int `koanf:"ask_rate_per_minute"`
	AskBurst         int `koanf:"ask_burst"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// IndexConfig controls which files the index scans.
type IndexConfig struct {
	ContentRoot string   `koanf:"content_root"`
	TTL         Duration `koanf:"ttl"`
	MaxFileSize int64    `koanf:"max_file_size"`
	Extensions  []string `koanf:"extensions"`
	Excludes    []string `koanf:"excludes"`
	IgnoreFiles []string `koanf:"ignore_files"`
	Watch       bool     `koanf:"watch"`
}

// RetrievalConfig selects lexical scanning or vector search.
type RetrievalConfig struct {
	Mode             string `koanf:"mode"`
	TopK             int    `koanf:"top_k"`
	ChunkSize        int    `koanf:"chunk_size"`
	ChunkOverlap     int    `koanf:"chunk_overlap"`
	EmbeddingModel   string `koanf:"embedding_model"`
	EmbeddingBaseURL string `koanf:"embedding_base_url"`
	EmbeddingAPIKey  Secret `koanf:"embedding_api_key"`
}

// AIConfig configures the answer provider.
type AIConfig struct {
	Provider          string     `koanf:"provider"`
	APIKeys           SecretList `koanf:"api_keys"`
	Model             string     `koanf:"model"`
	BaseURL           string     `koanf:"base_url"`
	RetryDelay        Duration   `koanf:"retry_delay"`
	RequestsPerMinute int        `koanf:"requests_per_minute"`
	ProbeTimeout      Duration   `koanf:"probe_timeout"`
	RequestTimeout    Duration   `koanf:"request_timeout"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	TTL        Duration `koanf:"ttl"`
	MaxEntries int      `koanf:"max_entries"`
}

// SecretsConfig controls scrubbing of source snippets.
type SecretsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// TelemetryConfig controls OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" or "http/protobuf".
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	ServiceName     string   `koanf:"service_name"`
	SampleRate      float64  `koanf:"sample_rate"`
	Metrics         bool     `koanf:"metrics"`
	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Retrieval modes.
const (
	ModeScan   = "scan"
	ModeVector = "vector"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Default returns a Config populated with production defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ShutdownTimeout:  Duration(10 * time.Second),
			AskRatePerMinute: 10,
			AskBurst:         2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Index: IndexConfig{
			ContentRoot: ".",
			TTL:         Duration(5 * time.Minute),
			MaxFileSize: 500 * 1024,
			Extensions:  []string{".cs", ".ts", ".html", ".css", ".json", ".sql"},
			Excludes:    []string{"bin", "obj", "node_modules", "wwwroot/lib", "dist", ".git", ".vs", "Archive"},
			IgnoreFiles: []string{".ragignore", ".gitignore"},
		},
		Retrieval: RetrievalConfig{
			Mode:             ModeScan,
			TopK:             5,
			ChunkSize:        1000,
			ChunkOverlap:     100,
			EmbeddingModel:   "text-embedding-3-small",
			EmbeddingBaseURL: "https://api.openai.com/v1",
		},
		AI: AIConfig{
			Provider:          ProviderGemini,
			RetryDelay:        Duration(500 * time.Millisecond),
			RequestsPerMinute: 60,
			ProbeTimeout:      Duration(5 * time.Second),
			RequestTimeout:    Duration(60 * time.Second),
		},
		Cache: CacheConfig{
			TTL:        Duration(time.Hour),
			MaxEntries: 10000,
		},
		Secrets: SecretsConfig{
			Enabled: true,
		},
		Telemetry: TelemetryConfig{
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
			ServiceName:     "ragchat",
			SampleRate:      1.0,
			Metrics:         true,
			ExportInterval:  Duration(15 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.AskRatePerMinute < 0 || c.Server.AskBurst < 0 {
		return errors.New("ask rate limit values cannot be negative")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be 'json' or 'console', got %q", c.Log.Format)
	}

	if strings.TrimSpace(c.Index.ContentRoot) == "" {
		return errors.New("index content root is required")
	}
	if c.Index.TTL <= 0 {
		return errors.New("index ttl must be positive")
	}
	if c.Index.MaxFileSize <= 0 {
		return errors.New("index max file size must be positive")
	}
	if len(c.Index.Extensions) == 0 {
		return errors.New("at least one index extension is required")
	}

	switch c.Retrieval.Mode {
	case ModeScan:
	case ModeVector:
		if c.Retrieval.ChunkSize <= 0 {
			return errors.New("chunk size must be positive in vector mode")
		}
		if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
			return fmt.Errorf("chunk overlap must be in [0, %d)", c.Retrieval.ChunkSize)
		}
	default:
		return fmt.Errorf("retrieval mode must be %q or %q, got %q", ModeScan, ModeVector, c.Retrieval.Mode)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval top_k must be >= 1, got %d", c.Retrieval.TopK)
	}

	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("ai provider must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.AI.Provider)
	}
	if c.AI.RequestsPerMinute < 0 {
		return errors.New("ai requests per minute cannot be negative")
	}
	if c.AI.ProbeTimeout <= 0 {
		return errors.New("ai probe timeout must be positive")
	}

	if c.Cache.TTL <= 0 {
		return errors.New("cache ttl must be positive")
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache max entries must be >= 1, got %d", c.Cache.MaxEntries)
	}

	return c.Telemetry.Validate()
}

// Validate checks telemetry settings. A disabled config is always valid.
func (t TelemetryConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.Endpoint == "" {
		return errors.New("telemetry endpoint is required when telemetry is enabled")
	}
	if t.ServiceName == "" {
		return errors.New("telemetry service name is required when telemetry is enabled")
	}
	switch t.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("telemetry protocol must be 'grpc' or 'http/protobuf', got %q", t.Protocol)
	}
	if t.Insecure && !isLocalEndpoint(t.Endpoint) {
		return errors.New("insecure telemetry export is only allowed to a local endpoint")
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate must be between 0 and 1, got %f", t.SampleRate)
	}
	if t.Metrics && t.ExportInterval <= 0 {
		return errors.New("telemetry export interval must be positive when metrics are exported")
	}
	if t.ShutdownTimeout <= 0 {
		return errors.New("telemetry shutdown timeout must be positive")
	}
	return nil
}

func isLocalEndpoint(endpoint string) bool {
	host := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}
