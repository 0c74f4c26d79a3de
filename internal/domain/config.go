package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Pipeline thresholds
	Pipeline PipelineConfig `json:"pipeline"`
	Fraud    FraudConfig    `json:"fraud"`

	// Text-generation backend
	LLM LLMConfig `json:"llm"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// PipelineConfig holds orchestrator thresholds and timeouts.
type PipelineConfig struct {
	// LargeAmountThreshold: claims above it are always escalated to
	// human review.
	LargeAmountThreshold decimal.Decimal `json:"largeAmountThreshold"`

	// MinExtractionConfidence: extractions below it count as low
	// confidence and trigger escalation.
	MinExtractionConfidence float64 `json:"minExtractionConfidence"`

	// StageTimeout bounds every collaborator call. A timed-out stage
	// degrades the claim to FAILED instead of hanging.
	StageTimeout time.Duration `json:"stageTimeout"`
}

// FraudConfig holds thresholds for the rule-based fraud checks.
type FraudConfig struct {
	// HighValueThreshold triggers the high-amount check.
	HighValueThreshold decimal.Decimal `json:"highValueThreshold"`

	// QuickReportWindow: reports filed sooner than this after the
	// incident trigger the suspiciously-quick-report check.
	QuickReportWindow time.Duration `json:"quickReportWindow"`

	// DuplicateWindow bounds the recent-claims index used by the
	// duplicate heuristic.
	DuplicateWindow time.Duration `json:"duplicateWindow"`
}

// LLMConfig holds text-generation backend settings.
type LLMConfig struct {
	// Provider name: "openai" or "" (disabled)
	Provider string `json:"provider"`

	// Model name (provider-specific)
	Model string `json:"model"`

	// APIKey for the provider
	APIKey string `json:"-"`

	// BaseURL for custom endpoints
	BaseURL string `json:"baseUrl,omitempty"`

	// Timeout for API requests, seconds
	Timeout int `json:"timeout"`

	// MaxTokens for response generation
	MaxTokens int `json:"maxTokens"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Pipeline: PipelineConfig{
			LargeAmountThreshold:    decimal.NewFromInt(10000),
			MinExtractionConfidence: 0.6,
			StageTimeout:            45 * time.Second,
		},
		Fraud: FraudConfig{
			HighValueThreshold: decimal.NewFromInt(50000),
			QuickReportWindow:  time.Hour,
			DuplicateWindow:    72 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30,
			MaxTokens: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
