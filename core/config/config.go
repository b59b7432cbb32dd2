package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        string
	AdminAPIKey string

	OTel        OTelConfig
	Redis       RedisConfig
	Correlation CorrelationConfig
	Chains      []ChainDefinition
	OpenAI      OpenAIConfig
	LeadDB      LeadDBConfig
	Media       MediaConfig
	Dealers     DealersConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type RedisConfig struct {
	URL          string
	Stream       string // raw telephony event feed
	Group        string
	Consumer     string
	DLQStream    string
	MaxAttempts  int
	RequeueDelay time.Duration
}

type CorrelationConfig struct {
	Source string        // telephony source name, tags attachments and dedup lookups
	TTL    time.Duration // sliding window for call-leg correlation keys
}

// ChainDefinition is an ordered list of stage names assembled into one chain
// at worker startup.
type ChainDefinition []string

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
}

type LeadDBConfig struct {
	DSN          string
	LookbackDays int
}

type MediaConfig struct {
	Bucket string
	Region string
	URLTTL time.Duration
}

type DealersConfig struct {
	URL      string
	Token    string
	CacheTTL time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files
// (.env.server, .env.worker), falling back to .env.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("SWITCHBOARD_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:         getEnv("SWITCHBOARD_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "switchboard"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Stream:       getEnv("REDIS_STREAM", "telephony_events"),
			Group:        getEnv("REDIS_CONSUMER_GROUP", "switchboard_group"),
			Consumer:     getEnv("REDIS_CONSUMER_NAME", "worker"),
			DLQStream:    getEnv("REDIS_DLQ_STREAM", "telephony_events_dlq"),
			MaxAttempts:  getEnvInt("REDIS_MAX_ATTEMPTS", 3),
			RequeueDelay: getEnvDuration("REDIS_REQUEUE_DELAY", time.Second),
		},
		Correlation: CorrelationConfig{
			Source: getEnv("TELEPHONY_SOURCE", "softphone"),
			TTL:    getEnvDuration("CORRELATION_TTL", 60*time.Second),
		},
		Chains: parseChains(getEnv("CHAINS", "call_log")),
		OpenAI: OpenAIConfig{
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			BaseURL:         getEnv("OPENAI_BASE_URL", ""),
			Model:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			TranscribeModel: getEnv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		},
		LeadDB: LeadDBConfig{
			DSN:          getEnv("LEAD_DATABASE_URL", ""),
			LookbackDays: getEnvInt("LEAD_LOOKBACK_DAYS", 60),
		},
		Media: MediaConfig{
			Bucket: getEnv("MEDIA_BUCKET", ""),
			Region: getEnv("MEDIA_REGION", "us-east-1"),
			URLTTL: getEnvDuration("MEDIA_URL_TTL", 10*365*24*time.Hour),
		},
		Dealers: DealersConfig{
			URL:      getEnv("DEALER_DIRECTORY_URL", ""),
			Token:    getEnv("DEALER_DIRECTORY_TOKEN", ""),
			CacheTTL: getEnvDuration("DEALER_CACHE_TTL", 30*time.Minute),
		},
	}

	if len(cfg.Chains) == 0 {
		return Config{}, fmt.Errorf("CHAINS must name at least one stage")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c LeadDBConfig) Enabled() bool {
	return c.DSN != ""
}

func (c MediaConfig) Enabled() bool {
	return c.Bucket != ""
}

func (c DealersConfig) Enabled() bool {
	return c.URL != ""
}

// parseChains parses the CHAINS variable: chains are separated by semicolons,
// stage names within a chain by commas. "call_log,stitcher;call_log,summary"
// defines two chains.
func parseChains(raw string) []ChainDefinition {
	var chains []ChainDefinition
	for _, chain := range strings.Split(raw, ";") {
		var stages ChainDefinition
		for _, name := range strings.Split(chain, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				stages = append(stages, name)
			}
		}
		if len(stages) > 0 {
			chains = append(chains, stages)
		}
	}
	return chains
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
