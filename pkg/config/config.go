package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Provider ProviderConfig
	JWT      JWTConfig
	Notify   NotifyConfig
	Pipeline PipelineConfig
	Quota    QuotaConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	AllowedOrigins  []string
	ShutdownTimeout int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	AudioBucket     string
	ArtifactBucket  string
	PublicURL       string
	UseSSL          bool
}

// ProviderConfig holds transcription/LLM provider configuration
type ProviderConfig struct {
	// Kind selects the transcription backend: "llm" (default) or "assemblyai".
	Kind       string
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int

	AssemblyAIKey string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
}

// NotifyConfig holds push/email gateway configuration
type NotifyConfig struct {
	PushGatewayURL  string
	EmailGatewayURL string
	APIKey          string
}

// PipelineConfig tunes the processing pipeline. Loaded with envconfig under
// the PIPELINE_ prefix so operators can override individual knobs.
type PipelineConfig struct {
	ChunkThresholdSec   int     `envconfig:"CHUNK_THRESHOLD_SEC" default:"1800"`
	ChunkDir            string  `envconfig:"CHUNK_DIR" default:"/tmp/meeting-scribe/chunks"`
	ChunkSweepAfterMin  int     `envconfig:"CHUNK_SWEEP_AFTER_MIN" default:"60"`
	TranscribeWorkers   int     `envconfig:"TRANSCRIBE_WORKERS" default:"2"`
	EnhanceWorkers      int     `envconfig:"ENHANCE_WORKERS" default:"2"`
	MinutesWorkers      int     `envconfig:"MINUTES_WORKERS" default:"2"`
	PollIntervalSec     int     `envconfig:"POLL_INTERVAL_SEC" default:"5"`
	MaxStageAttempts    int     `envconfig:"MAX_STAGE_ATTEMPTS" default:"3"`
	StageBackoffBaseSec int     `envconfig:"STAGE_BACKOFF_BASE_SEC" default:"5"`
	MaxChunkFailureRate float64 `envconfig:"MAX_CHUNK_FAILURE_RATE" default:"0.5"`
	RedactionEnabled    bool    `envconfig:"REDACTION_ENABLED" default:"false"`
}

// QuotaConfig holds per-plan upload limits. Privileged users bypass all limits.
type QuotaConfig struct {
	WeeklyUploadLimit  int    `envconfig:"WEEKLY_UPLOAD_LIMIT" default:"10"`
	MaxUploadDuration  int    `envconfig:"MAX_UPLOAD_DURATION_SEC" default:"14400"`
	PrivilegedUserIDs  string `envconfig:"PRIVILEGED_USER_IDS" default:""`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			AllowedOrigins:  strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			Name:        getEnv("DB_NAME", "meeting_scribe"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:    getEnvAsInt("DB_MIN_CONNS", 5),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			AudioBucket:     getEnv("STORAGE_AUDIO_BUCKET", "meeting-audio"),
			ArtifactBucket:  getEnv("STORAGE_ARTIFACT_BUCKET", "meeting-artifacts"),
			PublicURL:       getEnv("STORAGE_PUBLIC_URL", ""),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
		},
		Provider: ProviderConfig{
			Kind:          getEnv("PROVIDER_KIND", "llm"),
			APIKey:        getEnv("PROVIDER_API_KEY", ""),
			BaseURL:       getEnv("PROVIDER_BASE_URL", "https://api.groq.com"),
			Model:         getEnv("PROVIDER_MODEL", "whisper-large-v3"),
			TimeoutSec:    getEnvAsInt("PROVIDER_TIMEOUT_SEC", 300),
			AssemblyAIKey: getEnv("ASSEMBLYAI_API_KEY", ""),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", "15m"),
		},
		Notify: NotifyConfig{
			PushGatewayURL:  getEnv("NOTIFY_PUSH_URL", ""),
			EmailGatewayURL: getEnv("NOTIFY_EMAIL_URL", ""),
			APIKey:          getEnv("NOTIFY_API_KEY", ""),
		},
	}

	if err := envconfig.Process("PIPELINE", &config.Pipeline); err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}
	if err := envconfig.Process("QUOTA", &config.Quota); err != nil {
		return nil, fmt.Errorf("failed to load quota config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Provider.Kind != "llm" && c.Provider.Kind != "assemblyai" {
		return fmt.Errorf("PROVIDER_KIND must be 'llm' or 'assemblyai', got %q", c.Provider.Kind)
	}
	if c.Provider.Kind == "assemblyai" && c.Provider.AssemblyAIKey == "" {
		return fmt.Errorf("ASSEMBLYAI_API_KEY is required when PROVIDER_KIND=assemblyai")
	}
	if c.Pipeline.MaxChunkFailureRate <= 0 || c.Pipeline.MaxChunkFailureRate > 1 {
		return fmt.Errorf("PIPELINE_MAX_CHUNK_FAILURE_RATE must be in (0,1]")
	}
	return nil
}

// PrivilegedUsers returns the parsed list of user IDs that bypass quota
// limits. Malformed entries are skipped with a warning.
func (c *QuotaConfig) PrivilegedUsers() []uuid.UUID {
	var out []uuid.UUID
	for _, raw := range strings.Split(c.PrivilegedUserIDs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Printf("⚠️ Ignoring malformed privileged user id %q", raw)
			continue
		}
		out = append(out, id)
	}
	return out
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
