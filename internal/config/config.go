package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Values come from the YAML file first;
// environment variables override them and defaults fill whatever is still empty.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	ML         MLConfig         `yaml:"ml"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Lexicon    LexiconConfig    `yaml:"lexicon"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Progress   ProgressConfig   `yaml:"progress"`
	Auth       AuthConfig       `yaml:"auth"`
	Notify     NotifyConfig     `yaml:"notify"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"536870912"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite"`
	URL          string `yaml:"url" env:"DATABASE_URL" env-default:"data/hatewatch.db"`
	Migrations   string `yaml:"migrations" env:"DATABASE_MIGRATIONS" env-default:"migrations"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS" env-default:"10"`
}

type MLConfig struct {
	URL string `yaml:"url" env:"ML_URL" env-default:"http://localhost:8000"`
	// Zero means no timeout; large stage-1 batches can legitimately take minutes.
	Timeout           time.Duration `yaml:"timeout" env:"ML_TIMEOUT" env-default:"0s"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"ML_REQUESTS_PER_SECOND" env-default:"0"`
}

type ClassifierConfig struct {
	BatchSize  int      `yaml:"batch_size" env:"CLASSIFIER_BATCH_SIZE" env-default:"64"`
	Threshold  float64  `yaml:"threshold" env:"CLASSIFIER_THRESHOLD" env-default:"0.5"`
	Categories []string `yaml:"categories" env:"CLASSIFIER_CATEGORIES" env-default:"Race,Religion,Gender,Sexual_Orientation"`
}

type LexiconConfig struct {
	TermsFile string `yaml:"terms_file" env:"LEXICON_TERMS_FILE"`
}

type IngestConfig struct {
	UploadDir        string `yaml:"upload_dir" env:"INGEST_UPLOAD_DIR" env-default:"uploads"`
	ExportDir        string `yaml:"export_dir" env:"INGEST_EXPORT_DIR"`
	ChunkSize        int    `yaml:"chunk_size" env:"INGEST_CHUNK_SIZE" env-default:"100000"`
	WriteBatchSize   int    `yaml:"write_batch_size" env:"INGEST_WRITE_BATCH_SIZE" env-default:"2000"`
	SampleBytes      int    `yaml:"sample_bytes" env:"INGEST_SAMPLE_BYTES" env-default:"100000"`
	FallbackEncoding string `yaml:"fallback_encoding" env:"INGEST_FALLBACK_ENCODING" env-default:"ISO-8859-1"`
	Workers          int    `yaml:"workers" env:"INGEST_WORKERS" env-default:"1"`
	QueueSize        int    `yaml:"queue_size" env:"INGEST_QUEUE_SIZE" env-default:"16"`
}

type ProgressConfig struct {
	Backend       string        `yaml:"backend" env:"PROGRESS_BACKEND" env-default:"memory"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `yaml:"-" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	TTL           time.Duration `yaml:"ttl" env:"PROGRESS_TTL" env-default:"24h"`
}

type AuthConfig struct {
	// Empty disables authentication.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"-" env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `yaml:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
	APIEndpoint    string `yaml:"api_endpoint" env:"TELEGRAM_API_ENDPOINT"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// LoadConfig loads configuration from a YAML file, applies environment overrides
// and defaults, and validates the result. An empty path reads the environment only.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.ML.URL == "" {
		errs = append(errs, errors.New("ml.url is required"))
	}
	if c.ML.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("ml.requests_per_second must not be negative"))
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("classifier.threshold must be in (0, 1), got %v", c.Classifier.Threshold))
	}
	if len(c.Classifier.Categories) == 0 {
		errs = append(errs, errors.New("classifier.categories must not be empty"))
	}

	for _, f := range []struct {
		name  string
		value int
	}{
		{"classifier.batch_size", c.Classifier.BatchSize},
		{"ingest.chunk_size", c.Ingest.ChunkSize},
		{"ingest.write_batch_size", c.Ingest.WriteBatchSize},
		{"ingest.sample_bytes", c.Ingest.SampleBytes},
		{"ingest.workers", c.Ingest.Workers},
		{"ingest.queue_size", c.Ingest.QueueSize},
	} {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.value))
		}
	}

	switch c.Progress.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("progress.backend must be memory or redis, got %q", c.Progress.Backend))
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		errs = append(errs, errors.New("notify.telegram_chat_id is required when a bot token is set"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
