package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Backend names accepted by DATABASE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	AWS         AWSConfig         `yaml:"aws"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Tagging     TaggingConfig     `yaml:"tagging"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	Web         WebConfig         `yaml:"web"`
}

type AWSConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // custom endpoint, e.g. LocalStack (optional)
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
	Bucket          string `yaml:"bucket"`
	CollectionID    string `yaml:"collection_id"`
	Table           string `yaml:"table"`
}

// HasStaticCredentials reports whether explicit keys were configured.
// Without them the default AWS credential chain is used.
func (c *AWSConfig) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type RecognitionConfig struct {
	MaxLabels          int           `yaml:"max_labels"`
	MinLabelConfidence float64       `yaml:"min_label_confidence"`
	MaxFaces           int           `yaml:"max_faces"`
	QualityFilter      string        `yaml:"quality_filter"`
	Timeout            time.Duration `yaml:"timeout"`      // per call
	MaxAttempts        int           `yaml:"max_attempts"` // including the first try
}

type TaggingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxSimilarFaces     int     `yaml:"max_similar_faces"`
	Workers             int     `yaml:"workers"`
}

type IngestConfig struct {
	Concurrency       int      `yaml:"concurrency"`
	MaxImageDimension int      `yaml:"max_image_dimension"`
	Extensions        []string `yaml:"extensions"`
}

type DatabaseConfig struct {
	Backend      string `yaml:"backend"` // memory, postgres or dynamodb
	URL          string `yaml:"-"`       // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`

	// RefreshInterval is how often serve reloads listings from the backend
	// so writes made by other processes show up.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS, besides localhost
}

// envString returns the environment variable or the fallback when unset.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back on unset or invalid values.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return cfg
}

func Load() *Config {
	d := defaults()

	return &Config{
		AWS: AWSConfig{
			Region:          envString("AWS_REGION", d.AWS.Region),
			Endpoint:        os.Getenv("AWS_ENDPOINT_URL"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Bucket:          envString("ARCHIVE_BUCKET", d.AWS.Bucket),
			CollectionID:    envString("ARCHIVE_COLLECTION_ID", d.AWS.CollectionID),
			Table:           envString("ARCHIVE_TABLE", d.AWS.Table),
		},
		Recognition: RecognitionConfig{
			MaxLabels:          envInt("RECOGNITION_MAX_LABELS", d.Recognition.MaxLabels),
			MinLabelConfidence: envFloat("RECOGNITION_MIN_LABEL_CONFIDENCE", d.Recognition.MinLabelConfidence),
			MaxFaces:           envInt("RECOGNITION_MAX_FACES", d.Recognition.MaxFaces),
			QualityFilter:      envString("RECOGNITION_QUALITY_FILTER", d.Recognition.QualityFilter),
			Timeout:            envDuration("RECOGNITION_TIMEOUT", d.Recognition.Timeout),
			MaxAttempts:        envInt("RECOGNITION_MAX_ATTEMPTS", d.Recognition.MaxAttempts),
		},
		Tagging: TaggingConfig{
			SimilarityThreshold: envFloat("TAGGING_SIMILARITY_THRESHOLD", d.Tagging.SimilarityThreshold),
			MaxSimilarFaces:     envInt("TAGGING_MAX_SIMILAR_FACES", d.Tagging.MaxSimilarFaces),
			Workers:             envInt("TAGGING_WORKERS", d.Tagging.Workers),
		},
		Ingest: IngestConfig{
			Concurrency:       envInt("INGEST_CONCURRENCY", d.Ingest.Concurrency),
			MaxImageDimension: envInt("INGEST_MAX_IMAGE_DIMENSION", d.Ingest.MaxImageDimension),
			Extensions:        envList("INGEST_EXTENSIONS", d.Ingest.Extensions),
		},
		Database: DatabaseConfig{
			Backend:         strings.ToLower(envString("DATABASE_BACKEND", d.Database.Backend)),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
			RefreshInterval: envDuration("DATABASE_REFRESH_INTERVAL", d.Database.RefreshInterval),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: envString("LOG_FORMAT", d.Log.Format),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
	}
}

// IsImageFile reports whether name has one of the configured ingest extensions.
func (c *IngestConfig) IsImageFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range c.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
