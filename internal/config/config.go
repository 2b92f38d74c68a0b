package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"digital-dean/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	StorePgvector = "pgvector"
	StoreChromem  = "chromem"

	DriverPgdriver = "pgdriver"
	DriverPostgres = "postgres"
)

// LLMConfig configures one langchaingo backed model
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Key      string `yaml:"key"`
}

type VectorStoreConfig struct {
	Type string `yaml:"type"`
}

type DatabaseConfig struct {
	DSN        string `yaml:"dsn"`
	Password   string `yaml:"password"`
	Driver     string `yaml:"driver"`
	Debug      bool   `yaml:"debug"`
	Dimensions int    `yaml:"dimensions"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	ExportPath    string `yaml:"export_path"`
}

// RAGConfig holds chunking, ingestion and retrieval profile settings
type RAGConfig struct {
	ChunkSize    int                    `yaml:"chunk_size"`
	ChunkOverlap int                    `yaml:"chunk_overlap"`
	BatchSize    int                    `yaml:"batch_size"`
	BatchPause   time.Duration          `yaml:"batch_pause"`
	MaxRetries   int                    `yaml:"max_retries"`
	Tutoring     models.RetrievalParams `yaml:"tutoring"`
	Quiz         models.RetrievalParams `yaml:"quiz"`
	Grading      models.RetrievalParams `yaml:"grading"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	UploadDir   string        `yaml:"upload_dir"`
	MaxUploadMB int64         `yaml:"max_upload_mb"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
}

type WatchConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type Config struct {
	EmbeddingLLM LLMConfig         `yaml:"embedding_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	VisionLLM    LLMConfig         `yaml:"vision_llm"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Database     DatabaseConfig    `yaml:"database"`
	Chromem      ChromemConfig     `yaml:"chromem"`
	RAG          RAGConfig         `yaml:"rag"`
	Server       ServerConfig      `yaml:"server"`
	Watch        WatchConfig       `yaml:"watch"`
	Log          LogConfig         `yaml:"log"`
}

// LoadConfig reads the YAML file at path, expanding ${VAR} references from the
// environment (after loading .env, if present), then applies defaults and validates.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes raw YAML config bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config populated only with defaults
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	defaultLLM(&cfg.EmbeddingLLM, "nomic-embed-text")
	defaultLLM(&cfg.InferenceLLM, "llama3.2")
	defaultLLM(&cfg.VisionLLM, "llava")

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = StoreChromem
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPgdriver
	}
	if cfg.Database.Dimensions == 0 {
		cfg.Database.Dimensions = 768
	}
	if cfg.Chromem.Path == "" {
		cfg.Chromem.Path = "./data/chromem"
	}
	if cfg.Chromem.Collection == "" {
		cfg.Chromem.Collection = "syllabus"
	}

	r := &cfg.RAG
	if r.ChunkSize == 0 {
		r.ChunkSize = 800
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = 100
	}
	if r.BatchSize == 0 {
		r.BatchSize = 50
	}
	if r.BatchPause == 0 {
		r.BatchPause = 2 * time.Second
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 2
	}
	if r.Tutoring == (models.RetrievalParams{}) {
		r.Tutoring = models.RetrievalParams{Threshold: 0.5, TopK: 4}
	}
	if r.Quiz == (models.RetrievalParams{}) {
		r.Quiz = models.RetrievalParams{Threshold: 0.4, TopK: 5}
	}
	if r.Grading == (models.RetrievalParams{}) {
		r.Grading = models.RetrievalParams{Threshold: 0.4, TopK: 3}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = os.TempDir()
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Server.SessionTTL == 0 {
		cfg.Server.SessionTTL = time.Hour
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = []string{".pdf", ".docx", ".txt", ".md"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func defaultLLM(l *LLMConfig, model string) {
	if l.Provider == "" {
		l.Provider = ProviderOllama
	}
	if l.Model == "" {
		l.Model = model
	}
	if l.BaseURL == "" && l.Provider == ProviderOllama {
		l.BaseURL = "http://localhost:11434"
	}
}

const redacted = "[REDACTED]"

// Redacted returns a copy safe to log: model keys, the database password and the
// chromem encryption key are masked, and the DSN loses its userinfo password.
func (c Config) Redacted() Config {
	for _, l := range []*LLMConfig{&c.EmbeddingLLM, &c.InferenceLLM, &c.VisionLLM} {
		if l.Key != "" {
			l.Key = redacted
		}
	}
	if c.Database.Password != "" {
		c.Database.Password = redacted
	}
	if u, err := url.Parse(c.Database.DSN); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
			c.Database.DSN = u.String()
		}
	}
	if c.Chromem.EncryptionKey != "" {
		c.Chromem.EncryptionKey = redacted
	}
	c.Watch.Extensions = append([]string(nil), c.Watch.Extensions...)
	return c
}

// Validate checks the config for values the pipeline cannot run with
func (c *Config) Validate() error {
	for name, l := range map[string]LLMConfig{
		"embedding_llm": c.EmbeddingLLM,
		"inference_llm": c.InferenceLLM,
		"vision_llm":    c.VisionLLM,
	} {
		if l.Provider != ProviderOllama && l.Provider != ProviderOpenAI {
			return fmt.Errorf("%s: unknown provider %q", name, l.Provider)
		}
	}
	switch c.VectorStore.Type {
	case StorePgvector:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the pgvector store")
		}
		if c.Database.Driver != DriverPgdriver && c.Database.Driver != DriverPostgres {
			return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
		}
	case StoreChromem:
	default:
		return fmt.Errorf("vector_store.type: unknown store %q", c.VectorStore.Type)
	}

	r := c.RAG
	if r.ChunkSize <= 0 || r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("rag: chunk_overlap (%d) must be smaller than chunk_size (%d)", r.ChunkOverlap, r.ChunkSize)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("rag.batch_size must be positive, got %d", r.BatchSize)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("rag.max_retries must not be negative, got %d", r.MaxRetries)
	}
	for name, p := range map[string]models.RetrievalParams{
		"tutoring": r.Tutoring,
		"quiz":     r.Quiz,
		"grading":  r.Grading,
	} {
		if p.TopK <= 0 {
			return fmt.Errorf("rag.%s.top_k must be positive, got %d", name, p.TopK)
		}
		if p.Threshold < 0 || p.Threshold > 1 {
			return fmt.Errorf("rag.%s.threshold must be within [0,1], got %v", name, p.Threshold)
		}
	}
	return nil
}
