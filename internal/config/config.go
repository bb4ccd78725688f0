package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig   `yaml:"server"`
	Database     DatabaseConfig `yaml:"database"`
	VectorStore  VectorConfig   `yaml:"vector_store"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	RAG          RAGConfig      `yaml:"rag"`
	Log          LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
}

type DatabaseConfig struct {
	// sqlite, postgres (bun pgdriver) or pq (lib/pq)
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type VectorConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type LLMConfig struct {
	// ollama, openai or hash (embeddings only)
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Key       string        `yaml:"key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	// client side throttling of provider calls, 0 disables it
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type RAGConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	TopK         int      `yaml:"top_k"`
	AllowedTypes []string `yaml:"allowed_types"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 5
	DefaultDimension    = 384
)

// LoadConfig reads the yaml file at path, a missing file yields defaults.
// Values from the environment (and a .env file) override the file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setString(&cfg.Database.Password, "DATABASE_PASSWORD")
	setString(&cfg.VectorStore.Path, "VECTOR_DB_PATH")
	setString(&cfg.VectorStore.EncryptionKey, "VECTOR_DB_ENCRYPTION_KEY")
	setString(&cfg.EmbedLLM.Key, "EMBED_API_KEY")
	setString(&cfg.InferenceLLM.Key, "LLM_API_KEY")
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8001"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "./data/study.db"
	}

	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./data/chromemdb"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "student_documents"
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "all-minilm"
	}
	if cfg.EmbedLLM.Dimension == 0 {
		cfg.EmbedLLM.Dimension = DefaultDimension
	}
	if cfg.EmbedLLM.Timeout == 0 {
		cfg.EmbedLLM.Timeout = 30 * time.Second
	}

	if cfg.InferenceLLM.Provider == "" {
		cfg.InferenceLLM.Provider = "openai"
	}
	if cfg.InferenceLLM.Model == "" {
		cfg.InferenceLLM.Model = "gpt-4o"
	}
	if cfg.InferenceLLM.Timeout == 0 {
		cfg.InferenceLLM.Timeout = 60 * time.Second
	}

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = DefaultChunkSize
	}
	// unset or unusable overlap falls back to a fifth of the chunk size
	if cfg.RAG.ChunkOverlap <= 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize * DefaultChunkOverlap / DefaultChunkSize
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = DefaultTopK
	}
	if len(cfg.RAG.AllowedTypes) == 0 {
		cfg.RAG.AllowedTypes = []string{"pdf"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
