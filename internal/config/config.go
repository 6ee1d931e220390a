package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	ChatLLM   LLMConfig       `yaml:"chat_llm"`
	RAG       RAGConfig       `yaml:"rag"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Storage   StorageConfig   `yaml:"storage"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	UploadsDir  string `yaml:"uploads_dir"`
	MaxFileSize int64  `yaml:"max_file_size"`
}

type IndexConfig struct {
	// Backend selects the vector store: "chromem" (default) or "postgres".
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Collection  string `yaml:"collection"`
	PostgresDSN string `yaml:"postgres_dsn"`
	PostgresKey string `yaml:"postgres_key"`
	Debug       bool   `yaml:"debug"`
	VectorSize  int    `yaml:"vector_size"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "ollama"
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

type StorageConfig struct {
	Dir        string `yaml:"dir"`
	HistoryCap int    `yaml:"history_cap"`
}

type RetrievalConfig struct {
	// Mode selects "hybrid" (default) or "dense".
	Mode       string `yaml:"mode"`
	K          int    `yaml:"k"`
	DenseK     int    `yaml:"dense_k"`
	KeywordK   int    `yaml:"keyword_k"`
	DenseOnlyK int    `yaml:"dense_only_k"`
}

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 100
	defaultHistoryCap   = 20
	defaultMaxFileSize  = 10 << 20 // 10MB
	defaultVectorSize   = 768
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// Default returns a config with every default applied, for tests and for
// running without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.UploadsDir == "" {
		c.Server.UploadsDir = "./data/uploads"
	}
	if c.Server.MaxFileSize == 0 {
		c.Server.MaxFileSize = defaultMaxFileSize
	}
	if c.Index.Backend == "" {
		c.Index.Backend = "chromem"
	}
	if c.Index.Path == "" {
		c.Index.Path = "./vector_store"
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "querybot"
	}
	if c.Index.VectorSize == 0 {
		c.Index.VectorSize = defaultVectorSize
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if c.Prompts.Dir == "" {
		c.Prompts.Dir = "./prompts"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./storage"
	}
	if c.Storage.HistoryCap == 0 {
		c.Storage.HistoryCap = defaultHistoryCap
	}
	if c.Retrieval.Mode == "" {
		c.Retrieval.Mode = "hybrid"
	}
	if c.Retrieval.K == 0 {
		c.Retrieval.K = 5
	}
	if c.Retrieval.DenseK == 0 {
		c.Retrieval.DenseK = 10
	}
	if c.Retrieval.KeywordK == 0 {
		c.Retrieval.KeywordK = 10
	}
	if c.Retrieval.DenseOnlyK == 0 {
		c.Retrieval.DenseOnlyK = 4
	}
}

// applyEnv lets secrets override file values so keys stay out of the yaml.
func (c *Config) applyEnv() {
	if v := os.Getenv("QUERYBOT_LLM_KEY"); v != "" {
		c.ChatLLM.Key = v
	}
	if v := os.Getenv("QUERYBOT_EMBED_KEY"); v != "" {
		c.EmbedLLM.Key = v
	}
	if v := os.Getenv("QUERYBOT_POSTGRES_DSN"); v != "" {
		c.Index.PostgresDSN = v
	}
	if v := os.Getenv("QUERYBOT_POSTGRES_KEY"); v != "" {
		c.Index.PostgresKey = v
	}
}
