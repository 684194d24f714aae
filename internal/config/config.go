package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	AI           AIConfig           `yaml:"ai"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Queue        QueueConfig        `yaml:"queue"`
	Assets       AssetsConfig       `yaml:"assets"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
	VectorSize int    `yaml:"vector_size"`
}

type AIConfig struct {
	Generation GenerationConfig `yaml:"generation"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Audio      AudioConfig      `yaml:"audio"`
	TTS        TTSConfig        `yaml:"tts"`
}

// GenerationConfig points at an OpenAI-compatible chat-completions endpoint
// that supports JSON-schema response formats.
type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// AudioConfig points at the audio-synthesis provider (music composition and
// sound-effect endpoints).
type AudioConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// TTSConfig points at the narration text-to-speech provider.
type TTSConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Voice   string        `yaml:"voice"`
	Speed   float64       `yaml:"speed"`
	Timeout time.Duration `yaml:"timeout"`
}

// OrchestratorConfig bounds the story state machine.
type OrchestratorConfig struct {
	MaxKeyFacts      int           `yaml:"max_key_facts"`
	AnchorMaxAge     int           `yaml:"anchor_max_age_scenes"`
	GenerateTimeout  time.Duration `yaml:"generate_timeout"`
	LeaseTTL         time.Duration `yaml:"lease_ttl"`
	PremiseMinLength int           `yaml:"premise_min_length"`
	PremiseMaxLength int           `yaml:"premise_max_length"`
}

type QueueConfig struct {
	MaxWorkers   int `yaml:"max_workers"`
	MaxQueueSize int `yaml:"max_queue_size"`
}

type AssetsConfig struct {
	Dir string `yaml:"dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	if apiKey := os.Getenv("GENERATION_API_KEY"); apiKey != "" {
		cfg.AI.Generation.APIKey = apiKey
		cfg.AI.Embedding.APIKey = apiKey
	}
	if apiKey := os.Getenv("AUDIO_API_KEY"); apiKey != "" {
		cfg.AI.Audio.APIKey = apiKey
	}
	if apiKey := os.Getenv("TTS_API_KEY"); apiKey != "" {
		cfg.AI.TTS.APIKey = apiKey
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		cfg.Database.Qdrant.APIKey = apiKey
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Orchestrator.MaxKeyFacts == 0 {
		c.Orchestrator.MaxKeyFacts = 10
	}
	if c.Orchestrator.AnchorMaxAge == 0 {
		c.Orchestrator.AnchorMaxAge = 5
	}
	if c.Orchestrator.GenerateTimeout == 0 {
		c.Orchestrator.GenerateTimeout = 120 * time.Second
	}
	if c.Orchestrator.LeaseTTL == 0 {
		c.Orchestrator.LeaseTTL = 5 * time.Minute
	}
	if c.Orchestrator.PremiseMinLength == 0 {
		c.Orchestrator.PremiseMinLength = 10
	}
	if c.Orchestrator.PremiseMaxLength == 0 {
		c.Orchestrator.PremiseMaxLength = 500
	}
	if c.Queue.MaxWorkers == 0 {
		c.Queue.MaxWorkers = 4
	}
	if c.Queue.MaxQueueSize == 0 {
		c.Queue.MaxQueueSize = 100
	}
	if c.Assets.Dir == "" {
		c.Assets.Dir = "./data/audio_assets"
	}
}
