package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the chat service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Chunk     ChunkConfig     `mapstructure:"chunk"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Session   SessionConfig   `mapstructure:"session"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Debug           bool          `mapstructure:"debug"` // enables /api/clear_sessions
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StaticDir       string        `mapstructure:"static_dir"` // web client served at /, optional
}

// LLMConfig configures the OpenAI-compatible chat completion provider.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig configures the embeddings endpoint and its cache.
type EmbeddingConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	BatchSize int           `mapstructure:"batch_size"`
	CacheSize int           `mapstructure:"cache_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	Type         string           `mapstructure:"type"` // http or chromedp
	Timeout      time.Duration    `mapstructure:"timeout"`
	MaxBytes     int64            `mapstructure:"max_bytes"`
	UserAgent    string           `mapstructure:"user_agent"`
	AllowPrivate bool             `mapstructure:"allow_private"`
	Policy       HostPolicyConfig `mapstructure:"policy"`
}

// ExtractConfig configures text extraction thresholds.
type ExtractConfig struct {
	MinTextLength int `mapstructure:"min_text_length"`
	MaxChars      int `mapstructure:"max_chars"`
}

// ChunkConfig configures the chunker, both values in characters.
type ChunkConfig struct {
	Size    int `mapstructure:"chunk_size"`
	Overlap int `mapstructure:"chunk_overlap"`
}

// RetrievalConfig configures the per-session index.
type RetrievalConfig struct {
	Mode string `mapstructure:"mode"` // vector, lexical or hybrid
	TopK int    `mapstructure:"top_k"`
}

// SessionConfig configures session lifetime and storage.
type SessionConfig struct {
	Store         string        `mapstructure:"store"` // inmemory or redis
	TTLRaw        string        `mapstructure:"ttl"`
	TTL           time.Duration `mapstructure:"-"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	IndexCache    int           `mapstructure:"index_cache"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      string        `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Normalize applies defaults for unset server values.
func (s ServerConfig) Normalize() ServerConfig {
	s.Address = strings.TrimSpace(s.Address)
	if s.Address == "" {
		s.Address = ":8000"
	}
	if s.Address[0] != ':' && !strings.Contains(s.Address, ":") {
		s.Address = ":" + s.Address
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{"*"}
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
	return s
}

// HasAPIKey reports whether a chat credential is configured.
func (l LLMConfig) HasAPIKey() bool {
	return strings.TrimSpace(l.APIKey) != ""
}

func (l LLMConfig) Validate() error {
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", l.Temperature)
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be greater than zero")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	return nil
}

func (e EmbeddingConfig) Validate() error {
	if e.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be greater than zero")
	}
	if e.CacheSize < 0 {
		return fmt.Errorf("embedding.cache_size cannot be negative")
	}
	return nil
}

func (f FetchConfig) Validate() error {
	switch f.Type {
	case "http", "chromedp":
	default:
		return fmt.Errorf("fetch.type must be http or chromedp, got %q", f.Type)
	}
	if f.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be greater than zero")
	}
	if f.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be greater than zero")
	}
	return f.Policy.Validate()
}

func (c ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk.chunk_size must be greater than zero")
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk.chunk_overlap must be in [0, chunk_size), got %d", c.Overlap)
	}
	return nil
}

func (r RetrievalConfig) Validate() error {
	switch r.Mode {
	case "vector", "lexical", "hybrid":
	default:
		return fmt.Errorf("retrieval.mode must be vector, lexical or hybrid, got %q", r.Mode)
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be greater than zero")
	}
	return nil
}

func (s SessionConfig) Validate() error {
	switch s.Store {
	case "inmemory", "redis":
	default:
		return fmt.Errorf("session.store must be inmemory or redis, got %q", s.Store)
	}
	if s.TTL <= 0 {
		return fmt.Errorf("session.ttl must be greater than zero")
	}
	return nil
}

// ParseTTL accepts either whole seconds ("3600") or a Go duration ("1h").
func ParseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty ttl")
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", raw, err)
	}
	return d, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.static_dir", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama3-8b-8192")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.cache_size", 2048)
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("fetch.type", "http")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_bytes", 5<<20)
	v.SetDefault("fetch.user_agent", "pagechat/1.0 (+https://github.com/mohammad-safakhou/pagechat)")
	v.SetDefault("fetch.allow_private", false)
	v.SetDefault("fetch.policy.allow", []string{})
	v.SetDefault("fetch.policy.deny", []string{})

	v.SetDefault("extract.min_text_length", 100)
	v.SetDefault("extract.max_chars", 200000)

	v.SetDefault("chunk.chunk_size", 1000)
	v.SetDefault("chunk.chunk_overlap", 200)

	v.SetDefault("retrieval.mode", "vector")
	v.SetDefault("retrieval.top_k", 4)

	v.SetDefault("session.store", "inmemory")
	v.SetDefault("session.ttl", "3600")
	v.SetDefault("session.sweep_schedule", "* * * * *")
	v.SetDefault("session.index_cache", 256)

	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.redis.key_prefix", "pagechat")
}

// bareEnv maps the short environment names the service has always honoured onto keys.
// Earlier names win; PAGECHAT_* values still take precedence through AutomaticEnv.
var bareEnv = map[string][]string{
	"llm.api_key":       {"API_KEY", "GROQ_API_KEY"},
	"llm.model":         {"MODEL_NAME"},
	"llm.temperature":   {"TEMPERATURE"},
	"session.ttl":       {"SESSION_TTL"},
	"embedding.api_key": {"OPENAI_API_KEY"},
}

// LoadConfig loads config from an optional file plus the environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("PAGECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range bareEnv {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	ttl, err := ParseTTL(v.GetString("session.ttl"))
	if err != nil {
		return nil, fmt.Errorf("session.ttl: %w", err)
	}
	cfg.Session.TTL = ttl
	cfg.Server = cfg.Server.Normalize()
	cfg.Fetch.Policy = cfg.Fetch.Policy.Normalize()

	validators := []interface{ Validate() error }{
		cfg.LLM, cfg.Embedding, cfg.Fetch, cfg.Chunk, cfg.Retrieval, cfg.Session,
	}
	if cfg.Session.Store == "redis" {
		validators = append(validators, cfg.Storage.Redis)
	}
	for _, val := range validators {
		if err := val.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
