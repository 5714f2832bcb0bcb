package config

import (
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Chat      ChatConfig      `yaml:"chat"`
	Tools     ToolsConfig     `yaml:"tools"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Name +
		"?sslmode=disable&pool_max_conns=" + strconv.Itoa(d.MaxOpenConns)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ChatConfig drives the orchestration loop and the context caches.
type ChatConfig struct {
	MaxSteps       int           `yaml:"max_steps"`
	RequestBudget  time.Duration `yaml:"request_budget"`
	Temperature    float64       `yaml:"temperature"`
	MemoryTopK     int           `yaml:"memory_top_k"`
	PersonaTTL     time.Duration `yaml:"persona_ttl"`
	CatalogTTL     time.Duration `yaml:"catalog_ttl"`
	FallbackModel  string        `yaml:"fallback_model"`
	DefaultPersona string        `yaml:"default_persona"`
	AuditQueueSize int           `yaml:"audit_queue_size"`
	AuditTimeout   time.Duration `yaml:"audit_timeout"`
}

type ToolsConfig struct {
	Search  SearchToolConfig  `yaml:"search"`
	Webpage WebpageToolConfig `yaml:"webpage"`
	Image   ImageToolConfig   `yaml:"image"`
}

type SearchToolConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

type WebpageToolConfig struct {
	MaxChars int           `yaml:"max_chars"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ImageToolConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Size    string        `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     5 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "aegis_chat",
			User:            "aegis",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Chat: ChatConfig{
			MaxSteps:       10,
			RequestBudget:  3 * time.Minute,
			Temperature:    0.7,
			MemoryTopK:     10,
			PersonaTTL:     5 * time.Minute,
			CatalogTTL:     time.Minute,
			DefaultPersona: "You are a helpful, friendly assistant. Answer clearly and concisely.",
			AuditQueueSize: 256,
			AuditTimeout:   2 * time.Second,
		},
		Tools: ToolsConfig{
			Search: SearchToolConfig{
				MaxResults: 5,
				Timeout:    15 * time.Second,
			},
			Webpage: WebpageToolConfig{
				MaxChars: 8000,
				Timeout:  15 * time.Second,
			},
			Image: ImageToolConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "dall-e-3",
				Size:    "1024x1024",
				Timeout: 60 * time.Second,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
		},
	}
}
