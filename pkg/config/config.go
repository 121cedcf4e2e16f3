package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env string `yaml:"env"`

	API struct {
		URL     string        `yaml:"url"` // "http://localhost:3000"
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Realtime struct {
		URL              string        `yaml:"url"` // defaults to api.url
		Namespace        string        `yaml:"namespace"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
	} `yaml:"realtime"`

	Credential struct {
		Store string `yaml:"store"` // memory | redis
	} `yaml:"credential"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		Database int           `yaml:"database"`
		Prefix   string        `yaml:"prefix"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"kafka"`

	Relay struct {
		Email       string   `yaml:"email"`
		Password    string   `yaml:"password"`
		Projects    []string `yaml:"projects"`
		QueueSize   int      `yaml:"queue_size"`
		MetricsAddr string   `yaml:"metrics_addr"` // ":9108"
	} `yaml:"relay"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Load supports comma-separated config files: "-c common.yml,client.yml".
// Later files override earlier ones, the environment overrides files, and
// anything still unset gets a default. An empty list yields defaults plus
// environment.
func Load(pathList string) (*Config, error) {
	var c Config
	for _, p := range strings.Split(pathList, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
	}
	c.applyEnv(os.Getenv)
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TASKCHAT_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := getenv("TASKCHAT_WS_URL"); v != "" {
		c.Realtime.URL = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.API.URL == "" {
		c.API.URL = "http://localhost:3000"
	}
	c.API.URL = strings.TrimRight(c.API.URL, "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = 15 * time.Second
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = c.API.URL
	}
	if c.Realtime.Namespace == "" {
		c.Realtime.Namespace = "chat"
	}
	if c.Realtime.HandshakeTimeout <= 0 {
		c.Realtime.HandshakeTimeout = 10 * time.Second
	}
	if c.Realtime.WriteTimeout <= 0 {
		c.Realtime.WriteTimeout = 5 * time.Second
	}
	if c.Credential.Store == "" {
		c.Credential.Store = "memory"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "taskchat:"
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "chat.messages"
	}
	if c.Kafka.BatchTimeout <= 0 {
		c.Kafka.BatchTimeout = 100 * time.Millisecond
	}
	if c.Relay.QueueSize <= 0 {
		c.Relay.QueueSize = 1024
	}
	if c.Relay.MetricsAddr == "" {
		c.Relay.MetricsAddr = ":9108"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build(zap.Fields(zap.String("env", c.Env)))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
