package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Identity    IdentityConfig    `yaml:"identity"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Audit       AuditConfig       `yaml:"audit"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	AccessLog   AccessLogConfig   `yaml:"access_log"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Address             string        `yaml:"address"`
	Port                int           `yaml:"port"`
	ShutdownTimeoutSecs int           `yaml:"shutdown_timeout_secs"`
	TLS                 TLSConfig     `yaml:"tls"`
	AutoTLS             AutoTLSConfig `yaml:"auto_tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type AutoTLSConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Domains    []string `yaml:"domains"`
	CacheDir   string   `yaml:"cache_dir"`
	SelfSigned bool     `yaml:"self_signed"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type IdentityConfig struct {
	URL           string `yaml:"url"`
	ServiceKey    string `yaml:"service_key"`
	AdminRPC      string `yaml:"admin_rpc"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	SessionCookie string `yaml:"session_cookie"`
}

type ObjectStoreConfig struct {
	URL         string `yaml:"url"`
	ServiceKey  string `yaml:"service_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type AuditConfig struct {
	Workers     int                  `yaml:"workers"`
	QueueSize   int                  `yaml:"queue_size"`
	TimeoutSecs int                  `yaml:"timeout_secs"`
	NATS        NATSBackendConfig    `yaml:"nats"`
	Redis       RedisBackendConfig   `yaml:"redis"`
	Kafka       KafkaBackendConfig   `yaml:"kafka"`
	Postgres    PGBackendConfig      `yaml:"postgres"`
	Webhook     WebhookBackendConfig `yaml:"webhook"`
}

type NATSBackendConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type RedisBackendConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
	ListKey string `yaml:"list_key"`
}

type KafkaBackendConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type PGBackendConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
}

type WebhookBackendConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled"`
	IPRPS          float64 `yaml:"ip_rps"`
	IPBurst        int     `yaml:"ip_burst"`
	PrincipalRPS   float64 `yaml:"principal_rps"`
	PrincipalBurst int     `yaml:"principal_burst"`
}

type AccessLogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FilePath string `yaml:"file_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:             "0.0.0.0",
			Port:                8080,
			ShutdownTimeoutSecs: 30,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 16,
		},
		Identity: IdentityConfig{
			AdminRPC:      "is_admin",
			TimeoutSecs:   5,
			SessionCookie: "fg_session",
		},
		ObjectStore: ObjectStoreConfig{
			TimeoutSecs: 10,
		},
		Audit: AuditConfig{
			Workers:     2,
			QueueSize:   256,
			TimeoutSecs: 10,
		},
		RateLimit: RateLimitConfig{
			IPRPS:          10,
			IPBurst:        20,
			PrincipalRPS:   5,
			PrincipalBurst: 10,
		},
		AccessLog: AccessLogConfig{
			FilePath: "./access.log",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	if cfg.Identity.URL == "" {
		return nil, fmt.Errorf("identity.url is required")
	}
	if cfg.ObjectStore.URL == "" {
		return nil, fmt.Errorf("object_store.url is required")
	}

	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
