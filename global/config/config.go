package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultNodeId          = "relay-1"
	DefaultPort            = 8765
	DefaultPath            = "/"
	DefaultHealthPort      = 8080
	DefaultHealthBody      = "WebSocket server is running"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultBufferSize      = 4096
	DefaultMaxMessageBytes = 1 << 20
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPingInterval    = 20 * time.Second
	DefaultPongTimeout     = 40 * time.Second
	DefaultPresenceTTL     = 2 * time.Hour
	DefaultSubjectPrefix   = "relay"
)

// Default returns the configuration used when nothing else is supplied.
func Default() AppConfig {
	return AppConfig{
		NodeId:     DefaultNodeId,
		Port:       DefaultPort,
		Path:       DefaultPath,
		HealthPort: DefaultHealthPort,
		HealthBody: DefaultHealthBody,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		WS: WSConfig{
			ReadBufferSize:  DefaultBufferSize,
			WriteBufferSize: DefaultBufferSize,
			MaxMessageBytes: DefaultMaxMessageBytes,
			WriteTimeout:    DefaultWriteTimeout,
			PingInterval:    DefaultPingInterval,
			PongTimeout:     DefaultPongTimeout,
		},
		Redis: RedisConfig{
			PresenceTTL: DefaultPresenceTTL,
		},
		Nats: NatsConfig{
			SubjectPrefix: DefaultSubjectPrefix,
		},
	}
}

// Load builds the config: defaults, then the YAML file at path (if any), then
// environment overrides. The result is validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	// PORT and HEALTH_PORT colliding means one listener serves both.
	if cfg.HealthPort == cfg.Port {
		cfg.HealthPort = 0
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *AppConfig) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %q is not an integer", key, v)
		}
		*dst = n
		return nil
	}
	list := func(key string, dst *[]string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}

	str("NODE_ID", &c.NodeId)
	str("HOST", &c.Host)
	str("WS_PATH", &c.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	list("NATS_URL", &c.Nats.Servers)
	list("WS_ALLOWED_ORIGINS", &c.WS.AllowedOrigins)

	if err := num("PORT", &c.Port); err != nil {
		return err
	}
	if err := num("HEALTH_PORT", &c.HealthPort); err != nil {
		return err
	}
	return num("REDIS_DB", &c.Redis.DB)
}

// Validate checks ranges and cross-field constraints.
func (c *AppConfig) Validate() error {
	if c.NodeId == "" {
		return errors.New("node_id is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("health_port must be between 0 and 65535, got %d", c.HealthPort)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path must start with '/', got %q", c.Path)
	}
	if c.WS.MaxMessageBytes < 1 {
		return errors.New("ws.max_message_bytes must be >= 1")
	}
	if c.WS.WriteTimeout < 0 {
		return errors.New("ws.write_timeout must be >= 0")
	}
	if c.WS.PingInterval < 0 {
		return errors.New("ws.ping_interval must be >= 0")
	}
	if c.WS.PingInterval > 0 && c.WS.PongTimeout <= c.WS.PingInterval {
		return fmt.Errorf("ws.pong_timeout (%v) must exceed ws.ping_interval (%v)", c.WS.PongTimeout, c.WS.PingInterval)
	}
	if c.Redis.DB < 0 {
		return errors.New("redis.db must be >= 0")
	}
	return nil
}
