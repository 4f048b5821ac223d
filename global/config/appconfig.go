package config

import (
	"net"
	"strconv"
	"time"
)

type AppConfig struct {
	NodeId     string `yaml:"node_id"`     // 节点ID，用于 presence / 事件
	Host       string `yaml:"host"`        // 监听地址，空表示所有网卡
	Port       int    `yaml:"port"`        // websocket 端口
	Path       string `yaml:"path"`        // websocket 路由
	HealthPort int    `yaml:"health_port"` // 健康检查端口，0 表示挂在 websocket 端口上
	HealthBody string `yaml:"health_body"`

	Log   LogConfig   `yaml:"log"`
	WS    WSConfig    `yaml:"ws"`
	Redis RedisConfig `yaml:"redis"`
	Nats  NatsConfig  `yaml:"nats"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

type WSConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 = no deadline
	PingInterval    time.Duration `yaml:"ping_interval"` // 0 = keepalive off
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // empty = any origin
}

// RedisConfig enables the presence mirror when Addr is set.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PresenceTTL time.Duration `yaml:"presence_ttl"`
}

// NatsConfig enables relay event publishing when Servers is non-empty.
type NatsConfig struct {
	Servers       []string `yaml:"servers"`
	Name          string   `yaml:"name"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

// Addr is the websocket listen address.
func (c *AppConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HealthAddr is the health listen address, or "" when health shares the websocket port.
func (c *AppConfig) HealthAddr() string {
	if c.HealthPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HealthPort))
}
