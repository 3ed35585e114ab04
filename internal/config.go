package internal

import (
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config drives the demo binaries. LoadConfig fills in defaults, so a
// minimal file stays minimal.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Echo   EchoConfig   `yaml:"echo"`
	Log    LogConfig    `yaml:"log"`
}

type ClientConfig struct {
	URL          string            `yaml:"url"`
	Subprotocols []string          `yaml:"subprotocols"`
	Headers      map[string]string `yaml:"headers"` // native backend only; browsers cannot set handshake headers
	Payload      string            `yaml:"payload"`
	Timeout      time.Duration     `yaml:"timeout"`
	QueueSize    int               `yaml:"queue_size"`
	Fwmark       uint32            `yaml:"fwmark"`
}

type EchoConfig struct {
	Listen         string   `yaml:"listen"`
	Path           string   `yaml:"path"`
	MaxMessageSize int64    `yaml:"max_message_size"`
	Subprotocols   []string `yaml:"subprotocols"`
	MetricsListen  string   `yaml:"metrics_listen"` // empty disables the /metrics endpoint
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if c.Client.URL == "" {
		c.Client.URL = "ws://127.0.0.1:8090/echo"
	}
	if c.Client.Payload == "" {
		c.Client.Payload = "wsbridge test message"
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = 10 * time.Second
	}
	if c.Client.QueueSize == 0 {
		c.Client.QueueSize = 128
	}
	if c.Echo.Listen == "" {
		c.Echo.Listen = "127.0.0.1:8090"
	}
	c.Echo.Listen = normalizeHostPort(c.Echo.Listen)
	c.Echo.MetricsListen = normalizeHostPort(c.Echo.MetricsListen)
	if c.Echo.Path == "" {
		c.Echo.Path = "/echo"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return &c, nil
}

// normalizeHostPort brackets an IPv6 host:port that was written without
// brackets, so listen addresses work with net.Listen as configured.
func normalizeHostPort(s string) string {
	if s == "" {
		return s
	}
	if _, _, err := net.SplitHostPort(s); err == nil {
		return s
	}

	// Bracket everything before the last ':' and see if that parses. A
	// host already ending in ':' means the trailing segment belongs to
	// the IPv6 address, not a port.
	last := strings.LastIndexByte(s, ':')
	if last > 0 && last < len(s)-1 {
		host := s[:last]
		if strings.HasSuffix(host, ":") {
			return s
		}
		candidate := "[" + host + "]:" + s[last+1:]
		if _, _, err := net.SplitHostPort(candidate); err == nil {
			return candidate
		}
	}
	return s
}
