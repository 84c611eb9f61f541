// Package config loads an INI configuration file and converts it to
// the client/cluster configuration the rest of the module uses.
// Adapted field-for-field from the teacher's internal/config/config.go
// parseINI loader: same section/key-value scanning, same inline-comment
// stripping, same "empty field keeps the default" precedence — pointed
// at cluster/connection settings instead of storage/shard settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/heimuheimu/naivecache-sub000/client"
)

// Config mirrors the recognized INI sections: [memcached] for the host
// list and per-operation timeouts, [socket] for TCP options.
type Config struct {
	Memcached struct {
		Hosts                string // comma-separated host:port list
		OperationTimeout     string // e.g. "1s"
		CompressionThreshold string // e.g. "65536"
	}
	Socket struct {
		ConnectTimeout    string
		ReadTimeout       string
		SendBufferSize    string
		ReceiveBufferSize string
		KeepAlive         string // "true"/"false"
		TCPNoDelay        string
		LingerSeconds     string
	}
}

// Load reads an INI file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseINI(string(data))
}

func parseINI(data string) (*Config, error) {
	cfg := &Config{}
	currentSection := ""

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.ToLower(line[1 : len(line)-1])
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(strings.ToLower(parts[0]))
		value := strings.TrimSpace(parts[1])
		if idx := strings.Index(value, " #"); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}

		switch currentSection {
		case "memcached":
			switch key {
			case "hosts":
				cfg.Memcached.Hosts = value
			case "operation-timeout":
				cfg.Memcached.OperationTimeout = value
			case "compression-threshold":
				cfg.Memcached.CompressionThreshold = value
			}
		case "socket":
			switch key {
			case "connect-timeout":
				cfg.Socket.ConnectTimeout = value
			case "read-timeout":
				cfg.Socket.ReadTimeout = value
			case "send-buffer-size":
				cfg.Socket.SendBufferSize = value
			case "receive-buffer-size":
				cfg.Socket.ReceiveBufferSize = value
			case "keep-alive":
				cfg.Socket.KeepAlive = value
			case "tcp-no-delay":
				cfg.Socket.TCPNoDelay = value
			case "linger-seconds":
				cfg.Socket.LingerSeconds = value
			}
		}
	}
	return cfg, nil
}

// Hosts splits the configured host list.
func (c *Config) Hosts() []string {
	if c.Memcached.Hosts == "" {
		return nil
	}
	var hosts []string
	for _, h := range strings.Split(c.Memcached.Hosts, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// ToClientConfig converts the file-based configuration into
// client.Config, starting from client.DefaultConfig() and overriding
// only the fields actually present in the file.
func (c *Config) ToClientConfig() (client.Config, error) {
	cfg := client.DefaultConfig()

	if c.Memcached.OperationTimeout != "" {
		d, err := time.ParseDuration(c.Memcached.OperationTimeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid operation-timeout: %w", err)
		}
		cfg.OperationTimeout = d
	}
	if c.Memcached.CompressionThreshold != "" {
		n, err := strconv.Atoi(c.Memcached.CompressionThreshold)
		if err != nil {
			return cfg, fmt.Errorf("invalid compression-threshold: %w", err)
		}
		cfg.CompressionThreshold = n
	}
	if c.Socket.ConnectTimeout != "" {
		d, err := time.ParseDuration(c.Socket.ConnectTimeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid connect-timeout: %w", err)
		}
		cfg.Sock.ConnectTimeout = d
	}
	if c.Socket.ReadTimeout != "" {
		d, err := time.ParseDuration(c.Socket.ReadTimeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid read-timeout: %w", err)
		}
		cfg.Sock.ReadTimeout = d
	}
	if c.Socket.SendBufferSize != "" {
		n, err := strconv.Atoi(c.Socket.SendBufferSize)
		if err != nil {
			return cfg, fmt.Errorf("invalid send-buffer-size: %w", err)
		}
		cfg.Sock.SendBufferSize = n
	}
	if c.Socket.ReceiveBufferSize != "" {
		n, err := strconv.Atoi(c.Socket.ReceiveBufferSize)
		if err != nil {
			return cfg, fmt.Errorf("invalid receive-buffer-size: %w", err)
		}
		cfg.Sock.ReceiveBufferSize = n
	}
	if c.Socket.KeepAlive != "" {
		b, err := strconv.ParseBool(c.Socket.KeepAlive)
		if err != nil {
			return cfg, fmt.Errorf("invalid keep-alive: %w", err)
		}
		cfg.Sock.KeepAlive = b
	}
	if c.Socket.TCPNoDelay != "" {
		b, err := strconv.ParseBool(c.Socket.TCPNoDelay)
		if err != nil {
			return cfg, fmt.Errorf("invalid tcp-no-delay: %w", err)
		}
		cfg.Sock.TCPNoDelay = b
	}
	if c.Socket.LingerSeconds != "" {
		n, err := strconv.Atoi(c.Socket.LingerSeconds)
		if err != nil {
			return cfg, fmt.Errorf("invalid linger-seconds: %w", err)
		}
		cfg.Sock.LingerSeconds = n
	}

	return cfg, nil
}
