// Package config holds signaling server settings. Values come from
// defaults, then an optional YAML file, then command line flags.
package config

import (
	"time"
)

const (
	DefaultAPIListenAddr  = ":8080"
	DefaultWSListenAddr   = ":8888"
	DefaultLogLevel       = "debug"
	DefaultForwardTimeout = time.Second
	DefaultSendQueueSize  = 64
	DefaultMaxMessageSize = 64 * 1024
	DefaultShards         = 32
)

type Config struct {
	APIListenAddr string `yaml:"api_listen_addr"`
	WSListenAddr  string `yaml:"ws_listen_addr"`
	LogLevel      string `yaml:"log_level"`

	// ForwardTimeout bounds delivery of one message to one peer.
	ForwardTimeout time.Duration `yaml:"forward_timeout"`
	SendQueueSize  int           `yaml:"send_queue_size"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	Shards         int           `yaml:"shards"`
}

func Default() *Config {
	return &Config{
		APIListenAddr:  DefaultAPIListenAddr,
		WSListenAddr:   DefaultWSListenAddr,
		LogLevel:       DefaultLogLevel,
		ForwardTimeout: DefaultForwardTimeout,
		SendQueueSize:  DefaultSendQueueSize,
		MaxMessageSize: DefaultMaxMessageSize,
		Shards:         DefaultShards,
	}
}
