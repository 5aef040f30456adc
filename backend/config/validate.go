package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

func (c *Config) Validate() error {
	var errs []error

	if c.APIListenAddr == "" {
		errs = append(errs, errors.New("api_listen_addr is required"))
	}
	if c.WSListenAddr == "" {
		errs = append(errs, errors.New("ws_listen_addr is required"))
	}
	if c.APIListenAddr != "" && c.APIListenAddr == c.WSListenAddr {
		errs = append(errs, errors.New("api and websocket servers cannot share a listen address"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.ForwardTimeout <= 0 {
		errs = append(errs, errors.New("forward_timeout must be positive"))
	}
	if c.SendQueueSize <= 0 {
		errs = append(errs, errors.New("send_queue_size must be positive"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("max_message_size must be positive"))
	}
	if c.Shards <= 0 {
		errs = append(errs, errors.New("shards must be positive"))
	}

	return errors.Join(errs...)
}
