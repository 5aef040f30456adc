package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file over the defaults and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err = yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

// Parse builds the config from command line arguments. When --config is given
// the file is loaded first and flags set explicitly on the command line win.
func Parse(args []string) (*Config, error) {
	var (
		fs  = pflag.NewFlagSet("main", pflag.ContinueOnError)
		def = Default()

		configPath     = fs.StringP("config", "c", "", "path to yaml config file")
		apiListenAddr  = fs.StringP("api-listen-addr", "a", def.APIListenAddr, "api listen address")
		wsListenAddr   = fs.StringP("ws-listen-addr", "w", def.WSListenAddr, "websocket signaling listen address")
		logLevel       = fs.StringP("log-level", "l", def.LogLevel, "log level")
		forwardTimeout = fs.Duration("forward-timeout", def.ForwardTimeout, "max time to hand a message to one peer")
		sendQueueSize  = fs.Int("send-queue", def.SendQueueSize, "outbound message queue size per connection")
		maxMessageSize = fs.Int64("max-message-size", def.MaxMessageSize, "max inbound websocket message size in bytes")
		shards         = fs.Int("shards", def.Shards, "number of room registry shards")
	)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse command line arguments: %w", err)
	}

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = Load(*configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "api-listen-addr":
			cfg.APIListenAddr = *apiListenAddr
		case "ws-listen-addr":
			cfg.WSListenAddr = *wsListenAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "forward-timeout":
			cfg.ForwardTimeout = *forwardTimeout
		case "send-queue":
			cfg.SendQueueSize = *sendQueueSize
		case "max-message-size":
			cfg.MaxMessageSize = *maxMessageSize
		case "shards":
			cfg.Shards = *shards
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
