// Package config loads webcli settings from the environment.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all settings that can come from the environment.
// CLI flags take precedence over these values.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Logging LogConfig
}

type ServerConfig struct {
	Port    string `envconfig:"PORT" default:"3000"`
	Host    string `envconfig:"HOST" default:"0.0.0.0"`
	TLSCert string `envconfig:"WEBCLI_TLS_CERT"`
	TLSKey  string `envconfig:"WEBCLI_TLS_KEY"`
}

type SessionConfig struct {
	CLIPath     string        `envconfig:"WEBCLI_CLI_PATH" default:"dist/calculator-cli"`
	IdleTimeout time.Duration `envconfig:"WEBCLI_IDLE_TIMEOUT" default:"0s"`
	KillGrace   time.Duration `envconfig:"WEBCLI_KILL_GRACE" default:"5s"`
}

type LogConfig struct {
	Level string `envconfig:"WEBCLI_LOG_LEVEL" default:"info"`
}

// ListenAddr joins the configured host and port.
func (c ServerConfig) ListenAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
