package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voxbridge/voxbridge/internal/voxerr"
)

// ConnectionConfig is the YAML file describing how to reach the MCP server
// and optional backend overrides.
type ConnectionConfig struct {
	Server struct {
		// Command is the full launch command for the MCP server process,
		// e.g. ["voxtools"] or ["python", "server.py"].
		Command []string `yaml:"command"`
		// Env holds extra KEY=VALUE pairs for the server process.
		Env []string `yaml:"env"`
	} `yaml:"server"`

	Backend struct {
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"backend"`
}

// LoadConnectionConfig reads and parses the connection configuration file.
func LoadConnectionConfig(path string) (*ConnectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &voxerr.ConfigError{Field: "connection_file", Message: "cannot read " + path, Err: err}
	}

	var cfg ConnectionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &voxerr.ConfigError{Field: "connection_file", Message: "malformed YAML in " + path, Err: err}
	}

	if len(cfg.Server.Command) == 0 {
		return nil, &voxerr.ConfigError{Field: "server.command", Message: "missing MCP server command"}
	}
	return &cfg, nil
}

// ApplyBackendOverrides merges non-zero backend settings from the connection
// file into the process config.
func (cc *ConnectionConfig) ApplyBackendOverrides(cfg *Config) {
	if cc.Backend.Host != "" {
		cfg.Host = cc.Backend.Host
	}
	if cc.Backend.Port != 0 {
		cfg.Port = cc.Backend.Port
	}
	if cc.Backend.MaxConnections != 0 {
		cfg.MaxConnections = cc.Backend.MaxConnections
	}
}

// Addr returns the listen address for the configured host and port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
