// Package config models saksflyt.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models saksflyt.yml.
type Config struct {
	DB struct {
		Workspace string `yaml:"workspace"`
	} `yaml:"db"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
		ADGruppe  string `yaml:"ad_gruppe"`
	} `yaml:"server"`
	Beslutter struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"beslutter"`
	LederValg struct {
		URL string `yaml:"url"`
	} `yaml:"ledervalg"`
	Jobber struct {
		FristPeriode      time.Duration `yaml:"frist_periode"`
		VaktmesterPeriode time.Duration `yaml:"vaktmester_periode"`
		MaksOppgaveAlder  time.Duration `yaml:"maks_oppgave_alder"`
	} `yaml:"jobber"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "saksflyt.yml")
}

// FromYAML parses and validates config from raw YAML bytes. Unset fields
// fall back to defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns a config suitable for local runs.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8200"
	cfg.Server.BasePath = "/api"
	cfg.Server.ADGruppe = "0000-GA-SAKSBEHANDLING"
	cfg.Beslutter.Timeout = 10 * time.Second
	cfg.Jobber.FristPeriode = time.Hour
	cfg.Jobber.VaktmesterPeriode = 6 * time.Hour
	cfg.Jobber.MaksOppgaveAlder = 30 * 24 * time.Hour
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.ADGruppe == "" {
		return fmt.Errorf("config.server.ad_gruppe is required")
	}
	if c.Beslutter.Timeout < 0 {
		return fmt.Errorf("config.beslutter.timeout cannot be negative")
	}
	for navn, periode := range map[string]time.Duration{
		"frist_periode":      c.Jobber.FristPeriode,
		"vaktmester_periode": c.Jobber.VaktmesterPeriode,
	} {
		if periode <= 0 {
			return fmt.Errorf("config.jobber.%s must be positive", navn)
		}
	}
	return nil
}
