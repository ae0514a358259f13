// Package config loads the run configuration file.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/powerchunk/internal/common"
	"example.com/powerchunk/internal/powerlog"
)

type SchemaConfig struct {
	Columns        []string `yaml:"columns"`
	BattPresColumn string   `yaml:"battPresColumn"`
	PowerSrcColumn string   `yaml:"powerSrcColumn"`
	PercColumn     string   `yaml:"percColumn"`
}

type ExportConfig struct {
	XLSX bool `yaml:"xlsx"`
	PDF  bool `yaml:"pdf"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type Config struct {
	DeviceName      string           `yaml:"deviceName"`
	Definitions     string           `yaml:"definitions"`
	OutputDir       string           `yaml:"outputDir"`
	RotatedPrefix   string           `yaml:"rotatedPrefix"`
	Concurrency     int              `yaml:"concurrency"`
	MetricsTextfile string           `yaml:"metricsTextfile"`
	Schema          SchemaConfig     `yaml:"schema"`
	Exports         ExportConfig     `yaml:"exports"`
	Postgres        PostgresConfig   `yaml:"postgres"`
	Logs            common.LogConfig `yaml:"logs"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads path and resolves relative paths against its directory.
func Load(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	cfg.Definitions = resolvePath(cfg.Definitions)
	cfg.OutputDir = resolvePath(cfg.OutputDir)
	cfg.MetricsTextfile = resolvePath(cfg.MetricsTextfile)
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(".", "out")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.RotatedPrefix == "" {
		cfg.RotatedPrefix = powerlog.DefaultRotatedPrefix
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
}

// BuildSchema turns the schema section into a validated column layout.
// Without columns the stock layout is used.
func (cfg Config) BuildSchema() (powerlog.Schema, error) {
	columns := cfg.Schema.Columns
	if len(columns) == 0 {
		columns = powerlog.DefaultColumns
	}
	return powerlog.NewSchema(columns, cfg.Schema.BattPresColumn, cfg.Schema.PowerSrcColumn, cfg.Schema.PercColumn)
}
