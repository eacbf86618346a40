package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Default.
const (
	DefaultPort      = 3000
	DefaultModelDir  = "model"
	DefaultBackend   = "gonum"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified"; Merge only lets set fields override.
type Config struct {
	Addr                  string   `json:"addr" yaml:"addr" toml:"addr"`
	Port                  int      `json:"port" yaml:"port" toml:"port"`
	ModelDir              string   `json:"model_dir" yaml:"model_dir" toml:"model_dir"`
	ModelURL              string   `json:"model_url" yaml:"model_url" toml:"model_url"`
	ModelEntry            string   `json:"model_entry" yaml:"model_entry" toml:"model_entry"`
	Backend               string   `json:"backend" yaml:"backend" toml:"backend"`
	ONNXLibraryPath       string   `json:"onnx_library_path" yaml:"onnx_library_path" toml:"onnx_library_path"`
	LogLevel              string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat             string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	MaxBodyBytes          int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	PredictTimeoutSeconds int64    `json:"predict_timeout_seconds" yaml:"predict_timeout_seconds" toml:"predict_timeout_seconds"`
	CORSEnabled           bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins           []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:      DefaultPort,
		ModelDir:  DefaultModelDir,
		Backend:   DefaultBackend,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// FromEnv reads overrides from the environment. PORT is honoured for
// compatibility with common hosting platforms; everything else uses the
// POINTD_ prefix.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("POINTD_ADDR", &cfg.Addr)
	str("POINTD_MODEL_DIR", &cfg.ModelDir)
	str("POINTD_MODEL_URL", &cfg.ModelURL)
	str("POINTD_MODEL_ENTRY", &cfg.ModelEntry)
	str("POINTD_BACKEND", &cfg.Backend)
	str("POINTD_ONNX_LIBRARY_PATH", &cfg.ONNXLibraryPath)
	str("POINTD_LOG_LEVEL", &cfg.LogLevel)
	str("POINTD_LOG_FORMAT", &cfg.LogFormat)

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = n
	}
	if v, ok := lookup("POINTD_MAX_BODY_BYTES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("POINTD_MAX_BODY_BYTES: %w", err)
		}
		cfg.MaxBodyBytes = n
	}
	if v, ok := lookup("POINTD_PREDICT_TIMEOUT_SECONDS"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("POINTD_PREDICT_TIMEOUT_SECONDS: %w", err)
		}
		cfg.PredictTimeoutSeconds = n
	}
	if v, ok := lookup("POINTD_CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cfg.CORSEnabled = true
		cfg.CORSOrigins = SplitCSV(v)
	}
	return cfg, nil
}

// Merge returns c with every non-zero field of o applied on top.
func (c Config) Merge(o Config) Config {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.Port != 0 {
		c.Port = o.Port
	}
	if o.ModelDir != "" {
		c.ModelDir = o.ModelDir
	}
	if o.ModelURL != "" {
		c.ModelURL = o.ModelURL
	}
	if o.ModelEntry != "" {
		c.ModelEntry = o.ModelEntry
	}
	if o.Backend != "" {
		c.Backend = o.Backend
	}
	if o.ONNXLibraryPath != "" {
		c.ONNXLibraryPath = o.ONNXLibraryPath
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		c.LogFormat = o.LogFormat
	}
	if o.MaxBodyBytes != 0 {
		c.MaxBodyBytes = o.MaxBodyBytes
	}
	if o.PredictTimeoutSeconds != 0 {
		c.PredictTimeoutSeconds = o.PredictTimeoutSeconds
	}
	if o.CORSEnabled {
		c.CORSEnabled = true
	}
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	}
	return c
}

// ListenAddr is Addr when set, otherwise ":<Port>".
func (c Config) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return ":" + strconv.Itoa(c.Port)
}

// Validate rejects values that cannot produce a working server.
func (c Config) Validate() error {
	if c.Addr == "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if strings.TrimSpace(c.Backend) == "" {
		return fmt.Errorf("backend is required")
	}
	if c.ModelURL == "" && strings.TrimSpace(c.ModelDir) == "" {
		return fmt.Errorf("either model_dir or model_url is required")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	if c.PredictTimeoutSeconds < 0 {
		return fmt.Errorf("predict_timeout_seconds must not be negative")
	}
	return nil
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empties.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
