package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/krogueintel/blackbox/internal/settings"
)

// Config is the full configuration surface of the tracer: output
// naming, rotation thresholds, retention bound, and the backing
// library of each resolution family.
type Config struct {
	FilePrefix  string `yaml:"file_prefix"`
	OutputDir   string `yaml:"output_dir"`
	MaxFileSize int64  `yaml:"max_file_size"`
	MaxFrames   uint   `yaml:"max_frames_per_session"`
	Retention   int    `yaml:"keep_most_recent"`

	DefaultLibrary   string `yaml:"default_library"`
	AlternateLibrary string `yaml:"alternate_library"`
}

func Default() Config {
	return Config{
		FilePrefix:       settings.DefaultFilePrefix,
		MaxFileSize:      settings.DefaultMaxFileSize,
		MaxFrames:        settings.DefaultMaxFrames,
		Retention:        settings.DefaultRetention,
		DefaultLibrary:   settings.DefaultLibraryName,
		AlternateLibrary: settings.AlternateLibraryName,
	}
}

// Load builds the configuration from defaults overlaid with the
// environment. Malformed numeric values fall back to the default
// rather than failing: configuration mistakes must not take the host
// process down.
func Load() Config {
	c := Default()
	c.FilePrefix = getEnvOrDefault(settings.EnvFilePrefix, c.FilePrefix)
	c.MaxFileSize = getInt64EnvOrDefault(settings.EnvMaxFileSize, c.MaxFileSize)
	c.MaxFrames = getUintEnvOrDefault(settings.EnvMaxFrames, c.MaxFrames)
	c.Retention = getIntEnvOrDefault(settings.EnvRetention, c.Retention)
	c.DefaultLibrary = getEnvOrDefault(settings.EnvDefaultLibrary, c.DefaultLibrary)
	c.AlternateLibrary = getEnvOrDefault(settings.EnvAlternateLibrary, c.AlternateLibrary)

	return c
}

// LoadFile overlays a YAML configuration file on top of c. Zero-valued
// fields in the file keep their current value.
func (c Config) LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "error reading config file %s", path)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return c, errors.Wrapf(err, "error parsing config file %s", path)
	}

	if overlay.FilePrefix != "" {
		c.FilePrefix = overlay.FilePrefix
	}
	if overlay.OutputDir != "" {
		c.OutputDir = overlay.OutputDir
	}
	if overlay.MaxFileSize != 0 {
		c.MaxFileSize = overlay.MaxFileSize
	}
	if overlay.MaxFrames != 0 {
		c.MaxFrames = overlay.MaxFrames
	}
	if overlay.Retention != 0 {
		c.Retention = overlay.Retention
	}
	if overlay.DefaultLibrary != "" {
		c.DefaultLibrary = overlay.DefaultLibrary
	}
	if overlay.AlternateLibrary != "" {
		c.AlternateLibrary = overlay.AlternateLibrary
	}

	return c, nil
}

// Environ renders the configuration back to the environment surface,
// for the CLI wrapper handing it to a launched process.
func (c Config) Environ() []string {
	return []string{
		settings.EnvFilePrefix + "=" + c.FilePrefix,
		settings.EnvMaxFileSize + "=" + strconv.FormatInt(c.MaxFileSize, 10),
		settings.EnvMaxFrames + "=" + strconv.FormatUint(uint64(c.MaxFrames), 10),
		settings.EnvRetention + "=" + strconv.Itoa(c.Retention),
		settings.EnvDefaultLibrary + "=" + c.DefaultLibrary,
		settings.EnvAlternateLibrary + "=" + c.AlternateLibrary,
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnvOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getInt64EnvOrDefault(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getUintEnvOrDefault(key string, def uint) uint {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint(n)
}
