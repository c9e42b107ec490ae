// Package config loads runtime configuration, layering an optional YAML
// file, STUDYQUEST_-prefixed environment variables and command-line flags,
// later sources overriding earlier ones.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "STUDYQUEST_"

type Config struct {
	// DBPath is the relational database location; ":memory:" for ephemeral.
	DBPath string `koanf:"db_path" validate:"required"`
	// DataDir holds the document-store file and the shadow backups.
	DataDir string `koanf:"data_dir" validate:"required"`
	// DocFile is the document-store filename inside DataDir.
	DocFile string `koanf:"doc_file" validate:"required"`
	// FlushDelay debounces document-store persistence.
	FlushDelay time.Duration `koanf:"flush_delay" validate:"min=0"`
	// LogMode selects the logger preset: "dev" or "prod".
	LogMode string `koanf:"log_mode" validate:"oneof=dev prod"`
}

func defaults() Config {
	return Config{
		DBPath:     "studyquest.db",
		DataDir:    "studyquest-data",
		DocFile:    "documents.json",
		FlushDelay: 500 * time.Millisecond,
		LogMode:    "dev",
	}
}

// Flags returns the flag set Load understands, for the caller to parse.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("studyquest", pflag.ContinueOnError)
	d := defaults()
	fs.String("db_path", d.DBPath, "relational database path")
	fs.String("data_dir", d.DataDir, "data directory for document store and backups")
	fs.String("doc_file", d.DocFile, "document store filename")
	fs.Duration("flush_delay", d.FlushDelay, "document store flush debounce")
	fs.String("log_mode", d.LogMode, "logger mode: dev or prod")
	fs.String("config", "", "optional YAML config file")
	return fs
}

// Load builds the configuration from file, environment and parsed flags.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadFromArgs parses args and loads; convenience for main.
func LoadFromArgs(args []string) (*Config, error) {
	flags := Flags()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return Load(flags)
}

// MustHaveDataDir creates the data directory when the OS filesystem is in
// use.
func (c *Config) MustHaveDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
