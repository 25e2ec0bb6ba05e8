package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/yomu/internal/definition"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: YOMU_DB__PATH sets db.path.
const EnvPrefix = "YOMU_"

// Config is the process configuration.
type Config struct {
	Server struct {
		Addr string `koanf:"addr" validate:"required"`
	} `koanf:"server"`
	DB struct {
		Path string `koanf:"path" validate:"required"`
	} `koanf:"db"`
	Definition struct {
		URL     string        `koanf:"url" validate:"required,url"`
		Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	} `koanf:"definition"`
	Sync struct {
		ReposDir string `koanf:"repos_dir" validate:"required"`
	} `koanf:"sync"`
	Log struct {
		Level  string `koanf:"level" validate:"oneof=debug info warn error"`
		Format string `koanf:"format" validate:"oneof=text json"`
	} `koanf:"log"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":               "server.addr",
	"db":                 "db.path",
	"definition-url":     "definition.url",
	"definition-timeout": "definition.timeout",
	"repos-dir":          "sync.repos_dir",
	"log-level":          "log.level",
	"log-format":         "log.format",
}

// RegisterFlags adds the configuration flags, with their defaults, to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "yomu.yaml", "Path to an optional YAML config file")
	flags.String("env-file", ".env", "Path to an optional .env file")
	flags.String("addr", ":8000", "HTTP listen address")
	flags.String("db", "yomu.db", "Path to the SQLite database file")
	flags.String("definition-url", definition.DefaultURL, "Dictionary lookup endpoint")
	flags.Duration("definition-timeout", 5*time.Second, "Timeout for a dictionary lookup")
	flags.String("repos-dir", "repos", "Directory git sources are cloned into")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
}

// Load builds the configuration from, in increasing priority, flag
// defaults, the YAML file, the environment and explicitly set flags.
// Missing config and .env files are not an error.
func Load(flags *pflag.FlagSet) (*Config, error) {
	envFile, _ := flags.GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	k := koanf.New(".")

	configFile, _ := flags.GetString("config")
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Flags last: changed flags override everything, defaults only fill
	// keys no other provider set.
	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func flagKey(flags *pflag.FlagSet) func(*pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			// Unmapped flags (config, env-file) stay out of the config tree.
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}
}

// Logger builds the slog logger described by the log section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
