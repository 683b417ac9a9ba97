// Package config loads vzsync settings from defaults, an optional config
// file, environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vzcode/vzsync/internal/ignore"
)

// Keys understood by Load.
const (
	KeyRoot              = "root"
	KeyBaseIgnore        = "base_ignore"
	KeyIgnoreFilePattern = "ignore_file_pattern"
	KeyDebounce          = "debounce"
	KeyThrottle          = "throttle"
	KeyWatch             = "watch"
	KeyWatchDebounce     = "watch_debounce"
	KeyFeedAddr          = "feed.addr"
	KeyJournalPath       = "journal.path"
	KeyLogLevel          = "log.level"
	KeyLogFile           = "log.file"
)

// EnvPrefix prefixes every environment variable, e.g. VZSYNC_DEBOUNCE.
const EnvPrefix = "VZSYNC"

// ErrInvalid is wrapped by validation errors.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Root               string
	BaseIgnore         []string
	IgnoreFilePatterns []string
	Debounce           time.Duration
	Throttle           time.Duration
	Watch              bool
	WatchDebounce      time.Duration
	FeedAddr           string
	JournalPath        string
	LogLevel           string
	LogFile            string

	// File is the config file that was read, if any.
	File string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Root:               ".",
		BaseIgnore:         append([]string(nil), ignore.DefaultBase...),
		IgnoreFilePatterns: append([]string(nil), ignore.DefaultFilePatterns...),
		Debounce:           800 * time.Millisecond,
		Throttle:           100 * time.Millisecond,
		Watch:              true,
		WatchDebounce:      150 * time.Millisecond,
		FeedAddr:           ":3030",
		LogLevel:           "info",
	}
}

// New returns a viper instance carrying the defaults and environment
// bindings. Flags can be bound to it before calling Load.
func New() *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetDefault(KeyRoot, d.Root)
	v.SetDefault(KeyBaseIgnore, d.BaseIgnore)
	v.SetDefault(KeyIgnoreFilePattern, d.IgnoreFilePatterns)
	v.SetDefault(KeyDebounce, d.Debounce)
	v.SetDefault(KeyThrottle, d.Throttle)
	v.SetDefault(KeyWatch, d.Watch)
	v.SetDefault(KeyWatchDebounce, d.WatchDebounce)
	v.SetDefault(KeyFeedAddr, d.FeedAddr)
	v.SetDefault(KeyJournalPath, "")
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFile, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names kept for existing deployments.
	_ = v.BindEnv(KeyBaseIgnore, EnvPrefix+"_BASE_IGNORE", "BASE_IGNORE")
	_ = v.BindEnv(KeyIgnoreFilePattern, EnvPrefix+"_IGNORE_FILE_PATTERN", "IGNORE_FILE_PATTERN")
	return v
}

// BindFlags binds command-line flags to keys. Flags that were not set on
// the command line do not override lower layers.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file and resolves v into a Config. When file is
// empty, vzsync.{yaml,toml,json} is looked up in the working directory
// and a missing file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("vzsync")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Root:               v.GetString(KeyRoot),
		BaseIgnore:         list(v, KeyBaseIgnore),
		IgnoreFilePatterns: list(v, KeyIgnoreFilePattern),
		Debounce:           v.GetDuration(KeyDebounce),
		Throttle:           v.GetDuration(KeyThrottle),
		Watch:              v.GetBool(KeyWatch),
		WatchDebounce:      v.GetDuration(KeyWatchDebounce),
		FeedAddr:           v.GetString(KeyFeedAddr),
		JournalPath:        v.GetString(KeyJournalPath),
		LogLevel:           v.GetString(KeyLogLevel),
		LogFile:            v.GetString(KeyLogFile),
		File:               v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and resolves Root to an absolute path.
func (c *Config) Validate() error {
	if c.Debounce <= 0 {
		return fmt.Errorf("%w: debounce must be positive, got %s", ErrInvalid, c.Debounce)
	}
	if c.Throttle <= 0 {
		return fmt.Errorf("%w: throttle must be positive, got %s", ErrInvalid, c.Throttle)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("%w: watch_debounce must not be negative", ErrInvalid)
	}
	if c.Root == "" {
		c.Root = "."
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}
	c.Root = abs
	return nil
}

// list reads a string list. Environment values are comma separated.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
