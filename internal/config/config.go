package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"udpwatch/internal/locator"
)

const (
	DefaultLogDir      = "/appl/logs/transcoder"
	DefaultLogLevel    = "info"
	DefaultLockDir     = "/dev/shm"
	DefaultChannelsDir = "/appl/conf/transcoder"
	DefaultLocator     = locator.BackendProc
	DefaultTimeoutSec  = 5
	DefaultProbeSec    = 10

	envPrefix = "UDPWATCH"
)

// Settings holds the watchdog's own configuration. Every field can be set
// from the YAML settings file or a UDPWATCH_<KEY> environment variable.
type Settings struct {
	LogDir            string `mapstructure:"log_dir"`
	LogLevel          string `mapstructure:"log_level"`
	LockDir           string `mapstructure:"lock_dir"`
	ChannelsDir       string `mapstructure:"channels_dir"`
	Locator           string `mapstructure:"locator"`
	Interface         string `mapstructure:"interface"`
	HistoryPath       string `mapstructure:"history_path"`
	MetricsDir        string `mapstructure:"metrics_textfile_dir"`
	DefaultTimeoutSec int    `mapstructure:"default_timeout_sec"`
	DefaultProbeSec   int    `mapstructure:"default_probe_sec"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_dir", DefaultLogDir)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("lock_dir", DefaultLockDir)
	v.SetDefault("channels_dir", DefaultChannelsDir)
	v.SetDefault("locator", DefaultLocator)
	v.SetDefault("interface", "")
	v.SetDefault("history_path", "")
	v.SetDefault("metrics_textfile_dir", "")
	v.SetDefault("default_timeout_sec", DefaultTimeoutSec)
	v.SetDefault("default_probe_sec", DefaultProbeSec)
}

// Load reads settings from path. An empty path yields defaults plus
// environment overrides; a named file that does not exist is an error.
func Load(path string) (Settings, error) {
	v := newViper()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, err
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	ApplyDefaults(&s)
	return s, nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(s *Settings) {
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.LockDir == "" {
		s.LockDir = DefaultLockDir
	}
	if s.ChannelsDir == "" {
		s.ChannelsDir = DefaultChannelsDir
	}
	if s.Locator == "" {
		s.Locator = DefaultLocator
	}
	if s.DefaultTimeoutSec == 0 {
		s.DefaultTimeoutSec = DefaultTimeoutSec
	}
	if s.DefaultProbeSec == 0 {
		s.DefaultProbeSec = DefaultProbeSec
	}
}

// Validate performs minimal validation.
func Validate(s Settings) error {
	var errs []error
	switch s.Locator {
	case locator.BackendProc, locator.BackendPgrep:
	default:
		errs = append(errs, fmt.Errorf("locator must be %q or %q, got %q", locator.BackendProc, locator.BackendPgrep, s.Locator))
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug|info|warn|error", s.LogLevel))
	}
	if s.DefaultTimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("default_timeout_sec must be positive"))
	}
	if s.DefaultProbeSec < 0 {
		errs = append(errs, fmt.Errorf("default_probe_sec must be positive"))
	}
	return errors.Join(errs...)
}
