// Package config loads fixinit settings from a TOML file and FIXINIT_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/koltyakov/fixinit/internal/netutil"
)

const (
	configName = "fixinit"
	configType = "toml"
	envPrefix  = "FIXINIT"

	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".fixinit-*.toml.tmp"
)

const defaultLogLevel = "info"
const defaultSettingsPath = "./fix.cfg"
const defaultRelayCertCacheDir = "./cert"
const defaultSendBurst = 1

// Config is the full application configuration.
type Config struct {
	LogLevel    string            `mapstructure:"log_level" toml:"log_level"`
	FIX         FIXConfig         `mapstructure:"fix" toml:"fix"`
	Credentials CredentialsConfig `mapstructure:"credentials" toml:"credentials"`
	Journal     JournalConfig     `mapstructure:"journal" toml:"journal"`
	Relay       RelayConfig       `mapstructure:"relay" toml:"relay"`
	Send        SendConfig        `mapstructure:"send" toml:"send"`
	Debug       DebugConfig       `mapstructure:"debug" toml:"debug"`
}

type FIXConfig struct {
	// SettingsPath points at the QuickFIX/Go session settings file.
	SettingsPath string `mapstructure:"settings_path" toml:"settings_path"`
	// Name labels the initiator in logs and the router in metrics.
	Name string `mapstructure:"name" toml:"name"`
}

// CredentialsConfig overrides the per-session credentials from the settings
// file when a field is non-empty.
type CredentialsConfig struct {
	Username    string `mapstructure:"username" toml:"username"`
	Password    string `mapstructure:"password" toml:"password"`
	NewPassword string `mapstructure:"new_password" toml:"new_password"`
}

type JournalConfig struct {
	// Path of the SQLite journal; empty disables journaling.
	Path string `mapstructure:"path" toml:"path"`
}

type RelayConfig struct {
	// Listen address of the monitor feed; empty disables the relay.
	Listen       string `mapstructure:"listen" toml:"listen"`
	ACMEDomain   string `mapstructure:"acme_domain" toml:"acme_domain"`
	CertCacheDir string `mapstructure:"cert_cache_dir" toml:"cert_cache_dir"`
	// Token is the bearer token feed subscribers must present; empty leaves
	// the feed open.
	Token string `mapstructure:"token" toml:"token"`
}

type SendConfig struct {
	// RateLimit is messages per second; 0 disables throttling.
	RateLimit float64 `mapstructure:"rate_limit" toml:"rate_limit"`
	Burst     int     `mapstructure:"burst" toml:"burst"`
}

type DebugConfig struct {
	// PprofListen serves /debug/pprof when set.
	PprofListen string `mapstructure:"pprof_listen" toml:"pprof_listen"`
}

// Default returns the configuration used when no file or env var says
// otherwise.
func Default() Config {
	return Config{
		LogLevel: defaultLogLevel,
		FIX:      FIXConfig{SettingsPath: defaultSettingsPath},
		Relay:    RelayConfig{CertCacheDir: defaultRelayCertCacheDir},
		Send:     SendConfig{Burst: defaultSendBurst},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("fix.settings_path", d.FIX.SettingsPath)
	v.SetDefault("fix.name", d.FIX.Name)
	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("credentials.new_password", "")
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("relay.listen", d.Relay.Listen)
	v.SetDefault("relay.acme_domain", d.Relay.ACMEDomain)
	v.SetDefault("relay.cert_cache_dir", d.Relay.CertCacheDir)
	v.SetDefault("relay.token", d.Relay.Token)
	v.SetDefault("send.rate_limit", d.Send.RateLimit)
	v.SetDefault("send.burst", d.Send.Burst)
	v.SetDefault("debug.pprof_listen", d.Debug.PprofListen)
}

// Load reads the config file at path, or fixinit.toml from the working
// directory when path is empty, then applies FIXINIT_* environment
// overrides such as FIXINIT_FIX_SETTINGS_PATH. A missing default file is not
// an error; a missing explicit file is.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.FIX.SettingsPath = strings.TrimSpace(c.FIX.SettingsPath)
	c.FIX.Name = strings.TrimSpace(c.FIX.Name)
	c.Journal.Path = strings.TrimSpace(c.Journal.Path)
	c.Relay.Listen = strings.TrimSpace(c.Relay.Listen)
	c.Relay.ACMEDomain = netutil.NormalizeHost(c.Relay.ACMEDomain)
	c.Relay.Token = strings.TrimSpace(c.Relay.Token)
	c.Debug.PprofListen = strings.TrimSpace(c.Debug.PprofListen)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("log level must be one of: debug, info, warn, error")
	}
	if c.FIX.SettingsPath == "" {
		return errors.New("missing fix.settings_path or FIXINIT_FIX_SETTINGS_PATH")
	}
	if c.Send.RateLimit < 0 {
		return errors.New("send rate limit must be >= 0")
	}
	if c.Send.Burst < 0 {
		return errors.New("send burst must be >= 0")
	}
	if c.Relay.ACMEDomain != "" && c.Relay.Listen == "" {
		return errors.New("relay.acme_domain requires relay.listen")
	}
	return nil
}

// Write encodes cfg as TOML to path. An existing file is replaced only when
// overwrite is set.
func Write(path string, cfg Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat config file: %w", err)
		}
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}
	header := "# fixinit configuration. Every key can be overridden with FIXINIT_<SECTION>_<KEY>.\n\n"
	return writeFileAtomic(path, append([]byte(header), data...))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tempFile.Chmod(configFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	cleanup = false
	return nil
}
