package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	AuthMethodLogin = "login"
	AuthMethodPlain = "plain"
)

// Config is the server information for one IMAP account plus the client's
// ambient settings. It is loaded once and handed to the services that need it.
type Config struct {
	IMAP           IMAPConfig `mapstructure:"imap" yaml:"imap"`
	Auth           AuthConfig `mapstructure:"auth" yaml:"auth"`
	Log            LogConfig  `mapstructure:"log" yaml:"log"`
	KeyringBackend string     `mapstructure:"keyring_backend" yaml:"keyring_backend,omitempty"`
}

type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	StartTLS bool   `mapstructure:"starttls" yaml:"starttls"`
	// InsecureSkipVerify disables certificate chain validation. Opt-in only.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Compress           bool `mapstructure:"compress" yaml:"compress"`
}

type AuthConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Method   string `mapstructure:"method" yaml:"method"`

	// PasswordSource records where Password came from: env, config or keyring.
	PasswordSource string `mapstructure:"-" yaml:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		IMAP: IMAPConfig{
			Port:     993,
			TLS:      true,
			StartTLS: false,
		},
		Auth: AuthConfig{
			Method: AuthMethodLogin,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILBAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func Save(cfg Config) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

func Redact(cfg Config) Config {
	masked := cfg
	if masked.Auth.Password != "" {
		masked.Auth.Password = "****"
	}
	return masked
}

func setDefaults(v *viper.Viper, cfg Config) {
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("imap.host", cfg.IMAP.Host)
	v.SetDefault("imap.port", cfg.IMAP.Port)
	v.SetDefault("imap.tls", cfg.IMAP.TLS)
	v.SetDefault("imap.starttls", cfg.IMAP.StartTLS)
	v.SetDefault("imap.insecure_skip_verify", cfg.IMAP.InsecureSkipVerify)
	v.SetDefault("imap.compress", cfg.IMAP.Compress)

	v.SetDefault("auth.username", cfg.Auth.Username)
	v.SetDefault("auth.password", cfg.Auth.Password)
	v.SetDefault("auth.method", cfg.Auth.Method)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("keyring_backend", cfg.KeyringBackend)
}

func ValidateIMAP(cfg Config) error {
	if cfg.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if cfg.IMAP.Port <= 0 || cfg.IMAP.Port > 65535 {
		return fmt.Errorf("imap.port %d is out of range", cfg.IMAP.Port)
	}
	if cfg.IMAP.TLS && cfg.IMAP.StartTLS {
		return fmt.Errorf("imap.tls and imap.starttls are mutually exclusive")
	}
	if cfg.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	if cfg.Auth.Password == "" {
		return fmt.Errorf("auth.password is required")
	}
	switch cfg.Auth.Method {
	case "", AuthMethodLogin, AuthMethodPlain:
	default:
		return fmt.Errorf("auth.method %q is not supported (expected %s or %s)", cfg.Auth.Method, AuthMethodLogin, AuthMethodPlain)
	}
	return nil
}
