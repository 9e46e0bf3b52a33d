package cli

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mailbag/internal/config"
	"mailbag/internal/imap"
	"mailbag/internal/logging"
	"mailbag/internal/secrets"
)

const passwordEnv = "MAILBAG_AUTH_PASSWORD" //nolint:gosec // env var name, not a credential

// newMailer is replaced in tests.
var newMailer = func(cfg config.Config, log zerolog.Logger) imap.Mailer {
	return imap.NewService(cfg, log)
}

// loadConfig resolves the password from the environment, then the config
// file, then the keyring.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	if _, ok := os.LookupEnv(passwordEnv); ok {
		cfg.Auth.PasswordSource = "env"
		return cfg, nil
	}

	if cfg.Auth.Password != "" {
		cfg.Auth.PasswordSource = "config"
		return cfg, nil
	}

	if cfg.Auth.Username == "" {
		return cfg, nil
	}

	password, err := secrets.NewStore(cfg).Password(cfg.IMAP.Host, cfg.Auth.Username)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return cfg, nil
		}
		return cfg, err
	}

	cfg.Auth.Password = password
	cfg.Auth.PasswordSource = "keyring"
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) (zerolog.Logger, error) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = zerolog.DebugLevel.String()
	}
	return logging.New(cfg.Log, cmd.ErrOrStderr())
}

// openMailer loads and validates the account config and returns the mail
// operations bound to it.
func openMailer(cmd *cobra.Command) (imap.Mailer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateIMAP(cfg); err != nil {
		return nil, err
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("password_source", cfg.Auth.PasswordSource).Msg("config loaded")

	return newMailer(cfg, log), nil
}
