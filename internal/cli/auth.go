package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mailbag/internal/config"
	"mailbag/internal/secrets"
)

// readPassword is replaced in tests.
var readPassword = func(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password given and stdin is not a terminal; use --password")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Account and credential setup",
	}
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		imapHost     string
		imapPort     int
		imapTLS      bool
		imapStartTLS bool
		imapInsecure bool
		imapCompress bool

		username    string
		password    string
		method      string
		plainConfig bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store IMAP server settings and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("imap-host") {
				cfg.IMAP.Host = imapHost
			}
			if cmd.Flags().Changed("imap-port") {
				cfg.IMAP.Port = imapPort
			}
			if cmd.Flags().Changed("imap-tls") {
				cfg.IMAP.TLS = imapTLS
			}
			if cmd.Flags().Changed("imap-starttls") {
				cfg.IMAP.StartTLS = imapStartTLS
			}
			if cmd.Flags().Changed("imap-insecure") {
				cfg.IMAP.InsecureSkipVerify = imapInsecure
			}
			if cmd.Flags().Changed("imap-compress") {
				cfg.IMAP.Compress = imapCompress
			}
			if cmd.Flags().Changed("username") {
				cfg.Auth.Username = username
			}
			if cmd.Flags().Changed("auth-method") {
				cfg.Auth.Method = strings.ToLower(method)
			}

			if cmd.Flags().Changed("password") {
				cfg.Auth.Password = password
			}
			if cfg.Auth.Password == "" {
				cfg.Auth.Password, err = readPassword(cmd)
				if err != nil {
					return err
				}
			}

			if err := config.ValidateIMAP(cfg); err != nil {
				return err
			}

			if !plainConfig {
				if err := secrets.NewStore(cfg).SetPassword(cfg.IMAP.Host, cfg.Auth.Username, cfg.Auth.Password); err != nil {
					return err
				}
				cfg.Auth.Password = ""
				fmt.Fprintln(cmd.OutOrStdout(), "Password stored in keyring.")
			}

			path, err := config.Save(cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&imapHost, "imap-host", "", "IMAP host")
	cmd.Flags().IntVar(&imapPort, "imap-port", 0, "IMAP port")
	cmd.Flags().BoolVar(&imapTLS, "imap-tls", false, "Use implicit TLS")
	cmd.Flags().BoolVar(&imapStartTLS, "imap-starttls", false, "Upgrade with STARTTLS")
	cmd.Flags().BoolVar(&imapInsecure, "imap-insecure", false, "Skip TLS certificate verification")
	cmd.Flags().BoolVar(&imapCompress, "imap-compress", false, "Enable COMPRESS=DEFLATE when offered")

	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password or app password (prompted when omitted)")
	cmd.Flags().StringVar(&method, "auth-method", "", "Authentication method: login or plain")
	cmd.Flags().BoolVar(&plainConfig, "plaintext-password", false, "Write the password to the config file instead of the keyring")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored password from the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			err = secrets.NewStore(cfg).DeletePassword(cfg.IMAP.Host, cfg.Auth.Username)
			if errors.Is(err, secrets.ErrSecretNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored password.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Password removed from keyring.")
			return nil
		},
	}
	return cmd
}
