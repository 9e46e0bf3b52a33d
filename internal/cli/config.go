package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mailbag/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config management",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigEditCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var showPassword bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration after env and keyring lookup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !showPassword {
				cfg = config.Redact(cfg)
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if cfg.Auth.PasswordSource != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# password from %s\n", cfg.Auth.PasswordSource)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPassword, "show-password", false, "Show password in output")

	return cmd
}

func newConfigEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Open the config file in $EDITOR, writing defaults first if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if path, err = config.Save(config.DefaultConfig()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote default config to %s\n", path)
			}

			editor := os.Getenv("EDITOR")
			if editor == "" {
				return fmt.Errorf("EDITOR not set; config file is %s", path)
			}

			edit := exec.Command(editor, path) //nolint:gosec // user-chosen editor
			edit.Stdin = os.Stdin
			edit.Stdout = cmd.OutOrStdout()
			edit.Stderr = cmd.ErrOrStderr()
			return edit.Run()
		},
	}

	return cmd
}
