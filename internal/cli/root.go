package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mailbag",
		Short:        "mailbag reads and prunes mail on an IMAP server",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log IMAP session activity to stderr")

	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newInboxCmd())
	cmd.AddCommand(newMailCmd())
	cmd.AddCommand(newReadCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newMailboxesCmd())
	cmd.AddCommand(newConfigCmd())

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
