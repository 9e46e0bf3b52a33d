package cli

import (
	"github.com/spf13/cobra"
)

func newMailboxesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailboxes",
		Short: "Mailbox operations",
	}
	cmd.AddCommand(newMailboxesListCmd())
	return cmd
}

func newMailboxesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every mailbox on the server, parents first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mailer, err := openMailer(cmd)
			if err != nil {
				return err
			}

			mailboxes, err := mailer.ListMailboxes()
			if err != nil {
				return err
			}

			return printMailboxes(cmd.OutOrStdout(), mailboxes)
		},
	}
	return cmd
}
