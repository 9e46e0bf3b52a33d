package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mailbag/internal/imap"
)

func newMailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Mail operations",
	}
	cmd.AddCommand(newMailListCmd())
	return cmd
}

func newMailListCmd() *cobra.Command {
	var mailbox string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages in a mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mailer, err := openMailer(cmd)
			if err != nil {
				return err
			}

			messages, err := mailer.ListMessages(imap.CallOptions{Mailbox: mailbox})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Mailbox: %s (%d messages)\n", mailbox, len(messages))
			return printMessages(cmd.OutOrStdout(), messages, time.Now())
		},
	}

	cmd.Flags().StringVar(&mailbox, "mailbox", "INBOX", "Mailbox path")

	return cmd
}
