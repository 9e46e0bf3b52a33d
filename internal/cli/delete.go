package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailbag/internal/imap"
)

func newDeleteCmd() *cobra.Command {
	var mailbox string

	cmd := &cobra.Command{
		Use:   "delete <uid>",
		Short: "Permanently delete a message by UID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}

			mailer, err := openMailer(cmd)
			if err != nil {
				return err
			}

			if err := mailer.DeleteMessage(imap.CallOptions{Mailbox: mailbox, ID: uid}); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
			return nil
		},
	}

	cmd.Flags().StringVar(&mailbox, "mailbox", "INBOX", "Mailbox path")

	return cmd
}
