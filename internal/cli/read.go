package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailbag/internal/imap"
)

func newReadCmd() *cobra.Command {
	var mailbox string

	cmd := &cobra.Command{
		Use:   "read <uid>",
		Short: "Print the plain-text body of a message",
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

			body, ok, err := mailer.GetMessageBody(imap.CallOptions{Mailbox: mailbox, ID: uid})
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "Message %d has no plain-text part.\n", uid)
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}

	cmd.Flags().StringVar(&mailbox, "mailbox", "INBOX", "Mailbox path")

	return cmd
}
