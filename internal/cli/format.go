package cli

import (
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"mailbag/internal/imap"
)

func printTable(out io.Writer, data pterm.TableData) error {
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, rendered)
	return err
}

func printMailboxes(out io.Writer, mailboxes []imap.Mailbox) error {
	data := pterm.TableData{{"NAME", "PATH"}}
	for _, mailbox := range mailboxes {
		data = append(data, []string{mailbox.Name, mailbox.Path})
	}
	return printTable(out, data)
}

func printMessages(out io.Writer, messages []imap.MessageSummary, now time.Time) error {
	data := pterm.TableData{{"ID", "DATE", "AGE", "FROM", "SUBJECT"}}
	for _, msg := range messages {
		data = append(data, []string{msg.ID, msg.Date, age(msg.Date, now), msg.From, msg.Subject})
	}
	return printTable(out, data)
}

// age renders the Date header relative to now, or "" when it does not parse.
func age(date string, now time.Time) string {
	if date == "" {
		return ""
	}
	t, err := mail.ParseDate(date)
	if err != nil {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func parseUID(arg string) (uint32, error) {
	uid, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("invalid uid: %s", arg)
	}
	return uint32(uid), nil
}
