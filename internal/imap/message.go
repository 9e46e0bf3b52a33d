package imap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/textproto"
)

// dateSection fetches the raw Date header so the summary carries the
// server's value instead of go-imap's parsed envelope date.
var dateSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
		Fields:    []string{"Date"},
	},
	Peek: true,
}

func summarize(msg *imap.Message) (MessageSummary, error) {
	if msg == nil {
		return MessageSummary{}, fmt.Errorf("%w: empty fetch record", ErrMalformedEnvelope)
	}
	if msg.Uid == 0 {
		return MessageSummary{}, fmt.Errorf("%w: message %d has no uid", ErrMalformedEnvelope, msg.SeqNum)
	}
	env := msg.Envelope
	if env == nil {
		return MessageSummary{}, fmt.Errorf("%w: uid %d has no envelope", ErrMalformedEnvelope, msg.Uid)
	}
	if len(env.From) == 0 {
		return MessageSummary{}, fmt.Errorf("%w: uid %d has an empty from list", ErrMalformedEnvelope, msg.Uid)
	}
	from, ok := formatAddress(env.From[0])
	if !ok {
		return MessageSummary{}, fmt.Errorf("%w: uid %d has no sender mailbox", ErrMalformedEnvelope, msg.Uid)
	}

	date := rawHeaderDate(msg.GetBody(dateSection))
	if date == "" && !env.Date.IsZero() {
		date = env.Date.Format(time.RFC1123Z)
	}

	return MessageSummary{
		ID:      strconv.FormatUint(uint64(msg.Uid), 10),
		Date:    date,
		From:    from,
		Subject: env.Subject,
	}, nil
}

// formatAddress renders mailbox@host. Group syntax markers carry no mailbox
// and are rejected.
func formatAddress(addr *imap.Address) (string, bool) {
	if addr == nil || addr.MailboxName == "" {
		return "", false
	}
	if addr.HostName == "" {
		return addr.MailboxName, true
	}
	return addr.MailboxName + "@" + addr.HostName, true
}

func rawHeaderDate(r io.Reader) string {
	if r == nil {
		return ""
	}
	header, err := textproto.ReadHeader(bufio.NewReader(r))
	if err != nil {
		return ""
	}
	value := strings.NewReplacer("\r\n", "", "\n", "").Replace(header.Get("Date"))
	return strings.TrimSpace(value)
}
