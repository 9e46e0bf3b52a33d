package imap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/rs/zerolog"

	"mailbag/internal/config"
)

// Service runs each mail operation on its own short-lived session. It holds
// no mutable state and is safe for concurrent use.
type Service struct {
	Connector func(cfg config.Config, log zerolog.Logger) (Session, error)

	cfg config.Config
	log zerolog.Logger
}

var _ Mailer = (*Service)(nil)

func NewService(cfg config.Config, log zerolog.Logger) *Service {
	return &Service{Connector: Connect, cfg: cfg, log: log}
}

func (s *Service) withSession(op string, fn func(Session) error) error {
	connector := s.Connector
	if connector == nil {
		connector = Connect
	}
	log := s.log.With().Str("op", op).Logger()

	sess, err := connector(s.cfg, log)
	if err != nil {
		if !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Msg("logout failed")
		}
	}()
	return fn(sess)
}

func (s *Service) ListMailboxes() ([]Mailbox, error) {
	var infos []*imap.MailboxInfo
	err := s.withSession("list-mailboxes", func(sess Session) error {
		ch := make(chan *imap.MailboxInfo, 10)
		done := make(chan error, 1)
		go func() {
			done <- sess.List("", "*", ch)
		}()
		for info := range ch {
			infos = append(infos, info)
		}
		if err := <-done; err != nil {
			return fmt.Errorf("list mailboxes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FlattenMailboxes(BuildMailboxTree(infos)), nil
}

func (s *Service) ListMessages(opts CallOptions) ([]MessageSummary, error) {
	if opts.Mailbox == "" {
		return nil, fmt.Errorf("%w: mailbox is required", ErrInvalidOptions)
	}

	var summaries []MessageSummary
	err := s.withSession("list-messages", func(sess Session) error {
		status, err := selectMailbox(sess, opts.Mailbox, true)
		if err != nil {
			return err
		}
		if status.Messages == 0 {
			summaries = []MessageSummary{}
			return nil
		}

		seqset := new(imap.SeqSet)
		seqset.AddRange(1, 0)
		items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, dateSection.FetchItem()}

		ch := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- sess.Fetch(seqset, items, ch)
		}()
		var messages []*imap.Message
		for msg := range ch {
			messages = append(messages, msg)
		}
		if err := <-done; err != nil {
			return fmt.Errorf("fetch %q: %w", opts.Mailbox, err)
		}

		sort.SliceStable(messages, func(i, j int) bool {
			return seqNum(messages[i]) < seqNum(messages[j])
		})

		out := make([]MessageSummary, 0, len(messages))
		for _, msg := range messages {
			summary, err := summarize(msg)
			if err != nil {
				return err
			}
			out = append(out, summary)
		}
		summaries = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetMessageBody returns the first plain-text part of a message. The bool is
// false when the message has no such part.
func (s *Service) GetMessageBody(opts CallOptions) (string, bool, error) {
	if err := requireMessage(opts); err != nil {
		return "", false, err
	}

	var body string
	var found bool
	err := s.withSession("get-body", func(sess Session) error {
		if _, err := selectMailbox(sess, opts.Mailbox, true); err != nil {
			return err
		}

		section := &imap.BodySectionName{Peek: true}
		msg, err := fetchByUID(sess, opts.ID, []imap.FetchItem{imap.FetchUid, section.FetchItem()})
		if err != nil {
			return err
		}
		if msg == nil {
			return fmt.Errorf("%w: uid %d in %q", ErrMessageNotFound, opts.ID, opts.Mailbox)
		}

		literal := msg.GetBody(section)
		if literal == nil {
			return fmt.Errorf("%w: uid %d: message body not available", ErrParse, opts.ID)
		}
		body, found, err = extractPlainText(literal)
		return err
	})
	if err != nil {
		return "", false, err
	}
	return body, found, nil
}

func (s *Service) DeleteMessage(opts CallOptions) error {
	if err := requireMessage(opts); err != nil {
		return err
	}

	return s.withSession("delete", func(sess Session) error {
		if _, err := selectMailbox(sess, opts.Mailbox, false); err != nil {
			return err
		}

		msg, err := fetchByUID(sess, opts.ID, []imap.FetchItem{imap.FetchUid})
		if err != nil {
			return err
		}
		if msg == nil {
			return fmt.Errorf("%w: uid %d in %q", ErrMessageNotFound, opts.ID, opts.Mailbox)
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(opts.ID)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := sess.UidStore(seqset, item, []interface{}{imap.DeletedFlag}); err != nil {
			return fmt.Errorf("flag uid %d deleted: %w", opts.ID, err)
		}
		if err := sess.UidExpunge(seqset); err != nil {
			return fmt.Errorf("expunge uid %d: %w", opts.ID, err)
		}
		return nil
	})
}

func requireMessage(opts CallOptions) error {
	if opts.Mailbox == "" {
		return fmt.Errorf("%w: mailbox is required", ErrInvalidOptions)
	}
	if opts.ID == 0 {
		return fmt.Errorf("%w: message id is required", ErrInvalidOptions)
	}
	return nil
}

func selectMailbox(sess Session, name string, readOnly bool) (*imap.MailboxStatus, error) {
	status, err := sess.Select(name, readOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMailboxNotFound, name, err)
	}
	return status, nil
}

// fetchByUID returns the record for uid, or nil when the mailbox has no such
// message.
func fetchByUID(sess Session, uid uint32, items []imap.FetchItem) (*imap.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- sess.UidFetch(seqset, items, ch)
	}()
	var found *imap.Message
	for msg := range ch {
		if msg != nil && msg.Uid == uid && found == nil {
			found = msg
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch %d: %w", uid, err)
	}
	return found, nil
}

func seqNum(msg *imap.Message) uint32 {
	if msg == nil {
		return 0
	}
	return msg.SeqNum
}
