package imap

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/emersion/go-imap"
	compress "github.com/emersion/go-imap-compress"
	uidplus "github.com/emersion/go-imap-uidplus"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"mailbag/internal/config"
)

// Session is one authenticated IMAP connection. It is owned by a single
// operation and must be closed exactly once.
type Session interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}) error
	// UidExpunge removes the \Deleted messages in seqset. Without UIDPLUS it
	// falls back to a mailbox-wide EXPUNGE.
	UidExpunge(seqset *imap.SeqSet) error
	Close() error
}

type session struct {
	c       *imapclient.Client
	uidplus *uidplus.Client
	log     zerolog.Logger

	closeOnce sync.Once
	closeErr  error
	closing   atomic.Bool
	done      chan struct{}
}

// Connect opens and authenticates one session against the configured server.
// Every failure is reported as ErrConnection.
func Connect(cfg config.Config, log zerolog.Logger) (Session, error) {
	addr := net.JoinHostPort(cfg.IMAP.Host, strconv.Itoa(cfg.IMAP.Port))
	log = log.With().Str("session", xid.New().String()).Str("addr", addr).Logger()

	tlsConfig := &tls.Config{
		ServerName:         cfg.IMAP.Host,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify, //nolint:gosec // explicit opt-in
	}
	if cfg.IMAP.InsecureSkipVerify && (cfg.IMAP.TLS || cfg.IMAP.StartTLS) {
		log.Warn().Msg("TLS certificate verification is disabled")
	}

	log.Debug().Bool("tls", cfg.IMAP.TLS).Bool("starttls", cfg.IMAP.StartTLS).Msg("connecting")
	var c *imapclient.Client
	var err error
	if cfg.IMAP.TLS {
		c, err = imapclient.DialTLS(addr, tlsConfig)
	} else {
		c, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot connect to server %s: %w", ErrConnection, addr, err)
	}

	s := newSession(c, log)

	if !cfg.IMAP.TLS && cfg.IMAP.StartTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%w: starttls: %w", ErrConnection, err)
		}
	}

	if err := s.authenticate(cfg.Auth); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: authentication failure: %w", ErrConnection, err)
	}
	s.log.Debug().Str("username", cfg.Auth.Username).Msg("logged in")

	if cfg.IMAP.Compress {
		if err := s.enableCompression(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%w: compress: %w", ErrConnection, err)
		}
	}

	s.probeUidPlus()
	return s, nil
}

func newSession(c *imapclient.Client, log zerolog.Logger) *session {
	s := &session{
		c:    c,
		log:  log,
		done: make(chan struct{}),
	}
	// Errors the client hits outside a command round trip are only logged.
	c.ErrorLog = errorObserver{log: log}
	go s.watch()
	return s
}

func (s *session) watch() {
	select {
	case <-s.c.LoggedOut():
		if !s.closing.Load() {
			s.log.Warn().Msg("connection closed by server")
		}
	case <-s.done:
	}
}

func (s *session) authenticate(auth config.AuthConfig) error {
	switch strings.ToLower(auth.Method) {
	case "", config.AuthMethodLogin:
		return s.c.Login(auth.Username, auth.Password)
	case config.AuthMethodPlain:
		return s.c.Authenticate(sasl.NewPlainClient("", auth.Username, auth.Password))
	default:
		return fmt.Errorf("unsupported auth method %q", auth.Method)
	}
}

func (s *session) enableCompression() error {
	cc := compress.NewClient(s.c)
	ok, err := cc.SupportCompress(compress.Deflate)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug().Msg("server does not support COMPRESS=DEFLATE")
		return nil
	}
	if err := cc.Compress(compress.Deflate); err != nil {
		return err
	}
	s.log.Debug().Msg("compression enabled")
	return nil
}

func (s *session) probeUidPlus() {
	ext := uidplus.NewClient(s.c)
	supported, err := ext.SupportUidPlus()
	if err != nil || !supported {
		s.log.Debug().Err(err).Msg("server does not support UIDPLUS")
		return
	}
	s.uidplus = ext
}

func (s *session) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	s.log.Debug().Str("mailbox", name).Bool("readonly", readOnly).Msg("select")
	return s.c.Select(name, readOnly)
}

func (s *session) List(ref, name string, ch chan *imap.MailboxInfo) error {
	return s.c.List(ref, name, ch)
}

func (s *session) Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	s.log.Debug().Stringer("seqset", seqset).Msg("fetch")
	return s.c.Fetch(seqset, items, ch)
}

func (s *session) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	s.log.Debug().Stringer("uids", seqset).Msg("uid fetch")
	return s.c.UidFetch(seqset, items, ch)
}

func (s *session) UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}) error {
	return s.c.UidStore(seqset, item, value, nil)
}

func (s *session) UidExpunge(seqset *imap.SeqSet) error {
	if s.uidplus != nil {
		return s.uidplus.UidExpunge(seqset, nil)
	}
	s.log.Debug().Msg("falling back to EXPUNGE")
	return s.c.Expunge(nil)
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.done)
		err := s.c.Logout()
		if errors.Is(err, imapclient.ErrAlreadyLoggedOut) {
			err = nil
		}
		s.closeErr = err
		s.log.Debug().Err(err).Msg("session closed")
	})
	return s.closeErr
}

// errorObserver adapts the go-imap ErrorLog hook to zerolog.
type errorObserver struct {
	log zerolog.Logger
}

func (o errorObserver) Printf(format string, v ...interface{}) {
	o.log.Warn().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

func (o errorObserver) Println(v ...interface{}) {
	o.log.Warn().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}
