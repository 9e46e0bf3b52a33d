package imap

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	compress "github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"mailbag/internal/config"
)

const (
	testUser     = "username"
	testPassword = "password"
)

// startTestServer serves go-imap's in-memory backend on a local listener.
func startTestServer(t *testing.T) string {
	t.Helper()
	_, addr := newTestServer(t, nil)
	return addr
}

// newTestServer serves the in-memory backend, behind TLS when tlsConfig is
// set.
func newTestServer(t *testing.T, tlsConfig *tls.Config) (*server.Server, string) {
	t.Helper()

	srv := server.New(memory.New())
	srv.AllowInsecureAuth = true
	srv.Enable(compress.NewExtension())

	listener, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	addr := listener.Addr().String()
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = srv.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = srv.Close()
		wg.Wait()
	})

	return srv, addr
}

// selfSignedTLS returns a server config with a throwaway certificate for
// 127.0.0.1 that no system root trusts.
func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mailbag test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
}

func testConfig(t *testing.T, addr string) config.Config {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.IMAP.Host = host
	cfg.IMAP.Port = port
	cfg.IMAP.TLS = false
	cfg.Auth.Username = testUser
	cfg.Auth.Password = testPassword
	return cfg
}

func testService(t *testing.T, cfg config.Config) *Service {
	t.Helper()
	// The client's reader goroutine may log after the test returns, so the
	// logger must not be bound to t.
	return NewService(cfg, zerolog.New(io.Discard).Level(zerolog.DebugLevel))
}

// seed creates mailboxes and appends raw messages with a plain client.
func seed(t *testing.T, addr string, mailboxes []string, messages map[string][]string) {
	t.Helper()

	c, err := imapclient.Dial(addr)
	require.NoError(t, err)
	defer func() { _ = c.Logout() }()
	require.NoError(t, c.Login(testUser, testPassword))

	for _, name := range mailboxes {
		require.NoError(t, c.Create(name))
	}
	for mailbox, raws := range messages {
		for _, raw := range raws {
			require.NoError(t, c.Append(mailbox, nil, time.Now(), bytes.NewBufferString(raw)))
		}
	}
}

func rawMail(from, date, subject, body string) string {
	return "From: " + from + "\r\n" +
		"To: username@example.org\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: " + date + "\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		body
}

func TestIntegrationListMailboxes(t *testing.T) {
	addr := startTestServer(t)
	seed(t, addr, []string{"INBOX/Work", "INBOX/Work/2024", "Archive"}, nil)

	mailboxes, err := testService(t, testConfig(t, addr)).ListMailboxes()
	require.NoError(t, err)
	require.Len(t, mailboxes, 4)

	position := map[string]int{}
	for i, mailbox := range mailboxes {
		_, dup := position[mailbox.Path]
		assert.False(t, dup, "duplicate path %s", mailbox.Path)
		position[mailbox.Path] = i
	}
	assert.Less(t, position["INBOX"], position["INBOX/Work"])
	assert.Less(t, position["INBOX/Work"], position["INBOX/Work/2024"])
	assert.Contains(t, mailboxes, Mailbox{Name: "2024", Path: "INBOX/Work/2024"})
	assert.Contains(t, mailboxes, Mailbox{Name: "Archive", Path: "Archive"})
}

func TestIntegrationListMessages(t *testing.T) {
	addr := startTestServer(t)
	seed(t, addr, []string{"Work", "Empty"}, map[string][]string{
		"Work": {
			rawMail("alice@example.com", "Mon, 01 Jan 2024 10:00:00 +0000", "first", "one"),
			rawMail("Bob <bob@example.net>", "Tue, 02 Jan 2024 11:30:00 +0100", "second", "two"),
		},
	})
	svc := testService(t, testConfig(t, addr))

	messages, err := svc.ListMessages(CallOptions{Mailbox: "Work"})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "alice@example.com", messages[0].From)
	assert.Equal(t, "Mon, 01 Jan 2024 10:00:00 +0000", messages[0].Date)
	assert.Equal(t, "first", messages[0].Subject)
	assert.Equal(t, "bob@example.net", messages[1].From)
	assert.Equal(t, "second", messages[1].Subject)
	assert.NotEqual(t, messages[0].ID, messages[1].ID)

	empty, err := svc.ListMessages(CallOptions{Mailbox: "Empty"})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = svc.ListMessages(CallOptions{Mailbox: "Missing"})
	assert.ErrorIs(t, err, ErrMailboxNotFound)
}

func TestIntegrationGetMessageBody(t *testing.T) {
	addr := startTestServer(t)
	seed(t, addr, []string{"Work"}, map[string][]string{
		"Work": {rawMail("alice@example.com", "Mon, 01 Jan 2024 10:00:00 +0000", "hello", "see you at noon")},
	})
	svc := testService(t, testConfig(t, addr))

	messages, err := svc.ListMessages(CallOptions{Mailbox: "Work"})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	uid, err := strconv.ParseUint(messages[0].ID, 10, 32)
	require.NoError(t, err)

	body, ok, err := svc.GetMessageBody(CallOptions{Mailbox: "Work", ID: uint32(uid)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "see you at noon", body)

	_, _, err = svc.GetMessageBody(CallOptions{Mailbox: "Work", ID: uint32(uid) + 100})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestIntegrationDeleteMessage(t *testing.T) {
	addr := startTestServer(t)
	seed(t, addr, []string{"Work"}, map[string][]string{
		"Work": {
			rawMail("alice@example.com", "Mon, 01 Jan 2024 10:00:00 +0000", "keep", "a"),
			rawMail("alice@example.com", "Mon, 01 Jan 2024 10:05:00 +0000", "drop", "b"),
		},
	})
	svc := testService(t, testConfig(t, addr))

	before, err := svc.ListMessages(CallOptions{Mailbox: "Work"})
	require.NoError(t, err)
	require.Len(t, before, 2)
	uid, err := strconv.ParseUint(before[1].ID, 10, 32)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMessage(CallOptions{Mailbox: "Work", ID: uint32(uid)}))

	after, err := svc.ListMessages(CallOptions{Mailbox: "Work"})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)

	err = svc.DeleteMessage(CallOptions{Mailbox: "Work", ID: uint32(uid)})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestIntegrationAuthentication(t *testing.T) {
	addr := startTestServer(t)

	plain := testConfig(t, addr)
	plain.Auth.Method = config.AuthMethodPlain
	_, err := testService(t, plain).ListMailboxes()
	require.NoError(t, err)

	compressed := testConfig(t, addr)
	compressed.IMAP.Compress = true
	_, err = testService(t, compressed).ListMailboxes()
	require.NoError(t, err)

	wrong := testConfig(t, addr)
	wrong.Auth.Password = "nope"
	_, err = testService(t, wrong).ListMailboxes()
	assert.ErrorIs(t, err, ErrConnection)
}

func TestIntegrationConnectionRefused(t *testing.T) {
	listener, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = testService(t, testConfig(t, addr)).ListMailboxes()
	assert.ErrorIs(t, err, ErrConnection)
}

func TestIntegrationConcurrentCalls(t *testing.T) {
	addr := startTestServer(t)
	seed(t, addr, []string{"Work"}, map[string][]string{
		"Work": {rawMail("alice@example.com", "Mon, 01 Jan 2024 10:00:00 +0000", "hello", "hi")},
	})
	svc := testService(t, testConfig(t, addr))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			messages, err := svc.ListMessages(CallOptions{Mailbox: "Work"})
			if err == nil && len(messages) != 1 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestIntegrationTLSVerification(t *testing.T) {
	_, addr := newTestServer(t, selfSignedTLS(t))

	cfg := testConfig(t, addr)
	cfg.IMAP.TLS = true

	_, err := testService(t, cfg).ListMailboxes()
	require.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "certificate")

	cfg.IMAP.InsecureSkipVerify = true
	mailboxes, err := testService(t, cfg).ListMailboxes()
	require.NoError(t, err)
	assert.Contains(t, mailboxes, Mailbox{Name: "INBOX", Path: "INBOX"})
}

func TestIntegrationSessionCloseIsIdempotent(t *testing.T) {
	addr := startTestServer(t)
	log := zerolog.New(io.Discard)

	sess, err := Connect(testConfig(t, addr), log)
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}

func TestIntegrationCloseAfterServerDisconnect(t *testing.T) {
	srv, addr := newTestServer(t, nil)
	log := zerolog.New(io.Discard)

	sess, err := Connect(testConfig(t, addr), log)
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	select {
	case <-sess.(*session).c.LoggedOut():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not notice the server closing the connection")
	}

	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close())
}
