package imap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMessage = "From: a@b.com\r\n" +
	"Subject: report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<b>quarterly numbers</b>\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"quarterly numbers\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Disposition: attachment; filename=numbers.txt\r\n" +
	"\r\n" +
	"1,2,3\r\n" +
	"--outer--\r\n"

func TestExtractPlainTextMultipart(t *testing.T) {
	body, ok, err := extractPlainText(strings.NewReader(multipartMessage))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "quarterly numbers", body)
}

func TestExtractPlainTextDefaultsToPlain(t *testing.T) {
	body, ok, err := extractPlainText(strings.NewReader("Subject: bare\r\n\r\nno content type"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "no content type", body)
}

func TestExtractPlainTextDecodesTransferEncoding(t *testing.T) {
	raw := "Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"caf=E9"
	body, ok, err := extractPlainText(strings.NewReader(raw))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "café", body)
}

func TestExtractPlainTextNoPlainPart(t *testing.T) {
	raw := "Content-Type: text/html\r\n\r\n<p>only html</p>"
	body, ok, err := extractPlainText(strings.NewReader(raw))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestExtractPlainTextParseError(t *testing.T) {
	_, _, err := extractPlainText(strings.NewReader("this is not a header line\r\n"))
	assert.ErrorIs(t, err, ErrParse)
}
