package imap

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// extractPlainText returns the first inline text/plain part of a raw
// RFC 5322 message. Parts without a Content-Type are plain text.
func extractPlainText(r io.Reader) (string, bool, error) {
	reader, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", false, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if reader == nil {
		return "", false, fmt.Errorf("%w: no message entity", ErrParse)
	}
	defer reader.Close()

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", false, fmt.Errorf("%w: %w", ErrParse, err)
		}
		if part == nil {
			continue
		}

		if !isPlainText(part.Header) {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return "", false, fmt.Errorf("%w: read text part: %w", ErrParse, err)
		}
		return string(data), true, nil
	}

	return "", false, nil
}

func isPlainText(h mail.PartHeader) bool {
	var header message.Header
	switch h := h.(type) {
	case *mail.InlineHeader:
		header = h.Header
	case *mail.AttachmentHeader:
		// go-message files untyped parts as attachments.
		header = h.Header
	default:
		return false
	}

	disposition, _, _ := header.ContentDisposition()
	if strings.EqualFold(disposition, "attachment") {
		return false
	}
	contentType, _, _ := header.ContentType()
	return contentType == "" || strings.EqualFold(contentType, "text/plain")
}
