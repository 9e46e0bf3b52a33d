package imap

import "errors"

var (
	ErrConnection        = errors.New("imap connection failed")
	ErrMailboxNotFound   = errors.New("mailbox not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrParse             = errors.New("cannot parse message")
	ErrInvalidOptions    = errors.New("invalid call options")
)
