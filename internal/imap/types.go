package imap

// CallOptions addresses a mailbox and, for per-message operations, one
// message in it. ID is the message UID; zero means absent.
type CallOptions struct {
	Mailbox string
	ID      uint32
}

// Mailbox is one entry of a flattened mailbox hierarchy.
type Mailbox struct {
	Name string
	Path string
}

// MailboxNode is a mailbox hierarchy node rebuilt from a LIST response.
type MailboxNode struct {
	Name     string
	Path     string
	Children []*MailboxNode
}

// MessageSummary is the application view of one message. ID is the UID
// rendered in decimal and is only meaningful within its mailbox.
type MessageSummary struct {
	ID      string
	Date    string
	From    string
	Subject string
	Body    *string
}

// Mailer is the set of operations the rest of the application uses to read
// mail.
type Mailer interface {
	ListMailboxes() ([]Mailbox, error)
	ListMessages(opts CallOptions) ([]MessageSummary, error)
	GetMessageBody(opts CallOptions) (string, bool, error)
	DeleteMessage(opts CallOptions) error
}
