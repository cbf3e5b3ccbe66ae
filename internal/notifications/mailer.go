// Package notifications delivers ticket emails.
package notifications

import "context"

// Mail is one outgoing message with a single attachment.
type Mail struct {
	To             string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}
