package notifications

import (
	"context"
	"log/slog"
)

// LogMailer records mail instead of sending it. Used for dry runs.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (n *LogMailer) Send(ctx context.Context, m Mail) error {
	n.log.InfoContext(ctx, "mail.ticket",
		"to", m.To,
		"subject", m.Subject,
		"attachment", m.AttachmentName,
		"attachment_bytes", len(m.Attachment),
	)
	return nil
}
