// Package guard keeps a ticket email from being sent twice for the same attendee,
// even when two processes scan the same sheet.
package guard

import (
	"context"
	"errors"
)

var (
	ErrAlreadySent = errors.New("delivery already sent")
	ErrInProgress  = errors.New("delivery in progress")
)

// Guard claims a delivery before the mail is sent.
//
// Begin returns nil when the caller now owns the delivery, ErrAlreadySent when it
// finished earlier and ErrInProgress when another owner holds it. MarkSent makes the
// claim permanent; Release drops an unfinished claim so a later pass may retry.
type Guard interface {
	Begin(ctx context.Context, key string) error
	MarkSent(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}
