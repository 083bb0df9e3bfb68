// Package messaging sends, edits and deletes status messages without letting
// routine rejections (missing permission, message already gone) escape.
package messaging

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/keshon/djwillex/internal/metrics"
	"github.com/keshon/djwillex/pkg/jobmgr"
)

var (
	ErrForbidden = errors.New("missing permission")
	ErrNotFound  = errors.New("not found")
)

// Client is the raw chat API. Implementations map permission and
// not-found rejections onto ErrForbidden and ErrNotFound.
type Client interface {
	Send(ctx context.Context, channelID, content string) (Ref, error)
	Edit(ctx context.Context, ref Ref, content string) error
	Delete(ctx context.Context, ref Ref) error
	LatestMessageID(ctx context.Context, channelID string) (string, error)
}

type sendOptions struct {
	expireIn   time.Duration
	alsoDelete Ref
	quiet      bool
}

type SendOption func(*sendOptions)

// ExpireIn deletes the sent message after d.
func ExpireIn(d time.Duration) SendOption {
	return func(o *sendOptions) { o.expireIn = d }
}

// AlsoDelete deletes ref together with the sent message.
func AlsoDelete(ref Ref) SendOption {
	return func(o *sendOptions) { o.alsoDelete = ref }
}

// Quiet suppresses logging of swallowed rejections.
func Quiet() SendOption {
	return func(o *sendOptions) { o.quiet = true }
}

type Guard struct {
	client Client
	jobs   *jobmgr.Manager
}

func NewGuard(client Client, jobs *jobmgr.Manager) *Guard {
	return &Guard{client: client, jobs: jobs}
}

// Send posts content. A swallowed rejection yields a nil ref and nil error.
func (g *Guard) Send(ctx context.Context, channelID, content string, opts ...SendOption) (*Ref, error) {
	o := collect(opts)

	ref, err := g.client.Send(ctx, channelID, content)
	if err != nil {
		if swallow("send", channelID, err, o.quiet) {
			return nil, nil
		}
		return nil, err
	}

	if o.expireIn > 0 {
		g.DeleteAfter(ref, o.expireIn)
		if !o.alsoDelete.Zero() {
			g.DeleteAfter(o.alsoDelete, o.expireIn)
		}
	}
	return &ref, nil
}

// Edit replaces the content of ref. When the message is gone and sendIfFail
// is set, the content is sent as a new message in the same channel.
func (g *Guard) Edit(ctx context.Context, ref Ref, content string, sendIfFail bool, opts ...SendOption) (*Ref, error) {
	o := collect(opts)

	err := g.client.Edit(ctx, ref, content)
	if err == nil {
		return &ref, nil
	}
	if errors.Is(err, ErrNotFound) && sendIfFail {
		if !o.quiet {
			log.Printf("[WARN] [Messaging] Message %s is gone, sending a new one", ref.MessageID)
		}
		return g.Send(ctx, ref.ChannelID, content, opts...)
	}
	if swallow("edit", ref.ChannelID, err, o.quiet) {
		return nil, nil
	}
	return nil, err
}

// Delete removes ref. Zero refs are ignored.
func (g *Guard) Delete(ctx context.Context, ref Ref, quiet bool) error {
	if ref.Zero() {
		return nil
	}
	err := g.client.Delete(ctx, ref)
	if err != nil && !swallow("delete", ref.ChannelID, err, quiet) {
		return err
	}
	return nil
}

// DeleteAfter schedules deletion of ref as a detached job and returns at once.
func (g *Guard) DeleteAfter(ref Ref, d time.Duration) {
	if ref.Zero() || g.jobs == nil {
		return
	}
	err := g.jobs.StartAfter("delete:"+ref.MessageID, d, func(ctx context.Context) error {
		return g.Delete(ctx, ref, true)
	})
	if err != nil {
		log.Printf("[DEBUG] [Messaging] %v", err)
	}
}

// Latest returns the id of the newest message in channelID.
func (g *Guard) Latest(ctx context.Context, channelID string) (string, error) {
	return g.client.LatestMessageID(ctx, channelID)
}

func collect(opts []SendOption) sendOptions {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// swallow reports whether err is a routine rejection, logging it unless quiet.
func swallow(op, channelID string, err error, quiet bool) bool {
	reason := ""
	switch {
	case errors.Is(err, ErrForbidden):
		reason = "forbidden"
	case errors.Is(err, ErrNotFound):
		reason = "not_found"
	default:
		return false
	}
	metrics.MessagesDropped.WithLabelValues(op, reason).Inc()
	if !quiet {
		log.Printf("[WARN] [Messaging] Cannot %s in channel %s: %v", op, channelID, err)
	}
	return true
}
