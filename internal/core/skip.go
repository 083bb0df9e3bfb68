package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/keshon/djwillex/internal/messaging"
	"github.com/keshon/djwillex/internal/metrics"
	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/skipvote"
)

func (b *Bot) cmdSkip(ctx context.Context, inv *Invocation) (*Response, error) {
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}
	return b.Skip(ctx, p, inv.Caller, inv.Perms)
}

// Skip skips the player's current entry for a privileged caller, or
// records the caller's vote and skips once the vote passes.
func (b *Bot) Skip(ctx context.Context, p *player.Player, c Caller, perms Perms) (*Response, error) {
	if p.IsStopped() {
		return nil, cmdErr(replyExpire, "Can't skip! The player is not playing!")
	}
	cur, ok := p.Current()
	if !ok {
		return nil, cmdErr(replyExpire, "Can't skip! The player is not playing!")
	}

	if perms.Owner || perms.InstaSkip || cur.Meta.AuthorID == c.UserID {
		if err := p.Skip(ctx); err != nil && !errors.Is(err, player.ErrNotPlaying) {
			return nil, err
		}
		metrics.Skips.WithLabelValues("privileged").Inc()
		return nil, nil
	}

	var members []skipvote.Member
	if conn := p.Connection(); conn != nil {
		members = b.Directory.VoiceMembers(p.GuildID(), conn.ChannelID())
	}
	eligible := skipvote.Eligible(members, b.Config.OwnerID, b.Directory.SelfID())

	ref := messaging.Ref{ChannelID: c.ChannelID, MessageID: c.MessageID}
	count := p.SkipState().Add(c.UserID, ref)
	left := skipvote.Remaining(b.Config.SkipsRequired, b.Config.SkipRatio, eligible, count)

	if left <= 0 {
		_, hasNext := p.Playlist().Peek()
		if err := p.Skip(ctx); err != nil && !errors.Is(err, player.ErrNotPlaying) {
			return nil, err
		}
		metrics.Skips.WithLabelValues("quorum").Inc()

		msg := fmt.Sprintf("your skip for **%s** was acknowledged.\nThe vote to skip has been passed.", cur.Title)
		if hasNext {
			msg += " Next song coming up!"
		}
		return &Response{Content: msg, Reply: true, DeleteAfter: replyExpire}, nil
	}

	metrics.Skips.WithLabelValues("vote").Inc()
	people := "person is"
	if left != 1 {
		people = "people are"
	}
	msg := fmt.Sprintf("your skip for **%s** was acknowledged.\n**%d** more %s required to vote to skip this song.", cur.Title, left, people)
	return &Response{Content: msg, Reply: true, DeleteAfter: replyExpire}, nil
}
