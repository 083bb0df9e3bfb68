package core

import (
	"context"
	"fmt"
	"log"

	"github.com/keshon/djwillex/internal/messaging"
	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/music/playlist"
	"github.com/keshon/djwillex/internal/presence"
)

// nowPlayingListener keeps one "now playing" message per guild in the
// channel the current entry was requested from.
func (b *Bot) nowPlayingListener() player.Listener {
	return func(ctx context.Context, ev player.Event) {
		guildID := ev.Player.GuildID()

		for _, ref := range ev.StaleVotes {
			if err := b.Guard.Delete(ctx, ref, true); err != nil {
				log.Printf("[WARN] Deleting skip vote %s: %v", ref.MessageID, err)
			}
		}

		switch ev.Kind {
		case player.EventPlay:
			b.publishNowPlaying(ctx, ev.Player, ev.Entry)
		case player.EventPause:
			b.editNowPlaying(ctx, guildID, presence.PauseGlyph+b.nowPlayingText(ev.Player, ev.Entry))
		case player.EventResume:
			b.editNowPlaying(ctx, guildID, b.nowPlayingText(ev.Player, ev.Entry))
		case player.EventStop:
			b.clearNowPlaying(ctx, guildID)
		}
	}
}

func (b *Bot) nowPlayingText(p *player.Player, e playlist.Entry) string {
	where := "voice"
	if conn := p.Connection(); conn != nil {
		if name := b.Directory.ChannelName(conn.ChannelID()); name != "" {
			where = name
		}
	}
	if b.Config.NowPlayingMentions && e.Meta.AuthorID != "" {
		return fmt.Sprintf("<@%s> - your song **%s** is now playing in %s!", e.Meta.AuthorID, e.Title, where)
	}
	return fmt.Sprintf("Now playing in %s: **%s**", where, e.Title)
}

// publishNowPlaying edits the previous message when it is still the newest
// one in its channel and replaces it otherwise.
func (b *Bot) publishNowPlaying(ctx context.Context, p *player.Player, e playlist.Entry) {
	channelID := e.Meta.ChannelID
	if channelID == "" {
		return
	}
	text := b.nowPlayingText(p, e)
	last := b.sessions.get(p.GuildID()).LastNowPlaying

	var (
		ref *messaging.Ref
		err error
	)
	if last != nil && last.ChannelID == channelID && b.isLatest(ctx, *last) {
		ref, err = b.Guard.Edit(ctx, *last, text, true)
	} else {
		if last != nil {
			if err := b.Guard.Delete(ctx, *last, true); err != nil {
				log.Printf("[WARN] Deleting now playing message in %s: %v", p.GuildID(), err)
			}
		}
		ref, err = b.Guard.Send(ctx, channelID, text)
	}
	if err != nil {
		log.Printf("[ERR] Publishing now playing in %s: %v", p.GuildID(), err)
	}
	b.sessions.with(p.GuildID(), func(sd *SessionData) { sd.LastNowPlaying = ref })
}

func (b *Bot) isLatest(ctx context.Context, ref messaging.Ref) bool {
	id, err := b.Guard.Latest(ctx, ref.ChannelID)
	return err == nil && id == ref.MessageID
}

func (b *Bot) editNowPlaying(ctx context.Context, guildID, text string) {
	last := b.sessions.get(guildID).LastNowPlaying
	if last == nil {
		return
	}
	if _, err := b.Guard.Edit(ctx, *last, text, false, messaging.Quiet()); err != nil {
		log.Printf("[WARN] Editing now playing in %s: %v", guildID, err)
	}
}

func (b *Bot) clearNowPlaying(ctx context.Context, guildID string) {
	var last *messaging.Ref
	b.sessions.with(guildID, func(sd *SessionData) {
		last, sd.LastNowPlaying = sd.LastNowPlaying, nil
	})
	if last == nil {
		return
	}
	if err := b.Guard.Delete(ctx, *last, true); err != nil {
		log.Printf("[WARN] Deleting now playing in %s: %v", guildID, err)
	}
}
