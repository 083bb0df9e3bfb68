package core

import (
	"context"
	"errors"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/voice"
)

// HandleVoiceStateUpdate tracks the bot being moved by someone else and
// pauses or resumes playback as its channel empties or fills. An empty
// channel id means the member left voice.
func (b *Bot) HandleVoiceStateUpdate(ctx context.Context, v *discordgo.VoiceStateUpdate) {
	defer recoverPanic("voice state update")

	if v == nil || v.VoiceState == nil {
		return
	}
	conn := b.Voice.Get(v.GuildID)
	if conn == nil {
		return
	}

	after := v.ChannelID
	before := ""
	if v.BeforeUpdate != nil {
		before = v.BeforeUpdate.ChannelID
	}

	if v.UserID == b.Directory.SelfID() && after != "" && after != conn.ChannelID() {
		log.Printf("[INFO] [Voice] Moved to %s in %s", after, v.GuildID)
		b.Voice.SetChannel(v.GuildID, after)
	}

	if !b.Config.AutoPause {
		return
	}
	channelID := conn.ChannelID()
	if before != channelID && after != channelID {
		return
	}
	if p := b.Players.Get(v.GuildID); p != nil {
		b.autoPause(ctx, p, channelID)
	}
}

func (b *Bot) autoPause(ctx context.Context, p *player.Player, channelID string) {
	guildID := p.GuildID()
	self := b.Directory.SelfID()
	listeners := 0
	for _, m := range b.Directory.VoiceMembers(guildID, channelID) {
		if m.UserID != self {
			listeners++
		}
	}

	autoPaused := b.sessions.get(guildID).AutoPaused
	switch {
	case listeners == 0 && p.IsPlaying():
		if err := p.Pause(ctx); err != nil {
			log.Printf("[WARN] Auto-pause in %s: %v", guildID, err)
			return
		}
		log.Printf("[INFO] Pausing in %s, channel is empty", guildID)
		b.sessions.with(guildID, func(sd *SessionData) { sd.AutoPaused = true })

	case listeners > 0 && autoPaused:
		if p.IsPaused() {
			if err := p.Resume(ctx); err != nil {
				log.Printf("[WARN] Auto-resume in %s: %v", guildID, err)
				return
			}
			log.Printf("[INFO] Resuming in %s, someone joined", guildID)
		}
		b.sessions.with(guildID, func(sd *SessionData) { sd.AutoPaused = false })
	}
}

// HandleVoiceServerUpdate reconnects a guild whose voice endpoint changed.
// Updates that belong to a handshake already in flight are ignored. When
// the reconnect fails the guild is left entirely.
func (b *Bot) HandleVoiceServerUpdate(ctx context.Context, v *discordgo.VoiceServerUpdate) {
	defer recoverPanic("voice server update")

	if v == nil {
		return
	}
	guildID, endpoint := v.GuildID, v.Endpoint
	conn := b.Voice.Get(guildID)
	if conn == nil || endpoint == "" || endpoint == conn.Endpoint {
		return
	}

	b.recMu.Lock()
	if b.reconnecting[guildID] {
		b.recMu.Unlock()
		return
	}
	b.reconnecting[guildID] = true
	b.recMu.Unlock()
	defer func() {
		b.recMu.Lock()
		delete(b.reconnecting, guildID)
		b.recMu.Unlock()
	}()

	log.Printf("[INFO] [Voice] Endpoint of %s changed to %s, reconnecting", guildID, endpoint)

	var err error
	if p := b.Players.Get(guildID); p != nil {
		_, err = b.Voice.Reconnect(ctx, guildID, p)
	} else {
		_, err = b.Voice.Reconnect(ctx, guildID, nil)
	}
	if err == nil || errors.Is(err, voice.ErrNotConnected) {
		return
	}

	log.Printf("[ERR] [Voice] Reconnect in %s failed, leaving: %v", guildID, err)
	if err := b.Leave(ctx, guildID); err != nil {
		log.Printf("[WARN] [Voice] Leaving %s: %v", guildID, err)
	}
}

// AutoJoin connects to each configured voice channel and starts playback
// there. Channels are given as guild id to channel id.
func (b *Bot) AutoJoin(ctx context.Context, channels map[string]string) {
	defer recoverPanic("auto-join")

	for guildID, channelID := range channels {
		if ctx.Err() != nil {
			return
		}
		if b.Voice.Get(guildID) != nil {
			log.Printf("[WARN] Already joined a channel in %s, skipping %s", guildID, channelID)
			continue
		}
		conn, err := b.Voice.GetOrCreate(ctx, guildID, channelID)
		if err != nil {
			log.Printf("[ERR] Auto-joining %s: %v", channelID, err)
			continue
		}
		p := b.Players.GetOrCreate(guildID, conn)
		b.startIfIdle(ctx, p)
	}
}
