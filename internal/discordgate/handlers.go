package discordgate

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/djwillex/internal/core"
	"github.com/keshon/djwillex/internal/voice"
)

// Handlers feeds session events into the gateway and the bot.
type Handlers struct {
	ctx      context.Context
	gw       *Gateway
	dir      *Directory
	bot      *core.Bot
	autojoin []string
}

// Attach registers the handlers on s. ctx bounds the work they start.
func Attach(ctx context.Context, s *discordgo.Session, gw *Gateway, dir *Directory, bot *core.Bot, autojoin []string) *Handlers {
	h := &Handlers{ctx: ctx, gw: gw, dir: dir, bot: bot, autojoin: autojoin}
	s.AddHandler(h.onReady)
	s.AddHandler(h.onMessageCreate)
	s.AddHandler(h.onVoiceStateUpdate)
	s.AddHandler(h.onVoiceServerUpdate)
	return h
}

// Intents the bot needs: guilds, voice states and message content.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

func (h *Handlers) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[INFO] Connected as %s#%s, in %d guild(s)", r.User.Username, r.User.Discriminator, len(r.Guilds))

	channels := make(map[string]string)
	for _, id := range h.autojoin {
		guildID := h.dir.GuildOf(id)
		if guildID == "" {
			c, err := s.Channel(id)
			if err != nil {
				log.Printf("[WARN] Auto-join channel %s not found: %v", id, err)
				continue
			}
			guildID = c.GuildID
		}
		if _, dup := channels[guildID]; dup {
			log.Printf("[WARN] Only one auto-join channel per guild, skipping %s", id)
			continue
		}
		channels[guildID] = id
	}
	if len(channels) > 0 {
		h.bot.AutoJoin(h.ctx, channels)
	}
}

func (h *Handlers) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if err := h.bot.Dispatch(h.ctx, h.caller(m), m.Content); err != nil {
		log.Printf("[ERR] Delivering response in %s: %v", m.ChannelID, err)
	}
}

func (h *Handlers) caller(m *discordgo.MessageCreate) core.Caller {
	return core.NewCaller(m, h.dir.VoiceChannelOf(m.GuildID, m.Author.ID))
}

func (h *Handlers) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil {
		return
	}
	h.gw.Deliver(voice.SessionAck(v))
	h.bot.HandleVoiceStateUpdate(h.ctx, v)
}

func (h *Handlers) onVoiceServerUpdate(s *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	h.gw.Deliver(voice.ServerAck(v))
	h.bot.HandleVoiceServerUpdate(h.ctx, v)
}
