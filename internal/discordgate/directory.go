package discordgate

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/djwillex/internal/skipvote"
)

// Directory answers member and channel questions from the session state
// cache.
type Directory struct {
	state *discordgo.State
}

func NewDirectory(state *discordgo.State) *Directory {
	return &Directory{state: state}
}

func (d *Directory) SelfID() string {
	if d.state.User == nil {
		return ""
	}
	return d.state.User.ID
}

func (d *Directory) VoiceMembers(guildID, channelID string) []skipvote.Member {
	g, err := d.state.Guild(guildID)
	if err != nil {
		return nil
	}

	d.state.RLock()
	defer d.state.RUnlock()
	var out []skipvote.Member
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID {
			out = append(out, skipvote.Member{UserID: vs.UserID, Deaf: vs.Deaf, SelfDeaf: vs.SelfDeaf})
		}
	}
	return out
}

func (d *Directory) ChannelName(channelID string) string {
	c, err := d.state.Channel(channelID)
	if err != nil {
		return channelID
	}
	return c.Name
}

// VoiceChannelOf returns the voice channel userID sits in, or "".
func (d *Directory) VoiceChannelOf(guildID, userID string) string {
	vs, err := d.state.VoiceState(guildID, userID)
	if err != nil {
		return ""
	}
	return vs.ChannelID
}

// GuildOf returns the guild a channel belongs to, or "".
func (d *Directory) GuildOf(channelID string) string {
	c, err := d.state.Channel(channelID)
	if err != nil {
		return ""
	}
	return c.GuildID
}
