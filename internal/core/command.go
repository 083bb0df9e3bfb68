package core

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Caller identifies who invoked a command and from where. It is passed
// explicitly to every operation that needs an identity.
type Caller struct {
	UserID         string
	UserName       string
	GuildID        string
	ChannelID      string // text channel
	MessageID      string // invoking message
	VoiceChannelID string // where the caller sits in voice, if anywhere
	Roles          []string
}

// NewCaller builds the caller of message m. voiceChannelID is where the
// author sits in voice, if anywhere. The member nickname wins over the
// username.
func NewCaller(m *discordgo.MessageCreate, voiceChannelID string) Caller {
	c := Caller{
		UserID:         m.Author.ID,
		UserName:       m.Author.Username,
		GuildID:        m.GuildID,
		ChannelID:      m.ChannelID,
		MessageID:      m.ID,
		VoiceChannelID: voiceChannelID,
	}
	if m.Member != nil {
		c.Roles = m.Member.Roles
		if m.Member.Nick != "" {
			c.UserName = m.Member.Nick
		}
	}
	return c
}

// Perms are the caller's effective permissions.
type Perms struct {
	Owner     bool
	InstaSkip bool
	MaxSongs  int // 0 means unlimited
}

// Response is what a command wants shown in the invoking channel.
type Response struct {
	Content     string
	Reply       bool
	DeleteAfter time.Duration
}

// Invocation is the runtime context handed to a command.
type Invocation struct {
	Caller Caller
	Perms  Perms
	Args   []string
}

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Run(ctx context.Context, inv *Invocation) (*Response, error)
}

// command is the Command used for every built-in.
type command struct {
	name    string
	aliases []string
	desc    string
	run     func(ctx context.Context, inv *Invocation) (*Response, error)
}

func (c *command) Name() string        { return c.name }
func (c *command) Aliases() []string   { return c.aliases }
func (c *command) Description() string { return c.desc }

func (c *command) Run(ctx context.Context, inv *Invocation) (*Response, error) {
	return c.run(ctx, inv)
}
