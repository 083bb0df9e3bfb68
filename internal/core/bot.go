// Package core is the orchestrator: it turns chat commands and transport
// notifications into operations on the voice and player registries.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/keshon/djwillex/internal/autoplaylist"
	"github.com/keshon/djwillex/internal/config"
	"github.com/keshon/djwillex/internal/dependencies/random"
	"github.com/keshon/djwillex/internal/messaging"
	"github.com/keshon/djwillex/internal/music/extractor"
	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/presence"
	"github.com/keshon/djwillex/internal/skipvote"
	"github.com/keshon/djwillex/internal/voice"
)

// Directory answers questions about guild members and channels.
type Directory interface {
	SelfID() string
	VoiceMembers(guildID, channelID string) []skipvote.Member
	ChannelName(channelID string) string
}

// Deps are the collaborators a Bot drives. Autoplaylist and Presence may
// be nil.
type Deps struct {
	Config       *config.Config
	Voice        *voice.Registry
	Players      *player.Registry
	Guard        *messaging.Guard
	Presence     *presence.Aggregator
	Autoplaylist *autoplaylist.Continuation
	Directory    Directory
	Blacklist    *Blacklist
	Runtime      *Runtime
	Random       random.Random
}

type Bot struct {
	Deps

	cmds     *registry
	sessions *sessions

	recMu        sync.Mutex
	reconnecting map[string]bool
}

func New(d Deps) *Bot {
	if d.Random == nil {
		d.Random = random.New()
	}
	if d.Runtime == nil {
		d.Runtime = NewRuntime()
	}

	b := &Bot{
		Deps:         d,
		cmds:         newRegistry(),
		sessions:     newSessions(),
		reconnecting: make(map[string]bool),
	}
	b.registerCommands()

	if d.Presence != nil {
		d.Players.Listen(d.Presence.Listener())
	}
	d.Players.Listen(b.nowPlayingListener())
	if d.Autoplaylist != nil {
		d.Players.Listen(d.Autoplaylist.Listener())
	}
	return b
}

func (b *Bot) perms(c Caller) Perms {
	owner := c.UserID == b.Config.OwnerID
	p := Perms{
		Owner:     owner,
		InstaSkip: owner || b.Config.HasInstaSkip(c.Roles),
		MaxSongs:  b.Config.MaxSongsPerUser,
	}
	if owner {
		p.MaxSongs = 0
	}
	return p
}

// Handle runs the named command for caller. Expected failures come back
// as a response rather than an error; control signals are returned as is
// and everything else is logged and dropped.
func (b *Bot) Handle(ctx context.Context, caller Caller, name string, args []string) (*Response, error) {
	defer recoverPanic("command " + name)

	perms := b.perms(caller)
	if !perms.Owner && b.Blacklist != nil && b.Blacklist.Has(caller.UserID) {
		log.Printf("[DEBUG] Ignoring blacklisted user %s", caller.UserID)
		return nil, nil
	}
	if !b.Config.IsBound(caller.ChannelID) {
		return nil, nil
	}

	cmd, ok := b.cmds.get(name)
	if !ok {
		return nil, nil
	}

	resp, err := cmd.Run(ctx, &Invocation{Caller: caller, Perms: perms, Args: args})
	if err == nil {
		return resp, nil
	}

	var (
		sig     Signal
		cmdErr  *CommandError
		permErr *PermissionsError
		extErr  *extractor.ExtractionError
		connErr *voice.ConnectionError
	)
	switch {
	case errors.As(err, &sig):
		return resp, sig
	case errors.As(err, &cmdErr):
		return errorResponse(cmdErr.Message, cmdErr.ExpireIn), nil
	case errors.As(err, &permErr):
		return errorResponse(permErr.Error(), permErr.ExpireIn), nil
	case errors.As(err, &extErr):
		return errorResponse("Error extracting info from the URL:\n"+extErr.Error(), 30*time.Second), nil
	case errors.As(err, &connErr):
		return errorResponse(connErr.Error(), 30*time.Second), nil
	}

	log.Printf("[ERR] Command %s in %s failed: %v", cmd.Name(), caller.GuildID, err)
	return nil, nil
}

// recoverPanic keeps a panic in one guild's handler from taking the
// process down. It must be deferred directly.
func recoverPanic(where string) {
	if r := recover(); r != nil {
		log.Printf("[ERR] [core] panic in %s: %v\n%s", where, r, debug.Stack())
	}
}

func errorResponse(msg string, expire time.Duration) *Response {
	return &Response{Content: "```\n" + msg + "\n```", DeleteAfter: expire}
}

// Dispatch parses a raw chat message, runs the command it names and
// delivers the response. Signals are raised on the Runtime.
func (b *Bot) Dispatch(ctx context.Context, caller Caller, content string) error {
	defer recoverPanic("dispatch")

	prefix := b.Config.CommandPrefix
	if !strings.HasPrefix(content, prefix) {
		return nil
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return nil
	}

	resp, err := b.Handle(ctx, caller, fields[0], fields[1:])

	var sig Signal
	if errors.As(err, &sig) {
		defer b.Runtime.Raise(sig)
	} else if err != nil {
		return err
	}

	if resp == nil || resp.Content == "" {
		return nil
	}
	return b.deliver(ctx, caller, resp)
}

func (b *Bot) deliver(ctx context.Context, caller Caller, resp *Response) error {
	content := resp.Content
	if resp.Reply {
		content = fmt.Sprintf("<@%s>, %s", caller.UserID, content)
	}

	var opts []messaging.SendOption
	if b.Config.DeleteMessages && resp.DeleteAfter > 0 {
		opts = append(opts, messaging.ExpireIn(resp.DeleteAfter))
		if b.Config.DeleteInvoking && caller.MessageID != "" {
			opts = append(opts, messaging.AlsoDelete(messaging.Ref{ChannelID: caller.ChannelID, MessageID: caller.MessageID}))
		}
	}

	_, err := b.Guard.Send(ctx, caller.ChannelID, content, opts...)
	return err
}

// Commands lists the registered commands sorted by name.
func (b *Bot) Commands() []Command {
	return b.cmds.all()
}

// Session returns a copy of the guild's session data.
func (b *Bot) Session(guildID string) SessionData {
	return b.sessions.get(guildID)
}

// Leave drops the guild's player and then its voice connection.
func (b *Bot) Leave(ctx context.Context, guildID string) error {
	b.Players.Remove(ctx, guildID)
	return b.Voice.Disconnect(guildID)
}

// Shutdown leaves every guild. It is called before a restart or exit.
func (b *Bot) Shutdown(ctx context.Context) error {
	var errs []error
	for _, id := range b.Voice.Guilds() {
		if err := b.Leave(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
