package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/music/playlist"
)

const (
	replyExpire = 20 * time.Second
	errExpire   = 30 * time.Second
	queueLimit  = 1800 // characters, keeps the listing under the message cap
)

func (b *Bot) registerCommands() {
	base := []Middleware{WithCommandLogger()}
	guild := []Middleware{WithGuildOnly(), WithCommandLogger()}
	owner := []Middleware{WithOwnerOnly(), WithCommandLogger()}

	add := func(name, desc string, run func(context.Context, *Invocation) (*Response, error), mws []Middleware, aliases ...string) {
		b.cmds.register(&command{name: name, aliases: aliases, desc: desc, run: run}, mws...)
	}

	add("help", "Lists the available commands.", b.cmdHelp, base)
	add("id", "Tells you your user id.", b.cmdID, base)
	add("uptime", "Shows how long the bot has been running.", b.cmdUptime, base)
	add("summon", "Calls the bot into your voice channel.", b.cmdSummon, guild)
	add("play", "Adds a song or a playlist to the queue.", b.cmdPlay, guild)
	add("pause", "Pauses playback.", b.cmdPause, guild)
	add("resume", "Resumes paused playback.", b.cmdResume, guild)
	add("skip", "Skips the current song, or votes to.", b.cmdSkip, guild, "voteskip")
	add("volume", "Shows or changes the volume (1-100, +N or -N).", b.cmdVolume, guild)
	add("queue", "Shows the queue.", b.cmdQueue, guild)
	add("np", "Shows the song currently playing.", b.cmdNowPlaying, guild)
	add("shuffle", "Shuffles the queue.", b.cmdShuffle, guild)
	add("clear", "Clears the queue.", b.cmdClear, guild)
	add("disconnect", "Leaves the voice channel.", b.cmdDisconnect, guild)
	add("blacklist", "Adds (+) or removes (-) users from the blacklist.", b.cmdBlacklist, owner)
	add("restart", "Restarts the bot.", b.cmdRestart, owner)
	add("shutdown", "Shuts the bot down.", b.cmdShutdown, owner)
}

func (b *Bot) cmdHelp(ctx context.Context, inv *Invocation) (*Response, error) {
	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	for _, cmd := range b.cmds.all() {
		fmt.Fprintf(&sb, "`%s%s` %s\n", b.Config.CommandPrefix, cmd.Name(), cmd.Description())
	}
	return &Response{Content: sb.String(), Reply: true, DeleteAfter: 60 * time.Second}, nil
}

func (b *Bot) cmdID(ctx context.Context, inv *Invocation) (*Response, error) {
	return &Response{Content: fmt.Sprintf("your id is `%s`", inv.Caller.UserID), Reply: true, DeleteAfter: 35 * time.Second}, nil
}

func (b *Bot) cmdUptime(ctx context.Context, inv *Invocation) (*Response, error) {
	return &Response{Content: "Uptime: " + formatDuration(b.Runtime.Uptime()), DeleteAfter: replyExpire}, nil
}

func (b *Bot) cmdSummon(ctx context.Context, inv *Invocation) (*Response, error) {
	c := inv.Caller
	if c.VoiceChannelID == "" {
		return nil, cmdErr(errExpire, "You are not in a voice channel!")
	}

	conn := b.Voice.Get(c.GuildID)
	if conn != nil {
		if conn.ChannelID() != c.VoiceChannelID {
			if err := b.Voice.Move(ctx, c.GuildID, c.VoiceChannelID); err != nil {
				return nil, fmt.Errorf("move to %s: %w", c.VoiceChannelID, err)
			}
		}
	} else {
		var err error
		conn, err = b.Voice.GetOrCreate(ctx, c.GuildID, c.VoiceChannelID)
		if err != nil {
			return nil, err
		}
	}

	p := b.Players.GetOrCreate(c.GuildID, conn)
	b.startIfIdle(ctx, p)
	return nil, nil
}

// startIfIdle plays the queue of a stopped player, falling back to the
// autoplaylist when the queue is empty.
func (b *Bot) startIfIdle(ctx context.Context, p *player.Player) {
	if !p.IsStopped() {
		return
	}
	if p.Playlist().Len() > 0 {
		if err := p.Play(ctx); err != nil && !errors.Is(err, player.ErrQueueEmpty) {
			log.Printf("[ERR] Starting playback in %s: %v", p.GuildID(), err)
		}
		return
	}
	if b.Autoplaylist != nil && b.Autoplaylist.Enabled() {
		if err := b.Autoplaylist.Continue(ctx, p); err != nil {
			log.Printf("[WARN] Autoplaylist in %s: %v", p.GuildID(), err)
		}
	}
}

func (b *Bot) requirePlayer(guildID string) (*player.Player, error) {
	p := b.Players.Get(guildID)
	if p == nil {
		return nil, cmdErr(errExpire, "The bot is not in a voice channel. Use %ssummon to summon it to your voice channel.", b.Config.CommandPrefix)
	}
	return p, nil
}

func (b *Bot) cmdPlay(ctx context.Context, inv *Invocation) (*Response, error) {
	if len(inv.Args) == 0 {
		return nil, cmdErr(errExpire, "Usage: %splay <url>", b.Config.CommandPrefix)
	}
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}

	c := inv.Caller
	if inv.Perms.MaxSongs > 0 && p.Playlist().CountForUser(c.UserID) >= inv.Perms.MaxSongs {
		return nil, &PermissionsError{Message: fmt.Sprintf("you have reached your enqueued song limit (%d)", inv.Perms.MaxSongs), ExpireIn: errExpire}
	}

	url := strings.Trim(inv.Args[0], "<>")
	meta := playlist.Meta{AuthorID: c.UserID, AuthorName: c.UserName, ChannelID: c.ChannelID}

	var (
		what string
		pos  int
	)
	entry, pos, err := p.Playlist().AddEntry(ctx, url, meta)
	switch {
	case errors.Is(err, playlist.ErrPlaylistURL):
		var entries []playlist.Entry
		entries, pos, err = p.Playlist().ImportFrom(ctx, url, meta)
		if err != nil {
			return nil, err
		}
		what = fmt.Sprintf("%d songs", len(entries))
	case err != nil:
		return nil, err
	default:
		what = entry.Title
	}

	reply := fmt.Sprintf("Enqueued **%s** to be played. Position in queue: ", what)
	if pos == 1 && p.IsStopped() {
		reply += "Up next!"
	} else {
		eta := p.Playlist().EstimateTimeUntil(pos, remaining(p))
		reply += fmt.Sprintf("%d - estimated time until playing: %s", pos, formatDuration(eta))
	}

	if p.IsStopped() {
		if err := p.Play(ctx); err != nil && !errors.Is(err, player.ErrQueueEmpty) {
			log.Printf("[ERR] Starting playback in %s: %v", c.GuildID, err)
		}
	}
	return &Response{Content: reply, Reply: true, DeleteAfter: errExpire}, nil
}

// remaining is what is left of the current entry, zero when idle.
func remaining(p *player.Player) time.Duration {
	cur, ok := p.Current()
	if !ok {
		return 0
	}
	return max(cur.Duration-p.Progress(), 0)
}

func (b *Bot) cmdPause(ctx context.Context, inv *Invocation) (*Response, error) {
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}
	if err := p.Pause(ctx); err != nil {
		return nil, cmdErr(errExpire, "Player is not playing.")
	}
	return nil, nil
}

func (b *Bot) cmdResume(ctx context.Context, inv *Invocation) (*Response, error) {
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}
	if err := p.Resume(ctx); err != nil {
		return nil, cmdErr(errExpire, "Player is not paused.")
	}
	b.sessions.with(inv.Caller.GuildID, func(sd *SessionData) { sd.AutoPaused = false })
	return nil, nil
}

func (b *Bot) cmdVolume(ctx context.Context, inv *Invocation) (*Response, error) {
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}
	old := int(p.Volume()*100 + 0.5)
	if len(inv.Args) == 0 {
		return &Response{Content: fmt.Sprintf("Current volume: `%d%%`", old), Reply: true, DeleteAfter: replyExpire}, nil
	}

	raw := inv.Args[0]
	relative := strings.HasPrefix(raw, "+") || strings.HasPrefix(raw, "-")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, cmdErr(replyExpire, "%s is not a valid number", raw)
	}
	vol := n
	if relative {
		vol = old + n
	}
	if vol < 1 || vol > 100 {
		if relative {
			return nil, cmdErr(replyExpire, "Unreasonable volume change provided: %d%+d -> %d%%. Provide a change between %d and %+d.", old, n, vol, 1-old, 100-old)
		}
		return nil, cmdErr(replyExpire, "Unreasonable volume provided: %d%%. Provide a value between 1 and 100.", n)
	}

	if err := p.SetVolume(float64(vol) / 100); err != nil {
		return nil, err
	}
	return &Response{Content: fmt.Sprintf("updated volume from %d to %d", old, vol), Reply: true, DeleteAfter: replyExpire}, nil
}

func (b *Bot) cmdQueue(ctx context.Context, inv *Invocation) (*Response, error) {
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}

	var lines []string
	if cur, ok := p.Current(); ok {
		lines = append(lines, fmt.Sprintf("Currently Playing: **%s** added by **%s** %s", cur.Title, cur.Meta.AuthorName, progress(p, cur)))
	}

	size := 0
	entries := p.Playlist().Entries()
	for i, e := range entries {
		line := fmt.Sprintf("`%d.` **%s** added by **%s**", i+1, e.Title, e.Meta.AuthorName)
		if size+len(line) > queueLimit {
			lines = append(lines, fmt.Sprintf("* ... and %d more*", len(entries)-i))
			break
		}
		size += len(line)
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return &Response{Content: fmt.Sprintf("There are no songs queued! Queue something with %splay.", b.Config.CommandPrefix), DeleteAfter: replyExpire}, nil
	}
	return &Response{Content: strings.Join(lines, "\n"), DeleteAfter: 60 * time.Second}, nil
}

func (b *Bot) cmdNowPlaying(ctx context.Context, inv *Invocation) (*Response, error) {
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}
	cur, ok := p.Current()
	if !ok {
		return nil, cmdErr(replyExpire, "There are no songs queued! Queue something with %splay.", b.Config.CommandPrefix)
	}
	return &Response{
		Content:     fmt.Sprintf("Now Playing: **%s** added by **%s** %s", cur.Title, cur.Meta.AuthorName, progress(p, cur)),
		DeleteAfter: replyExpire,
	}, nil
}

func progress(p *player.Player, e playlist.Entry) string {
	return fmt.Sprintf("[%s/%s]", formatDuration(p.Progress()), formatDuration(e.Duration))
}

func (b *Bot) cmdShuffle(ctx context.Context, inv *Invocation) (*Response, error) {
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}
	p.Playlist().Shuffle(b.Random)
	return &Response{Content: "Shuffled the queue.", DeleteAfter: 15 * time.Second}, nil
}

func (b *Bot) cmdClear(ctx context.Context, inv *Invocation) (*Response, error) {
	p, err := b.requirePlayer(inv.Caller.GuildID)
	if err != nil {
		return nil, err
	}
	p.Playlist().Clear()
	return &Response{Content: "Cleared the queue.", DeleteAfter: replyExpire}, nil
}

func (b *Bot) cmdDisconnect(ctx context.Context, inv *Invocation) (*Response, error) {
	if err := b.Leave(ctx, inv.Caller.GuildID); err != nil {
		log.Printf("[WARN] Disconnect from %s: %v", inv.Caller.GuildID, err)
	}
	return nil, nil
}

func (b *Bot) cmdBlacklist(ctx context.Context, inv *Invocation) (*Response, error) {
	usage := cmdErr(replyExpire, "Usage: %sblacklist [ + | - ] @user...", b.Config.CommandPrefix)
	if b.Blacklist == nil || len(inv.Args) < 2 {
		return nil, usage
	}

	ids := make([]string, 0, len(inv.Args)-1)
	for _, a := range inv.Args[1:] {
		id := strings.TrimSuffix(strings.TrimLeft(a, "<@!"), ">")
		if id != inv.Caller.UserID && id != b.Config.OwnerID {
			ids = append(ids, id)
		}
	}

	var (
		n   int
		err error
		msg string
	)
	switch inv.Args[0] {
	case "+", "add":
		n, err = b.Blacklist.Add(ids...)
		msg = "%d users have been added to the blacklist"
	case "-", "remove":
		n, err = b.Blacklist.Remove(ids...)
		msg = "%d users have been removed from the blacklist"
	default:
		return nil, usage
	}
	if err != nil {
		return nil, fmt.Errorf("update blacklist: %w", err)
	}
	return &Response{Content: fmt.Sprintf(msg, n), Reply: true, DeleteAfter: 10 * time.Second}, nil
}

func (b *Bot) cmdRestart(ctx context.Context, inv *Invocation) (*Response, error) {
	return &Response{Content: "Restarting. If you have updated the bot, it will now be on the new version."}, Restart
}

func (b *Bot) cmdShutdown(ctx context.Context, inv *Invocation) (*Response, error) {
	return &Response{Content: "Shutting down."}, Terminate
}

// formatDuration renders d as h:mm:ss.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
