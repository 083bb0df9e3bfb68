package core

import (
	"context"
	"log"
	"time"
)

type Middleware func(Command) Command

type wrappedCommand struct {
	Command
	wrap func(ctx context.Context, inv *Invocation) (*Response, error)
}

func (w *wrappedCommand) Run(ctx context.Context, inv *Invocation) (*Response, error) {
	if w.wrap != nil {
		return w.wrap(ctx, inv)
	}
	return w.Command.Run(ctx, inv)
}

func ApplyMiddlewares(cmd Command, mws ...Middleware) Command {
	for _, mw := range mws {
		cmd = mw(cmd)
	}
	return cmd
}

// WithOwnerOnly rejects everyone but the bot owner.
func WithOwnerOnly() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx context.Context, inv *Invocation) (*Response, error) {
				if !inv.Perms.Owner {
					return nil, &PermissionsError{Message: "only the owner can use this command", ExpireIn: 30 * time.Second}
				}
				return cmd.Run(ctx, inv)
			},
		}
	}
}

// WithGuildOnly rejects invocations outside a guild.
func WithGuildOnly() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx context.Context, inv *Invocation) (*Response, error) {
				if inv.Caller.GuildID == "" {
					return nil, &CommandError{Message: "this command only works in a server"}
				}
				return cmd.Run(ctx, inv)
			},
		}
	}
}

// WithCommandLogger logs each invocation and how long it took.
func WithCommandLogger() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx context.Context, inv *Invocation) (*Response, error) {
				start := time.Now()
				resp, err := cmd.Run(ctx, inv)
				c := inv.Caller
				if err != nil {
					log.Printf("[INFO] %s/%s %s ran %s (%v): %v", c.GuildID, c.ChannelID, c.UserName, cmd.Name(), time.Since(start).Round(time.Millisecond), err)
				} else {
					log.Printf("[INFO] %s/%s %s ran %s (%v)", c.GuildID, c.ChannelID, c.UserName, cmd.Name(), time.Since(start).Round(time.Millisecond))
				}
				return resp, err
			},
		}
	}
}
