package discordgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/djwillex/internal/messaging"
)

// Chat is the messaging.Client over the REST API.
type Chat struct {
	s *discordgo.Session
}

func NewChat(s *discordgo.Session) *Chat {
	return &Chat{s: s}
}

func (c *Chat) Send(ctx context.Context, channelID, content string) (messaging.Ref, error) {
	m, err := c.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return messaging.Ref{}, restErr(err)
	}
	return messaging.Ref{ChannelID: channelID, MessageID: m.ID}, nil
}

func (c *Chat) Edit(ctx context.Context, ref messaging.Ref, content string) error {
	_, err := c.s.ChannelMessageEdit(ref.ChannelID, ref.MessageID, content, discordgo.WithContext(ctx))
	return restErr(err)
}

func (c *Chat) Delete(ctx context.Context, ref messaging.Ref) error {
	return restErr(c.s.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)))
}

func (c *Chat) LatestMessageID(ctx context.Context, channelID string) (string, error) {
	msgs, err := c.s.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return "", restErr(err)
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[0].ID, nil
}

// restErr maps permission and not-found rejections onto the messaging
// sentinels.
func restErr(err error) error {
	if err == nil {
		return nil
	}
	var re *discordgo.RESTError
	if !errors.As(err, &re) || re.Response == nil {
		return err
	}
	switch re.Response.StatusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %v", messaging.ErrForbidden, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", messaging.ErrNotFound, err)
	}
	return err
}

// Presence publishes the bot's activity line.
type Presence struct {
	s *discordgo.Session
}

func NewPresence(s *discordgo.Session) *Presence {
	return &Presence{s: s}
}

func (p *Presence) UpdateStatus(_ context.Context, text string) error {
	return p.s.UpdateGameStatus(0, text)
}
