package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowPlaying_EditsReplacesAndClears(t *testing.T) {
	h := newHarness(t, nil)
	h.summon(t, "https://y/a", "https://y/b")
	assert.Equal(t, "Now playing in #vc1: **Song A**", h.chat.text("m1"))

	// still the newest message: edited in place
	h.out.finish("https://y/a")
	assert.Equal(t, "Now playing in #vc1: **Song B**", h.chat.text("m1"))
	assert.Contains(t, h.chat.editedIDs(), "m1")

	// buried under chatter: replaced
	_, err := h.chat.Send(context.Background(), testText, "hello")
	require.NoError(t, err)
	h.run(t, caller("req"), "play", "https://y/c")
	h.out.finish("https://y/b")
	assert.Contains(t, h.chat.deletedIDs(), "m1")
	assert.Equal(t, "Now playing in #vc1: **Song C**", h.chat.text("m3"))
	last := h.bot.Session(testGuild).LastNowPlaying
	require.NotNil(t, last)
	assert.Equal(t, "m3", last.MessageID)

	h.run(t, caller("req"), "pause")
	assert.Equal(t, "❚❚ Now playing in #vc1: **Song C**", h.chat.text("m3"))
	h.run(t, caller("req"), "resume")
	assert.Equal(t, "Now playing in #vc1: **Song C**", h.chat.text("m3"))

	h.run(t, caller("req"), "disconnect")
	assert.Contains(t, h.chat.deletedIDs(), "m3")
	assert.Nil(t, h.bot.Session(testGuild).LastNowPlaying)
}

func TestNowPlaying_Mentions(t *testing.T) {
	h := newHarness(t, map[string]string{"NOW_PLAYING_MENTIONS": "true"})
	h.summon(t, "https://y/a")
	assert.Equal(t, "<@req> - your song **Song A** is now playing in #vc1!", h.chat.text("m1"))
}
