package skipvote

import (
	"testing"

	"github.com/keshon/djwillex/internal/messaging"
	"github.com/stretchr/testify/assert"
)

func TestAdd_SetSemantics(t *testing.T) {
	s := New()
	ref := messaging.Ref{ChannelID: "c", MessageID: "m1"}

	assert.Equal(t, 1, s.Add("u1", ref))
	assert.Equal(t, 1, s.Add("u1", ref))
	assert.Equal(t, 2, s.Add("u2", messaging.Ref{}))
	assert.True(t, s.Has("u1"))

	refs := s.Reset()
	assert.Equal(t, []messaging.Ref{ref}, refs)
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.Has("u1"))
}

func TestRequired(t *testing.T) {
	tests := []struct {
		name     string
		fixed    int
		ratio    float64
		eligible int
		want     int
	}{
		{"capped by fixed threshold", 3, 0.5, 5, 3},
		{"ratio rounds up", 3, 0.5, 2, 1},
		{"empty channel skips at once", 3, 0.5, 0, 0},
		{"ratio below fixed", 4, 0.5, 3, 2},
		{"single listener", 4, 0.5, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Required(tt.fixed, tt.ratio, tt.eligible))
		})
	}
}

func TestEligible(t *testing.T) {
	members := []Member{
		{UserID: "bot"},
		{UserID: "owner"},
		{UserID: "a"},
		{UserID: "b", Deaf: true},
		{UserID: "c", SelfDeaf: true},
		{UserID: "d"},
	}
	assert.Equal(t, 2, Eligible(members, "owner", "bot"))
	assert.Equal(t, 0, Eligible(nil, "owner", "bot"))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 2, Remaining(3, 0.5, 5, 1))
	assert.Equal(t, 0, Remaining(3, 0.5, 5, 3))
	assert.LessOrEqual(t, Remaining(3, 0.5, 0, 0), 0)
}
