package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/keshon/djwillex/pkg/jobmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu      sync.Mutex
	next    int
	sent    []string
	deleted []Ref
	sendErr error
	editErr error
	delErr  error
}

func (c *fakeClient) Send(_ context.Context, channelID, content string) (Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return Ref{}, c.sendErr
	}
	c.next++
	c.sent = append(c.sent, content)
	return Ref{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", c.next)}, nil
}

func (c *fakeClient) Edit(context.Context, Ref, string) error { return c.editErr }

func (c *fakeClient) Delete(_ context.Context, ref Ref) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delErr != nil {
		return c.delErr
	}
	c.deleted = append(c.deleted, ref)
	return nil
}

func (c *fakeClient) LatestMessageID(context.Context, string) (string, error) { return "m1", nil }

func (c *fakeClient) deletedRefs() []Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Ref(nil), c.deleted...)
}

func TestSend_SwallowsRoutineRejections(t *testing.T) {
	ctx := context.Background()
	for _, e := range []error{ErrForbidden, fmt.Errorf("rest: %w", ErrNotFound)} {
		g := NewGuard(&fakeClient{sendErr: e}, nil)
		ref, err := g.Send(ctx, "c", "hi")
		assert.NoError(t, err)
		assert.Nil(t, ref)
	}

	boom := errors.New("boom")
	g := NewGuard(&fakeClient{sendErr: boom}, nil)
	_, err := g.Send(ctx, "c", "hi", Quiet())
	assert.ErrorIs(t, err, boom)
}

func TestSend_ExpiresWithoutBlocking(t *testing.T) {
	client := &fakeClient{}
	jobs := jobmgr.NewManager(nil)
	g := NewGuard(client, jobs)

	invoking := Ref{ChannelID: "c", MessageID: "cmd"}
	start := time.Now()
	ref, err := g.Send(context.Background(), "c", "hi", ExpireIn(20*time.Millisecond), AlsoDelete(invoking))
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	assert.Eventually(t, func() bool { return len(client.deletedRefs()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []Ref{*ref, invoking}, client.deletedRefs())
	jobs.StopAll()
}

func TestEdit_FallsBackToSend(t *testing.T) {
	client := &fakeClient{editErr: ErrNotFound}
	g := NewGuard(client, nil)
	ctx := context.Background()

	ref, err := g.Edit(ctx, Ref{ChannelID: "c", MessageID: "old"}, "new", true)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, []string{"new"}, client.sent)

	ref, err = g.Edit(ctx, Ref{ChannelID: "c", MessageID: "old"}, "new", false)
	assert.NoError(t, err)
	assert.Nil(t, ref)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(&fakeClient{delErr: ErrNotFound}, nil)
	assert.NoError(t, g.Delete(ctx, Ref{ChannelID: "c", MessageID: "m"}, true))
	assert.NoError(t, g.Delete(ctx, Ref{}, false))

	boom := errors.New("boom")
	g = NewGuard(&fakeClient{delErr: boom}, nil)
	assert.ErrorIs(t, g.Delete(ctx, Ref{ChannelID: "c", MessageID: "m"}, false), boom)
}
