package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/djwillex/internal/autoplaylist"
	"github.com/keshon/djwillex/internal/core"
	"github.com/keshon/djwillex/internal/music/extractor"
	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/statusapi"
)

type stubProber map[string]bool

func (s stubProber) Probe(_ context.Context, url string) (*extractor.MediaInfo, error) {
	if s[url] {
		return &extractor.MediaInfo{URL: url, Title: url}, nil
	}
	return nil, &extractor.ExtractionError{URL: url, Err: errors.New("video unavailable")}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func writePool(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autoplaylist.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestAutoplaylistList(t *testing.T) {
	path := writePool(t, "# pool\nhttps://y/a\nhttps://y/b\n")
	assert.Equal(t, "https://y/a\nhttps://y/b\n", execute(t, "autoplaylist", "list", "--file", path))
}

func TestAutoplaylistCheck(t *testing.T) {
	orig := newProber
	newProber = func(string) autoplaylist.Prober { return stubProber{"https://y/b": true} }
	t.Cleanup(func() { newProber = orig })

	path := writePool(t, "https://y/a\nhttps://y/b\n")

	out := execute(t, "autoplaylist", "check", "-f", path)
	assert.Equal(t, "unplayable: https://y/a\nfound 1 unplayable of 2 checked\n", out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://y/a\nhttps://y/b\n", string(data))

	out = execute(t, "autoplaylist", "check", "-f", path, "--prune")
	assert.Equal(t, "unplayable: https://y/a\nremoved 1 unplayable of 2 checked\n", out)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://y/b\n", string(data))
}

func TestWaitForSignal(t *testing.T) {
	signals := make(chan core.Signal, 1)
	signals <- core.Restart
	assert.Equal(t, core.Restart, waitForSignal(context.Background(), signals))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, core.Terminate, waitForSignal(ctx, signals))
}

func TestVersionFlag(t *testing.T) {
	assert.Contains(t, execute(t, "--version"), Version)
}

type emptySource struct{}

func (emptySource) Snapshots() []player.Snapshot { return nil }
func (emptySource) Guilds() []string             { return nil }
func (emptySource) Uptime() time.Duration        { return time.Second }
func (emptySource) Presence() string             { return "" }

func TestServeStatus_StopReleasesAddress(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	srv := statusapi.New(emptySource{})
	st := serveStatus(context.Background(), srv, addr)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	st.stop()

	again, err := net.Listen("tcp", addr)
	require.NoError(t, err, "address is free once stop returns")
	require.NoError(t, again.Close())
}

func TestTask_StopWaitsForReturn(t *testing.T) {
	var finished bool
	tk := goTask(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished = true
	})
	tk.stop()
	assert.True(t, finished)

	var none *task
	assert.NotPanics(t, none.stop)
}
