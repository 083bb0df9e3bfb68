// Package stream plays entries into a voice connection: ffmpeg decodes the
// remote media to PCM, frames are volume-scaled, Opus-encoded and sent.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/keshon/djwillex/internal/music/player"
	"github.com/keshon/djwillex/internal/music/playlist"
	"github.com/keshon/djwillex/internal/voice"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
	frameTime  = 20 * time.Millisecond
	maxOpus    = 4000
)

var ErrNoSink = errors.New("voice connection cannot carry audio")

// OpusSink is the audio side of a voice stream.
type OpusSink interface {
	Speaking(on bool) error
	SendOpus(ctx context.Context, frame []byte) error
}

// Resolver turns a page URL into a direct media URL.
type Resolver interface {
	StreamURL(ctx context.Context, url string) (string, error)
}

// Source opens decoded PCM (s16le, 48kHz, stereo) for a media URL.
type Source func(ctx context.Context, mediaURL string) (io.ReadCloser, error)

type encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// Output implements player.Output.
type Output struct {
	guildID    string
	resolver   Resolver
	source     Source
	newEncoder func() (encoder, error)

	mu     sync.Mutex
	sink   OpusSink
	volume float64
	cur    *playback
}

var _ player.Output = (*Output)(nil)

func New(guildID string, conn *voice.Connection, resolver Resolver) *Output {
	o := &Output{
		guildID:    guildID,
		resolver:   resolver,
		source:     FFmpeg,
		newEncoder: newOpusEncoder,
		volume:     1,
	}
	o.Rebind(conn)
	return o
}

// Factory adapts New to player.OutputFactory.
func Factory(resolver Resolver) player.OutputFactory {
	return func(guildID string, conn *voice.Connection) player.Output {
		return New(guildID, conn, resolver)
	}
}

func (o *Output) Start(ctx context.Context, entry playlist.Entry, volume float64, finished func(error)) error {
	link, err := o.resolver.StreamURL(ctx, entry.URL)
	if err != nil {
		return err
	}

	o.mu.Lock()
	sink := o.sink
	o.volume = volume
	o.mu.Unlock()
	if sink == nil {
		return ErrNoSink
	}

	enc, err := o.newEncoder()
	if err != nil {
		return fmt.Errorf("encoder error: %w", err)
	}

	pctx, cancel := context.WithCancel(context.Background())
	pcm, err := o.source(pctx, link)
	if err != nil {
		cancel()
		return err
	}

	pb := &playback{cancel: cancel}
	o.mu.Lock()
	if o.cur != nil {
		o.cur.cancel()
	}
	o.cur = pb
	o.mu.Unlock()

	go func() {
		err := o.pump(pctx, pb, pcm, enc)
		pcm.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || pctx.Err() != nil {
			err = nil
		}
		finished(err)
	}()

	log.Printf("[DEBUG] [Stream] %s: streaming %q", o.guildID, entry.Title)
	return nil
}

// pump moves frames from pcm to the sink until the source ends or ctx is
// cancelled.
func (o *Output) pump(ctx context.Context, pb *playback, pcm io.Reader, enc encoder) error {
	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	speaking := false
	defer func() {
		if speaking {
			if sink := o.currentSink(); sink != nil {
				_ = sink.Speaking(false)
			}
		}
	}()

	for {
		if err := pb.waitUnpaused(ctx); err != nil {
			return err
		}

		if _, err := io.ReadFull(pcm, pcmBuf); err != nil {
			return err
		}

		o.mu.Lock()
		vol := o.volume
		sink := o.sink
		o.mu.Unlock()

		scale(pcmBuf, intBuf, vol)

		opus, err := enc.Encode(intBuf, frameSize, maxOpus)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		if sink == nil {
			return ErrNoSink
		}
		if !speaking {
			if err := sink.Speaking(true); err != nil {
				log.Printf("[WARN] [Stream] %s: speaking flag: %v", o.guildID, err)
			}
			speaking = true
		}
		if err := sink.SendOpus(ctx, opus); err != nil {
			return err
		}
		pb.frames.Add(1)
	}
}

func (o *Output) currentSink() OpusSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sink
}

func (o *Output) Pause() {
	if pb := o.playing(); pb != nil {
		pb.pause()
	}
}

func (o *Output) Resume() {
	if pb := o.playing(); pb != nil {
		pb.resumePlayback()
	}
}

// Stop cancels the current playback without waiting for it to wind down.
func (o *Output) Stop() {
	o.mu.Lock()
	pb := o.cur
	o.cur = nil
	o.mu.Unlock()
	if pb != nil {
		pb.cancel()
	}
}

func (o *Output) Rebind(conn *voice.Connection) {
	var sink OpusSink
	if conn != nil {
		sink, _ = conn.Stream.(OpusSink)
	}
	o.mu.Lock()
	o.sink = sink
	o.mu.Unlock()
}

func (o *Output) SetVolume(v float64) {
	o.mu.Lock()
	o.volume = v
	o.mu.Unlock()
}

func (o *Output) Position() time.Duration {
	if pb := o.playing(); pb != nil {
		return time.Duration(pb.frames.Load()) * frameTime
	}
	return 0
}

func (o *Output) playing() *playback {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cur
}

// FFmpeg decodes mediaURL with the ffmpeg binary on PATH.
func FFmpeg(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", mediaURL,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("command start error: %w", err)
	}
	return &procReader{ReadCloser: reader, cmd: cmd}, nil
}

type procReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *procReader) Close() error {
	_ = p.cmd.Process.Kill()
	_ = p.cmd.Wait()
	return nil
}
