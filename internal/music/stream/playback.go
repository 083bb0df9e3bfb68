package stream

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"layeh.com/gopus"
)

// playback is one running entry.
type playback struct {
	cancel context.CancelFunc
	frames atomic.Int64

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func (p *playback) pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
}

func (p *playback) resumePlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resume)
	}
}

func (p *playback) waitUnpaused(ctx context.Context) error {
	p.mu.Lock()
	paused, ch := p.paused, p.resume
	p.mu.Unlock()

	if paused {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// scale converts little-endian s16 PCM to samples multiplied by vol.
func scale(pcm []byte, out []int16, vol float64) {
	for i := range out {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:i*2+2]))) * vol
		out[i] = int16(max(math.MinInt16, min(math.MaxInt16, s)))
	}
}

func newOpusEncoder() (encoder, error) {
	return gopus.NewEncoder(sampleRate, channels, gopus.Audio)
}
