package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/keshon/djwillex/internal/metrics"
	"github.com/keshon/djwillex/pkg/retrylimit"
)

// Config tunes the handshake and reconnect timings.
type Config struct {
	Attempts    int
	AckTimeout  time.Duration // bound for both acks, and again for opening the stream
	RetryDelay  time.Duration
	SettleDelay time.Duration // pause between teardown and reconnect
}

func DefaultConfig() Config {
	return Config{
		Attempts:    3,
		AckTimeout:  10 * time.Second,
		RetryDelay:  time.Second,
		SettleDelay: 100 * time.Millisecond,
	}
}

// Establisher performs voice handshakes. It holds no locks of its own;
// serialisation is the Registry's job.
type Establisher struct {
	gw  Gateway
	cfg Config
}

func NewEstablisher(gw Gateway, cfg Config) *Establisher {
	def := DefaultConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	return &Establisher{gw: gw, cfg: cfg}
}

// Connect joins channelID in guildID, retrying failed attempts. After the
// last failure it returns a *ConnectionError.
func (e *Establisher) Connect(ctx context.Context, guildID, channelID string) (*Connection, error) {
	start := time.Now()
	defer func() {
		metrics.VoiceConnectDuration.Observe(time.Since(start).Seconds())
	}()

	var conn *Connection
	lastStage := StageRequest

	err := retrylimit.Do(ctx, retrylimit.Config{
		MaxAttempts: e.cfg.Attempts,
		Delay:       e.cfg.RetryDelay,
		SleepLast:   true,
		OnRetry: func(ctx context.Context, attempt int, err error) {
			log.Printf("[WARN] [Voice] Attempt %d/%d to join %s/%s failed: %v", attempt, e.cfg.Attempts, guildID, channelID, err)
			e.selfMute(ctx, guildID)
		},
	}, func(ctx context.Context, attempt int) error {
		c, err := e.attempt(ctx, guildID, channelID)
		if err != nil {
			var ae *attemptError
			if errors.As(err, &ae) {
				lastStage = ae.stage
				metrics.VoiceAttempts.WithLabelValues(ae.stage.String()).Inc()
			}
			if ctx.Err() != nil {
				return retrylimit.Fatal(ctx.Err())
			}
			return err
		}
		metrics.VoiceAttempts.WithLabelValues("ok").Inc()
		conn = c
		return nil
	})

	if err != nil {
		metrics.VoiceConnects.WithLabelValues("failed").Inc()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("voice connect to %s cancelled: %w", channelID, ctx.Err())
		}
		return nil, &ConnectionError{
			GuildID:   guildID,
			ChannelID: channelID,
			Attempts:  e.cfg.Attempts,
			Stage:     lastStage,
			Err:       err,
		}
	}

	metrics.VoiceConnects.WithLabelValues("ok").Inc()
	log.Printf("[INFO] [Voice] Connected to %s/%s in %v", guildID, channelID, time.Since(start).Round(time.Millisecond))
	return conn, nil
}

// attempt is a single handshake: request, both acks, stream.
func (e *Establisher) attempt(ctx context.Context, guildID, channelID string) (*Connection, error) {
	self := e.gw.SelfID()

	sessW := e.gw.Await(AckSession, func(a Ack) bool {
		return a.GuildID == guildID && a.UserID == self
	})
	defer sessW.Cancel()
	servW := e.gw.Await(AckServer, func(a Ack) bool {
		return a.GuildID == guildID
	})
	defer servW.Cancel()

	req := StateUpdate{GuildID: guildID, ChannelID: channelID, SelfDeaf: true}
	if err := e.gw.PushStateUpdate(ctx, req); err != nil {
		return nil, &attemptError{stage: StageRequest, err: err}
	}

	ackCtx, cancel := context.WithTimeout(ctx, e.cfg.AckTimeout)
	defer cancel()

	sess, err := sessW.Wait(ackCtx)
	if err != nil {
		return nil, &attemptError{stage: StageAck, err: fmt.Errorf("%w: %s ack: %w", ErrNoAck, AckSession, err)}
	}
	serv, err := servW.Wait(ackCtx)
	if err != nil {
		return nil, &attemptError{stage: StageAck, err: fmt.Errorf("%w: %s ack: %w", ErrNoAck, AckServer, err)}
	}

	h := Handshake{
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    self,
		SessionID: sess.SessionID,
		Token:     serv.Token,
		Endpoint:  serv.Endpoint,
	}

	streamCtx, cancelStream := context.WithTimeout(ctx, e.cfg.AckTimeout)
	defer cancelStream()

	stream, err := e.gw.OpenStream(streamCtx, h)
	if err != nil {
		return nil, &attemptError{stage: StageStream, err: err}
	}
	return newConnection(h, stream), nil
}

// selfMute parks a half-open session so it does not linger in the channel.
func (e *Establisher) selfMute(ctx context.Context, guildID string) {
	if err := e.gw.PushStateUpdate(ctx, StateUpdate{GuildID: guildID, SelfMute: true}); err != nil {
		log.Printf("[WARN] [Voice] Self-mute of pending session in %s failed: %v", guildID, err)
	}
}
