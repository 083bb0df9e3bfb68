package voice

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("not connected to voice in this guild")
	ErrNoAck        = errors.New("voice handshake was not acknowledged")
)

// Stage is the step of a handshake attempt that failed.
type Stage int

const (
	StageRequest Stage = iota
	StageAck
	StageStream
)

func (s Stage) String() string {
	switch s {
	case StageRequest:
		return "request"
	case StageAck:
		return "ack"
	case StageStream:
		return "stream"
	}
	return "unknown"
}

// attemptError tags one failed attempt with the stage it failed at.
type attemptError struct {
	stage Stage
	err   error
}

func (e *attemptError) Error() string { return e.stage.String() + ": " + e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

// ConnectionError is returned once every handshake attempt has failed.
type ConnectionError struct {
	GuildID   string
	ChannelID string
	Attempts  int
	Stage     Stage // stage of the last failed attempt
	Err       error
}

func (e *ConnectionError) Error() string {
	if e.Stage == StageStream {
		return fmt.Sprintf("cannot connect to voice channel %s after %d attempts: "+
			"the voice server was assigned but the audio stream never opened, "+
			"outgoing UDP is probably blocked by a firewall", e.ChannelID, e.Attempts)
	}
	return fmt.Sprintf("cannot connect to voice channel %s after %d attempts: "+
		"the gateway did not acknowledge the voice session (%v)", e.ChannelID, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Firewalled reports whether the failure looks like blocked UDP traffic.
func (e *ConnectionError) Firewalled() bool { return e.Stage == StageStream }
