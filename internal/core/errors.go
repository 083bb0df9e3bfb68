package core

import (
	"fmt"
	"time"
)

// CommandError is an expected, user-facing failure.
type CommandError struct {
	Message  string
	ExpireIn time.Duration
}

func (e *CommandError) Error() string { return e.Message }

// PermissionsError is a CommandError caused by missing rights.
type PermissionsError struct {
	Message  string
	ExpireIn time.Duration
}

func (e *PermissionsError) Error() string { return "You don't have permission to do that: " + e.Message }

func cmdErr(expire time.Duration, format string, args ...any) *CommandError {
	return &CommandError{Message: fmt.Sprintf(format, args...), ExpireIn: expire}
}

// Signal asks the top-level run loop to restart or exit. It travels as an
// error so any handler can raise it.
type Signal int

const (
	Restart Signal = iota + 1
	Terminate
)

func (s Signal) Error() string {
	switch s {
	case Restart:
		return "restart requested"
	case Terminate:
		return "shutdown requested"
	}
	return "unknown signal"
}
