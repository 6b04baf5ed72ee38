// Package transport holds the plumbing shared by the bridge backends.
package transport

import (
	"errors"

	"github.com/kstaniek/go-mcmcan/internal/can"
)

// FrameSink is a CAN frame transmission target.
type FrameSink interface {
	SendFrame(can.Frame) error
}

// FrameSource is a blocking CAN frame reader.
type FrameSource interface {
	ReadFrame(*can.Frame) error
}

// Backend is an external bus: frames read from it go onto the simulated bus
// and frames sent on the simulated bus are written to it.
type Backend interface {
	FrameSource
	FrameSink
	Close() error
}

// IsTimeout reports whether err is a read timeout, after which the read can be
// retried.
func IsTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
