//go:build !linux

package socketcan

import (
	"errors"
	"time"

	"github.com/kstaniek/go-mcmcan/internal/can"
)

var errUnsupported = errors.New("socketcan: only available on linux")

type Device struct{}

type Options struct {
	Filters     []Filter
	ReadTimeout time.Duration
}

func Open(string, Options) (*Device, error) { return nil, errUnsupported }
func (*Device) Close() error                { return errUnsupported }
func (*Device) ReadFrame(*can.Frame) error  { return errUnsupported }
func (*Device) WriteFrame(can.Frame) error  { return errUnsupported }
