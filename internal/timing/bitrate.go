// Package timing maps nominal CAN bus speeds to M_CAN bit timing fields.
package timing

import (
	"errors"
	"fmt"
	"sort"
)

// ReferenceClock is the CAN kernel clock the table is computed for.
const ReferenceClock = 80_000_000

var (
	ErrUnsupportedBitrate = errors.New("timing: unsupported bitrate")
	ErrInvalidBitTiming   = errors.New("timing: field outside register range")
)

// Bitrate holds nominal bit timing in logical units (not the n-1 register form).
type Bitrate struct {
	SyncJumpWidth uint8
	Prescaler     uint16
	TSeg1         uint8
	TSeg2         uint8
}

var table = map[uint32]Bitrate{
	500: {SyncJumpWidth: 1, Prescaler: 10, TSeg1: 13, TSeg2: 2},
	50:  {SyncJumpWidth: 1, Prescaler: 200, TSeg1: 6, TSeg2: 1},
}

// FromFrequency returns the timing for a bus speed in kbit/s.
func FromFrequency(kbps uint32) (Bitrate, error) {
	b, ok := table[kbps]
	if !ok {
		return Bitrate{}, fmt.Errorf("%w: %d kbit/s", ErrUnsupportedBitrate, kbps)
	}
	return b, nil
}

// Supported lists the bus speeds known to FromFrequency, ascending.
func Supported() []uint32 {
	out := make([]uint32, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Quanta returns the number of time quanta per bit, sync segment included.
func (b Bitrate) Quanta() int { return 1 + int(b.TSeg1) + int(b.TSeg2) }

// Frequency returns the resulting bit rate in bit/s for kernel clock clockHz.
func (b Bitrate) Frequency(clockHz uint32) float64 {
	if b.Prescaler == 0 {
		return 0
	}
	return float64(clockHz) / float64(b.Prescaler) / float64(b.Quanta())
}

// SamplePoint returns the sample point as a fraction of the bit time.
func (b Bitrate) SamplePoint() float64 {
	return float64(1+int(b.TSeg1)) / float64(b.Quanta())
}

// Validate checks every field fits its NBTP register field.
func (b Bitrate) Validate() error {
	switch {
	case b.SyncJumpWidth < 1 || b.SyncJumpWidth > 128:
		return fmt.Errorf("%w: sjw %d", ErrInvalidBitTiming, b.SyncJumpWidth)
	case b.Prescaler < 1 || b.Prescaler > 512:
		return fmt.Errorf("%w: prescaler %d", ErrInvalidBitTiming, b.Prescaler)
	case b.TSeg1 < 2:
		return fmt.Errorf("%w: tseg1 %d", ErrInvalidBitTiming, b.TSeg1)
	case b.TSeg2 < 1 || b.TSeg2 > 128:
		return fmt.Errorf("%w: tseg2 %d", ErrInvalidBitTiming, b.TSeg2)
	}
	return nil
}

func (b Bitrate) String() string {
	return fmt.Sprintf("%.0f bit/s (sjw=%d brp=%d tseg1=%d tseg2=%d, sample point %.1f%%)",
		b.Frequency(ReferenceClock), b.SyncJumpWidth, b.Prescaler, b.TSeg1, b.TSeg2, b.SamplePoint()*100)
}
