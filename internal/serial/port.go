package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port is the byte stream of an SLCAN adapter.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens an adapter at 8N1. With a non-zero readTimeout, reads that see no
// data return io.EOF, which Link reports as ErrReadTimeout.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	return serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: readTimeout,
	})
}
