// Package serial connects the simulated external bus to an SLCAN (Lawicel
// ASCII) adapter on a serial port.
package serial

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
)

// ErrUnsupportedBitrate is returned for rates without an SLCAN Sn code.
var ErrUnsupportedBitrate = errors.New("serial: no slcan code for bitrate")

// maxLine is the longest valid frame line: T + 8 id + dlc + 16 data.
const maxLine = 1 + 8 + 1 + 16

var bitrateCodes = map[uint32]byte{
	10: '0', 20: '1', 50: '2', 100: '3', 125: '4', 250: '5', 500: '6', 800: '7', 1000: '8',
}

type Codec struct{}

// CompactBuffer reclaims consumed prefix capacity when underlying buffer
// grows too large relative to unread bytes. It returns true if compaction
// occurred.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// OpenCommands returns the lines that close the channel, set its bitrate and
// open it again.
func OpenCommands(kbps uint32) ([]byte, error) {
	code, ok := bitrateCodes[kbps]
	if !ok {
		return nil, fmt.Errorf("%w: %d kbit/s", ErrUnsupportedBitrate, kbps)
	}
	return []byte{'C', '\r', 'S', code, '\r', 'O', '\r'}, nil
}

// Encode renders f as one SLCAN line: t/T/r/R, hex id, DLC digit, hex data
// and a carriage return.
func (Codec) Encode(f can.Frame) []byte {
	id := f.ID()
	n := f.Len
	if n > can.MaxDataLen {
		n = can.MaxDataLen
	}
	b := make([]byte, 0, maxLine+1)
	cmd := byte('t')
	if f.Remote() {
		cmd = 'r'
	}
	if id.Extended() {
		cmd -= 'a' - 'A'
		b = append(b, cmd)
		b = append(b, fmt.Sprintf("%08X", id.Value())...)
	} else {
		b = append(b, cmd)
		b = append(b, fmt.Sprintf("%03X", id.Value())...)
	}
	b = append(b, '0'+n)
	if !f.Remote() {
		b = append(b, bytes.ToUpper([]byte(hex.EncodeToString(f.Data[:n])))...)
	}
	return append(b, '\r')
}

// DecodeStream consumes complete lines from in and emits frames via out.
// Acknowledges (z, Z, empty lines) and error bells are skipped; malformed
// lines are counted and dropped. An incomplete trailing line stays in in.
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		if len(data) > 0 && data[0] == '\a' {
			in.Next(1)
			continue
		}
		end := bytes.IndexByte(data, '\r')
		if end < 0 {
			if len(data) > maxLine {
				// no terminator within a frame length: resync on the next one
				metrics.IncMalformed()
				in.Reset()
			}
			return nil
		}
		line := data[:end]
		if f, ok, err := parseLine(line); err != nil {
			metrics.IncMalformed()
		} else if ok {
			out(f)
		}
		in.Next(end + 1)
	}
}

func parseLine(line []byte) (can.Frame, bool, error) {
	var f can.Frame
	if len(line) == 0 {
		return f, false, nil
	}
	idLen := 3
	switch line[0] {
	case 't':
	case 'r':
		f.CANID |= can.CAN_RTR_FLAG
	case 'T':
		idLen = 8
		f.CANID |= can.CAN_EFF_FLAG
	case 'R':
		idLen = 8
		f.CANID |= can.CAN_EFF_FLAG | can.CAN_RTR_FLAG
	case 'z', 'Z':
		return f, false, nil
	default:
		return f, false, fmt.Errorf("unknown command %q", line[0])
	}
	if len(line) < 1+idLen+1 {
		return f, false, errors.New("short line")
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return f, false, err
	}
	limit := uint64(can.CAN_SFF_MASK)
	if idLen == 8 {
		limit = can.CAN_EFF_MASK
	}
	if id > limit {
		return f, false, can.ErrInvalidID
	}
	f.CANID |= uint32(id)
	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return f, false, can.ErrDataTooLong
	}
	f.Len = dlc - '0'
	payload := line[2+idLen:]
	if f.CANID&can.CAN_RTR_FLAG != 0 {
		if len(payload) != 0 {
			return f, false, errors.New("remote frame with data")
		}
		return f, true, nil
	}
	if len(payload) != int(f.Len)*2 {
		return f, false, errors.New("data length does not match dlc")
	}
	if _, err := hex.Decode(f.Data[:f.Len], payload); err != nil {
		return f, false, err
	}
	return f, true, nil
}
