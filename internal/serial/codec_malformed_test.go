package serial

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
)

// TestDecodeStreamMalformed ensures malformed lines increment the metric and
// do not stop decoding.
func TestDecodeStreamMalformed(t *testing.T) {
	lines := []string{
		"x123\r",        // unknown command
		"t12\r",         // short
		"t8001\r00",     // id out of range for standard
		"tG001\r",       // not hex
		"t1239\r",       // dlc 9
		"t1232AA\r",     // data shorter than dlc
		"r1231FF\r",     // remote frame carrying data
		"T2000000000\r", // 29-bit overflow
		"t1231ZZ\r",     // bad data hex
		"t7FF1AB\r",     // valid
	}
	var buf bytes.Buffer
	buf.WriteString(strings.Join(lines, ""))
	before := metrics.Snap().Malformed
	var got []can.Frame
	if err := (Codec{}).DecodeStream(&buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
		t.Fatalf("DecodeStream error: %v", err)
	}
	if len(got) != 1 || got[0].ID() != can.StandardID(0x7FF) || got[0].Data[0] != 0xAB {
		t.Fatalf("got %v", got)
	}
	if d := metrics.Snap().Malformed - before; d < 9 {
		t.Fatalf("malformed delta %d, want >= 9", d)
	}
}

func TestDecodeStreamDropsUnterminatedGarbage(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(strings.Repeat("A", maxLine+1))
	before := metrics.Snap().Malformed
	_ = (Codec{}).DecodeStream(&buf, func(can.Frame) { t.Fatalf("decoded garbage") })
	if buf.Len() != 0 || metrics.Snap().Malformed == before {
		t.Fatalf("garbage kept: len=%d", buf.Len())
	}
	buf.WriteString("t0010\r")
	n := 0
	_ = (Codec{}).DecodeStream(&buf, func(can.Frame) { n++ })
	if n != 1 {
		t.Fatalf("did not resync")
	}
}
