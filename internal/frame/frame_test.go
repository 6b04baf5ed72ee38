package frame

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"

	"github.com/kstaniek/go-mcmcan/internal/can"
)

func TestIDRoundTrip(t *testing.T) {
	ids := []can.ID{
		can.StandardID(0), can.StandardID(0x123), can.StandardID(0x7FF),
		can.ExtendedID(0), can.ExtendedID(0x1234567), can.ExtendedID(0x1FFFFFFF),
	}
	for _, id := range ids {
		var f Tx[Data8]
		f.SetID(id)
		if got := f.ID(); got != id {
			t.Fatalf("round trip %s -> %s", id, got)
		}
	}
}

func TestStandardIDPacking(t *testing.T) {
	var f Tx[Data8]
	f.SetID(can.ExtendedID(0x1ABCDEF))
	f.SetID(can.StandardID(0x7FF))
	if f.t0 != 0x7FF<<18 {
		t.Fatalf("t0 = 0x%08X", f.t0)
	}
	f.SetID(can.ExtendedID(0x1FFFFFFF))
	if f.t0 != 0x1FFFFFFF|1<<XTDBit {
		t.Fatalf("t0 = 0x%08X", f.t0)
	}
}

func TestSetDataRoundTrip(t *testing.T) {
	var f Tx[Data16]
	for n := 0; n <= 8; n++ {
		in := make([]byte, n)
		for i := range in {
			in[i] = byte(0xA0 + i)
		}
		if err := f.SetData(in); err != nil {
			t.Fatalf("SetData(%d): %v", n, err)
		}
		if got := f.Data(); !bytes.Equal(got, in) {
			t.Fatalf("Data() = % X want % X", got, in)
		}
		if f.DLC() != uint8(n) {
			t.Fatalf("DLC = %d want %d", f.DLC(), n)
		}
	}
}

func TestSetDataTooLarge(t *testing.T) {
	var f Tx[Data64]
	if err := f.SetData(make([]byte, 9)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := NewTx[Data8](can.StandardID(1), make([]byte, 12)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("NewTx: expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDataHidesTrailingBytes(t *testing.T) {
	var f Tx[Data8]
	_ = f.SetData([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	_ = f.SetData([]byte{9})
	if got := f.Data(); len(got) != 1 || got[0] != 9 {
		t.Fatalf("Data() = % X", got)
	}
}

func TestTxControlFields(t *testing.T) {
	f, err := NewTx[Data8](can.ExtendedID(0x18FF50E5), []byte{0xDE, 0xAD})
	if err != nil {
		t.Fatal(err)
	}
	f.SetMarker(0xA5)
	f.SetEventFIFO(true)
	f.SetRemote(true)
	if f.Marker() != 0xA5 || !f.EventFIFO() || !f.Remote() || f.BitrateSwitch() || f.FDFormat() {
		t.Fatalf("control fields: t0=0x%08X t1=0x%08X", f.t0, f.t1)
	}
	if f.DLC() != 2 {
		t.Fatalf("marker write clobbered DLC: %d", f.DLC())
	}
}

func TestRxAccessors(t *testing.T) {
	f := Rx[Data8]{
		r0: 0x123<<StandardShift | 1<<ESIBit,
		r1: 0xBEEF | 3<<DLCPos | 5<<FIDXPos | 1<<ANMFBit,
	}
	copy(f.data[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if f.ID() != can.StandardID(0x123) {
		t.Fatalf("ID = %s", f.ID())
	}
	if !bytes.Equal(f.Data(), []byte{1, 2, 3}) {
		t.Fatalf("Data = % X", f.Data())
	}
	if f.Timestamp() != 0xBEEF || f.FilterIndex() != 5 || !f.AcceptedNonMatching() || !f.ErrorPassive() {
		t.Fatalf("metadata mismatch: %s", f.String())
	}
	// DLC codes above 8 expose at most 8 bytes
	f.r1 = 15 << DLCPos
	if len(f.Data()) != 8 {
		t.Fatalf("Data len = %d", len(f.Data()))
	}
}

func TestSizeCodes(t *testing.T) {
	cases := []struct {
		got  SizeCode
		want SizeCode
		size uintptr
	}{
		{CodeOf[Data8](), Size8, unsafe.Sizeof(Tx[Data8]{})},
		{CodeOf[Data12](), Size12, unsafe.Sizeof(Tx[Data12]{})},
		{CodeOf[Data24](), Size24, unsafe.Sizeof(Tx[Data24]{})},
		{CodeOf[Data64](), Size64, unsafe.Sizeof(Rx[Data64]{})},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Fatalf("code %d want %d", c.got, c.want)
		}
		if uintptr(c.want.ElementWords()*4) != c.size {
			t.Fatalf("%s element words %d vs Go size %d", c.want, c.want.ElementWords(), c.size)
		}
	}
}
