package can

import (
	"errors"
	"testing"
)

func TestIDValidate(t *testing.T) {
	cases := []struct {
		id  ID
		err error
	}{
		{StandardID(0x7FF), nil},
		{StandardID(0x800), ErrInvalidID},
		{ExtendedID(0x1FFFFFFF), nil},
		{ExtendedID(0x20000000), ErrInvalidID},
	}
	for _, c := range cases {
		if err := c.id.Validate(); !errors.Is(err, c.err) {
			t.Errorf("%s: err=%v want %v", c.id, err, c.err)
		}
	}
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(ExtendedID(0x123456), []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if f.CANID != 0x123456|CAN_EFF_FLAG || f.Len != 3 {
		t.Fatalf("frame %+v", f)
	}
	if f.ID() != ExtendedID(0x123456) || f.Remote() {
		t.Fatalf("id %s remote %t", f.ID(), f.Remote())
	}
	if _, err := NewFrame(StandardID(1), make([]byte, 9)); !errors.Is(err, ErrDataTooLong) {
		t.Fatalf("9 bytes: %v", err)
	}
	if _, err := NewFrame(StandardID(0xFFF), nil); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("bad id: %v", err)
	}
}

func TestPayloadClampsLength(t *testing.T) {
	f := Frame{Len: 12, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	if len(f.Payload()) != 8 {
		t.Fatalf("payload len %d", len(f.Payload()))
	}
	if !errors.Is(f.Validate(), ErrDataTooLong) {
		t.Fatalf("validate accepted len 12")
	}
}

func TestFrameValidate(t *testing.T) {
	if err := (Frame{CANID: CAN_ERR_FLAG}).Validate(); !errors.Is(err, ErrNotDataFrame) {
		t.Fatalf("error frame: %v", err)
	}
	if err := (Frame{CANID: 0x800}).Validate(); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("wide standard id: %v", err)
	}
	if err := (Frame{CANID: 0x7FF | CAN_RTR_FLAG}).Validate(); err != nil {
		t.Fatalf("remote frame: %v", err)
	}
}

func TestIDString(t *testing.T) {
	if s := StandardID(0x12).String(); s != "Standard(0x012)" {
		t.Fatalf("got %q", s)
	}
	if s := ExtendedID(0x12).String(); s != "Extended(0x00000012)" {
		t.Fatalf("got %q", s)
	}
}
