package mcmcan

import (
	"fmt"

	"github.com/kstaniek/go-mcmcan/internal/mmio"
)

// Activity is the node's current bus role (PSR.ACT).
type Activity uint8

const (
	Synchronizing Activity = iota
	Idle
	Receiver
	Transmitter
)

func (a Activity) String() string {
	switch a {
	case Synchronizing:
		return "synchronizing"
	case Idle:
		return "idle"
	case Receiver:
		return "receiver"
	case Transmitter:
		return "transmitter"
	}
	return fmt.Sprintf("activity(%d)", uint8(a))
}

// LastError is the type of the last protocol error (PSR.LEC).
type LastError uint8

const (
	NoError LastError = iota
	StuffError
	FormError
	AckError
	Bit1Error
	Bit0Error
	CRCError
	NoChange
)

var lastErrorNames = [...]string{"none", "stuff", "form", "ack", "bit1", "bit0", "crc", "unchanged"}

func (e LastError) String() string { return lastErrorNames[e&7] }

// ProtocolStatus is the decoded protocol status register.
type ProtocolStatus struct {
	Activity     Activity
	Warning      bool // an error counter reached 96
	ErrorPassive bool
	BusOff       bool
	LastError    LastError
}

// IndicatesError reports whether the node is in warning, error passive or
// bus-off state.
func (p ProtocolStatus) IndicatesError() bool { return p.Warning || p.ErrorPassive || p.BusOff }

// ErrorState is a snapshot of the node's error counters and protocol status.
type ErrorState struct {
	TransmitErrors uint8
	ReceiveErrors  uint8
	Protocol       ProtocolStatus
}

// IndicatesError reports whether the protocol status shows an error condition.
func (e ErrorState) IndicatesError() bool { return e.Protocol.IndicatesError() }

func (e ErrorState) String() string {
	return fmt.Sprintf("tec=%d rec=%d act=%s ew=%t ep=%t bo=%t lec=%s",
		e.TransmitErrors, e.ReceiveErrors, e.Protocol.Activity,
		e.Protocol.Warning, e.Protocol.ErrorPassive, e.Protocol.BusOff, e.Protocol.LastError)
}

// ErrorState reads PSR and ECR once each. Reading PSR clears its last error
// code in hardware.
func (r *Running[T, R]) ErrorState() ErrorState {
	psr := r.c.regs.PSR.Get()
	ecr := r.c.regs.ECR.Get()
	return decodeErrorState(psr, ecr)
}

func decodeErrorState(psr, ecr uint32) ErrorState {
	return ErrorState{
		TransmitErrors: mmio.Field[uint8](ecr, ECR_TEC_POS, ECR_TEC_WIDTH),
		ReceiveErrors:  mmio.Field[uint8](ecr, ECR_REC_POS, ECR_REC_WIDTH),
		Protocol: ProtocolStatus{
			Activity:     mmio.Field[Activity](psr, PSR_ACT_POS, PSR_ACT_WIDTH),
			Warning:      psr&PSR_EW != 0,
			ErrorPassive: psr&PSR_EP != 0,
			BusOff:       psr&PSR_BO != 0,
			LastError:    mmio.Field[LastError](psr, PSR_LEC_POS, PSR_LEC_WIDTH),
		},
	}
}
