// Package mmio provides volatile access to memory-mapped peripheral registers
// and to memory shared with bus-master peripherals.
//
// Every access goes through a single 32-bit load or store so the compiler can
// neither elide, merge nor split it. On the host the same types back the
// simulated peripheral, where the accesses double as data-race-free
// synchronization between the driver and the simulator.
package mmio

import "sync/atomic"

// Register32 is a 32-bit memory-mapped register.
type Register32 struct {
	Reg uint32
}

// Get reads the register.
func (r *Register32) Get() uint32 { return atomic.LoadUint32(&r.Reg) }

// Set writes the register.
func (r *Register32) Set(v uint32) { atomic.StoreUint32(&r.Reg, v) }

// SetBits sets the bits in mask with a read-modify-write.
func (r *Register32) SetBits(mask uint32) { r.Set(r.Get() | mask) }

// ClearBits clears the bits in mask with a read-modify-write.
func (r *Register32) ClearBits(mask uint32) { r.Set(r.Get() &^ mask) }

// HasBits reports whether any bit of mask is set.
func (r *Register32) HasBits(mask uint32) bool { return r.Get()&mask != 0 }

// ReplaceBits replaces the field mask<<pos with value.
func (r *Register32) ReplaceBits(value, mask uint32, pos uint8) {
	r.Set(r.Get()&^(mask<<pos) | (value&mask)<<pos)
}

var barrier atomic.Uint32

// Sync orders every preceding register and shared-memory access before any
// subsequent one.
func Sync() { barrier.Add(1) }
