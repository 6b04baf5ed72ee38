package mmio

import "golang.org/x/exp/constraints"

// Field extracts the width-bit field starting at bit pos of word.
func Field[T constraints.Unsigned](word uint32, pos, width uint) T {
	return T((word >> pos) & (1<<width - 1))
}

// SetField returns word with the width-bit field at pos replaced by v.
// Bits of v above width are discarded.
func SetField[T constraints.Unsigned](word uint32, pos, width uint, v T) uint32 {
	m := uint32(1<<width-1) << pos
	return word&^m | (uint32(v)<<pos)&m
}

// Bit reports whether bit pos of word is set.
func Bit(word uint32, pos uint) bool { return word&(1<<pos) != 0 }

// SetBit returns word with bit pos set to on.
func SetBit(word uint32, pos uint, on bool) uint32 {
	if on {
		return word | 1<<pos
	}
	return word &^ (1 << pos)
}
