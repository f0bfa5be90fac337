// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cl

import (
	"errors"
	"math/bits"

	"github.com/holiman/uint256"
)

// TickBitmap tracks which ticks carry net liquidity. Ticks are first
// compressed by the pool's tick spacing, then addressed as one bit in a
// 256-bit word keyed by the compressed tick's high bits.
type TickBitmap map[int16]*uint256.Int

// ErrTickMisaligned is returned when a tick is not a multiple of the
// pool's tick spacing.
var ErrTickMisaligned = errors.New("tick not aligned to tick spacing")

// NewTickBitmap creates an empty bitmap.
func NewTickBitmap() TickBitmap {
	return make(TickBitmap)
}

// Clone deep-copies the bitmap.
func (b TickBitmap) Clone() TickBitmap {
	c := make(TickBitmap, len(b))
	for pos, word := range b {
		c[pos] = new(uint256.Int).Set(word)
	}
	return c
}

func tickPosition(compressed int32) (int16, uint8) {
	return int16(compressed >> 8), uint8(compressed & 0xff)
}

func compress(tick, spacing int32) int32 {
	c := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		c--
	}
	return c
}

// FlipTick toggles the initialized state of a tick.
func (b TickBitmap) FlipTick(tick, spacing int32) error {
	if tick%spacing != 0 {
		return ErrTickMisaligned
	}
	wordPos, bitPos := tickPosition(tick / spacing)
	word, ok := b[wordPos]
	if !ok {
		word = new(uint256.Int)
		b[wordPos] = word
	}
	word[bitPos>>6] ^= 1 << (bitPos & 63)
	if word.IsZero() {
		delete(b, wordPos)
	}
	return nil
}

// IsInitialized reports whether a tick is set.
func (b TickBitmap) IsInitialized(tick, spacing int32) bool {
	if tick%spacing != 0 {
		return false
	}
	wordPos, bitPos := tickPosition(tick / spacing)
	word, ok := b[wordPos]
	return ok && word[bitPos>>6]&(1<<(bitPos&63)) != 0
}

// NextInitializedTickWithinOneWord finds the next initialized tick in
// the same 256-bit word as tick, searching toward lower ticks when lte
// is set and toward strictly higher ticks otherwise. When the word holds
// no initialized tick in that direction the word boundary is returned
// with initialized false, so the swap loop can step one word at a time.
func (b TickBitmap) NextInitializedTickWithinOneWord(tick, spacing int32, lte bool) (int32, bool) {
	compressed := compress(tick, spacing)

	if lte {
		wordPos, bitPos := tickPosition(compressed)
		// Bits at or below the current position.
		mask := maskUpTo(bitPos)
		masked := new(uint256.Int)
		if word, ok := b[wordPos]; ok {
			masked.And(word, mask)
		}
		if !masked.IsZero() {
			high := msb256(masked)
			return (compressed - int32(bitPos-high)) * spacing, true
		}
		return (compressed - int32(bitPos)) * spacing, false
	}

	wordPos, bitPos := tickPosition(compressed + 1)
	// Bits at or above the next position.
	mask := new(uint256.Int).Not(maskBelow(bitPos))
	masked := new(uint256.Int)
	if word, ok := b[wordPos]; ok {
		masked.And(word, mask)
	}
	if !masked.IsZero() {
		low := lsb256(masked)
		return (compressed + 1 + int32(low-bitPos)) * spacing, true
	}
	return (compressed + 1 + int32(255-bitPos)) * spacing, false
}

// maskUpTo returns a mask of bits [0, bit].
func maskUpTo(bit uint8) *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit)+1)
	return m.SubUint64(m, 1)
}

// maskBelow returns a mask of bits [0, bit).
func maskBelow(bit uint8) *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	return m.SubUint64(m, 1)
}

func msb256(w *uint256.Int) uint8 {
	for i := 3; i >= 0; i-- {
		if w[i] != 0 {
			return uint8(i*64 + 63 - bits.LeadingZeros64(w[i]))
		}
	}
	return 0
}

func lsb256(w *uint256.Int) uint8 {
	for i := 0; i < 4; i++ {
		if w[i] != 0 {
			return uint8(i*64 + bits.TrailingZeros64(w[i]))
		}
	}
	return 0
}
