// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// PackedUint128 packs two unsigned 128-bit magnitudes into one 256-bit word:
// X in the low 128 bits, Y in the high 128 bits. The bin engine passes
// (amountX, amountY) pairs through it so both lanes travel and compare as a
// single value. Lane overflow and underflow are always errors, never wraps.
type PackedUint128 struct {
	word uint256.Int
}

// Packed math errors. Overflow and underflow are reported distinctly.
var (
	ErrPackedOverflow  = errors.New("packed uint128 lane overflow")
	ErrPackedUnderflow = errors.New("packed uint128 lane underflow")
)

var maxLane = func() *uint256.Int {
	one := uint256.NewInt(1)
	max := new(uint256.Int).Lsh(one, 128)
	return max.SubUint64(max, 1)
}()

// PackUint128 encodes two 128-bit lanes. Either lane exceeding 2^128-1 is an
// encoding overflow.
func PackUint128(x, y *uint256.Int) (PackedUint128, error) {
	if x.Gt(maxLane) || y.Gt(maxLane) {
		return PackedUint128{}, ErrPackedOverflow
	}
	var p PackedUint128
	hi := new(uint256.Int).Lsh(y, 128)
	p.word.Or(hi, x)
	return p, nil
}

// PackUint64 is a convenience constructor for small test amounts.
func PackUint64(x, y uint64) PackedUint128 {
	p, _ := PackUint128(uint256.NewInt(x), uint256.NewInt(y))
	return p
}

// X returns the low lane.
func (p PackedUint128) X() *uint256.Int {
	return new(uint256.Int).And(&p.word, maxLane)
}

// Y returns the high lane.
func (p PackedUint128) Y() *uint256.Int {
	return new(uint256.Int).Rsh(&p.word, 128)
}

// Decode returns both lanes.
func (p PackedUint128) Decode() (x, y *uint256.Int) {
	return p.X(), p.Y()
}

// Amount returns the lane paid out for the swap direction: the Y lane
// when swapForY (Y is the output token), otherwise the X lane.
func (p PackedUint128) Amount(swapForY bool) *uint256.Int {
	if swapForY {
		return p.Y()
	}
	return p.X()
}

// Add returns p + other lane-wise, failing on overflow in either lane.
func (p PackedUint128) Add(other PackedUint128) (PackedUint128, error) {
	x := p.X().Add(p.X(), other.X())
	y := p.Y().Add(p.Y(), other.Y())
	return PackUint128(x, y)
}

// Sub returns p - other lane-wise, failing on underflow in either lane.
func (p PackedUint128) Sub(other PackedUint128) (PackedUint128, error) {
	px, py := p.Decode()
	ox, oy := other.Decode()
	if px.Lt(ox) || py.Lt(oy) {
		return PackedUint128{}, ErrPackedUnderflow
	}
	return PackUint128(px.Sub(px, ox), py.Sub(py, oy))
}

// IsZero reports whether both lanes are zero in one word comparison.
func (p PackedUint128) IsZero() bool {
	return p.word.IsZero()
}

// AnyGt reports whether either lane of p exceeds the matching lane of other.
func (p PackedUint128) AnyGt(other PackedUint128) bool {
	return p.X().Gt(other.X()) || p.Y().Gt(other.Y())
}

// Eq reports lane-wise equality via the packed word.
func (p PackedUint128) Eq(other PackedUint128) bool {
	return p.word.Eq(&other.word)
}

// Delta converts the packed amounts into a signed balance delta with both
// lanes carrying the given sign (+1 = owed to the pool, -1 = owed out).
func (p PackedUint128) Delta(sign int) BalanceDelta {
	x, y := p.Decode()
	d := BalanceDelta{Amount0: x.ToBig(), Amount1: y.ToBig()}
	if sign < 0 {
		return d.Negate()
	}
	return d
}

// BigX returns the low lane as big.Int, for ledger reporting.
func (p PackedUint128) BigX() *big.Int { return p.X().ToBig() }

// BigY returns the high lane as big.Int.
func (p PackedUint128) BigY() *big.Int { return p.Y().ToBig() }
