// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fullmath provides full-precision multiply-divide on 256-bit words
// with explicit rounding direction. Intermediates go through math/big so the
// 512-bit product is exact; results come back as uint256 words with overflow
// reported, never truncated.
package fullmath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Fixed-point constants.
var (
	Q96  = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	BigQ96  = new(big.Int).Lsh(big.NewInt(1), 96)
	BigQ128 = new(big.Int).Lsh(big.NewInt(1), 128)
)

var (
	ErrDivisionByZero  = errors.New("division by zero")
	ErrMulDivOverflow  = errors.New("muldiv result exceeds 256 bits")
	ErrUint128Overflow = errors.New("value exceeds 128 bits")
	ErrInt128Overflow  = errors.New("value exceeds signed 128 bits")
)

// MulDiv returns floor(a*b/denominator) with a full 512-bit intermediate.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	p := new(big.Int).Mul(a.ToBig(), b.ToBig())
	p.Quo(p, denominator.ToBig())
	return fromBig(p)
}

// MulDivRoundingUp returns ceil(a*b/denominator).
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	p := new(big.Int).Mul(a.ToBig(), b.ToBig())
	d := denominator.ToBig()
	q, r := new(big.Int).QuoRem(p, d, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return fromBig(q)
}

// DivRoundingUp returns ceil(a/b).
func DivRoundingUp(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	q := new(uint256.Int).Div(a, b)
	r := new(uint256.Int).Mod(a, b)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}

// MulShr returns floor((a*b) >> shift).
func MulShr(a, b *uint256.Int, shift uint) (*uint256.Int, error) {
	p := new(big.Int).Mul(a.ToBig(), b.ToBig())
	p.Rsh(p, shift)
	return fromBig(p)
}

// MulShrRoundingUp returns ceil((a*b) >> shift).
func MulShrRoundingUp(a, b *uint256.Int, shift uint) (*uint256.Int, error) {
	p := new(big.Int).Mul(a.ToBig(), b.ToBig())
	q := new(big.Int).Rsh(p, shift)
	rem := new(big.Int).And(p, roundMask(shift))
	if rem.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return fromBig(q)
}

// ShlDiv returns floor((a << shift) / b).
func ShlDiv(a *uint256.Int, shift uint, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	p := new(big.Int).Lsh(a.ToBig(), shift)
	p.Quo(p, b.ToBig())
	return fromBig(p)
}

// ShlDivRoundingUp returns ceil((a << shift) / b).
func ShlDivRoundingUp(a *uint256.Int, shift uint, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	p := new(big.Int).Lsh(a.ToBig(), shift)
	q, r := new(big.Int).QuoRem(p, b.ToBig(), new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return fromBig(q)
}

// ToUint128 validates that x fits in 128 bits.
func ToUint128(x *uint256.Int) error {
	if x.BitLen() > 128 {
		return ErrUint128Overflow
	}
	return nil
}

// ToInt128 validates that a signed value fits in 128 bits.
// The asymmetric bound admits -2^127 but not 2^127.
func ToInt128(x *big.Int) error {
	if x.BitLen() > 127 {
		if x.Sign() < 0 && x.BitLen() == 128 && x.TrailingZeroBits() == 127 {
			return nil
		}
		return ErrInt128Overflow
	}
	return nil
}

func fromBig(x *big.Int) (*uint256.Int, error) {
	z, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrMulDivOverflow
	}
	return z, nil
}

func roundMask(shift uint) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), shift)
	return m.Sub(m, big.NewInt(1))
}
