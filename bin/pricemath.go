// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bin implements the liquidity-book pool engine: discrete
// constant-sum bins on a geometric price ladder, share-based positions
// and the bin-walking swap loop.
package bin

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// IdShift is the bin id of price 1.0; ids are unsigned with the
	// real exponent offset by 2^23.
	IdShift uint32 = 1 << 23

	// MaxId is the largest addressable bin id.
	MaxId uint32 = 1<<24 - 1

	// MaxBinStep caps the per-bin price step at 1% (binStep is in
	// hundredths of a basis point of 1e4 scale).
	MaxBinStep uint16 = 100
)

var (
	ErrInvalidBinStep  = errors.New("bin step outside valid range")
	ErrBinPriceRange   = errors.New("bin price outside representable range")
	ErrBinIdOutOfRange = errors.New("bin id outside valid range")
)

var (
	bigOne     = big.NewInt(1)
	bigQ128    = new(big.Int).Lsh(bigOne, 128)
	big2Pow256 = new(big.Int).Lsh(bigOne, 256)
)

// PriceFromId returns the Q128.128 price of a bin:
//
//	price = (1 + binStep/10000)^(id - 2^23)
//
// computed by square-and-multiply in Q128.128. Ids whose price falls
// outside (0, 2^256) are rejected.
func PriceFromId(id uint32, binStep uint16) (*uint256.Int, error) {
	if id > MaxId {
		return nil, ErrBinIdOutOfRange
	}
	if binStep == 0 || binStep > MaxBinStep {
		return nil, ErrInvalidBinStep
	}

	exp := int64(id) - int64(IdShift)
	if exp == 0 {
		return new(uint256.Int).Lsh(uint256.NewInt(1), 128), nil
	}

	// base = (10000 + binStep) << 128 / 10000; negative exponents use
	// the Q128.128 reciprocal so the ladder shrinks instead of
	// overflowing before inversion.
	base := new(big.Int).Lsh(big.NewInt(int64(10000+uint32(binStep))), 128)
	base.Div(base, big.NewInt(10000))
	if exp < 0 {
		exp = -exp
		base.Div(big2Pow256, base)
	}

	result := new(big.Int).Set(bigQ128)
	sq := base
	for e := exp; e > 0; e >>= 1 {
		if e&1 == 1 {
			result.Mul(result, sq)
			result.Rsh(result, 128)
			if result.Sign() == 0 || result.BitLen() > 256 {
				return nil, ErrBinPriceRange
			}
		}
		if e > 1 {
			sq = new(big.Int).Mul(sq, sq)
			sq.Rsh(sq, 128)
			if sq.Sign() == 0 || sq.BitLen() > 256 {
				return nil, ErrBinPriceRange
			}
		}
	}

	price := new(uint256.Int)
	price.SetFromBig(result)
	return price, nil
}

// IdFromPrice returns the greatest bin id whose price does not exceed
// the given Q128.128 price.
func IdFromPrice(price *uint256.Int, binStep uint16) (uint32, error) {
	if binStep == 0 || binStep > MaxBinStep {
		return 0, ErrInvalidBinStep
	}
	if price.IsZero() {
		return 0, ErrBinPriceRange
	}

	lo, hi := uint32(0), MaxId
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		p, err := PriceFromId(mid, binStep)
		if err != nil {
			// Out-of-range price: below IdShift it underflowed (too
			// low), above it overflowed (too high).
			if mid < IdShift {
				lo = mid
			} else {
				hi = mid - 1
			}
			continue
		}
		if p.Gt(price) {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	return lo, nil
}
