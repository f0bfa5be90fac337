// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cl implements the concentrated-liquidity pool engine: tick
// accounting, Q64.96 price math, the swap step loop and the pool manager
// facade over it.
package cl

import (
	"errors"

	"github.com/holiman/uint256"
)

// Tick bounds. sqrt(1.0001^887272) * 2^96 is the largest price
// representable in 160 bits, which pins the usable tick range.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272

	MaxTickSpacing int32 = 32767
	MinTickSpacing int32 = 1
)

// Price bounds corresponding to MinTick and MaxTick.
var (
	MinSqrtRatio = uint256.NewInt(4295128739)
	MaxSqrtRatio = uint256.MustFromHex("0xfffd8963efd1fc6a506488495d951d5263988d26")
)

var (
	ErrInvalidTick      = errors.New("tick outside valid range")
	ErrInvalidSqrtRatio = errors.New("sqrt ratio outside valid range")
)

// sqrtRatioMultipliers[i] is sqrt(1.0001)^(-2^i) in Q128.128, applied
// when bit i of the absolute tick is set.
var sqrtRatioMultipliers = [20]*uint256.Int{
	uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
}

var maxUint256 = new(uint256.Int).Not(uint256.NewInt(0))

// GetSqrtRatioAtTick computes sqrt(1.0001^tick) * 2^96.
func GetSqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}
	if absTick > MaxTick {
		return nil, ErrInvalidTick
	}

	// Square-and-multiply over the Q128.128 multiplier ladder.
	ratio := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	if absTick&1 != 0 {
		ratio.Set(sqrtRatioMultipliers[0])
	}
	for i := 1; i < len(sqrtRatioMultipliers); i++ {
		if absTick&(1<<uint(i)) != 0 {
			mulShift128(ratio, sqrtRatioMultipliers[i])
		}
	}
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128.128 to Q64.96, rounding up so that the round trip through
	// GetTickAtSqrtRatio maps back onto the same tick.
	sqrtPriceX96 := new(uint256.Int).Rsh(ratio, 32)
	var rem uint256.Int
	rem.And(ratio, uint256.NewInt(0xffffffff))
	if !rem.IsZero() {
		sqrtPriceX96.AddUint64(sqrtPriceX96, 1)
	}
	return sqrtPriceX96, nil
}

var twoPow128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// mulShift128 sets a = a * b >> 128 using a 512-bit intermediate.
// The ladder keeps a below 2^129 so the quotient always fits.
func mulShift128(a, b *uint256.Int) {
	a.MulDivOverflow(a, b, twoPow128)
}

// GetTickAtSqrtRatio returns the greatest tick whose sqrt ratio is at
// most sqrtPriceX96.
func GetTickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, error) {
	if sqrtPriceX96.Lt(MinSqrtRatio) || !sqrtPriceX96.Lt(MaxSqrtRatio) {
		return 0, ErrInvalidSqrtRatio
	}

	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ratio, err := GetSqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Gt(sqrtPriceX96) {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	return lo, nil
}
