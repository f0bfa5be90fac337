// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cl

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrTickLiquidityOverflow = errors.New("tick liquidity exceeds per-tick maximum")
	ErrTickNotInitialized    = errors.New("tick not initialized")
	ErrLiquidityUnderflow    = errors.New("liquidity underflow")
)

// TickInfo is the state carried by one initialized tick.
type TickInfo struct {
	// LiquidityGross is the total position liquidity referencing this
	// tick, from either side. The tick is initialized iff it is nonzero.
	LiquidityGross *uint256.Int

	// LiquidityNet is added to the pool's active liquidity when the
	// tick is crossed left to right, subtracted right to left.
	LiquidityNet *big.Int

	// Fee growth on the far side of this tick relative to the current
	// tick, per unit of liquidity, Q128. Relative values; they wrap.
	FeeGrowthOutside0X128 *uint256.Int
	FeeGrowthOutside1X128 *uint256.Int
}

// Ticks holds all initialized ticks of one pool.
type Ticks map[int32]*TickInfo

var maxUint128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

// MaxLiquidityPerTick bounds per-tick liquidity so that aggregating
// every usable tick cannot overflow 128 bits.
func MaxLiquidityPerTick(tickSpacing int32) *uint256.Int {
	minUsable := (MinTick / tickSpacing) * tickSpacing
	maxUsable := (MaxTick / tickSpacing) * tickSpacing
	numTicks := uint64((maxUsable-minUsable)/tickSpacing) + 1
	return new(uint256.Int).Div(maxUint128, uint256.NewInt(numTicks))
}

// CheckUpdate verifies a liquidity delta can land on a tick without
// over- or underflowing its gross liquidity. It never mutates.
func (ts Ticks) CheckUpdate(tick int32, liquidityDelta *big.Int, maxLiquidity *uint256.Int) error {
	gross := new(uint256.Int)
	if info, ok := ts[tick]; ok {
		gross.Set(info.LiquidityGross)
	}
	after, err := addDelta(gross, liquidityDelta)
	if err != nil {
		return err
	}
	if after.Gt(maxLiquidity) {
		return ErrTickLiquidityOverflow
	}
	return nil
}

// Update applies a liquidity delta to a tick, initializing it on first
// use. flipped reports whether the tick changed between initialized and
// uninitialized, which drives the bitmap flip.
func (ts Ticks) Update(
	tick, tickCurrent int32,
	liquidityDelta *big.Int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
	upper bool,
	maxLiquidity *uint256.Int,
) (flipped bool, err error) {
	info, ok := ts[tick]
	if !ok {
		info = &TickInfo{
			LiquidityGross:        new(uint256.Int),
			LiquidityNet:          new(big.Int),
			FeeGrowthOutside0X128: new(uint256.Int),
			FeeGrowthOutside1X128: new(uint256.Int),
		}
		ts[tick] = info
	}

	grossBefore := new(uint256.Int).Set(info.LiquidityGross)
	grossAfter, err := addDelta(grossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	if grossAfter.Gt(maxLiquidity) {
		return false, ErrTickLiquidityOverflow
	}

	flipped = grossAfter.IsZero() != grossBefore.IsZero()

	if grossBefore.IsZero() {
		// Convention: all growth before initialization happened below
		// the tick.
		if tick <= tickCurrent {
			info.FeeGrowthOutside0X128.Set(feeGrowthGlobal0X128)
			info.FeeGrowthOutside1X128.Set(feeGrowthGlobal1X128)
		}
	}

	info.LiquidityGross = grossAfter
	if upper {
		info.LiquidityNet.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		info.LiquidityNet.Add(info.LiquidityNet, liquidityDelta)
	}

	if grossAfter.IsZero() {
		delete(ts, tick)
	}
	return flipped, nil
}

// Cross flips the side of a tick as the price moves through it and
// returns the liquidity net to apply.
func (ts Ticks) Cross(tick int32, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int) (*big.Int, error) {
	info, ok := ts[tick]
	if !ok {
		return nil, ErrTickNotInitialized
	}
	info.FeeGrowthOutside0X128.Sub(feeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128.Sub(feeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	return new(big.Int).Set(info.LiquidityNet), nil
}

// FeeGrowthInside computes the fee growth accumulated inside a tick
// range, per unit liquidity. The subtraction wraps; only differences of
// snapshots are meaningful.
func (ts Ticks) FeeGrowthInside(
	tickLower, tickUpper, tickCurrent int32,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
) (inside0, inside1 *uint256.Int) {
	lower := ts.outside(tickLower)
	upper := ts.outside(tickUpper)

	var below0, below1, above0, above1 uint256.Int
	if tickCurrent >= tickLower {
		below0.Set(lower[0])
		below1.Set(lower[1])
	} else {
		below0.Sub(feeGrowthGlobal0X128, lower[0])
		below1.Sub(feeGrowthGlobal1X128, lower[1])
	}
	if tickCurrent < tickUpper {
		above0.Set(upper[0])
		above1.Set(upper[1])
	} else {
		above0.Sub(feeGrowthGlobal0X128, upper[0])
		above1.Sub(feeGrowthGlobal1X128, upper[1])
	}

	inside0 = new(uint256.Int).Sub(feeGrowthGlobal0X128, &below0)
	inside0.Sub(inside0, &above0)
	inside1 = new(uint256.Int).Sub(feeGrowthGlobal1X128, &below1)
	inside1.Sub(inside1, &above1)
	return inside0, inside1
}

func (ts Ticks) outside(tick int32) [2]*uint256.Int {
	if info, ok := ts[tick]; ok {
		return [2]*uint256.Int{info.FeeGrowthOutside0X128, info.FeeGrowthOutside1X128}
	}
	zero := new(uint256.Int)
	return [2]*uint256.Int{zero, zero}
}

// addDelta applies a signed delta to an unsigned 128-bit quantity.
func addDelta(x *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	mag := new(uint256.Int)
	if overflow := mag.SetFromBig(new(big.Int).Abs(delta)); overflow {
		return nil, ErrTickLiquidityOverflow
	}
	z := new(uint256.Int)
	if delta.Sign() < 0 {
		if x.Lt(mag) {
			return nil, ErrLiquidityUnderflow
		}
		return z.Sub(x, mag), nil
	}
	z.Add(x, mag)
	if z.Gt(maxUint128) {
		return nil, ErrTickLiquidityOverflow
	}
	return z, nil
}
