// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cl

import (
	"errors"

	"math/big"

	"github.com/holiman/uint256"

	"github.com/luxfi/amm/fullmath"
)

var ErrPositionEmpty = errors.New("cannot update empty position with zero delta")

// Position is one owner's liquidity over a tick range.
type Position struct {
	Liquidity *uint256.Int

	// Snapshots of fee growth inside the range at last settlement.
	FeeGrowthInside0LastX128 *uint256.Int
	FeeGrowthInside1LastX128 *uint256.Int
}

// Positions holds all positions of one pool, keyed by the position hash
// of (owner, tickLower, tickUpper, salt).
type Positions map[[32]byte]*Position

// Update applies a liquidity delta to a position and settles the fees
// accrued since the previous snapshot. Fees round down; the dust stays
// with the pool.
func (ps Positions) Update(
	key [32]byte,
	liquidityDelta *big.Int,
	feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int,
) (feesOwed0, feesOwed1 *uint256.Int, err error) {
	pos, ok := ps[key]
	if !ok {
		if liquidityDelta.Sign() == 0 {
			return nil, nil, ErrPositionEmpty
		}
		pos = &Position{
			Liquidity:                new(uint256.Int),
			FeeGrowthInside0LastX128: new(uint256.Int),
			FeeGrowthInside1LastX128: new(uint256.Int),
		}
		ps[key] = pos
	}
	if liquidityDelta.Sign() == 0 && pos.Liquidity.IsZero() {
		return nil, nil, ErrPositionEmpty
	}

	// Wrapping difference of the growth snapshots, then scaled by the
	// position's liquidity before the delta applies.
	var growth0, growth1 uint256.Int
	growth0.Sub(feeGrowthInside0X128, pos.FeeGrowthInside0LastX128)
	growth1.Sub(feeGrowthInside1X128, pos.FeeGrowthInside1LastX128)

	feesOwed0, err = fullmath.MulShr(&growth0, pos.Liquidity, 128)
	if err != nil {
		return nil, nil, err
	}
	feesOwed1, err = fullmath.MulShr(&growth1, pos.Liquidity, 128)
	if err != nil {
		return nil, nil, err
	}

	newLiquidity, err := addDelta(pos.Liquidity, liquidityDelta)
	if err != nil {
		return nil, nil, err
	}
	pos.Liquidity = newLiquidity
	pos.FeeGrowthInside0LastX128.Set(feeGrowthInside0X128)
	pos.FeeGrowthInside1LastX128.Set(feeGrowthInside1X128)

	if pos.Liquidity.IsZero() {
		delete(ps, key)
	}
	return feesOwed0, feesOwed1, nil
}

// Get returns a copy of the position state, if present.
func (ps Positions) Get(key [32]byte) (Position, bool) {
	pos, ok := ps[key]
	if !ok {
		return Position{}, false
	}
	return Position{
		Liquidity:                new(uint256.Int).Set(pos.Liquidity),
		FeeGrowthInside0LastX128: new(uint256.Int).Set(pos.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: new(uint256.Int).Set(pos.FeeGrowthInside1LastX128),
	}, true
}
