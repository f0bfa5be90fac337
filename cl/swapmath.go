// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cl

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/amm/fees"
	"github.com/luxfi/amm/fullmath"
)

// SwapStep is the outcome of advancing the price within one tick range.
type SwapStep struct {
	SqrtRatioNextX96 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

// ComputeSwapStep advances the price from sqrtRatioCurrent toward
// sqrtRatioTarget, bounded by the remaining swap amount. amountRemaining
// is the unsigned remainder; exactIn selects whether it is input or
// output denominated. feePips is the composite swap fee in pips,
// charged on the input side.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *uint256.Int, exactIn bool, feePips uint32) (SwapStep, error) {
	var (
		step       SwapStep
		err        error
		zeroForOne = !sqrtRatioCurrentX96.Lt(sqrtRatioTargetX96)
		feeDenom   = uint256.NewInt(uint64(fees.FeeDenominator))
	)

	if exactIn {
		// Reserve the fee up front, then see how far the remainder
		// can push the price.
		remainderLessFee, ferr := fullmath.MulDiv(
			amountRemaining,
			uint256.NewInt(fees.FeeDenominator-uint64(feePips)),
			feeDenom,
		)
		if ferr != nil {
			return step, ferr
		}
		if zeroForOne {
			step.AmountIn, err = GetAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			step.AmountIn, err = GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if err != nil {
			return step, err
		}
		if !remainderLessFee.Lt(step.AmountIn) {
			step.SqrtRatioNextX96 = new(uint256.Int).Set(sqrtRatioTargetX96)
		} else {
			step.SqrtRatioNextX96, err = GetNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, remainderLessFee, zeroForOne)
			if err != nil {
				return step, err
			}
		}
	} else {
		if zeroForOne {
			step.AmountOut, err = GetAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			step.AmountOut, err = GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		if err != nil {
			return step, err
		}
		if !amountRemaining.Lt(step.AmountOut) {
			step.SqrtRatioNextX96 = new(uint256.Int).Set(sqrtRatioTargetX96)
		} else {
			step.SqrtRatioNextX96, err = GetNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, amountRemaining, zeroForOne)
			if err != nil {
				return step, err
			}
		}
	}

	reachedTarget := sqrtRatioTargetX96.Eq(step.SqrtRatioNextX96)

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			step.AmountIn, err = GetAmount0Delta(step.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return step, err
			}
		}
		if !(reachedTarget && !exactIn) {
			step.AmountOut, err = GetAmount1Delta(step.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
			if err != nil {
				return step, err
			}
		}
	} else {
		if !(reachedTarget && exactIn) {
			step.AmountIn, err = GetAmount1Delta(sqrtRatioCurrentX96, step.SqrtRatioNextX96, liquidity, true)
			if err != nil {
				return step, err
			}
		}
		if !(reachedTarget && !exactIn) {
			step.AmountOut, err = GetAmount0Delta(sqrtRatioCurrentX96, step.SqrtRatioNextX96, liquidity, false)
			if err != nil {
				return step, err
			}
		}
	}

	// Never hand out more than asked for on exact-output swaps.
	if !exactIn && step.AmountOut.Gt(amountRemaining) {
		step.AmountOut = new(uint256.Int).Set(amountRemaining)
	}

	if exactIn && !reachedTarget {
		// Ran out of input inside the range; everything left over is
		// collected as fee.
		step.FeeAmount = new(uint256.Int).Sub(amountRemaining, step.AmountIn)
	} else if uint64(feePips) >= fees.FeeDenominator {
		return step, fees.ErrLPFeeTooLarge
	} else {
		step.FeeAmount, err = fullmath.MulDivRoundingUp(
			step.AmountIn,
			uint256.NewInt(uint64(feePips)),
			uint256.NewInt(fees.FeeDenominator-uint64(feePips)),
		)
		if err != nil {
			return step, err
		}
	}
	return step, nil
}
