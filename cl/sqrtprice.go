// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cl

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/luxfi/amm/fullmath"
)

var (
	ErrZeroLiquidity   = errors.New("zero liquidity")
	ErrZeroPrice       = errors.New("zero sqrt price")
	ErrPriceOverflow   = errors.New("sqrt price overflow")
	ErrPriceUnderflow  = errors.New("sqrt price underflow")
	ErrAmountTooLarge  = errors.New("amount exceeds available liquidity")
	ErrNotEnoughOutput = errors.New("requested output exceeds reserves")
)

// GetAmount0Delta returns the currency0 amount covered between two sqrt
// prices for the given liquidity:
//
//	amount0 = L * 2^96 * (sqrtB - sqrtA) / (sqrtB * sqrtA)
//
// The caller decides the rounding direction; liquidity changes round up
// (pool's favor), swap outputs round down.
func GetAmount0Delta(sqrtRatioA, sqrtRatioB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioA.Gt(sqrtRatioB) {
		sqrtRatioA, sqrtRatioB = sqrtRatioB, sqrtRatioA
	}
	if sqrtRatioA.IsZero() {
		return nil, ErrZeroPrice
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtRatioB, sqrtRatioA)

	if roundUp {
		intermediate, err := fullmath.MulDivRoundingUp(numerator1, numerator2, sqrtRatioB)
		if err != nil {
			return nil, err
		}
		return fullmath.DivRoundingUp(intermediate, sqrtRatioA)
	}
	intermediate, err := fullmath.MulDiv(numerator1, numerator2, sqrtRatioB)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(intermediate, sqrtRatioA), nil
}

// GetAmount1Delta returns the currency1 amount covered between two sqrt
// prices: amount1 = L * (sqrtB - sqrtA) / 2^96.
func GetAmount1Delta(sqrtRatioA, sqrtRatioB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioA.Gt(sqrtRatioB) {
		sqrtRatioA, sqrtRatioB = sqrtRatioB, sqrtRatioA
	}
	diff := new(uint256.Int).Sub(sqrtRatioB, sqrtRatioA)
	if roundUp {
		return fullmath.MulDivRoundingUp(liquidity, diff, fullmath.Q96)
	}
	return fullmath.MulDiv(liquidity, diff, fullmath.Q96)
}

// GetNextSqrtPriceFromInput returns the price after spending amountIn
// of the input currency, rounding so the pool never undercharges.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrZeroPrice
	}
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput returns the price after sending amountOut
// of the output currency, rounding so the pool never overpays.
func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrZeroPrice
	}
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

func getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtPX96), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, 96)

	var product uint256.Int
	_, overflow := product.MulOverflow(amount, sqrtPX96)

	if add {
		if !overflow {
			denominator := new(uint256.Int).Add(numerator1, &product)
			if !denominator.Lt(numerator1) {
				return fullmath.MulDivRoundingUp(numerator1, sqrtPX96, denominator)
			}
		}
		// L*2^96 + amount*sqrtP overflows; fold sqrtP into the
		// denominator instead.
		denominator := new(uint256.Int).Div(numerator1, sqrtPX96)
		denominator.Add(denominator, amount)
		return fullmath.DivRoundingUp(numerator1, denominator)
	}

	if overflow || !product.Lt(numerator1) {
		return nil, ErrNotEnoughOutput
	}
	denominator := new(uint256.Int).Sub(numerator1, &product)
	next, err := fullmath.MulDivRoundingUp(numerator1, sqrtPX96, denominator)
	if err != nil {
		return nil, ErrPriceOverflow
	}
	return next, nil
}

func getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if add {
		quotient, err := fullmath.ShlDiv(amount, 96, liquidity)
		if err != nil {
			return nil, err
		}
		next := new(uint256.Int)
		if _, overflow := next.AddOverflow(sqrtPX96, quotient); overflow {
			return nil, ErrPriceOverflow
		}
		return next, nil
	}

	quotient, err := fullmath.ShlDivRoundingUp(amount, 96, liquidity)
	if err != nil {
		return nil, err
	}
	if !quotient.Lt(sqrtPX96) {
		return nil, ErrNotEnoughOutput
	}
	return new(uint256.Int).Sub(sqrtPX96, quotient), nil
}
