// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bin

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/luxfi/amm/fees"
	"github.com/luxfi/amm/fullmath"
)

var (
	ErrLiquidityOverflow = errors.New("bin liquidity exceeds 256 bits")
	ErrShareUnderflow    = errors.New("minted shares below minimum")
)

// MinShare is deducted from the first mint into an empty bin and kept
// by the pool, so no one can own all shares of a bin and inflate the
// share price against later minters.
var MinShare = uint256.NewInt(1024)

// GetAmountOut converts an input amount through the bin price.
// swapForY trades X in for Y out: out = price * in >> 128, rounded
// down so the pool keeps the dust.
func GetAmountOut(amountIn, price *uint256.Int, swapForY bool) (*uint256.Int, error) {
	if swapForY {
		return fullmath.MulShr(amountIn, price, 128)
	}
	return fullmath.ShlDiv(amountIn, 128, price)
}

// GetMaxAmountIn returns the input needed to drain binReserveOut,
// rounded up so the bin is left truly empty when paid.
func GetMaxAmountIn(binReserveOut, price *uint256.Int, swapForY bool) (*uint256.Int, error) {
	if swapForY {
		return fullmath.ShlDivRoundingUp(binReserveOut, 128, price)
	}
	return fullmath.MulShrRoundingUp(binReserveOut, price, 128)
}

// FeeAmount is the fee taken from a gross input amount:
// ceil(amount * fee / 1e6).
func FeeAmount(amount *uint256.Int, feePips uint32) (*uint256.Int, error) {
	return fullmath.MulDivRoundingUp(amount,
		uint256.NewInt(uint64(feePips)),
		uint256.NewInt(uint64(fees.FeeDenominator)))
}

// FeeAmountFrom is the fee owed on top of a net amount:
// ceil(amount * fee / (1e6 - fee)).
func FeeAmountFrom(netAmount *uint256.Int, feePips uint32) (*uint256.Int, error) {
	return fullmath.MulDivRoundingUp(netAmount,
		uint256.NewInt(uint64(feePips)),
		uint256.NewInt(fees.FeeDenominator-uint64(feePips)))
}

// CompositionFee is the fee charged on the over-supplied side of an
// off-ratio deposit into the active bin. The implicit swap pays the
// fee on both legs, hence the (fee + 1e6) factor:
//
//	ceil(amount * fee * (fee + 1e6) / 1e12)
func CompositionFee(amount *uint256.Int, feePips uint32) (*uint256.Int, error) {
	denom := uint64(fees.FeeDenominator)
	scaled := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(feePips)))
	return fullmath.MulDivRoundingUp(scaled,
		uint256.NewInt(uint64(feePips)+denom),
		uint256.NewInt(denom*denom))
}

// Liquidity values a bin holding (x, y) at a Q128.128 price. The Y
// side is shifted up so both sides carry full precision:
// L = price*x + (y << 128).
func Liquidity(price, x, y *uint256.Int) (*uint256.Int, error) {
	var px uint256.Int
	if _, overflow := px.MulOverflow(price, x); overflow {
		return nil, ErrLiquidityOverflow
	}
	var ys uint256.Int
	ys.Lsh(y, 128)
	if new(uint256.Int).Rsh(&ys, 128).Cmp(y) != 0 {
		return nil, ErrLiquidityOverflow
	}
	l := new(uint256.Int)
	if _, overflow := l.AddOverflow(&px, &ys); overflow {
		return nil, ErrLiquidityOverflow
	}
	return l, nil
}

// SharesForLiquidity converts contributed liquidity into bin shares,
// pro rata against the bin's existing liquidity, rounded down.
func SharesForLiquidity(userLiquidity, binLiquidity, totalShares *uint256.Int) (*uint256.Int, error) {
	if totalShares.IsZero() || binLiquidity.IsZero() {
		return new(uint256.Int).Set(userLiquidity), nil
	}
	return fullmath.MulDiv(userLiquidity, totalShares, binLiquidity)
}

// AmountsForShares returns the pro-rata claim of shares on the bin
// reserves, rounded down.
func AmountsForShares(shares, totalShares, reserveX, reserveY *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if totalShares.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	x, err := fullmath.MulDiv(reserveX, shares, totalShares)
	if err != nil {
		return nil, nil, err
	}
	y, err := fullmath.MulDiv(reserveY, shares, totalShares)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}
