// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bin

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/amm/fullmath"
)

// GetSwapOut simulates an exact-input swap without touching state. It
// returns the input left unconsumed (nonzero when liquidity runs out),
// the output produced and the total fee taken.
func (p *Pool) GetSwapOut(amountIn *uint256.Int, swapForY bool) (amountInLeft, amountOut, totalFee *uint256.Int, err error) {
	if !p.initialized {
		return nil, nil, nil, ErrPoolNotInitialized
	}
	swapFee := p.swapFee(swapForY)

	remaining := new(uint256.Int).Set(amountIn)
	amountOut = new(uint256.Int)
	totalFee = new(uint256.Int)
	id := p.ActiveId

	for {
		if b, ok := p.Bins[id]; ok {
			reserveOut := b.Reserves.Amount(swapForY)
			if !reserveOut.IsZero() {
				in, out, fee, ferr := p.swapWithinBin(id, reserveOut, remaining, swapFee, swapForY)
				if ferr != nil {
					return nil, nil, nil, ferr
				}
				remaining.Sub(remaining, new(uint256.Int).Add(in, fee))
				amountOut.Add(amountOut, out)
				totalFee.Add(totalFee, fee)
			}
		}
		if remaining.IsZero() {
			break
		}
		var (
			next uint32
			ok   bool
		)
		if swapForY {
			next, ok = p.Tree.FindFirstRight(id)
		} else {
			next, ok = p.Tree.FindFirstLeft(id)
		}
		if !ok {
			break
		}
		id = next
	}
	return remaining, amountOut, totalFee, nil
}

// GetSwapIn simulates an exact-output swap without touching state. It
// returns the gross input required, the output that could not be
// produced (nonzero when liquidity runs out) and the total fee.
func (p *Pool) GetSwapIn(amountOut *uint256.Int, swapForY bool) (amountIn, amountOutLeft, totalFee *uint256.Int, err error) {
	if !p.initialized {
		return nil, nil, nil, ErrPoolNotInitialized
	}
	swapFee := p.swapFee(swapForY)

	remainingOut := new(uint256.Int).Set(amountOut)
	amountIn = new(uint256.Int)
	totalFee = new(uint256.Int)
	id := p.ActiveId

	for {
		if b, ok := p.Bins[id]; ok {
			reserveOut := b.Reserves.Amount(swapForY)
			if !reserveOut.IsZero() {
				out := reserveOut
				if remainingOut.Lt(reserveOut) {
					out = remainingOut
				}
				price, perr := PriceFromId(id, p.BinStep)
				if perr != nil {
					return nil, nil, nil, perr
				}
				// Input needed for this output, rounded against the
				// taker.
				var in *uint256.Int
				if swapForY {
					in, err = fullmath.ShlDivRoundingUp(out, 128, price)
				} else {
					in, err = fullmath.MulShrRoundingUp(out, price, 128)
				}
				if err != nil {
					return nil, nil, nil, err
				}
				fee, ferr := FeeAmountFrom(in, swapFee)
				if ferr != nil {
					return nil, nil, nil, ferr
				}
				amountIn.Add(amountIn, new(uint256.Int).Add(in, fee))
				totalFee.Add(totalFee, fee)
				remainingOut = new(uint256.Int).Sub(remainingOut, out)
			}
		}
		if remainingOut.IsZero() {
			break
		}
		var (
			next uint32
			ok   bool
		)
		if swapForY {
			next, ok = p.Tree.FindFirstRight(id)
		} else {
			next, ok = p.Tree.FindFirstLeft(id)
		}
		if !ok {
			break
		}
		id = next
	}
	return amountIn, remainingOut, totalFee, nil
}
