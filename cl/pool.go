// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cl

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/amm/fees"
	"github.com/luxfi/amm/fullmath"
	"github.com/luxfi/amm/types"
)

var (
	ErrTicksMisordered          = errors.New("tickLower must be below tickUpper")
	ErrTickOutOfRange           = errors.New("tick outside usable range")
	ErrPriceLimitOutOfRange     = errors.New("price limit outside valid range")
	ErrPriceLimitAlreadyReached = errors.New("price limit on the wrong side of the current price")
	ErrNoLiquidityToReceiveFees = errors.New("no in-range liquidity to receive fees")
	ErrPoolAlreadyInitialized   = errors.New("pool already initialized")
	ErrPoolNotInitialized       = errors.New("pool not initialized")
)

// Slot0 is the pool's hot state.
type Slot0 struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
	ProtocolFee  fees.ProtocolFee
	LPFee        uint32
}

// Pool is one concentrated-liquidity pool's full state.
type Pool struct {
	Slot0

	FeeGrowthGlobal0X128 *uint256.Int
	FeeGrowthGlobal1X128 *uint256.Int

	// Liquidity currently in range.
	Liquidity *uint256.Int

	Ticks     Ticks
	Bitmap    TickBitmap
	Positions Positions

	// Protocol fees accrued and not yet collected, denominated in the
	// swap's input currency.
	ProtocolFeesAccrued0 *uint256.Int
	ProtocolFeesAccrued1 *uint256.Int

	TickSpacing int32

	maxLiquidityPerTick *uint256.Int
}

// NewPool creates an uninitialized pool shell.
func NewPool(tickSpacing int32) *Pool {
	return &Pool{
		FeeGrowthGlobal0X128: new(uint256.Int),
		FeeGrowthGlobal1X128: new(uint256.Int),
		Liquidity:            new(uint256.Int),
		Ticks:                make(Ticks),
		Bitmap:               NewTickBitmap(),
		Positions:            make(Positions),
		ProtocolFeesAccrued0: new(uint256.Int),
		ProtocolFeesAccrued1: new(uint256.Int),
		TickSpacing:          tickSpacing,
		maxLiquidityPerTick:  MaxLiquidityPerTick(tickSpacing),
	}
}

// IsInitialized reports whether the pool has a price.
func (p *Pool) IsInitialized() bool {
	return p.SqrtPriceX96 != nil && !p.SqrtPriceX96.IsZero()
}

// Initialize sets the starting price and fee configuration.
func (p *Pool) Initialize(sqrtPriceX96 *uint256.Int, protocolFee fees.ProtocolFee, lpFee uint32) (int32, error) {
	if p.IsInitialized() {
		return 0, ErrPoolAlreadyInitialized
	}
	tick, err := GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return 0, err
	}
	p.SqrtPriceX96 = new(uint256.Int).Set(sqrtPriceX96)
	p.Tick = tick
	p.ProtocolFee = protocolFee
	p.LPFee = lpFee
	return tick, nil
}

// ModifyLiquidityParams describes a position change.
type ModifyLiquidityParams struct {
	Owner                common.Address
	TickLower, TickUpper int32
	// LiquidityDelta is positive to add, negative to remove.
	LiquidityDelta *big.Int
	Salt           [32]byte
}

func (p *Pool) checkTicks(tickLower, tickUpper int32) error {
	if tickLower >= tickUpper {
		return ErrTicksMisordered
	}
	if tickLower < MinTick || tickUpper > MaxTick {
		return ErrTickOutOfRange
	}
	if tickLower%p.TickSpacing != 0 || tickUpper%p.TickSpacing != 0 {
		return ErrTickMisaligned
	}
	return nil
}

// ModifyLiquidity adds or removes position liquidity. It returns the
// principal delta (positive amounts owed to the pool when adding,
// negative when removing) separately from the fee delta (always zero or
// negative, fees owed to the position owner). All fallible work runs
// before any state is touched, so a failed call leaves the pool intact.
func (p *Pool) ModifyLiquidity(params ModifyLiquidityParams) (principal, feeDelta types.BalanceDelta, err error) {
	principal = types.ZeroBalanceDelta()
	feeDelta = types.ZeroBalanceDelta()

	if !p.IsInitialized() {
		return principal, feeDelta, ErrPoolNotInitialized
	}
	if err := p.checkTicks(params.TickLower, params.TickUpper); err != nil {
		return principal, feeDelta, err
	}

	delta := params.LiquidityDelta
	key := types.PositionKey(params.Owner, params.TickLower, params.TickUpper, params.Salt)

	posLiquidity := new(uint256.Int)
	if pos, ok := p.Positions[key]; ok {
		posLiquidity.Set(pos.Liquidity)
	} else if delta.Sign() == 0 {
		return principal, feeDelta, ErrPositionEmpty
	}
	if _, err := addDelta(posLiquidity, delta); err != nil {
		return principal, feeDelta, err
	}

	var (
		amount0, amount1 *big.Int
		liquidityAfter   *uint256.Int
	)
	if delta.Sign() != 0 {
		if err := p.Ticks.CheckUpdate(params.TickLower, delta, p.maxLiquidityPerTick); err != nil {
			return principal, feeDelta, err
		}
		if err := p.Ticks.CheckUpdate(params.TickUpper, delta, p.maxLiquidityPerTick); err != nil {
			return principal, feeDelta, err
		}
		amount0, amount1, liquidityAfter, err = p.principalAmounts(params.TickLower, params.TickUpper, delta)
		if err != nil {
			return principal, feeDelta, err
		}
	}

	if delta.Sign() != 0 {
		flippedLower, err := p.Ticks.Update(params.TickLower, p.Tick, delta,
			p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128, false, p.maxLiquidityPerTick)
		if err != nil {
			return principal, feeDelta, err
		}
		flippedUpper, err := p.Ticks.Update(params.TickUpper, p.Tick, delta,
			p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128, true, p.maxLiquidityPerTick)
		if err != nil {
			return principal, feeDelta, err
		}
		if flippedLower {
			if err := p.Bitmap.FlipTick(params.TickLower, p.TickSpacing); err != nil {
				return principal, feeDelta, err
			}
		}
		if flippedUpper {
			if err := p.Bitmap.FlipTick(params.TickUpper, p.TickSpacing); err != nil {
				return principal, feeDelta, err
			}
		}
	}

	inside0, inside1 := p.Ticks.FeeGrowthInside(params.TickLower, params.TickUpper, p.Tick,
		p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128)

	feesOwed0, feesOwed1, err := p.Positions.Update(key, delta, inside0, inside1)
	if err != nil {
		return principal, feeDelta, err
	}
	feeDelta = types.NewBalanceDelta(
		new(big.Int).Neg(feesOwed0.ToBig()),
		new(big.Int).Neg(feesOwed1.ToBig()),
	)

	if liquidityAfter != nil {
		p.Liquidity = liquidityAfter
	}
	if delta.Sign() != 0 {
		principal = types.NewBalanceDelta(amount0, amount1)
	}
	return principal, feeDelta, nil
}

// principalAmounts computes the token amounts backing a liquidity delta
// at the current price. Adding rounds up, removing rounds down, so the
// pool never comes up short. When the range spans the current tick the
// pool's new active liquidity is returned for the caller to commit;
// nothing is mutated here.
func (p *Pool) principalAmounts(tickLower, tickUpper int32, delta *big.Int) (*big.Int, *big.Int, *uint256.Int, error) {
	ratioLower, err := GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, nil, err
	}
	ratioUpper, err := GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, nil, err
	}

	adding := delta.Sign() > 0
	liquidity := new(uint256.Int)
	if overflow := liquidity.SetFromBig(new(big.Int).Abs(delta)); overflow {
		return nil, nil, nil, ErrTickLiquidityOverflow
	}

	amount0 := new(uint256.Int)
	amount1 := new(uint256.Int)
	var liquidityAfter *uint256.Int
	switch {
	case p.Tick < tickLower:
		// All currency0 below the range.
		amount0, err = GetAmount0Delta(ratioLower, ratioUpper, liquidity, adding)
		if err != nil {
			return nil, nil, nil, err
		}
	case p.Tick < tickUpper:
		amount0, err = GetAmount0Delta(p.SqrtPriceX96, ratioUpper, liquidity, adding)
		if err != nil {
			return nil, nil, nil, err
		}
		amount1, err = GetAmount1Delta(ratioLower, p.SqrtPriceX96, liquidity, adding)
		if err != nil {
			return nil, nil, nil, err
		}
		liquidityAfter, err = addDelta(p.Liquidity, delta)
		if err != nil {
			return nil, nil, nil, err
		}
	default:
		amount1, err = GetAmount1Delta(ratioLower, ratioUpper, liquidity, adding)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	b0 := amount0.ToBig()
	b1 := amount1.ToBig()
	if !adding {
		b0.Neg(b0)
		b1.Neg(b1)
	}
	return b0, b1, liquidityAfter, nil
}

// SwapParams describes one swap.
type SwapParams struct {
	ZeroForOne bool
	// AmountSpecified is positive for exact-input swaps (the input
	// amount) and negative for exact-output swaps (negated output).
	AmountSpecified *big.Int
	// SqrtPriceLimitX96 bounds how far the price may move.
	SqrtPriceLimitX96 *uint256.Int
	// LPFeeOverride replaces the pool's LP fee for this swap when set.
	// Only dynamic-fee pools pass it.
	LPFeeOverride    uint32
	HasLPFeeOverride bool
}

type swapState struct {
	amountRemaining  *uint256.Int
	amountCalculated *uint256.Int
	sqrtPriceX96     *uint256.Int
	tick             int32
	feeGrowthGlobal  *uint256.Int
	liquidity        *uint256.Int
	protocolFee      *uint256.Int
}

// Swap executes a swap against the pool and returns the balance delta:
// the input leg positive (owed to the pool), the output leg negative.
func (p *Pool) Swap(params SwapParams) (types.BalanceDelta, error) {
	zero := types.ZeroBalanceDelta()
	if !p.IsInitialized() {
		return zero, ErrPoolNotInitialized
	}
	if params.AmountSpecified == nil || params.AmountSpecified.Sign() == 0 {
		return zero, types.ErrSwapAmountZero
	}

	limit := params.SqrtPriceLimitX96
	if params.ZeroForOne {
		if !limit.Gt(MinSqrtRatio) || !limit.Lt(MaxSqrtRatio) {
			return zero, ErrPriceLimitOutOfRange
		}
		if !limit.Lt(p.SqrtPriceX96) {
			return zero, ErrPriceLimitAlreadyReached
		}
	} else {
		if !limit.Gt(MinSqrtRatio) || !limit.Lt(MaxSqrtRatio) {
			return zero, ErrPriceLimitOutOfRange
		}
		if !limit.Gt(p.SqrtPriceX96) {
			return zero, ErrPriceLimitAlreadyReached
		}
	}

	lpFee := p.LPFee
	if params.HasLPFeeOverride {
		lpFee = params.LPFeeOverride
	}
	protocolLane := p.ProtocolFee.Lane(params.ZeroForOne)
	swapFee := fees.CalculateSwapFee(protocolLane, lpFee)

	exactIn := params.AmountSpecified.Sign() > 0
	remaining := new(uint256.Int)
	if overflow := remaining.SetFromBig(new(big.Int).Abs(params.AmountSpecified)); overflow {
		return zero, fullmath.ErrUint128Overflow
	}

	state := swapState{
		amountRemaining:  remaining,
		amountCalculated: new(uint256.Int),
		sqrtPriceX96:     new(uint256.Int).Set(p.SqrtPriceX96),
		tick:             p.Tick,
		liquidity:        new(uint256.Int).Set(p.Liquidity),
		protocolFee:      new(uint256.Int),
	}
	if params.ZeroForOne {
		state.feeGrowthGlobal = new(uint256.Int).Set(p.FeeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobal = new(uint256.Int).Set(p.FeeGrowthGlobal1X128)
	}

	for !state.amountRemaining.IsZero() && !state.sqrtPriceX96.Eq(limit) {
		sqrtPriceStart := new(uint256.Int).Set(state.sqrtPriceX96)

		tickNext, initialized := p.Bitmap.NextInitializedTickWithinOneWord(
			state.tick, p.TickSpacing, params.ZeroForOne)
		if tickNext < MinTick {
			tickNext = MinTick
		} else if tickNext > MaxTick {
			tickNext = MaxTick
		}
		sqrtPriceNext, err := GetSqrtRatioAtTick(tickNext)
		if err != nil {
			return zero, err
		}

		// Clamp the step target to the caller's price limit.
		target := sqrtPriceNext
		if params.ZeroForOne {
			if sqrtPriceNext.Lt(limit) {
				target = limit
			}
		} else {
			if sqrtPriceNext.Gt(limit) {
				target = limit
			}
		}

		step, err := ComputeSwapStep(state.sqrtPriceX96, target, state.liquidity,
			state.amountRemaining, exactIn, swapFee)
		if err != nil {
			return zero, err
		}
		state.sqrtPriceX96 = step.SqrtRatioNextX96

		if exactIn {
			consumed := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
			state.amountRemaining.Sub(state.amountRemaining, consumed)
			state.amountCalculated.Add(state.amountCalculated, step.AmountOut)
		} else {
			state.amountRemaining.Sub(state.amountRemaining, step.AmountOut)
			spent := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
			state.amountCalculated.Add(state.amountCalculated, spent)
		}

		feeAmount := step.FeeAmount
		if protocolLane > 0 && swapFee > 0 {
			// Protocol's cut of the collected fee, rounded down so
			// the LP share keeps the dust.
			cut, err := fullmath.MulDiv(feeAmount,
				uint256.NewInt(uint64(protocolLane)), uint256.NewInt(uint64(swapFee)))
			if err != nil {
				return zero, err
			}
			if !cut.IsZero() {
				feeAmount = new(uint256.Int).Sub(feeAmount, cut)
				state.protocolFee.Add(state.protocolFee, cut)
			}
		}

		if !state.liquidity.IsZero() && !feeAmount.IsZero() {
			growth, err := fullmath.ShlDiv(feeAmount, 128, state.liquidity)
			if err != nil {
				return zero, err
			}
			state.feeGrowthGlobal.Add(state.feeGrowthGlobal, growth)
		}

		if state.sqrtPriceX96.Eq(sqrtPriceNext) {
			if initialized {
				var g0, g1 *uint256.Int
				if params.ZeroForOne {
					g0, g1 = state.feeGrowthGlobal, p.FeeGrowthGlobal1X128
				} else {
					g0, g1 = p.FeeGrowthGlobal0X128, state.feeGrowthGlobal
				}
				liquidityNet, err := p.Ticks.Cross(tickNext, g0, g1)
				if err != nil {
					return zero, err
				}
				if params.ZeroForOne {
					liquidityNet = new(big.Int).Neg(liquidityNet)
				}
				state.liquidity, err = addDelta(state.liquidity, liquidityNet)
				if err != nil {
					return zero, err
				}
			}
			if params.ZeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if !state.sqrtPriceX96.Eq(sqrtPriceStart) {
			state.tick, err = GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return zero, err
			}
		}
	}

	p.SqrtPriceX96 = state.sqrtPriceX96
	p.Tick = state.tick
	p.Liquidity = state.liquidity
	if params.ZeroForOne {
		p.FeeGrowthGlobal0X128 = state.feeGrowthGlobal
		p.ProtocolFeesAccrued0.Add(p.ProtocolFeesAccrued0, state.protocolFee)
	} else {
		p.FeeGrowthGlobal1X128 = state.feeGrowthGlobal
		p.ProtocolFeesAccrued1.Add(p.ProtocolFeesAccrued1, state.protocolFee)
	}

	specified := new(big.Int).Abs(params.AmountSpecified)
	settled := new(big.Int).Sub(specified, state.amountRemaining.ToBig())
	calculated := state.amountCalculated.ToBig()

	inputConsumed, outputSent := settled, calculated
	if !exactIn {
		inputConsumed, outputSent = calculated, settled
	}

	var amount0, amount1 *big.Int
	if params.ZeroForOne {
		amount0 = inputConsumed
		amount1 = new(big.Int).Neg(outputSent)
	} else {
		amount0 = new(big.Int).Neg(outputSent)
		amount1 = inputConsumed
	}
	return types.NewBalanceDelta(amount0, amount1), nil
}

// Donate pays amounts directly into fee growth for the currently
// in-range liquidity and returns the tick the donation landed on.
// Fails when nothing is in range.
func (p *Pool) Donate(amount0, amount1 *uint256.Int) (types.BalanceDelta, int32, error) {
	zero := types.ZeroBalanceDelta()
	if !p.IsInitialized() {
		return zero, 0, ErrPoolNotInitialized
	}
	if p.Liquidity.IsZero() {
		return zero, 0, ErrNoLiquidityToReceiveFees
	}
	if !amount0.IsZero() {
		growth, err := fullmath.ShlDiv(amount0, 128, p.Liquidity)
		if err != nil {
			return zero, 0, err
		}
		p.FeeGrowthGlobal0X128.Add(p.FeeGrowthGlobal0X128, growth)
	}
	if !amount1.IsZero() {
		growth, err := fullmath.ShlDiv(amount1, 128, p.Liquidity)
		if err != nil {
			return zero, 0, err
		}
		p.FeeGrowthGlobal1X128.Add(p.FeeGrowthGlobal1X128, growth)
	}
	return types.NewBalanceDelta(amount0.ToBig(), amount1.ToBig()), p.Tick, nil
}

// CollectProtocolFees zeroes and returns the accrued protocol fees.
func (p *Pool) CollectProtocolFees() (amount0, amount1 *uint256.Int) {
	amount0 = new(uint256.Int).Set(p.ProtocolFeesAccrued0)
	amount1 = new(uint256.Int).Set(p.ProtocolFeesAccrued1)
	p.ProtocolFeesAccrued0.Clear()
	p.ProtocolFeesAccrued1.Clear()
	return amount0, amount1
}

// Snapshot deep-copies the pool so a caller can restore it when a step
// taken after a pool mutation fails.
func (p *Pool) Snapshot() *Pool {
	c := &Pool{
		Slot0: Slot0{
			Tick:        p.Tick,
			ProtocolFee: p.ProtocolFee,
			LPFee:       p.LPFee,
		},
		FeeGrowthGlobal0X128: new(uint256.Int).Set(p.FeeGrowthGlobal0X128),
		FeeGrowthGlobal1X128: new(uint256.Int).Set(p.FeeGrowthGlobal1X128),
		Liquidity:            new(uint256.Int).Set(p.Liquidity),
		Ticks:                make(Ticks, len(p.Ticks)),
		Bitmap:               p.Bitmap.Clone(),
		Positions:            make(Positions, len(p.Positions)),
		ProtocolFeesAccrued0: new(uint256.Int).Set(p.ProtocolFeesAccrued0),
		ProtocolFeesAccrued1: new(uint256.Int).Set(p.ProtocolFeesAccrued1),
		TickSpacing:          p.TickSpacing,
		maxLiquidityPerTick:  p.maxLiquidityPerTick,
	}
	if p.SqrtPriceX96 != nil {
		c.SqrtPriceX96 = new(uint256.Int).Set(p.SqrtPriceX96)
	}
	for tick, info := range p.Ticks {
		c.Ticks[tick] = &TickInfo{
			LiquidityGross:        new(uint256.Int).Set(info.LiquidityGross),
			LiquidityNet:          new(big.Int).Set(info.LiquidityNet),
			FeeGrowthOutside0X128: new(uint256.Int).Set(info.FeeGrowthOutside0X128),
			FeeGrowthOutside1X128: new(uint256.Int).Set(info.FeeGrowthOutside1X128),
		}
	}
	for key, pos := range p.Positions {
		c.Positions[key] = &Position{
			Liquidity:                new(uint256.Int).Set(pos.Liquidity),
			FeeGrowthInside0LastX128: new(uint256.Int).Set(pos.FeeGrowthInside0LastX128),
			FeeGrowthInside1LastX128: new(uint256.Int).Set(pos.FeeGrowthInside1LastX128),
		}
	}
	return c
}
