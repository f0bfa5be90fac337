// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cl

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/amm/fees"
)

var (
	testOwner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	oneE18    = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func sqrtPriceOne() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), 96)
}

// newTestPool returns a pool at tick 0 with a position of 1e18 liquidity
// over [-600, 600].
func newTestPool(t *testing.T, protocolFee fees.ProtocolFee, lpFee uint32) *Pool {
	t.Helper()
	p := NewPool(60)
	tick, err := p.Initialize(sqrtPriceOne(), protocolFee, lpFee)
	require.NoError(t, err)
	require.Equal(t, int32(0), tick)

	principal, feeDelta, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner:          testOwner,
		TickLower:      -600,
		TickUpper:      600,
		LiquidityDelta: new(big.Int).Set(oneE18),
	})
	require.NoError(t, err)
	require.True(t, feeDelta.IsZero())
	require.Equal(t, 1, principal.Amount0.Sign())
	require.Equal(t, 1, principal.Amount1.Sign())
	return p
}

func TestPoolInitializeOnce(t *testing.T) {
	p := NewPool(60)
	_, err := p.Initialize(sqrtPriceOne(), 0, 3000)
	require.NoError(t, err)
	_, err = p.Initialize(sqrtPriceOne(), 0, 3000)
	require.ErrorIs(t, err, ErrPoolAlreadyInitialized)
}

func TestModifyLiquidityValidation(t *testing.T) {
	p := NewPool(60)
	_, _, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner: testOwner, TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1),
	})
	require.ErrorIs(t, err, ErrPoolNotInitialized)

	_, err = p.Initialize(sqrtPriceOne(), 0, 3000)
	require.NoError(t, err)

	for _, tc := range []struct {
		name         string
		lower, upper int32
		want         error
	}{
		{"misordered", 60, -60, ErrTicksMisordered},
		{"equal", 60, 60, ErrTicksMisordered},
		{"below min", MinTick - 60, 0, ErrTickOutOfRange},
		{"misaligned", -61, 60, ErrTickMisaligned},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := p.ModifyLiquidity(ModifyLiquidityParams{
				Owner: testOwner, TickLower: tc.lower, TickUpper: tc.upper,
				LiquidityDelta: big.NewInt(1),
			})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestModifyLiquidityRoundTrip(t *testing.T) {
	p := newTestPool(t, 0, 3000)
	require.True(t, p.Liquidity.Eq(uint256.MustFromBig(oneE18)))

	principal, feeDelta, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner:          testOwner,
		TickLower:      -600,
		TickUpper:      600,
		LiquidityDelta: new(big.Int).Neg(oneE18),
	})
	require.NoError(t, err)
	require.True(t, feeDelta.IsZero())
	// Removal rounds down, so the pool keeps any rounding dust.
	require.Equal(t, -1, principal.Amount0.Sign())
	require.Equal(t, -1, principal.Amount1.Sign())
	require.True(t, p.Liquidity.IsZero())
	// Emptied ticks are pruned from the bitmap.
	require.False(t, p.Bitmap.IsInitialized(-600, 60))
	require.False(t, p.Bitmap.IsInitialized(600, 60))
}

func TestSwapExactInZeroForOne(t *testing.T) {
	p := newTestPool(t, 0, 3000)

	limit := new(uint256.Int).AddUint64(MinSqrtRatio, 1)
	delta, err := p.Swap(SwapParams{
		ZeroForOne:        true,
		AmountSpecified:   big.NewInt(1000),
		SqrtPriceLimitX96: limit,
	})
	require.NoError(t, err)

	// Full input consumed; output is input less the 0.30% fee and a hair
	// of price impact.
	require.Equal(t, big.NewInt(1000), delta.Amount0)
	out := new(big.Int).Neg(delta.Amount1)
	require.True(t, out.Cmp(big.NewInt(990)) > 0, "out = %s", out)
	require.True(t, out.Cmp(big.NewInt(998)) < 0, "out = %s", out)

	require.True(t, p.SqrtPriceX96.Lt(sqrtPriceOne()))
	require.True(t, p.FeeGrowthGlobal0X128.Sign() > 0)
	require.True(t, p.ProtocolFeesAccrued0.IsZero())
}

func TestSwapFeesAccrueToPosition(t *testing.T) {
	p := newTestPool(t, 0, 3000)

	limit := new(uint256.Int).AddUint64(MinSqrtRatio, 1)
	_, err := p.Swap(SwapParams{
		ZeroForOne:        true,
		AmountSpecified:   big.NewInt(1000),
		SqrtPriceLimitX96: limit,
	})
	require.NoError(t, err)

	// Poke the position; the 3 wei fee comes back as a negative delta,
	// less at most 1 wei of fee-growth flooring.
	_, feeDelta, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner:          testOwner,
		TickLower:      -600,
		TickUpper:      600,
		LiquidityDelta: new(big.Int).Neg(oneE18),
	})
	require.NoError(t, err)
	owed := new(big.Int).Neg(feeDelta.Amount0)
	require.True(t, owed.Cmp(big.NewInt(2)) >= 0, "owed = %s", owed)
	require.True(t, owed.Cmp(big.NewInt(4)) <= 0, "owed = %s", owed)
	require.Equal(t, 0, feeDelta.Amount1.Sign())
}

func TestSwapExactOut(t *testing.T) {
	p := newTestPool(t, 0, 3000)

	limit := new(uint256.Int).AddUint64(MinSqrtRatio, 1)
	delta, err := p.Swap(SwapParams{
		ZeroForOne:        true,
		AmountSpecified:   big.NewInt(-1000),
		SqrtPriceLimitX96: limit,
	})
	require.NoError(t, err)

	require.Equal(t, big.NewInt(-1000), delta.Amount1)
	// Input covers the output plus fee, so it exceeds the output.
	require.True(t, delta.Amount0.Cmp(big.NewInt(1000)) > 0, "in = %s", delta.Amount0)
	require.True(t, delta.Amount0.Cmp(big.NewInt(1010)) < 0, "in = %s", delta.Amount0)
}

func TestSwapProtocolFeeSplit(t *testing.T) {
	p := newTestPool(t, fees.NewProtocolFee(1000, 1000), 3000)

	limit := new(uint256.Int).AddUint64(MinSqrtRatio, 1)
	_, err := p.Swap(SwapParams{
		ZeroForOne:        true,
		AmountSpecified:   big.NewInt(1_000_000),
		SqrtPriceLimitX96: limit,
	})
	require.NoError(t, err)

	// Composite fee is 3997 pips; the protocol lane's share of the
	// roughly 3997 wei fee is about 1000 wei.
	accrued := p.ProtocolFeesAccrued0.Uint64()
	require.GreaterOrEqual(t, accrued, uint64(999))
	require.LessOrEqual(t, accrued, uint64(1001))

	amount0, amount1 := p.CollectProtocolFees()
	require.Equal(t, accrued, amount0.Uint64())
	require.True(t, amount1.IsZero())
	require.True(t, p.ProtocolFeesAccrued0.IsZero())
}

func TestSwapCrossesRangeBoundary(t *testing.T) {
	p := newTestPool(t, 0, 3000)

	// Swap far more than the range holds; the pool drains past -600 and
	// stops at the limit with input left over.
	limit := new(uint256.Int).AddUint64(MinSqrtRatio, 1)
	delta, err := p.Swap(SwapParams{
		ZeroForOne:        true,
		AmountSpecified:   new(big.Int).Set(oneE18),
		SqrtPriceLimitX96: limit,
	})
	require.NoError(t, err)

	require.True(t, p.Liquidity.IsZero())
	require.Less(t, p.Tick, int32(-600))
	require.True(t, delta.Amount0.Cmp(oneE18) < 0, "in = %s", delta.Amount0)
	require.Equal(t, -1, delta.Amount1.Sign())
}

func TestSwapPriceLimitValidation(t *testing.T) {
	p := newTestPool(t, 0, 3000)

	_, err := p.Swap(SwapParams{
		ZeroForOne:        true,
		AmountSpecified:   big.NewInt(1000),
		SqrtPriceLimitX96: new(uint256.Int).Set(MinSqrtRatio),
	})
	require.ErrorIs(t, err, ErrPriceLimitOutOfRange)

	// Limit above the current price on a zeroForOne swap.
	_, err = p.Swap(SwapParams{
		ZeroForOne:        true,
		AmountSpecified:   big.NewInt(1000),
		SqrtPriceLimitX96: new(uint256.Int).Lsh(uint256.NewInt(1), 97),
	})
	require.ErrorIs(t, err, ErrPriceLimitAlreadyReached)
}

func TestDonate(t *testing.T) {
	p := NewPool(60)
	_, err := p.Initialize(sqrtPriceOne(), 0, 3000)
	require.NoError(t, err)

	// Nothing in range yet.
	_, _, err = p.Donate(uint256.NewInt(100), uint256.NewInt(0))
	require.ErrorIs(t, err, ErrNoLiquidityToReceiveFees)

	_, _, err = p.ModifyLiquidity(ModifyLiquidityParams{
		Owner: testOwner, TickLower: -600, TickUpper: 600,
		LiquidityDelta: new(big.Int).Set(oneE18),
	})
	require.NoError(t, err)

	delta, tick, err := p.Donate(uint256.NewInt(500), uint256.NewInt(700))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), delta.Amount0)
	require.Equal(t, big.NewInt(700), delta.Amount1)
	require.Equal(t, p.Tick, tick)

	// The donation lands on the position as fees.
	_, feeDelta, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner: testOwner, TickLower: -600, TickUpper: 600,
		LiquidityDelta: new(big.Int).Neg(oneE18),
	})
	require.NoError(t, err)
	owed0 := new(big.Int).Neg(feeDelta.Amount0)
	owed1 := new(big.Int).Neg(feeDelta.Amount1)
	require.True(t, owed0.Cmp(big.NewInt(499)) >= 0 && owed0.Cmp(big.NewInt(500)) <= 0, "owed0 = %s", owed0)
	require.True(t, owed1.Cmp(big.NewInt(699)) >= 0 && owed1.Cmp(big.NewInt(700)) <= 0, "owed1 = %s", owed1)
}

func TestFailedRemovalLeavesTicksIntact(t *testing.T) {
	p := newTestPool(t, 0, 3000)

	grossLower := new(uint256.Int).Set(p.Ticks[-600].LiquidityGross)
	grossUpper := new(uint256.Int).Set(p.Ticks[600].LiquidityGross)
	liquidity := new(uint256.Int).Set(p.Liquidity)

	// A burn by an address holding no position, against an existing
	// position's bounds, must fail without touching tick state.
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	_, _, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner: stranger, TickLower: -600, TickUpper: 600,
		LiquidityDelta: big.NewInt(-1000),
	})
	require.ErrorIs(t, err, ErrLiquidityUnderflow)

	require.True(t, grossLower.Eq(p.Ticks[-600].LiquidityGross))
	require.True(t, grossUpper.Eq(p.Ticks[600].LiquidityGross))
	require.True(t, liquidity.Eq(p.Liquidity))
}

func TestFailedAddLeavesTicksIntact(t *testing.T) {
	p := newTestPool(t, 0, 3000)

	// Pushing the lower tick past its per-tick ceiling fails during
	// validation, before either tick is touched.
	over := new(big.Int).Add(MaxLiquidityPerTick(60).ToBig(), big.NewInt(1))
	_, _, err := p.ModifyLiquidity(ModifyLiquidityParams{
		Owner: testOwner, TickLower: -600, TickUpper: 660,
		LiquidityDelta: over,
	})
	require.ErrorIs(t, err, ErrTickLiquidityOverflow)

	_, ok := p.Ticks[660]
	require.False(t, ok)
	require.True(t, p.Ticks[-600].LiquidityGross.Eq(uint256.MustFromBig(oneE18)))
}
