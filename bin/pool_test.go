// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bin

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/amm/fees"
	"github.com/luxfi/amm/types"
)

var binOwner = common.HexToAddress("0x00000000000000000000000000000000000000b1")

// newTestBinPool returns a pool at the center bin with the given active
// bin reserves, binStep 10 and a 0.05% LP fee.
func newTestBinPool(t *testing.T, x, y uint64) *Pool {
	t.Helper()
	p := NewPool(10)
	require.NoError(t, p.Initialize(IdShift, 0, 500))

	if x > 0 || y > 0 {
		delta, minted, err := p.Mint(MintParams{
			Owner: binOwner,
			Configs: []LiquidityConfig{{
				Id: IdShift, AmountX: uint256.NewInt(x), AmountY: uint256.NewInt(y),
			}},
		})
		require.NoError(t, err)
		require.Len(t, minted, 1)
		require.Equal(t, new(big.Int).SetUint64(x), delta.Amount0)
		require.Equal(t, new(big.Int).SetUint64(y), delta.Amount1)
	}
	return p
}

func TestBinPoolInitializeOnce(t *testing.T) {
	p := NewPool(10)
	require.NoError(t, p.Initialize(IdShift, 0, 500))
	require.ErrorIs(t, p.Initialize(IdShift, 0, 500), ErrPoolAlreadyInitialized)

	q := NewPool(10)
	require.ErrorIs(t, q.Initialize(MaxId+1, 0, 500), ErrBinIdOutOfRange)
}

func TestMintFirstDepositForfeitsMinShare(t *testing.T) {
	p := newTestBinPool(t, 0, 0)

	_, minted, err := p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift, AmountX: uint256.NewInt(1000), AmountY: uint256.NewInt(1000),
		}},
	})
	require.NoError(t, err)

	// L = (x + y) << 128 at the center price; the pool keeps MinShare.
	liq := new(uint256.Int).Lsh(uint256.NewInt(2000), 128)
	wantShares := new(uint256.Int).Sub(liq, MinShare)
	require.True(t, wantShares.Eq(minted[0].Shares))
	require.True(t, p.Bins[IdShift].TotalShares.Eq(liq))
	require.True(t, p.Tree.Contains(IdShift))
	require.True(t, wantShares.Eq(p.SharesOf(binOwner, IdShift, [32]byte{})))
}

func TestMintZeroAmountsRejected(t *testing.T) {
	p := newTestBinPool(t, 0, 0)
	_, _, err := p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift, AmountY: new(uint256.Int),
		}},
	})
	require.ErrorIs(t, err, ErrZeroShares)
}

func TestMintWrongSide(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)

	// Y above the active bin.
	_, _, err := p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift + 1, AmountY: uint256.NewInt(100),
		}},
	})
	require.ErrorIs(t, err, ErrBinWrongSide)

	// X below the active bin.
	_, _, err = p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift - 1, AmountX: uint256.NewInt(100),
		}},
	})
	require.ErrorIs(t, err, ErrBinWrongSide)
}

func TestMintCompositionFee(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)

	// An X-only deposit into the balanced active bin implicitly swaps
	// part of the X for Y, so the minted shares land below the raw
	// pro-rata amount.
	_, minted, err := p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift, AmountX: uint256.NewInt(1000),
		}},
	})
	require.NoError(t, err)

	raw := new(uint256.Int).Lsh(uint256.NewInt(1000), 128)
	require.True(t, minted[0].Shares.Lt(raw))
	floor := new(uint256.Int).Lsh(uint256.NewInt(990), 128)
	require.True(t, minted[0].Shares.Gt(floor), "shares = %s", minted[0].Shares)
}

func TestSwapWithinActiveBin(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)

	delta, err := p.Swap(SwapParams{SwapForY: true, AmountIn: uint256.NewInt(100)})
	require.NoError(t, err)

	// At price 1.0 with a 0.05% fee: 1 wei fee, 99 in, 99 out.
	require.Equal(t, big.NewInt(100), delta.Amount0)
	require.Equal(t, big.NewInt(-99), delta.Amount1)
	require.Equal(t, IdShift, p.ActiveId)

	rx, ry := p.Bins[IdShift].Reserves.Decode()
	require.Equal(t, uint64(1100), rx.Uint64())
	require.Equal(t, uint64(901), ry.Uint64())
}

func TestSwapWalksBins(t *testing.T) {
	p := newTestBinPool(t, 0, 1000)
	_, _, err := p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift - 1, AmountY: uint256.NewInt(500),
		}},
	})
	require.NoError(t, err)

	// 1001 drains the active bin (1000 out plus 1 fee); 400 continues
	// into the next bin down.
	delta, err := p.Swap(SwapParams{SwapForY: true, AmountIn: uint256.NewInt(1401)})
	require.NoError(t, err)

	require.Equal(t, big.NewInt(1401), delta.Amount0)
	out := new(big.Int).Neg(delta.Amount1)
	// 1000 from the first bin, then 399 net input at a 0.1% lower price.
	require.Equal(t, big.NewInt(1398), out)
	require.Equal(t, IdShift-1, p.ActiveId)
}

func TestSwapPartialFillWhenLiquidityRunsOut(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)

	// What the view quote predicts, the swap must deliver.
	left, quotedOut, _, err := p.GetSwapOut(uint256.NewInt(5000), true)
	require.NoError(t, err)
	require.True(t, left.Sign() > 0)

	delta, err := p.Swap(SwapParams{SwapForY: true, AmountIn: uint256.NewInt(5000)})
	require.NoError(t, err)

	// The active bin holds 1000 Y: the fill drains it and stops, and
	// only the consumed input lands in the delta.
	require.Equal(t, quotedOut.ToBig(), new(big.Int).Neg(delta.Amount1))
	require.Equal(t, big.NewInt(1000), new(big.Int).Neg(delta.Amount1))
	consumed := new(big.Int).Set(delta.Amount0)
	require.Equal(t, new(big.Int).Sub(big.NewInt(5000), left.ToBig()), consumed)
	require.True(t, consumed.Cmp(big.NewInt(5000)) < 0)
}

func TestSwapOutOfLiquidity(t *testing.T) {
	p := newTestBinPool(t, 1000, 0)
	// No Y anywhere, so an X-for-Y swap cannot fill at all.
	_, err := p.Swap(SwapParams{SwapForY: true, AmountIn: uint256.NewInt(100)})
	require.ErrorIs(t, err, ErrOutOfLiquidity)
}

func TestSwapZeroAmount(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)
	_, err := p.Swap(SwapParams{SwapForY: true, AmountIn: new(uint256.Int)})
	require.ErrorIs(t, err, types.ErrSwapAmountZero)
}

func TestSwapProtocolFeeSplit(t *testing.T) {
	p := NewPool(10)
	require.NoError(t, p.Initialize(IdShift, fees.NewProtocolFee(1000, 1000), 3000))
	_, _, err := p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift, AmountX: uint256.NewInt(1_000_000), AmountY: uint256.NewInt(1_000_000),
		}},
	})
	require.NoError(t, err)

	_, err = p.Swap(SwapParams{SwapForY: true, AmountIn: uint256.NewInt(100_000)})
	require.NoError(t, err)

	// Composite fee 3997 pips on 100_000 gross; the protocol lane takes
	// 1000/3997 of the collected fee.
	fx, fy := p.CollectProtocolFees()
	require.True(t, fy.IsZero())
	require.GreaterOrEqual(t, fx.Uint64(), uint64(99))
	require.LessOrEqual(t, fx.Uint64(), uint64(101))
	require.True(t, p.ProtocolFeesAccrued.IsZero())
}

func TestBurnProRata(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)
	owned := p.SharesOf(binOwner, IdShift, [32]byte{})

	half := new(uint256.Int).Rsh(owned, 1)
	delta, err := p.Burn(BurnParams{
		Owner:   binOwner,
		Configs: []BurnConfig{{Id: IdShift, Shares: half}},
	})
	require.NoError(t, err)

	// Half the owned shares claim just under half of each reserve; the
	// MinShare stake the pool kept dilutes the claim slightly.
	require.Equal(t, -1, delta.Amount0.Sign())
	require.Equal(t, -1, delta.Amount1.Sign())
	outX := new(big.Int).Neg(delta.Amount0)
	require.True(t, outX.Cmp(big.NewInt(498)) >= 0 && outX.Cmp(big.NewInt(500)) <= 0, "outX = %s", outX)
	require.Equal(t, delta.Amount0, delta.Amount1)

	rest := p.SharesOf(binOwner, IdShift, [32]byte{})
	require.True(t, new(uint256.Int).Sub(owned, half).Eq(rest))
}

func TestBurnInsufficientShares(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)
	owned := p.SharesOf(binOwner, IdShift, [32]byte{})

	_, err := p.Burn(BurnParams{
		Owner:   binOwner,
		Configs: []BurnConfig{{Id: IdShift, Shares: new(uint256.Int).AddUint64(owned, 1)}},
	})
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, err = p.Burn(BurnParams{
		Owner:   common.HexToAddress("0xdead"),
		Configs: []BurnConfig{{Id: IdShift, Shares: uint256.NewInt(1)}},
	})
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, err = p.Burn(BurnParams{
		Owner:   binOwner,
		Configs: []BurnConfig{{Id: IdShift + 77, Shares: uint256.NewInt(1)}},
	})
	require.ErrorIs(t, err, ErrBinNotFound)
}

func TestBurnKeepsMinShareStake(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)
	owned := p.SharesOf(binOwner, IdShift, [32]byte{})

	_, err := p.Burn(BurnParams{
		Owner:   binOwner,
		Configs: []BurnConfig{{Id: IdShift, Shares: owned}},
	})
	require.NoError(t, err)

	// The pool's own MinShare stake keeps the bin alive.
	require.True(t, p.Tree.Contains(IdShift))
	require.True(t, p.Bins[IdShift].TotalShares.Eq(MinShare))
}

func TestDonateRequiresShares(t *testing.T) {
	p := newTestBinPool(t, 0, 0)
	_, err := p.Donate(uint256.NewInt(10), uint256.NewInt(10))
	require.ErrorIs(t, err, ErrDonateToEmptyBin)

	p = newTestBinPool(t, 1000, 1000)
	delta, err := p.Donate(uint256.NewInt(10), uint256.NewInt(20))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), delta.Amount0)
	require.Equal(t, big.NewInt(20), delta.Amount1)

	rx, ry := p.Bins[IdShift].Reserves.Decode()
	require.Equal(t, uint64(1010), rx.Uint64())
	require.Equal(t, uint64(1020), ry.Uint64())

	// A bin whose share supply fell below the forfeited floor has no
	// holder left to claim the donation.
	p.Bins[IdShift].TotalShares = new(uint256.Int).Sub(MinShare, uint256.NewInt(1))
	_, err = p.Donate(uint256.NewInt(1), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrDonateToEmptyBin)

	p.Bins[IdShift].TotalShares = new(uint256.Int).Set(MinShare)
	_, err = p.Donate(uint256.NewInt(1), uint256.NewInt(1))
	require.NoError(t, err)
}

func TestGetSwapOutMatchesSwap(t *testing.T) {
	p := newTestBinPool(t, 0, 1000)
	_, _, err := p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift - 1, AmountY: uint256.NewInt(500),
		}},
	})
	require.NoError(t, err)

	left, quoted, totalFee, err := p.GetSwapOut(uint256.NewInt(1401), true)
	require.NoError(t, err)
	require.True(t, left.IsZero())
	require.True(t, totalFee.Sign() > 0)

	delta, err := p.Swap(SwapParams{SwapForY: true, AmountIn: uint256.NewInt(1401)})
	require.NoError(t, err)
	require.Equal(t, quoted.ToBig(), new(big.Int).Neg(delta.Amount1))
}

func TestGetSwapOutReportsShortfall(t *testing.T) {
	p := newTestBinPool(t, 1000, 1000)
	left, out, _, err := p.GetSwapOut(uint256.NewInt(5000), true)
	require.NoError(t, err)
	require.True(t, left.Sign() > 0)
	require.Equal(t, uint64(1000), out.Uint64())
}

func TestGetSwapInCoversOutput(t *testing.T) {
	p := newTestBinPool(t, 0, 1000)
	_, _, err := p.Mint(MintParams{
		Owner: binOwner,
		Configs: []LiquidityConfig{{
			Id: IdShift - 1, AmountY: uint256.NewInt(500),
		}},
	})
	require.NoError(t, err)

	in, outLeft, _, err := p.GetSwapIn(uint256.NewInt(1200), true)
	require.NoError(t, err)
	require.True(t, outLeft.IsZero())

	// Swapping the quoted input produces at least the requested output.
	delta, err := p.Swap(SwapParams{SwapForY: true, AmountIn: in})
	require.NoError(t, err)
	out := new(big.Int).Neg(delta.Amount1)
	require.True(t, out.Cmp(big.NewInt(1200)) >= 0, "out = %s", out)
}
