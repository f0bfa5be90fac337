// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bin

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/amm/bintree"
	"github.com/luxfi/amm/fees"
	"github.com/luxfi/amm/fullmath"
	"github.com/luxfi/amm/types"
)

var (
	ErrPoolAlreadyInitialized = errors.New("bin pool already initialized")
	ErrPoolNotInitialized     = errors.New("bin pool not initialized")
	ErrBinWrongSide           = errors.New("deposit on the wrong side of the active bin")
	ErrEmptyLiquidityConfig   = errors.New("empty liquidity configuration")
	ErrInsufficientShares     = errors.New("burn exceeds owned shares")
	ErrBinNotFound            = errors.New("bin not found")
	ErrOutOfLiquidity         = errors.New("swap exhausted all populated bins")
	ErrDonateToEmptyBin       = errors.New("donation requires shares in the active bin")
	ErrZeroShares             = errors.New("operation produced zero shares")
)

// Bin is one price level's reserves and share supply.
type Bin struct {
	// Reserves packs reserveX (low lane) and reserveY (high lane).
	Reserves types.PackedUint128

	TotalShares *uint256.Int
}

// Pool is one liquidity-book pool's full state.
type Pool struct {
	ActiveId    uint32
	BinStep     uint16
	LPFee       uint32
	ProtocolFee fees.ProtocolFee

	Bins map[uint32]*Bin
	Tree *bintree.Tree

	// Positions maps the hash of (owner, binId, salt) to owned shares.
	Positions map[[32]byte]*uint256.Int

	// ProtocolFeesAccrued packs uncollected protocol fees (X, Y).
	ProtocolFeesAccrued types.PackedUint128

	initialized bool
}

// NewPool creates an uninitialized pool shell.
func NewPool(binStep uint16) *Pool {
	return &Pool{
		BinStep:   binStep,
		Bins:      make(map[uint32]*Bin),
		Tree:      bintree.New(),
		Positions: make(map[[32]byte]*uint256.Int),
	}
}

// IsInitialized reports whether the pool has an active bin.
func (p *Pool) IsInitialized() bool { return p.initialized }

// Initialize sets the starting active bin and fee configuration.
func (p *Pool) Initialize(activeId uint32, protocolFee fees.ProtocolFee, lpFee uint32) error {
	if p.initialized {
		return ErrPoolAlreadyInitialized
	}
	if activeId > MaxId {
		return ErrBinIdOutOfRange
	}
	p.ActiveId = activeId
	p.ProtocolFee = protocolFee
	p.LPFee = lpFee
	p.initialized = true
	return nil
}

// LiquidityConfig is one bin's contribution within a mint.
type LiquidityConfig struct {
	Id      uint32
	AmountX *uint256.Int
	AmountY *uint256.Int
}

// MintParams describes a mint across one or more bins.
type MintParams struct {
	Owner   common.Address
	Salt    [32]byte
	Configs []LiquidityConfig
}

// MintedShares reports the shares created in one bin.
type MintedShares struct {
	Id     uint32
	Shares *uint256.Int
}

// Mint deposits liquidity into the configured bins. Bins above the
// active bin accept only X, bins below only Y; off-ratio deposits into
// the active bin pay a composition fee on the over-supplied side. The
// returned delta is the full amount owed to the pool.
func (p *Pool) Mint(params MintParams) (types.BalanceDelta, []MintedShares, error) {
	zero := types.ZeroBalanceDelta()
	if !p.initialized {
		return zero, nil, ErrPoolNotInitialized
	}
	if len(params.Configs) == 0 {
		return zero, nil, ErrEmptyLiquidityConfig
	}

	totalX := new(uint256.Int)
	totalY := new(uint256.Int)
	minted := make([]MintedShares, 0, len(params.Configs))

	for _, cfg := range params.Configs {
		if cfg.Id > MaxId {
			return zero, nil, ErrBinIdOutOfRange
		}
		amtX := new(uint256.Int)
		amtY := new(uint256.Int)
		if cfg.AmountX != nil {
			amtX.Set(cfg.AmountX)
		}
		if cfg.AmountY != nil {
			amtY.Set(cfg.AmountY)
		}
		if cfg.Id > p.ActiveId && !amtY.IsZero() {
			return zero, nil, ErrBinWrongSide
		}
		if cfg.Id < p.ActiveId && !amtX.IsZero() {
			return zero, nil, ErrBinWrongSide
		}
		if amtX.IsZero() && amtY.IsZero() {
			return zero, nil, ErrZeroShares
		}

		shares, err := p.mintIntoBin(cfg.Id, amtX, amtY)
		if err != nil {
			return zero, nil, err
		}

		key := types.BinPositionKey(params.Owner, cfg.Id, params.Salt)
		owned, ok := p.Positions[key]
		if !ok {
			owned = new(uint256.Int)
			p.Positions[key] = owned
		}
		owned.Add(owned, shares)

		minted = append(minted, MintedShares{Id: cfg.Id, Shares: shares})
		totalX.Add(totalX, amtX)
		totalY.Add(totalY, amtY)
	}

	return types.NewBalanceDelta(totalX.ToBig(), totalY.ToBig()), minted, nil
}

// mintIntoBin books (amtX, amtY) into one bin and returns the shares
// minted to the depositor. The amounts are what the depositor pays;
// protocol fees come out of what reaches the bin.
func (p *Pool) mintIntoBin(id uint32, amtX, amtY *uint256.Int) (*uint256.Int, error) {
	price, err := PriceFromId(id, p.BinStep)
	if err != nil {
		return nil, err
	}

	b, ok := p.Bins[id]
	if !ok {
		b = &Bin{TotalShares: new(uint256.Int)}
		p.Bins[id] = b
	}
	rx, ry := b.Reserves.Decode()

	toBinX := new(uint256.Int).Set(amtX)
	toBinY := new(uint256.Int).Set(amtY)

	userLiq, err := Liquidity(price, toBinX, toBinY)
	if err != nil {
		return nil, err
	}

	var shares *uint256.Int
	if b.TotalShares.IsZero() {
		// First mint: the depositor forfeits MinShare to the pool so
		// the share price cannot be inflated by a tiny initial stake.
		if !userLiq.Gt(MinShare) {
			return nil, ErrShareUnderflow
		}
		shares = new(uint256.Int).Sub(userLiq, MinShare)
		b.TotalShares.Set(userLiq)
		p.Tree.Add(id)
	} else {
		binLiq, err := Liquidity(price, rx, ry)
		if err != nil {
			return nil, err
		}
		shares, err = SharesForLiquidity(userLiq, binLiq, b.TotalShares)
		if err != nil {
			return nil, err
		}

		if id == p.ActiveId {
			var cutX, cutY *uint256.Int
			shares, cutX, cutY, err = p.applyCompositionFee(price, b, shares, toBinX, toBinY)
			if err != nil {
				return nil, err
			}
			toBinX.Sub(toBinX, cutX)
			toBinY.Sub(toBinY, cutY)
		}
		if shares.IsZero() {
			return nil, ErrZeroShares
		}
		b.TotalShares.Add(b.TotalShares, shares)
	}

	added, err := types.PackUint128(toBinX, toBinY)
	if err != nil {
		return nil, err
	}
	b.Reserves, err = b.Reserves.Add(added)
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// applyCompositionFee charges the off-ratio part of an active-bin
// deposit. It returns the depositor's shares after the fee and the
// protocol cuts withheld from the bin. The LP part of the fee stays in
// the bin reserves for the existing share holders.
func (p *Pool) applyCompositionFee(price *uint256.Int, b *Bin, rawShares, amtX, amtY *uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	cutX := new(uint256.Int)
	cutY := new(uint256.Int)
	if rawShares.IsZero() {
		return rawShares, cutX, cutY, nil
	}

	rx, ry := b.Reserves.Decode()
	newSupply := new(uint256.Int).Add(b.TotalShares, rawShares)

	// The depositor's pro-rata claim on the post-mint reserves; any
	// surplus on one side was implicitly swapped into the other.
	receivedX, err := fullmath.MulDiv(new(uint256.Int).Add(rx, amtX), rawShares, newSupply)
	if err != nil {
		return nil, nil, nil, err
	}
	receivedY, err := fullmath.MulDiv(new(uint256.Int).Add(ry, amtY), rawShares, newSupply)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		feeAmount *uint256.Int
		swapForY  bool
	)
	switch {
	case amtX.Gt(receivedX):
		swapForY = true
		excess := new(uint256.Int).Sub(amtX, receivedX)
		feeAmount, err = CompositionFee(excess, p.swapFee(true))
	case amtY.Gt(receivedY):
		swapForY = false
		excess := new(uint256.Int).Sub(amtY, receivedY)
		feeAmount, err = CompositionFee(excess, p.swapFee(false))
	default:
		return rawShares, cutX, cutY, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if feeAmount.IsZero() {
		return rawShares, cutX, cutY, nil
	}

	lane := p.ProtocolFee.Lane(swapForY)
	swapFee := p.swapFee(swapForY)
	protocolCut := new(uint256.Int)
	if lane > 0 && swapFee > 0 {
		protocolCut, err = fullmath.MulDiv(feeAmount,
			uint256.NewInt(uint64(lane)), uint256.NewInt(uint64(swapFee)))
		if err != nil {
			return nil, nil, nil, err
		}
	}

	// The fee's liquidity does not buy the depositor shares.
	var feeLiq *uint256.Int
	if swapForY {
		feeLiq, err = Liquidity(price, feeAmount, new(uint256.Int))
		cutX.Set(protocolCut)
	} else {
		feeLiq, err = Liquidity(price, new(uint256.Int), feeAmount)
		cutY.Set(protocolCut)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if !protocolCut.IsZero() {
		cutPacked, perr := types.PackUint128(cutX, cutY)
		if perr != nil {
			return nil, nil, nil, perr
		}
		p.ProtocolFeesAccrued, err = p.ProtocolFeesAccrued.Add(cutPacked)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	binLiq, err := Liquidity(price, rx, ry)
	if err != nil {
		return nil, nil, nil, err
	}
	feeShares, err := SharesForLiquidity(feeLiq, binLiq, b.TotalShares)
	if err != nil {
		return nil, nil, nil, err
	}
	shares := new(uint256.Int)
	if rawShares.Gt(feeShares) {
		shares.Sub(rawShares, feeShares)
	}
	return shares, cutX, cutY, nil
}

func (p *Pool) swapFee(swapForY bool) uint32 {
	return fees.CalculateSwapFee(p.ProtocolFee.Lane(swapForY), p.LPFee)
}

// BurnConfig is one bin's share redemption within a burn.
type BurnConfig struct {
	Id     uint32
	Shares *uint256.Int
}

// BurnParams describes a burn across one or more bins.
type BurnParams struct {
	Owner   common.Address
	Salt    [32]byte
	Configs []BurnConfig
}

// Burn redeems shares for the pro-rata reserves. The returned delta is
// negative: the pool owes the amounts to the caller.
func (p *Pool) Burn(params BurnParams) (types.BalanceDelta, error) {
	zero := types.ZeroBalanceDelta()
	if !p.initialized {
		return zero, ErrPoolNotInitialized
	}
	if len(params.Configs) == 0 {
		return zero, ErrEmptyLiquidityConfig
	}

	totalX := new(uint256.Int)
	totalY := new(uint256.Int)

	for _, cfg := range params.Configs {
		if cfg.Shares == nil || cfg.Shares.IsZero() {
			return zero, ErrZeroShares
		}
		b, ok := p.Bins[cfg.Id]
		if !ok {
			return zero, ErrBinNotFound
		}
		key := types.BinPositionKey(params.Owner, cfg.Id, params.Salt)
		owned, ok := p.Positions[key]
		if !ok || owned.Lt(cfg.Shares) {
			return zero, ErrInsufficientShares
		}

		rx, ry := b.Reserves.Decode()
		outX, outY, err := AmountsForShares(cfg.Shares, b.TotalShares, rx, ry)
		if err != nil {
			return zero, err
		}

		removed, err := types.PackUint128(outX, outY)
		if err != nil {
			return zero, err
		}
		b.Reserves, err = b.Reserves.Sub(removed)
		if err != nil {
			return zero, err
		}
		b.TotalShares.Sub(b.TotalShares, cfg.Shares)
		owned.Sub(owned, cfg.Shares)
		if owned.IsZero() {
			delete(p.Positions, key)
		}
		if b.Reserves.IsZero() {
			delete(p.Bins, cfg.Id)
			p.Tree.Remove(cfg.Id)
		}

		totalX.Add(totalX, outX)
		totalY.Add(totalY, outY)
	}

	return types.NewBalanceDelta(
		new(big.Int).Neg(totalX.ToBig()),
		new(big.Int).Neg(totalY.ToBig()),
	), nil
}

// SwapParams describes an exact-input swap. SwapForY trades X in for
// Y out and walks the price down; the reverse walks it up.
type SwapParams struct {
	SwapForY bool
	AmountIn *uint256.Int
	// LPFeeOverride replaces the pool's LP fee for this swap when set.
	// Only dynamic-fee pools pass it.
	LPFeeOverride    uint32
	HasLPFeeOverride bool
}

// Swap consumes the input across populated bins starting at the active
// bin. When the populated bins run out before the input is absorbed the
// swap stops there as a partial fill; the returned delta covers only
// the consumed input. A swap that cannot produce any output at all
// fails with ErrOutOfLiquidity.
func (p *Pool) Swap(params SwapParams) (types.BalanceDelta, error) {
	zero := types.ZeroBalanceDelta()
	if !p.initialized {
		return zero, ErrPoolNotInitialized
	}
	if params.AmountIn == nil || params.AmountIn.IsZero() {
		return zero, types.ErrSwapAmountZero
	}

	lane := p.ProtocolFee.Lane(params.SwapForY)
	lpFee := p.LPFee
	if params.HasLPFeeOverride {
		lpFee = params.LPFeeOverride
	}
	swapFee := fees.CalculateSwapFee(lane, lpFee)

	remaining := new(uint256.Int).Set(params.AmountIn)
	amountOut := new(uint256.Int)
	protocolCut := new(uint256.Int)
	id := p.ActiveId

	for {
		if b, ok := p.Bins[id]; ok {
			reserveOut := b.Reserves.Amount(params.SwapForY)
			if !reserveOut.IsZero() {
				in, out, fee, err := p.swapWithinBin(id, reserveOut, remaining, swapFee, params.SwapForY)
				if err != nil {
					return zero, err
				}

				cut := new(uint256.Int)
				if lane > 0 && swapFee > 0 {
					cut, err = fullmath.MulDiv(fee,
						uint256.NewInt(uint64(lane)), uint256.NewInt(uint64(swapFee)))
					if err != nil {
						return zero, err
					}
					protocolCut.Add(protocolCut, cut)
				}

				// Input plus the LP part of the fee stays in the bin.
				lpIn := new(uint256.Int).Add(in, new(uint256.Int).Sub(fee, cut))
				var addX, addY, subX, subY *uint256.Int
				zeroWord := new(uint256.Int)
				if params.SwapForY {
					addX, addY, subX, subY = lpIn, zeroWord, zeroWord, out
				} else {
					addX, addY, subX, subY = zeroWord, lpIn, out, zeroWord
				}
				added, err := types.PackUint128(addX, addY)
				if err != nil {
					return zero, err
				}
				if b.Reserves, err = b.Reserves.Add(added); err != nil {
					return zero, err
				}
				removed, err := types.PackUint128(subX, subY)
				if err != nil {
					return zero, err
				}
				if b.Reserves, err = b.Reserves.Sub(removed); err != nil {
					return zero, err
				}

				remaining.Sub(remaining, new(uint256.Int).Add(in, fee))
				amountOut.Add(amountOut, out)
			}
		}
		if remaining.IsZero() {
			break
		}

		var (
			next uint32
			ok   bool
		)
		if params.SwapForY {
			next, ok = p.Tree.FindFirstRight(id)
		} else {
			next, ok = p.Tree.FindFirstLeft(id)
		}
		if !ok {
			// Liquidity exhausted: stop with whatever was filled.
			break
		}
		id = next
	}
	if remaining.Eq(params.AmountIn) {
		// Nothing could be filled; the pool is untouched.
		return zero, ErrOutOfLiquidity
	}
	p.ActiveId = id

	if !protocolCut.IsZero() {
		var cutPacked types.PackedUint128
		var err error
		if params.SwapForY {
			cutPacked, err = types.PackUint128(protocolCut, new(uint256.Int))
		} else {
			cutPacked, err = types.PackUint128(new(uint256.Int), protocolCut)
		}
		if err != nil {
			return zero, err
		}
		if p.ProtocolFeesAccrued, err = p.ProtocolFeesAccrued.Add(cutPacked); err != nil {
			return zero, err
		}
	}

	consumed := new(uint256.Int).Sub(params.AmountIn, remaining)
	inBig := consumed.ToBig()
	outBig := new(big.Int).Neg(amountOut.ToBig())
	if params.SwapForY {
		return types.NewBalanceDelta(inBig, outBig), nil
	}
	return types.NewBalanceDelta(outBig, inBig), nil
}

// swapWithinBin fills as much of the remaining gross input as the bin's
// out-side reserve allows. Returns the net input, output and fee.
func (p *Pool) swapWithinBin(id uint32, reserveOut, remaining *uint256.Int, swapFee uint32, swapForY bool) (in, out, fee *uint256.Int, err error) {
	price, err := PriceFromId(id, p.BinStep)
	if err != nil {
		return nil, nil, nil, err
	}

	maxIn, err := GetMaxAmountIn(reserveOut, price, swapForY)
	if err != nil {
		return nil, nil, nil, err
	}
	maxFee, err := FeeAmountFrom(maxIn, swapFee)
	if err != nil {
		return nil, nil, nil, err
	}

	grossMax := new(uint256.Int).Add(maxIn, maxFee)
	if !remaining.Lt(grossMax) {
		// Drain the bin.
		return maxIn, new(uint256.Int).Set(reserveOut), maxFee, nil
	}

	fee, err = FeeAmount(remaining, swapFee)
	if err != nil {
		return nil, nil, nil, err
	}
	in = new(uint256.Int).Sub(remaining, fee)
	out, err = GetAmountOut(in, price, swapForY)
	if err != nil {
		return nil, nil, nil, err
	}
	if out.Gt(reserveOut) {
		out = new(uint256.Int).Set(reserveOut)
	}
	return in, out, fee, nil
}

// Donate pays amounts into the active bin's reserves without minting
// shares. Rejected when the active bin has no share holders, because
// the donation would be unclaimable.
func (p *Pool) Donate(amountX, amountY *uint256.Int) (types.BalanceDelta, error) {
	zero := types.ZeroBalanceDelta()
	if !p.initialized {
		return zero, ErrPoolNotInitialized
	}
	b, ok := p.Bins[p.ActiveId]
	if !ok || b.TotalShares.Lt(MinShare) {
		return zero, ErrDonateToEmptyBin
	}
	added, err := types.PackUint128(amountX, amountY)
	if err != nil {
		return zero, err
	}
	if b.Reserves, err = b.Reserves.Add(added); err != nil {
		return zero, err
	}
	return types.NewBalanceDelta(amountX.ToBig(), amountY.ToBig()), nil
}

// CollectProtocolFees zeroes and returns the accrued protocol fees.
func (p *Pool) CollectProtocolFees() (amountX, amountY *uint256.Int) {
	amountX, amountY = p.ProtocolFeesAccrued.Decode()
	p.ProtocolFeesAccrued = types.PackedUint128{}
	return amountX, amountY
}

// SharesOf returns the shares a position owns in one bin.
func (p *Pool) SharesOf(owner common.Address, id uint32, salt [32]byte) *uint256.Int {
	if shares, ok := p.Positions[types.BinPositionKey(owner, id, salt)]; ok {
		return new(uint256.Int).Set(shares)
	}
	return new(uint256.Int)
}

// Snapshot deep-copies the pool so a caller can restore it when a step
// taken after a pool mutation fails. The bin tree is rebuilt from the
// bin set rather than copied.
func (p *Pool) Snapshot() *Pool {
	c := &Pool{
		ActiveId:            p.ActiveId,
		BinStep:             p.BinStep,
		LPFee:               p.LPFee,
		ProtocolFee:         p.ProtocolFee,
		Bins:                make(map[uint32]*Bin, len(p.Bins)),
		Tree:                bintree.New(),
		Positions:           make(map[[32]byte]*uint256.Int, len(p.Positions)),
		ProtocolFeesAccrued: p.ProtocolFeesAccrued,
		initialized:         p.initialized,
	}
	for id, b := range p.Bins {
		c.Bins[id] = &Bin{
			Reserves:    b.Reserves,
			TotalShares: new(uint256.Int).Set(b.TotalShares),
		}
		c.Tree.Add(id)
	}
	for key, shares := range p.Positions {
		c.Positions[key] = new(uint256.Int).Set(shares)
	}
	return c
}
