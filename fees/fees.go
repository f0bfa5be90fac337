// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fees implements the two-lane protocol fee, the composite swap-fee
// formula, and the protocol-fee-controller query contract.
//
// All rates are pips: parts per million of the swapped amount. The protocol
// fee is a 24-bit word of two 12-bit lanes, one per swap direction; the
// lower lane applies to zero-for-one swaps, the upper lane to one-for-zero.
package fees

import "errors"

const (
	// FeeDenominator is one whole unit in pips.
	FeeDenominator uint64 = 1_000_000

	// MaxProtocolFee caps each 12-bit protocol-fee lane (0.4%).
	MaxProtocolFee uint16 = 4000

	// MaxLPFeeCL caps the LP fee of concentrated-liquidity pools (100%).
	MaxLPFeeCL uint32 = 1_000_000

	// MaxLPFeeBin caps the LP fee of liquidity-book pools (10%).
	MaxLPFeeBin uint32 = 100_000

	// DynamicFeeFlag marks a pool whose LP fee is set by its hook. A key
	// carrying this flag has no static fee bits set.
	DynamicFeeFlag uint32 = 0x800000

	laneBits = 12
	laneMask = (1 << laneBits) - 1
)

var (
	ErrProtocolFeeTooLarge = errors.New("protocol fee exceeds lane maximum")
	ErrLPFeeTooLarge       = errors.New("lp fee exceeds maximum")
	ErrControllerValue     = errors.New("fee controller returned out-of-range value")
)

// ProtocolFee is the packed two-lane protocol fee word.
type ProtocolFee uint32

// NewProtocolFee packs the two direction lanes.
func NewProtocolFee(zeroForOne, oneForZero uint16) ProtocolFee {
	return ProtocolFee(uint32(zeroForOne) | uint32(oneForZero)<<laneBits)
}

// ZeroForOne returns the lane charged on zero-for-one swaps.
func (f ProtocolFee) ZeroForOne() uint16 {
	return uint16(f & laneMask)
}

// OneForZero returns the lane charged on one-for-zero swaps.
func (f ProtocolFee) OneForZero() uint16 {
	return uint16((f >> laneBits) & laneMask)
}

// Lane returns the fee lane for the given swap direction.
func (f ProtocolFee) Lane(zeroForOne bool) uint16 {
	if zeroForOne {
		return f.ZeroForOne()
	}
	return f.OneForZero()
}

// Validate rejects a word with either lane above the maximum or with bits
// beyond the two lanes set.
func (f ProtocolFee) Validate() error {
	if f>>(2*laneBits) != 0 {
		return ErrProtocolFeeTooLarge
	}
	if f.ZeroForOne() > MaxProtocolFee || f.OneForZero() > MaxProtocolFee {
		return ErrProtocolFeeTooLarge
	}
	return nil
}

// ValidateLPFee checks an LP fee against the engine's cap. Dynamic-fee keys
// carry the flag alone.
func ValidateLPFee(fee, max uint32) error {
	if fee == DynamicFeeFlag {
		return nil
	}
	if fee > max {
		return ErrLPFeeTooLarge
	}
	return nil
}

// IsDynamicFee reports whether the key's fee field marks a dynamic-fee pool.
func IsDynamicFee(fee uint32) bool {
	return fee == DynamicFeeFlag
}

// CalculateSwapFee combines a protocol-fee lane with the LP fee:
//
//	swapFee = protocolFee + lpFee - ceil(protocolFee*lpFee / 1e6)
//
// The composite is at least either component and at most their sum; the
// rounding always favors the protocol. Both fees are taken from the input
// amount, the protocol's cut first, which is what the cross term corrects
// for.
func CalculateSwapFee(protocolFee uint16, lpFee uint32) uint32 {
	p := uint64(protocolFee)
	lp := uint64(lpFee)
	cross := (p*lp + FeeDenominator - 1) / FeeDenominator
	return uint32(p + lp - cross)
}

// ProtocolFeePortion splits a collected fee amount: the protocol's share of
// feeAmount collected at the composite swapFee rate, rounded down so the
// remainder (the LP share) keeps the dust.
func ProtocolFeePortion(feeAmount uint64, protocolFee uint16, swapFee uint32) uint64 {
	if protocolFee == 0 || swapFee == 0 {
		return 0
	}
	return feeAmount * uint64(protocolFee) / uint64(swapFee)
}
