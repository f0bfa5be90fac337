// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hooks defines the capability model shared by the pool managers.
// A hook declares up front which lifecycle callbacks it implements and
// which extra privileges it holds; the managers validate the declared
// permissions at pool initialization and consult them on every dispatch.
package hooks

import (
	"errors"

	"github.com/luxfi/amm/types"
)

// Flags is a bitmap of hook capabilities.
type Flags uint16

const (
	FlagBeforeInitialize Flags = 1 << iota
	FlagAfterInitialize
	FlagBeforeAddLiquidity
	FlagAfterAddLiquidity
	FlagBeforeRemoveLiquidity
	FlagAfterRemoveLiquidity
	FlagBeforeSwap
	FlagAfterSwap
	FlagBeforeDonate
	FlagAfterDonate

	// FlagNoOp lets a before-callback skip the core operation entirely.
	FlagNoOp

	// Delta-returning privileges. Each one is only meaningful together
	// with its matching callback flag.
	FlagBeforeSwapReturnsDelta
	FlagAfterSwapReturnsDelta
	FlagAfterAddLiquidityReturnsDelta
	FlagAfterRemoveLiquidityReturnsDelta
)

// Permissions is the expanded form of a hook's capability bitmap.
type Permissions struct {
	BeforeInitialize      bool
	AfterInitialize       bool
	BeforeAddLiquidity    bool
	AfterAddLiquidity     bool
	BeforeRemoveLiquidity bool
	AfterRemoveLiquidity  bool
	BeforeSwap            bool
	AfterSwap             bool
	BeforeDonate          bool
	AfterDonate           bool

	NoOp bool

	BeforeSwapReturnsDelta           bool
	AfterSwapReturnsDelta            bool
	AfterAddLiquidityReturnsDelta    bool
	AfterRemoveLiquidityReturnsDelta bool
}

// Hook errors
var (
	ErrPermissionsMismatch = errors.New("hook flags do not match declared permissions")
	ErrNoOpWithoutBefore   = errors.New("no-op capability requires a before callback")
	ErrDeltaWithoutHook    = errors.New("delta-returning capability requires the matching callback")
	ErrFlagsWithoutHook    = errors.New("hook flags set but no hook provided")
	ErrDeltaNotAllowed     = errors.New("hook returned a delta without the capability")
	ErrSkipNotAllowed      = errors.New("hook skipped the operation without no-op capability")
	ErrHookCallFailed      = errors.New("hook call failed")
)

// Encode packs permissions into a Flags bitmap.
func Encode(p Permissions) Flags {
	var f Flags
	set := func(on bool, flag Flags) {
		if on {
			f |= flag
		}
	}
	set(p.BeforeInitialize, FlagBeforeInitialize)
	set(p.AfterInitialize, FlagAfterInitialize)
	set(p.BeforeAddLiquidity, FlagBeforeAddLiquidity)
	set(p.AfterAddLiquidity, FlagAfterAddLiquidity)
	set(p.BeforeRemoveLiquidity, FlagBeforeRemoveLiquidity)
	set(p.AfterRemoveLiquidity, FlagAfterRemoveLiquidity)
	set(p.BeforeSwap, FlagBeforeSwap)
	set(p.AfterSwap, FlagAfterSwap)
	set(p.BeforeDonate, FlagBeforeDonate)
	set(p.AfterDonate, FlagAfterDonate)
	set(p.NoOp, FlagNoOp)
	set(p.BeforeSwapReturnsDelta, FlagBeforeSwapReturnsDelta)
	set(p.AfterSwapReturnsDelta, FlagAfterSwapReturnsDelta)
	set(p.AfterAddLiquidityReturnsDelta, FlagAfterAddLiquidityReturnsDelta)
	set(p.AfterRemoveLiquidityReturnsDelta, FlagAfterRemoveLiquidityReturnsDelta)
	return f
}

// Decode expands a Flags bitmap into permissions.
func Decode(f Flags) Permissions {
	return Permissions{
		BeforeInitialize:      f&FlagBeforeInitialize != 0,
		AfterInitialize:       f&FlagAfterInitialize != 0,
		BeforeAddLiquidity:    f&FlagBeforeAddLiquidity != 0,
		AfterAddLiquidity:     f&FlagAfterAddLiquidity != 0,
		BeforeRemoveLiquidity: f&FlagBeforeRemoveLiquidity != 0,
		AfterRemoveLiquidity:  f&FlagAfterRemoveLiquidity != 0,
		BeforeSwap:            f&FlagBeforeSwap != 0,
		AfterSwap:             f&FlagAfterSwap != 0,
		BeforeDonate:          f&FlagBeforeDonate != 0,
		AfterDonate:           f&FlagAfterDonate != 0,

		NoOp: f&FlagNoOp != 0,

		BeforeSwapReturnsDelta:           f&FlagBeforeSwapReturnsDelta != 0,
		AfterSwapReturnsDelta:            f&FlagAfterSwapReturnsDelta != 0,
		AfterAddLiquidityReturnsDelta:    f&FlagAfterAddLiquidityReturnsDelta != 0,
		AfterRemoveLiquidityReturnsDelta: f&FlagAfterRemoveLiquidityReturnsDelta != 0,
	}
}

// Has reports whether all bits in flag are set.
func (f Flags) Has(flag Flags) bool { return f&flag == flag }

// Validate checks the internal consistency of a capability bitmap.
// hasHook is false when the pool key carries no hook object; in that
// case no flag may be set.
func Validate(f Flags, hasHook bool) error {
	if !hasHook {
		if f != 0 {
			return ErrFlagsWithoutHook
		}
		return nil
	}
	if f.Has(FlagNoOp) {
		before := FlagBeforeInitialize | FlagBeforeAddLiquidity |
			FlagBeforeRemoveLiquidity | FlagBeforeSwap | FlagBeforeDonate
		if f&before == 0 {
			return ErrNoOpWithoutBefore
		}
	}
	pairs := []struct{ privilege, callback Flags }{
		{FlagBeforeSwapReturnsDelta, FlagBeforeSwap},
		{FlagAfterSwapReturnsDelta, FlagAfterSwap},
		{FlagAfterAddLiquidityReturnsDelta, FlagAfterAddLiquidity},
		{FlagAfterRemoveLiquidityReturnsDelta, FlagAfterRemoveLiquidity},
	}
	for _, p := range pairs {
		if f.Has(p.privilege) && !f.Has(p.callback) {
			return ErrDeltaWithoutHook
		}
	}
	return nil
}

// Action tells the manager how to proceed after a before-callback.
type Action uint8

const (
	// Continue runs the core operation as usual.
	Continue Action = iota
	// Skip bypasses the core operation. Only honored for hooks with
	// the no-op capability.
	Skip
)

// Result is what a before-callback hands back to the manager.
type Result struct {
	Action Action

	// Delta is a balance adjustment claimed by the hook. The manager
	// honors it only when the hook holds the matching returns-delta
	// capability.
	Delta types.BalanceDelta

	// LPFeeOverride replaces the pool's LP fee for this swap when
	// OverrideLPFee is set. Only consulted on dynamic-fee pools.
	LPFeeOverride uint32
	OverrideLPFee bool
}

// ContinueResult is the zero-adjustment pass-through result.
func ContinueResult() Result {
	return Result{Action: Continue, Delta: types.ZeroBalanceDelta()}
}

// CheckResult validates a before-callback result against the hook's
// declared capabilities. deltaFlag is the returns-delta capability for
// the operation, or zero when the operation has none; a nonzero delta
// is then rejected unconditionally.
func CheckResult(r Result, f Flags, deltaFlag Flags) error {
	if r.Action == Skip && !f.Has(FlagNoOp) {
		return ErrSkipNotAllowed
	}
	if !r.Delta.IsZero() {
		if deltaFlag == 0 || !f.Has(deltaFlag) {
			return ErrDeltaNotAllowed
		}
	}
	return nil
}
