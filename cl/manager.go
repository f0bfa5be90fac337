// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cl

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/amm/fees"
	"github.com/luxfi/amm/hooks"
	"github.com/luxfi/amm/store"
	"github.com/luxfi/amm/types"
	"github.com/luxfi/amm/vault"
)

// Hooks is the callback surface a concentrated-liquidity hook can
// implement. Which callbacks actually run is governed by the capability
// flags in the pool key's parameters.
type Hooks interface {
	BeforeInitialize(key types.PoolKey, sqrtPriceX96 *uint256.Int) (hooks.Result, error)
	AfterInitialize(key types.PoolKey, sqrtPriceX96 *uint256.Int, tick int32) error

	BeforeAddLiquidity(key types.PoolKey, params ModifyLiquidityParams) (hooks.Result, error)
	AfterAddLiquidity(key types.PoolKey, params ModifyLiquidityParams, delta types.BalanceDelta) (hooks.Result, error)
	BeforeRemoveLiquidity(key types.PoolKey, params ModifyLiquidityParams) (hooks.Result, error)
	AfterRemoveLiquidity(key types.PoolKey, params ModifyLiquidityParams, delta types.BalanceDelta) (hooks.Result, error)

	BeforeSwap(key types.PoolKey, params SwapParams) (hooks.Result, error)
	AfterSwap(key types.PoolKey, params SwapParams, delta types.BalanceDelta) (hooks.Result, error)

	BeforeDonate(key types.PoolKey, amount0, amount1 *uint256.Int) (hooks.Result, error)
	AfterDonate(key types.PoolKey, amount0, amount1 *uint256.Int) error
}

// PoolManager owns every concentrated-liquidity pool and orchestrates
// hook dispatch, fee administration and vault accounting around the
// pool operations.
type PoolManager struct {
	mu sync.RWMutex

	pools map[types.PoolId]*Pool
	keys  map[types.PoolId]types.PoolKey
	hooks map[common.Address]Hooks

	vault    *vault.Vault
	registry *store.PoolRegistry
	log      log.Logger

	owner         common.Address
	feeController fees.Controller
	paused        bool
}

// NewPoolManager creates a manager bound to a vault. owner gates the
// administrative operations.
func NewPoolManager(v *vault.Vault, owner common.Address, logger log.Logger) *PoolManager {
	return &PoolManager{
		pools: make(map[types.PoolId]*Pool),
		keys:  make(map[types.PoolId]types.PoolKey),
		hooks: make(map[common.Address]Hooks),
		vault: v,
		log:   logger,
		owner: owner,
	}
}

// RegisterHook binds a hook implementation to its address so pool keys
// can reference it.
func (m *PoolManager) RegisterHook(addr common.Address, h Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[addr] = h
}

// SetProtocolFeeController installs the controller consulted at pool
// initialization. Owner only.
func (m *PoolManager) SetProtocolFeeController(caller common.Address, c fees.Controller) error {
	if caller != m.owner {
		return types.ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeController = c
	return nil
}

// SetRegistry attaches a persistent pool-key registry. Every pool
// initialized afterwards is recorded in it, so a restarted process can
// rebuild its key set. Owner only.
func (m *PoolManager) SetRegistry(caller common.Address, r *store.PoolRegistry) error {
	if caller != m.owner {
		return types.ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = r
	return nil
}

// SetPaused flips the emergency switch. Owner only. Paused managers
// reject everything except liquidity removal.
func (m *PoolManager) SetPaused(caller common.Address, paused bool) error {
	if caller != m.owner {
		return types.ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = paused
	m.log.Warn("pause state changed", "paused", paused)
	return nil
}

func (m *PoolManager) validateKey(key types.PoolKey) error {
	if key.Currency0 == key.Currency1 {
		return types.ErrCurrenciesEqual
	}
	if !key.Currency0.Less(key.Currency1) {
		return types.ErrCurrencyNotSorted
	}
	spacing := key.Parameters.TickSpacing
	if spacing < MinTickSpacing || spacing > MaxTickSpacing {
		return ErrTickOutOfRange
	}
	// The bin-step field belongs to the other pool type. A stray value
	// would mint a second id for the same effective configuration.
	if key.Parameters.BinStep != 0 {
		return types.ErrUnusedParameterBits
	}
	if err := fees.ValidateLPFee(key.Fee, fees.MaxLPFeeCL); err != nil {
		return err
	}
	flags := hooks.Flags(key.Parameters.HookFlags)
	hasHook := key.Hooks != (common.Address{})
	return hooks.Validate(flags, hasHook)
}

func (m *PoolManager) hookFor(key types.PoolKey) (Hooks, hooks.Flags) {
	if key.Hooks == (common.Address{}) {
		return nil, 0
	}
	return m.hooks[key.Hooks], hooks.Flags(key.Parameters.HookFlags)
}

// Initialize creates and prices a new pool for the key.
func (m *PoolManager) Initialize(key types.PoolKey, sqrtPriceX96 *uint256.Int) (int32, error) {
	if err := m.validateKey(key); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return 0, types.ErrPoolPaused
	}

	id := key.ID()
	if _, exists := m.pools[id]; exists {
		return 0, ErrPoolAlreadyInitialized
	}

	hook, flags := m.hookFor(key)
	if hook != nil && flags.Has(hooks.FlagBeforeInitialize) {
		if _, err := hook.BeforeInitialize(key, sqrtPriceX96); err != nil {
			return 0, err
		}
	}

	lpFee := key.Fee
	if fees.IsDynamicFee(key.Fee) {
		lpFee = 0
	}
	protocolFee := fees.SafeProtocolFee(m.feeController, key)

	pool := NewPool(key.Parameters.TickSpacing)
	tick, err := pool.Initialize(sqrtPriceX96, protocolFee, lpFee)
	if err != nil {
		return 0, err
	}
	m.pools[id] = pool
	m.keys[id] = key

	if hook != nil && flags.Has(hooks.FlagAfterInitialize) {
		if err := hook.AfterInitialize(key, sqrtPriceX96, tick); err != nil {
			delete(m.pools, id)
			delete(m.keys, id)
			return 0, err
		}
	}
	if m.registry != nil {
		if err := m.registry.Register(key); err != nil {
			delete(m.pools, id)
			delete(m.keys, id)
			return 0, err
		}
	}

	m.log.Info("pool initialized",
		"id", id.Hex(), "tick", tick,
		"fee", key.Fee, "tickSpacing", key.Parameters.TickSpacing)
	return tick, nil
}

func (m *PoolManager) getPool(key types.PoolKey) (*Pool, types.PoolId, error) {
	id := key.ID()
	pool, ok := m.pools[id]
	if !ok {
		return nil, id, types.ErrPoolNotFound
	}
	return pool, id, nil
}

// ModifyLiquidity changes a position and reports the resulting deltas
// to the vault against locker. The principal and fee deltas are
// returned separately; both are already accounted.
func (m *PoolManager) ModifyLiquidity(locker common.Address, key types.PoolKey, params ModifyLiquidityParams) (principal, feeDelta types.BalanceDelta, err error) {
	zero := types.ZeroBalanceDelta()
	m.mu.Lock()
	defer m.mu.Unlock()

	adding := params.LiquidityDelta.Sign() > 0
	if m.paused && adding {
		return zero, zero, types.ErrPoolPaused
	}
	pool, id, err := m.getPool(key)
	if err != nil {
		return zero, zero, err
	}

	hook, flags := m.hookFor(key)
	beforeFlag, afterFlag := hooks.FlagBeforeRemoveLiquidity, hooks.FlagAfterRemoveLiquidity
	deltaFlag := hooks.FlagAfterRemoveLiquidityReturnsDelta
	if adding {
		beforeFlag, afterFlag = hooks.FlagBeforeAddLiquidity, hooks.FlagAfterAddLiquidity
		deltaFlag = hooks.FlagAfterAddLiquidityReturnsDelta
	}

	if hook != nil && flags.Has(beforeFlag) {
		var result hooks.Result
		if adding {
			result, err = hook.BeforeAddLiquidity(key, params)
		} else {
			result, err = hook.BeforeRemoveLiquidity(key, params)
		}
		if err != nil {
			return zero, zero, err
		}
		if err := hooks.CheckResult(result, flags, 0); err != nil {
			return zero, zero, err
		}
		if result.Action == hooks.Skip {
			return zero, zero, nil
		}
	}

	// Snapshot so a failure after the pool mutates leaves no trace.
	saved := pool.Snapshot()
	principal, feeDelta, err = pool.ModifyLiquidity(params)
	if err != nil {
		return zero, zero, err
	}

	callerDelta := principal.Add(feeDelta)
	if hook != nil && flags.Has(afterFlag) {
		var result hooks.Result
		if adding {
			result, err = hook.AfterAddLiquidity(key, params, callerDelta)
		} else {
			result, err = hook.AfterRemoveLiquidity(key, params, callerDelta)
		}
		if err != nil {
			m.pools[id] = saved
			return zero, zero, err
		}
		if err := hooks.CheckResult(result, flags, deltaFlag); err != nil {
			m.pools[id] = saved
			return zero, zero, err
		}
		callerDelta = callerDelta.Add(result.Delta)
	}

	if err := m.vault.AccountBalanceDelta(locker, key.Currency0, key.Currency1, callerDelta); err != nil {
		m.pools[id] = saved
		return zero, zero, err
	}
	m.log.Debug("liquidity modified",
		"id", id.Hex(), "owner", params.Owner,
		"tickLower", params.TickLower, "tickUpper", params.TickUpper,
		"delta", params.LiquidityDelta)
	return principal, feeDelta, nil
}

// Swap executes a swap and reports the delta to the vault.
func (m *PoolManager) Swap(locker common.Address, key types.PoolKey, params SwapParams) (types.BalanceDelta, error) {
	zero := types.ZeroBalanceDelta()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return zero, types.ErrPoolPaused
	}
	pool, id, err := m.getPool(key)
	if err != nil {
		return zero, err
	}
	if params.AmountSpecified == nil || params.AmountSpecified.Sign() == 0 {
		return zero, types.ErrSwapAmountZero
	}

	hook, flags := m.hookFor(key)
	if hook != nil && flags.Has(hooks.FlagBeforeSwap) {
		result, err := hook.BeforeSwap(key, params)
		if err != nil {
			return zero, err
		}
		if err := hooks.CheckResult(result, flags, hooks.FlagBeforeSwapReturnsDelta); err != nil {
			return zero, err
		}
		if result.Action == hooks.Skip {
			if !result.Delta.IsZero() {
				if err := m.vault.AccountBalanceDelta(locker, key.Currency0, key.Currency1, result.Delta); err != nil {
					return zero, err
				}
			}
			return result.Delta, nil
		}
		if result.OverrideLPFee && fees.IsDynamicFee(key.Fee) {
			if err := fees.ValidateLPFee(result.LPFeeOverride, fees.MaxLPFeeCL); err != nil {
				return zero, err
			}
			params.LPFeeOverride = result.LPFeeOverride
			params.HasLPFeeOverride = true
		}
	}

	saved := pool.Snapshot()
	delta, err := pool.Swap(params)
	if err != nil {
		m.pools[id] = saved
		return zero, err
	}

	if hook != nil && flags.Has(hooks.FlagAfterSwap) {
		result, err := hook.AfterSwap(key, params, delta)
		if err != nil {
			m.pools[id] = saved
			return zero, err
		}
		if err := hooks.CheckResult(result, flags, hooks.FlagAfterSwapReturnsDelta); err != nil {
			m.pools[id] = saved
			return zero, err
		}
		delta = delta.Add(result.Delta)
	}

	if err := m.vault.AccountBalanceDelta(locker, key.Currency0, key.Currency1, delta); err != nil {
		m.pools[id] = saved
		return zero, err
	}
	m.log.Debug("swap executed",
		"id", id.Hex(), "zeroForOne", params.ZeroForOne,
		"amountSpecified", params.AmountSpecified,
		"amount0", delta.Amount0, "amount1", delta.Amount1)
	return delta, nil
}

// Donate pays into the pool's in-range fee growth and returns the tick
// the donation landed on.
func (m *PoolManager) Donate(locker common.Address, key types.PoolKey, amount0, amount1 *uint256.Int) (types.BalanceDelta, int32, error) {
	zero := types.ZeroBalanceDelta()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return zero, 0, types.ErrPoolPaused
	}
	pool, id, err := m.getPool(key)
	if err != nil {
		return zero, 0, err
	}

	hook, flags := m.hookFor(key)
	if hook != nil && flags.Has(hooks.FlagBeforeDonate) {
		result, err := hook.BeforeDonate(key, amount0, amount1)
		if err != nil {
			return zero, 0, err
		}
		if err := hooks.CheckResult(result, flags, 0); err != nil {
			return zero, 0, err
		}
		if result.Action == hooks.Skip {
			return zero, 0, nil
		}
	}

	saved := pool.Snapshot()
	delta, tick, err := pool.Donate(amount0, amount1)
	if err != nil {
		m.pools[id] = saved
		return zero, 0, err
	}
	if hook != nil && flags.Has(hooks.FlagAfterDonate) {
		if err := hook.AfterDonate(key, amount0, amount1); err != nil {
			m.pools[id] = saved
			return zero, 0, err
		}
	}
	if err := m.vault.AccountBalanceDelta(locker, key.Currency0, key.Currency1, delta); err != nil {
		m.pools[id] = saved
		return zero, 0, err
	}
	m.log.Debug("donation", "id", id.Hex(), "tick", tick, "amount0", amount0, "amount1", amount1)
	return delta, tick, nil
}

// SetProtocolFee updates the protocol fee word on a live pool. Only the
// owner or the installed controller may call.
func (m *PoolManager) SetProtocolFee(caller common.Address, key types.PoolKey, fee fees.ProtocolFee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.owner {
		return types.ErrUnauthorized
	}
	if err := fee.Validate(); err != nil {
		return err
	}
	pool, id, err := m.getPool(key)
	if err != nil {
		return err
	}
	pool.ProtocolFee = fee
	m.log.Info("protocol fee updated", "id", id.Hex(), "fee", uint32(fee))
	return nil
}

// UpdateDynamicLPFee sets the LP fee on a dynamic-fee pool. Only the
// pool's hook may call it.
func (m *PoolManager) UpdateDynamicLPFee(caller common.Address, key types.PoolKey, lpFee uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !fees.IsDynamicFee(key.Fee) || caller != key.Hooks {
		return types.ErrUnauthorized
	}
	if err := fees.ValidateLPFee(lpFee, fees.MaxLPFeeCL); err != nil {
		return err
	}
	pool, _, err := m.getPool(key)
	if err != nil {
		return err
	}
	pool.LPFee = lpFee
	return nil
}

// CollectProtocolFees drains the accrued protocol fees of a pool and
// credits them to the caller's vault balance. Owner only; must run
// inside a vault lock held by caller.
func (m *PoolManager) CollectProtocolFees(caller common.Address, key types.PoolKey) (*big.Int, *big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.owner {
		return nil, nil, types.ErrUnauthorized
	}
	pool, id, err := m.getPool(key)
	if err != nil {
		return nil, nil, err
	}
	// Account the credit first so a vault failure cannot strand fees
	// already drained from the pool.
	amount0 := new(uint256.Int).Set(pool.ProtocolFeesAccrued0)
	amount1 := new(uint256.Int).Set(pool.ProtocolFeesAccrued1)
	credit := types.NewBalanceDelta(
		new(big.Int).Neg(amount0.ToBig()),
		new(big.Int).Neg(amount1.ToBig()),
	)
	if err := m.vault.AccountBalanceDelta(caller, key.Currency0, key.Currency1, credit); err != nil {
		return nil, nil, err
	}
	pool.CollectProtocolFees()
	m.log.Info("protocol fees collected",
		"id", id.Hex(), "amount0", amount0, "amount1", amount1)
	return amount0.ToBig(), amount1.ToBig(), nil
}

// Slot0For returns a copy of the pool's hot state.
func (m *PoolManager) Slot0For(key types.PoolKey) (Slot0, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, _, err := m.getPool(key)
	if err != nil {
		return Slot0{}, err
	}
	return Slot0{
		SqrtPriceX96: new(uint256.Int).Set(pool.SqrtPriceX96),
		Tick:         pool.Tick,
		ProtocolFee:  pool.ProtocolFee,
		LPFee:        pool.LPFee,
	}, nil
}

// LiquidityFor returns the pool's in-range liquidity.
func (m *PoolManager) LiquidityFor(key types.PoolKey) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, _, err := m.getPool(key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(pool.Liquidity), nil
}

// PositionFor returns a position snapshot.
func (m *PoolManager) PositionFor(key types.PoolKey, owner common.Address, tickLower, tickUpper int32, salt [32]byte) (Position, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, _, err := m.getPool(key)
	if err != nil {
		return Position{}, false, err
	}
	pos, ok := pool.Positions.Get(types.PositionKey(owner, tickLower, tickUpper, salt))
	return pos, ok, nil
}
