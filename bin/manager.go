// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bin

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

// Hooks is the callback surface a liquidity-book hook can implement.
type Hooks interface {
	BeforeInitialize(key types.PoolKey, activeId uint32) (hooks.Result, error)
	AfterInitialize(key types.PoolKey, activeId uint32) error

	BeforeMint(key types.PoolKey, params MintParams) (hooks.Result, error)
	AfterMint(key types.PoolKey, params MintParams, delta types.BalanceDelta) (hooks.Result, error)
	BeforeBurn(key types.PoolKey, params BurnParams) (hooks.Result, error)
	AfterBurn(key types.PoolKey, params BurnParams, delta types.BalanceDelta) (hooks.Result, error)

	BeforeSwap(key types.PoolKey, params SwapParams) (hooks.Result, error)
	AfterSwap(key types.PoolKey, params SwapParams, delta types.BalanceDelta) (hooks.Result, error)

	BeforeDonate(key types.PoolKey, amountX, amountY *uint256.Int) (hooks.Result, error)
	AfterDonate(key types.PoolKey, amountX, amountY *uint256.Int) error
}

// PoolManager owns every liquidity-book pool.
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
	maxBinStep    uint16
	paused        bool
}

// NewPoolManager creates a manager bound to a vault.
func NewPoolManager(v *vault.Vault, owner common.Address, logger log.Logger) *PoolManager {
	return &PoolManager{
		pools:      make(map[types.PoolId]*Pool),
		keys:       make(map[types.PoolId]types.PoolKey),
		hooks:      make(map[common.Address]Hooks),
		vault:      v,
		log:        logger,
		owner:      owner,
		maxBinStep: MaxBinStep,
	}
}

// RegisterHook binds a hook implementation to its address.
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

// SetMaxBinStep lowers or restores the bin step ceiling for new pools.
// Owner only; existing pools are unaffected.
func (m *PoolManager) SetMaxBinStep(caller common.Address, max uint16) error {
	if caller != m.owner {
		return types.ErrUnauthorized
	}
	if max == 0 || max > MaxBinStep {
		return ErrInvalidBinStep
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxBinStep = max
	m.log.Info("max bin step updated", "max", max)
	return nil
}

// SetPaused flips the emergency switch. Owner only.
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
	step := key.Parameters.BinStep
	if step == 0 || step > m.maxBinStep {
		return ErrInvalidBinStep
	}
	// The tick-spacing field belongs to the other pool type. A stray
	// value would mint a second id for the same effective configuration.
	if key.Parameters.TickSpacing != 0 {
		return types.ErrUnusedParameterBits
	}
	if err := fees.ValidateLPFee(key.Fee, fees.MaxLPFeeBin); err != nil {
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

// Initialize creates a pool with the given active bin.
func (m *PoolManager) Initialize(key types.PoolKey, activeId uint32) error {
	if err := m.validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return types.ErrPoolPaused
	}

	id := key.ID()
	if _, exists := m.pools[id]; exists {
		return ErrPoolAlreadyInitialized
	}

	hook, flags := m.hookFor(key)
	if hook != nil && flags.Has(hooks.FlagBeforeInitialize) {
		if _, err := hook.BeforeInitialize(key, activeId); err != nil {
			return err
		}
	}

	lpFee := key.Fee
	if fees.IsDynamicFee(key.Fee) {
		lpFee = 0
	}
	protocolFee := fees.SafeProtocolFee(m.feeController, key)

	pool := NewPool(key.Parameters.BinStep)
	if err := pool.Initialize(activeId, protocolFee, lpFee); err != nil {
		return err
	}
	m.pools[id] = pool
	m.keys[id] = key

	if hook != nil && flags.Has(hooks.FlagAfterInitialize) {
		if err := hook.AfterInitialize(key, activeId); err != nil {
			delete(m.pools, id)
			delete(m.keys, id)
			return err
		}
	}
	if m.registry != nil {
		if err := m.registry.Register(key); err != nil {
			delete(m.pools, id)
			delete(m.keys, id)
			return err
		}
	}

	m.log.Info("bin pool initialized",
		"id", id.Hex(), "activeId", activeId,
		"fee", key.Fee, "binStep", key.Parameters.BinStep)
	return nil
}

func (m *PoolManager) getPool(key types.PoolKey) (*Pool, types.PoolId, error) {
	id := key.ID()
	pool, ok := m.pools[id]
	if !ok {
		return nil, id, types.ErrPoolNotFound
	}
	return pool, id, nil
}

// Mint deposits liquidity and reports the delta to the vault.
func (m *PoolManager) Mint(locker common.Address, key types.PoolKey, params MintParams) (types.BalanceDelta, []MintedShares, error) {
	zero := types.ZeroBalanceDelta()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return zero, nil, types.ErrPoolPaused
	}
	pool, id, err := m.getPool(key)
	if err != nil {
		return zero, nil, err
	}

	hook, flags := m.hookFor(key)
	if hook != nil && flags.Has(hooks.FlagBeforeAddLiquidity) {
		result, err := hook.BeforeMint(key, params)
		if err != nil {
			return zero, nil, err
		}
		if err := hooks.CheckResult(result, flags, 0); err != nil {
			return zero, nil, err
		}
		if result.Action == hooks.Skip {
			return zero, nil, nil
		}
	}

	// Snapshot so a failure after the pool mutates leaves no trace.
	saved := pool.Snapshot()
	delta, minted, err := pool.Mint(params)
	if err != nil {
		m.pools[id] = saved
		return zero, nil, err
	}

	if hook != nil && flags.Has(hooks.FlagAfterAddLiquidity) {
		result, err := hook.AfterMint(key, params, delta)
		if err != nil {
			m.pools[id] = saved
			return zero, nil, err
		}
		if err := hooks.CheckResult(result, flags, hooks.FlagAfterAddLiquidityReturnsDelta); err != nil {
			m.pools[id] = saved
			return zero, nil, err
		}
		delta = delta.Add(result.Delta)
	}

	if err := m.vault.AccountBalanceDelta(locker, key.Currency0, key.Currency1, delta); err != nil {
		m.pools[id] = saved
		return zero, nil, err
	}
	m.log.Debug("bin mint",
		"id", id.Hex(), "owner", params.Owner, "bins", len(params.Configs),
		"amount0", delta.Amount0, "amount1", delta.Amount1)
	return delta, minted, nil
}

// Burn redeems shares and reports the delta to the vault. Allowed even
// while paused so providers can always exit.
func (m *PoolManager) Burn(locker common.Address, key types.PoolKey, params BurnParams) (types.BalanceDelta, error) {
	zero := types.ZeroBalanceDelta()
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, id, err := m.getPool(key)
	if err != nil {
		return zero, err
	}

	hook, flags := m.hookFor(key)
	if hook != nil && flags.Has(hooks.FlagBeforeRemoveLiquidity) {
		result, err := hook.BeforeBurn(key, params)
		if err != nil {
			return zero, err
		}
		if err := hooks.CheckResult(result, flags, 0); err != nil {
			return zero, err
		}
		if result.Action == hooks.Skip {
			return zero, nil
		}
	}

	saved := pool.Snapshot()
	delta, err := pool.Burn(params)
	if err != nil {
		m.pools[id] = saved
		return zero, err
	}

	if hook != nil && flags.Has(hooks.FlagAfterRemoveLiquidity) {
		result, err := hook.AfterBurn(key, params, delta)
		if err != nil {
			m.pools[id] = saved
			return zero, err
		}
		if err := hooks.CheckResult(result, flags, hooks.FlagAfterRemoveLiquidityReturnsDelta); err != nil {
			m.pools[id] = saved
			return zero, err
		}
		delta = delta.Add(result.Delta)
	}

	if err := m.vault.AccountBalanceDelta(locker, key.Currency0, key.Currency1, delta); err != nil {
		m.pools[id] = saved
		return zero, err
	}
	m.log.Debug("bin burn",
		"id", id.Hex(), "owner", params.Owner, "bins", len(params.Configs))
	return delta, nil
}

// Swap executes an exact-input swap and reports the delta to the vault.
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
			if err := fees.ValidateLPFee(result.LPFeeOverride, fees.MaxLPFeeBin); err != nil {
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
	m.log.Debug("bin swap",
		"id", id.Hex(), "swapForY", params.SwapForY,
		"amountIn", params.AmountIn,
		"amount0", delta.Amount0, "amount1", delta.Amount1)
	return delta, nil
}

// Donate pays into the active bin and reports the delta to the vault.
func (m *PoolManager) Donate(locker common.Address, key types.PoolKey, amountX, amountY *uint256.Int) (types.BalanceDelta, error) {
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

	hook, flags := m.hookFor(key)
	if hook != nil && flags.Has(hooks.FlagBeforeDonate) {
		result, err := hook.BeforeDonate(key, amountX, amountY)
		if err != nil {
			return zero, err
		}
		if err := hooks.CheckResult(result, flags, 0); err != nil {
			return zero, err
		}
		if result.Action == hooks.Skip {
			return zero, nil
		}
	}

	saved := pool.Snapshot()
	delta, err := pool.Donate(amountX, amountY)
	if err != nil {
		m.pools[id] = saved
		return zero, err
	}
	if hook != nil && flags.Has(hooks.FlagAfterDonate) {
		if err := hook.AfterDonate(key, amountX, amountY); err != nil {
			m.pools[id] = saved
			return zero, err
		}
	}
	if err := m.vault.AccountBalanceDelta(locker, key.Currency0, key.Currency1, delta); err != nil {
		m.pools[id] = saved
		return zero, err
	}
	m.log.Debug("bin donation", "id", id.Hex(), "amountX", amountX, "amountY", amountY)
	return delta, nil
}

// SetProtocolFee updates the protocol fee word on a live pool. Owner
// only.
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
	if err := fees.ValidateLPFee(lpFee, fees.MaxLPFeeBin); err != nil {
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
	amountX, amountY := pool.ProtocolFeesAccrued.Decode()
	credit := types.NewBalanceDelta(
		new(big.Int).Neg(amountX.ToBig()),
		new(big.Int).Neg(amountY.ToBig()),
	)
	if err := m.vault.AccountBalanceDelta(caller, key.Currency0, key.Currency1, credit); err != nil {
		return nil, nil, err
	}
	pool.CollectProtocolFees()
	m.log.Info("protocol fees collected",
		"id", id.Hex(), "amountX", amountX, "amountY", amountY)
	return amountX.ToBig(), amountY.ToBig(), nil
}

// ActiveIdFor returns the pool's active bin id.
func (m *PoolManager) ActiveIdFor(key types.PoolKey) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, _, err := m.getPool(key)
	if err != nil {
		return 0, err
	}
	return pool.ActiveId, nil
}

// BinFor returns a copy of one bin's reserves and share supply.
func (m *PoolManager) BinFor(key types.PoolKey, binId uint32) (reserveX, reserveY, totalShares *uint256.Int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, _, err := m.getPool(key)
	if err != nil {
		return nil, nil, nil, err
	}
	b, ok := pool.Bins[binId]
	if !ok {
		return nil, nil, nil, ErrBinNotFound
	}
	rx, ry := b.Reserves.Decode()
	return rx, ry, new(uint256.Int).Set(b.TotalShares), nil
}
