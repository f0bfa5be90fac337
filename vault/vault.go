// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault implements flash accounting for the pool managers.
// Token custody is centralized here: pool operations never move funds,
// they report balance deltas against the current locker, and the locker
// must bring every currency back to zero before its lock releases.
package vault

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/amm/types"
)

// Vault errors
var (
	ErrNotLocked             = errors.New("vault: not locked")
	ErrNotCurrentLocker      = errors.New("vault: caller is not the current locker")
	ErrCurrencyNotSettled    = errors.New("vault: currency not settled")
	ErrInsufficientReserves  = errors.New("vault: insufficient reserves")
	ErrNegativeSettleAmount  = errors.New("vault: settle amount must be non-negative")
	ErrNegativeTakeAmount    = errors.New("vault: take amount must be non-negative")
	ErrLockReentrancyMisuse  = errors.New("vault: locker already on the stack")
	ErrUnregisteredManagerOp = errors.New("vault: delta reported outside a lock")
)

// LockFunc runs with the vault locked on behalf of a locker.
type LockFunc func(v *Vault) error

// Vault tracks per-locker balance deltas and per-currency reserves.
//
// Sign convention: a positive delta means the locker owes that amount
// to the vault, a negative delta means the vault owes the locker.
type Vault struct {
	mu  sync.Mutex
	log log.Logger

	// lockers is the active lock stack; the last element is the
	// current locker. Nested locks are allowed.
	lockers []common.Address

	// deltas holds the outstanding balance per locker per currency.
	deltas map[common.Address]map[types.Currency]*big.Int

	// reserves is the vault's token inventory per currency.
	reserves map[types.Currency]*big.Int
}

// New creates an empty vault.
func New(logger log.Logger) *Vault {
	return &Vault{
		log:      logger,
		deltas:   make(map[common.Address]map[types.Currency]*big.Int),
		reserves: make(map[types.Currency]*big.Int),
	}
}

// Lock pushes locker onto the lock stack, runs fn, and verifies that
// every currency delta of the locker is zero before releasing. Nested
// locks by distinct lockers are permitted; re-locking by a locker
// already on the stack is rejected.
func (v *Vault) Lock(locker common.Address, fn LockFunc) error {
	v.mu.Lock()
	for _, l := range v.lockers {
		if l == locker {
			v.mu.Unlock()
			return ErrLockReentrancyMisuse
		}
	}
	v.lockers = append(v.lockers, locker)
	v.mu.Unlock()

	err := fn(v)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockers = v.lockers[:len(v.lockers)-1]

	if err != nil {
		delete(v.deltas, locker)
		return err
	}
	for currency, delta := range v.deltas[locker] {
		if delta.Sign() != 0 {
			v.log.Warn("lock released with outstanding delta",
				"locker", locker, "currency", currency.Address, "delta", delta)
			delete(v.deltas, locker)
			return ErrCurrencyNotSettled
		}
	}
	delete(v.deltas, locker)
	return nil
}

// Locked reports whether the vault currently holds at least one lock.
func (v *Vault) Locked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.lockers) > 0
}

// CurrentLocker returns the locker at the top of the stack.
func (v *Vault) CurrentLocker() (common.Address, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.lockers) == 0 {
		return common.Address{}, false
	}
	return v.lockers[len(v.lockers)-1], true
}

// AccountDelta records a balance change against the current locker.
// Positive amount means the locker owes the vault. Pool managers call
// this to report the outcome of swaps and liquidity changes.
func (v *Vault) AccountDelta(locker common.Address, currency types.Currency, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkLocker(locker); err != nil {
		return err
	}
	v.addDelta(locker, currency, amount)
	return nil
}

// AccountBalanceDelta records both legs of a pool operation's delta.
func (v *Vault) AccountBalanceDelta(locker common.Address, currency0, currency1 types.Currency, delta types.BalanceDelta) error {
	if err := v.AccountDelta(locker, currency0, delta.Amount0); err != nil {
		return err
	}
	return v.AccountDelta(locker, currency1, delta.Amount1)
}

// Settle credits a payment from the locker: the delta decreases by
// amount and the vault's reserves grow by the same amount.
func (v *Vault) Settle(locker common.Address, currency types.Currency, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeSettleAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkLocker(locker); err != nil {
		return err
	}
	v.addDelta(locker, currency, new(big.Int).Neg(amount))
	v.addReserves(currency, amount)
	return nil
}

// Take withdraws tokens from the vault to the locker: the delta grows
// by amount and reserves shrink. Fails when reserves are insufficient.
func (v *Vault) Take(locker common.Address, currency types.Currency, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeTakeAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkLocker(locker); err != nil {
		return err
	}
	r := v.reserves[currency]
	if r == nil || r.Cmp(amount) < 0 {
		return ErrInsufficientReserves
	}
	v.addDelta(locker, currency, amount)
	r.Sub(r, amount)
	return nil
}

// CurrencyDelta returns the locker's outstanding delta for a currency.
func (v *Vault) CurrencyDelta(locker common.Address, currency types.Currency) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if m, ok := v.deltas[locker]; ok {
		if d, ok := m[currency]; ok {
			return new(big.Int).Set(d)
		}
	}
	return new(big.Int)
}

// Reserves returns the vault's inventory for a currency.
func (v *Vault) Reserves(currency types.Currency) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := v.reserves[currency]; ok {
		return new(big.Int).Set(r)
	}
	return new(big.Int)
}

// Deposit adds externally supplied tokens to the reserves without
// touching any delta. Used to seed the vault in tests and by transfer
// adapters that custody real balances.
func (v *Vault) Deposit(currency types.Currency, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.addReserves(currency, amount)
}

func (v *Vault) checkLocker(locker common.Address) error {
	if len(v.lockers) == 0 {
		return ErrNotLocked
	}
	if v.lockers[len(v.lockers)-1] != locker {
		return ErrNotCurrentLocker
	}
	return nil
}

func (v *Vault) addDelta(locker common.Address, currency types.Currency, amount *big.Int) {
	m, ok := v.deltas[locker]
	if !ok {
		m = make(map[types.Currency]*big.Int)
		v.deltas[locker] = m
	}
	d, ok := m[currency]
	if !ok {
		d = new(big.Int)
		m[currency] = d
	}
	d.Add(d, amount)
}

func (v *Vault) addReserves(currency types.Currency, amount *big.Int) {
	r, ok := v.reserves[currency]
	if !ok {
		r = new(big.Int)
		v.reserves[currency] = r
	}
	r.Add(r, amount)
}
