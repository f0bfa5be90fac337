// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store persists pool keys so pool ids can be resolved back to
// their full keys across restarts.
package store

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"

	"github.com/luxfi/amm/types"
)

// ErrAlreadyRegistered is returned when a pool id is registered twice.
var ErrAlreadyRegistered = errors.New("pool id already registered")

var keyPrefix = []byte("pool/")

// PoolRegistry is a pool id to pool key index over a key-value store.
type PoolRegistry struct {
	db database.Database
}

// NewPoolRegistry wraps a database.
func NewPoolRegistry(db database.Database) *PoolRegistry {
	return &PoolRegistry{db: db}
}

func dbKey(id types.PoolId) []byte {
	return append(append([]byte{}, keyPrefix...), id[:]...)
}

// Register stores the key under its pool id. A pool id is immutable,
// so re-registering is an error.
func (r *PoolRegistry) Register(key types.PoolKey) error {
	id := key.ID()
	k := dbKey(id)
	has, err := r.db.Has(k)
	if err != nil {
		return fmt.Errorf("registry has %s: %w", id.Hex(), err)
	}
	if has {
		return ErrAlreadyRegistered
	}
	if err := r.db.Put(k, key.ToBytes()); err != nil {
		return fmt.Errorf("registry put %s: %w", id.Hex(), err)
	}
	return nil
}

// Get resolves a pool id to its key.
func (r *PoolRegistry) Get(id types.PoolId) (types.PoolKey, error) {
	data, err := r.db.Get(dbKey(id))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.PoolKey{}, types.ErrPoolNotFound
		}
		return types.PoolKey{}, fmt.Errorf("registry get %s: %w", id.Hex(), err)
	}
	return types.PoolKeyFromBytes(data)
}

// Has reports whether a pool id is registered.
func (r *PoolRegistry) Has(id types.PoolId) (bool, error) {
	return r.db.Has(dbKey(id))
}

// Remove deletes a registration. Pools are never deleted in normal
// operation; this exists for administrative repair.
func (r *PoolRegistry) Remove(id types.PoolId) error {
	return r.db.Delete(dbKey(id))
}
