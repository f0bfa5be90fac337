// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/amm/types"
)

func registryKey(fee uint32) types.PoolKey {
	return types.PoolKey{
		Currency0: types.Currency{Address: common.HexToAddress("0x0000000000000000000000000000000000000001")},
		Currency1: types.Currency{Address: common.HexToAddress("0x0000000000000000000000000000000000000002")},
		Fee:       fee,
		Parameters: types.Parameters{
			TickSpacing: 60,
		},
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewPoolRegistry(memdb.New())
	key := registryKey(3000)

	require.NoError(t, r.Register(key))

	got, err := r.Get(key.ID())
	require.NoError(t, err)
	require.Equal(t, key, got)

	has, err := r.Has(key.ID())
	require.NoError(t, err)
	require.True(t, has)
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewPoolRegistry(memdb.New())
	key := registryKey(3000)

	require.NoError(t, r.Register(key))
	require.ErrorIs(t, r.Register(key), ErrAlreadyRegistered)

	// A different fee makes a different pool id.
	require.NoError(t, r.Register(registryKey(500)))
}

func TestRegistryMissing(t *testing.T) {
	r := NewPoolRegistry(memdb.New())
	_, err := r.Get(registryKey(3000).ID())
	require.ErrorIs(t, err, types.ErrPoolNotFound)
}

func TestRegistryRemove(t *testing.T) {
	r := NewPoolRegistry(memdb.New())
	key := registryKey(3000)
	require.NoError(t, r.Register(key))
	require.NoError(t, r.Remove(key.ID()))

	has, err := r.Has(key.ID())
	require.NoError(t, err)
	require.False(t, has)

	// Freed for re-registration.
	require.NoError(t, r.Register(key))
}
