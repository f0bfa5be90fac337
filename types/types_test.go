// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func testKey() PoolKey {
	return PoolKey{
		Currency0: Currency{Address: common.HexToAddress("0x1111111111111111111111111111111111111111")},
		Currency1: Currency{Address: common.HexToAddress("0x2222222222222222222222222222222222222222")},
		Fee:       3000,
		Parameters: Parameters{
			TickSpacing: 60,
		},
	}
}

func TestPoolKeyIDDeterministic(t *testing.T) {
	key := testKey()
	id1 := key.ID()
	id2 := key.ID()
	require.Equal(t, id1, id2)

	// Any field change must change the id.
	other := testKey()
	other.Fee = 500
	require.NotEqual(t, id1, other.ID())

	other = testKey()
	other.Parameters.TickSpacing = 10
	require.NotEqual(t, id1, other.ID())

	other = testKey()
	other.Hooks = common.HexToAddress("0x3333333333333333333333333333333333333333")
	require.NotEqual(t, id1, other.ID())
}

func TestPoolKeyRoundTrip(t *testing.T) {
	key := testKey()
	key.Parameters.HookFlags = 0x1234

	decoded, err := PoolKeyFromBytes(key.ToBytes())
	require.NoError(t, err)
	require.Equal(t, key, decoded)
	require.Equal(t, key.ID(), decoded.ID())
}

func TestPoolKeyFromBytesRejectsLength(t *testing.T) {
	_, err := PoolKeyFromBytes(make([]byte, 95))
	require.ErrorIs(t, err, ErrPoolKeyLength)
}

func TestCurrencyOrdering(t *testing.T) {
	a := Currency{Address: common.HexToAddress("0x01")}
	b := Currency{Address: common.HexToAddress("0x02")}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.False(t, a.Less(a))

	require.True(t, NativeCurrency.IsNative())
	require.False(t, a.IsNative())
	require.True(t, NativeCurrency.Less(a))
}

func TestParametersRejectUnusedBits(t *testing.T) {
	word := Parameters{TickSpacing: 60}.ToBytes()

	for _, idx := range []int{8, 15, 31} {
		mutated := make([]byte, len(word))
		copy(mutated, word)
		mutated[idx] = 0x01
		_, err := ParametersFromBytes(mutated)
		require.ErrorIs(t, err, ErrUnusedParameterBits, "byte %d", idx)
	}

	decoded, err := ParametersFromBytes(word)
	require.NoError(t, err)
	require.Equal(t, int32(60), decoded.TickSpacing)
}

func TestPositionKeySaltScoped(t *testing.T) {
	owner := common.HexToAddress("0xabcd")
	var salt1, salt2 [32]byte
	salt2[0] = 1

	k1 := PositionKey(owner, -60, 60, salt1)
	k2 := PositionKey(owner, -60, 60, salt2)
	require.NotEqual(t, k1, k2)
	require.Equal(t, k1, PositionKey(owner, -60, 60, salt1))

	b1 := BinPositionKey(owner, 1<<23, salt1)
	b2 := BinPositionKey(owner, 1<<23, salt2)
	require.NotEqual(t, b1, b2)
}
