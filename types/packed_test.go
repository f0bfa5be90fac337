// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestPackedRoundTrip(t *testing.T) {
	x := uint256.NewInt(12345)
	y := new(uint256.Int).Lsh(uint256.NewInt(1), 127)

	p, err := PackUint128(x, y)
	require.NoError(t, err)

	gotX, gotY := p.Decode()
	require.True(t, x.Eq(gotX))
	require.True(t, y.Eq(gotY))
	require.True(t, x.Eq(p.Amount(false)))
	require.True(t, y.Eq(p.Amount(true)))
}

func TestPackedLaneOverflow(t *testing.T) {
	tooBig := new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	_, err := PackUint128(tooBig, uint256.NewInt(0))
	require.ErrorIs(t, err, ErrPackedOverflow)
	_, err = PackUint128(uint256.NewInt(0), tooBig)
	require.ErrorIs(t, err, ErrPackedOverflow)
}

func TestPackedAddOverflowDoesNotWrap(t *testing.T) {
	nearMax := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	nearMax.SubUint64(nearMax, 1)

	p, err := PackUint128(nearMax, uint256.NewInt(0))
	require.NoError(t, err)

	_, err = p.Add(PackUint64(1, 0))
	require.ErrorIs(t, err, ErrPackedOverflow)

	// The Y lane must not absorb X lane carry.
	sum, err := p.Add(PackUint64(0, 7))
	require.NoError(t, err)
	require.True(t, sum.X().Eq(nearMax))
	require.True(t, sum.Y().Eq(uint256.NewInt(7)))
}

func TestPackedSubUnderflow(t *testing.T) {
	p := PackUint64(10, 20)

	_, err := p.Sub(PackUint64(11, 0))
	require.ErrorIs(t, err, ErrPackedUnderflow)
	_, err = p.Sub(PackUint64(0, 21))
	require.ErrorIs(t, err, ErrPackedUnderflow)

	diff, err := p.Sub(PackUint64(10, 20))
	require.NoError(t, err)
	require.True(t, diff.IsZero())
}

func TestPackedComparisons(t *testing.T) {
	p := PackUint64(5, 9)
	require.True(t, p.Eq(PackUint64(5, 9)))
	require.False(t, p.Eq(PackUint64(9, 5)))

	require.True(t, p.AnyGt(PackUint64(4, 9)))
	require.True(t, p.AnyGt(PackUint64(5, 8)))
	require.False(t, p.AnyGt(PackUint64(5, 9)))
}

func TestPackedDeltaSigns(t *testing.T) {
	p := PackUint64(3, 4)

	owed := p.Delta(1)
	require.Equal(t, int64(3), owed.Amount0.Int64())
	require.Equal(t, int64(4), owed.Amount1.Int64())

	out := p.Delta(-1)
	require.Equal(t, int64(-3), out.Amount0.Int64())
	require.Equal(t, int64(-4), out.Amount1.Int64())
}
