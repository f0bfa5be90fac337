// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the identity and accounting primitives shared by the
// concentrated-liquidity and liquidity-book pool engines: currencies, pool
// keys and their deterministic ids, signed balance deltas, and the packed
// two-lane 128-bit amounts used by the bin engine.
package types

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Currency represents a token (native or contract-backed).
// The zero address represents the native coin.
type Currency struct {
	Address common.Address
}

// NativeCurrency is the native coin (no wrapping needed).
var NativeCurrency = Currency{Address: common.Address{}}

// IsNative returns true if this currency is the native coin.
func (c Currency) IsNative() bool {
	return c.Address == common.Address{}
}

// Less reports whether c sorts strictly before other.
// Pool keys require currency0 < currency1 so a pair has exactly one pool key.
func (c Currency) Less(other Currency) bool {
	return bytes.Compare(c.Address.Bytes(), other.Address.Bytes()) < 0
}

// ToBytes serializes the currency for hashing and storage.
func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// CurrencyFromBytes deserializes a currency.
func CurrencyFromBytes(data []byte) Currency {
	return Currency{Address: common.BytesToAddress(data)}
}

// PoolId is the deterministic identity of a pool, the blake3 hash of the
// canonical pool key encoding.
type PoolId [32]byte

// Hex returns the id as a 0x-prefixed hex string.
func (id PoolId) Hex() string {
	return common.Hash(id).Hex()
}

// Parameters is the decoded form of the pool key's packed parameters word.
// Exactly one of TickSpacing (concentrated-liquidity pools) or BinStep
// (liquidity-book pools) is nonzero for a valid key; the codec enforces that
// every bit outside the named fields is zero.
type Parameters struct {
	// HookFlags is the hook capability bitmap, interpreted by the hooks
	// package. Zero when the key carries no hook.
	HookFlags uint16

	// TickSpacing is the tick granularity of a concentrated-liquidity pool.
	TickSpacing int32

	// BinStep is the price step of a liquidity-book pool, in hundredths of
	// a basis point.
	BinStep uint16
}

// ParametersWordSize is the size of the packed parameters word.
const ParametersWordSize = 32

// Parameter codec errors.
var (
	ErrUnusedParameterBits = errors.New("unused parameter bits set")
	ErrParametersLength    = errors.New("invalid parameters word length")
)

// ToBytes encodes the parameters into the fixed 32-byte word:
// bytes [0:2] hook flags, [2:6] tick spacing, [6:8] bin step, [8:32] zero.
func (p Parameters) ToBytes() []byte {
	word := make([]byte, ParametersWordSize)
	binary.BigEndian.PutUint16(word[0:2], p.HookFlags)
	binary.BigEndian.PutUint32(word[2:6], uint32(p.TickSpacing))
	binary.BigEndian.PutUint16(word[6:8], p.BinStep)
	return word
}

// ParametersFromBytes decodes a packed parameters word, rejecting any word
// with bits set outside the named fields.
func ParametersFromBytes(word []byte) (Parameters, error) {
	if len(word) != ParametersWordSize {
		return Parameters{}, ErrParametersLength
	}
	for _, b := range word[8:] {
		if b != 0 {
			return Parameters{}, ErrUnusedParameterBits
		}
	}
	return Parameters{
		HookFlags:   binary.BigEndian.Uint16(word[0:2]),
		TickSpacing: int32(binary.BigEndian.Uint32(word[2:6])),
		BinStep:     binary.BigEndian.Uint16(word[6:8]),
	}, nil
}

// PoolKey uniquely identifies a pool.
// Sorted by currency address (currency0 < currency1).
type PoolKey struct {
	Currency0  Currency       // Lower address token
	Currency1  Currency       // Higher address token
	Hooks      common.Address // Hook contract address (zero = no hooks)
	Fee        uint32         // LP fee in pips, or the dynamic-fee flag
	Parameters Parameters
}

// poolKeySize is the canonical encoding length: three addresses, the fee
// word and the packed parameters word.
const poolKeySize = 20 + 20 + 20 + 4 + ParametersWordSize

// ErrPoolKeyLength is returned when decoding a truncated pool key.
var ErrPoolKeyLength = errors.New("invalid pool key data length")

// ID computes the unique pool identifier. The field order here is the wire
// contract; changing it changes every pool id.
func (pk PoolKey) ID() PoolId {
	h := blake3.New()
	h.Write(pk.Currency0.ToBytes())
	h.Write(pk.Currency1.ToBytes())
	h.Write(pk.Hooks.Bytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], pk.Fee)
	h.Write(feeBytes[:])
	h.Write(pk.Parameters.ToBytes())

	var id PoolId
	h.Digest().Read(id[:])
	return id
}

// ToBytes serializes the pool key for storage.
func (pk PoolKey) ToBytes() []byte {
	data := make([]byte, poolKeySize)
	copy(data[0:20], pk.Currency0.ToBytes())
	copy(data[20:40], pk.Currency1.ToBytes())
	copy(data[40:60], pk.Hooks.Bytes())
	binary.BigEndian.PutUint32(data[60:64], pk.Fee)
	copy(data[64:], pk.Parameters.ToBytes())
	return data
}

// PoolKeyFromBytes deserializes a pool key from storage.
func PoolKeyFromBytes(data []byte) (PoolKey, error) {
	if len(data) != poolKeySize {
		return PoolKey{}, ErrPoolKeyLength
	}
	params, err := ParametersFromBytes(data[64:])
	if err != nil {
		return PoolKey{}, err
	}
	return PoolKey{
		Currency0:  CurrencyFromBytes(data[0:20]),
		Currency1:  CurrencyFromBytes(data[20:40]),
		Hooks:      common.BytesToAddress(data[40:60]),
		Fee:        binary.BigEndian.Uint32(data[60:64]),
		Parameters: params,
	}, nil
}

// PositionKey computes the unique key of a concentrated-liquidity position.
func PositionKey(owner common.Address, tickLower, tickUpper int32, salt [32]byte) [32]byte {
	h := blake3.New()
	h.Write(owner.Bytes())

	var tickBytes [8]byte
	binary.BigEndian.PutUint32(tickBytes[:4], uint32(tickLower))
	binary.BigEndian.PutUint32(tickBytes[4:], uint32(tickUpper))
	h.Write(tickBytes[:])
	h.Write(salt[:])

	var key [32]byte
	h.Digest().Read(key[:])
	return key
}

// BinPositionKey computes the unique key of a liquidity-book position.
func BinPositionKey(owner common.Address, binId uint32, salt [32]byte) [32]byte {
	h := blake3.New()
	h.Write(owner.Bytes())

	var idBytes [4]byte
	binary.BigEndian.PutUint32(idBytes[:], binId)
	h.Write(idBytes[:])
	h.Write(salt[:])

	var key [32]byte
	h.Digest().Read(key[:])
	return key
}
