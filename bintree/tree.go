// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bintree maintains membership of 24-bit bin ids in a three-level
// bitmap tree with 256-way fan-out, answering nearest-populated-id queries
// in at most three word scans per level instead of a linear walk.
//
// Level 2 holds one bit per id; a level-1 bit marks a non-empty level-2
// word; the single level-0 word marks non-empty level-1 words. Add and
// Remove propagate lazily: a parent bit changes only when its child word
// transitions between zero and non-zero.
package bintree

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// MaxId is the largest representable bin id.
const MaxId = 1<<24 - 1

// Tree is the three-level bitmap. The zero value is not usable; construct
// with New.
type Tree struct {
	level0 uint256.Int
	level1 map[uint8]*uint256.Int
	level2 map[uint16]*uint256.Int
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{
		level1: make(map[uint8]*uint256.Int),
		level2: make(map[uint16]*uint256.Int),
	}
}

// Contains reports whether id is in the tree.
func (t *Tree) Contains(id uint32) bool {
	leaf, ok := t.level2[uint16(id>>8)]
	return ok && getBit(leaf, int(id&0xff))
}

// Add inserts id and reports whether the tree changed.
func (t *Tree) Add(id uint32) bool {
	leafKey := uint16(id >> 8)
	leaf, ok := t.level2[leafKey]
	if !ok {
		leaf = new(uint256.Int)
		t.level2[leafKey] = leaf
	}
	if getBit(leaf, int(id&0xff)) {
		return false
	}
	wasEmpty := leaf.IsZero()
	setBit(leaf, int(id&0xff))

	if wasEmpty {
		l1Key := uint8(leafKey >> 8)
		l1, ok := t.level1[l1Key]
		if !ok {
			l1 = new(uint256.Int)
			t.level1[l1Key] = l1
		}
		if l1.IsZero() {
			setBit(&t.level0, int(l1Key))
		}
		setBit(l1, int(leafKey&0xff))
	}
	return true
}

// Remove deletes id and reports whether the tree changed.
func (t *Tree) Remove(id uint32) bool {
	leafKey := uint16(id >> 8)
	leaf, ok := t.level2[leafKey]
	if !ok || !getBit(leaf, int(id&0xff)) {
		return false
	}
	clearBit(leaf, int(id&0xff))
	if !leaf.IsZero() {
		return true
	}
	delete(t.level2, leafKey)

	l1Key := uint8(leafKey >> 8)
	l1 := t.level1[l1Key]
	clearBit(l1, int(leafKey&0xff))
	if l1.IsZero() {
		delete(t.level1, l1Key)
		clearBit(&t.level0, int(l1Key))
	}
	return true
}

// FindFirstRight returns the greatest populated id strictly below id.
// The second return is false when no populated id exists in that direction.
func (t *Tree) FindFirstRight(id uint32) (uint32, bool) {
	if id == 0 {
		return 0, false
	}
	target := id - 1
	leafKey := uint16(target >> 8)

	if leaf, ok := t.level2[leafKey]; ok {
		if b, ok := closestBitRight(leaf, int(target&0xff)); ok {
			return uint32(leafKey)<<8 | uint32(b), true
		}
	}

	l1Key := uint8(leafKey >> 8)
	if l1, ok := t.level1[l1Key]; ok && leafKey&0xff > 0 {
		if j, ok := closestBitRight(l1, int(leafKey&0xff)-1); ok {
			return t.descendRight(uint16(l1Key)<<8 | uint16(j)), true
		}
	}

	if l1Key > 0 {
		if i, ok := closestBitRight(&t.level0, int(l1Key)-1); ok {
			l1 := t.level1[uint8(i)]
			j, _ := msb(l1)
			return t.descendRight(uint16(i)<<8 | uint16(j)), true
		}
	}
	return 0, false
}

// FindFirstLeft returns the least populated id strictly above id.
func (t *Tree) FindFirstLeft(id uint32) (uint32, bool) {
	if id >= MaxId {
		return 0, false
	}
	target := id + 1
	leafKey := uint16(target >> 8)

	if leaf, ok := t.level2[leafKey]; ok {
		if b, ok := closestBitLeft(leaf, int(target&0xff)); ok {
			return uint32(leafKey)<<8 | uint32(b), true
		}
	}

	l1Key := uint8(leafKey >> 8)
	if l1, ok := t.level1[l1Key]; ok && leafKey&0xff < 0xff {
		if j, ok := closestBitLeft(l1, int(leafKey&0xff)+1); ok {
			return t.descendLeft(uint16(l1Key)<<8 | uint16(j)), true
		}
	}

	if l1Key < 0xff {
		if i, ok := closestBitLeft(&t.level0, int(l1Key)+1); ok {
			l1 := t.level1[uint8(i)]
			j, _ := lsb(l1)
			return t.descendLeft(uint16(i)<<8 | uint16(j)), true
		}
	}
	return 0, false
}

// descendRight takes the most significant leaf bit under a level-1 branch.
func (t *Tree) descendRight(leafKey uint16) uint32 {
	b, _ := msb(t.level2[leafKey])
	return uint32(leafKey)<<8 | uint32(b)
}

// descendLeft takes the least significant leaf bit under a level-1 branch.
func (t *Tree) descendLeft(leafKey uint16) uint32 {
	b, _ := lsb(t.level2[leafKey])
	return uint32(leafKey)<<8 | uint32(b)
}

// closestBitRight returns the highest set bit at or below limit.
func closestBitRight(w *uint256.Int, limit int) (int, bool) {
	limb := limit >> 6
	for i := limb; i >= 0; i-- {
		x := w[i]
		if i == limb {
			if shift := uint(limit&63) + 1; shift < 64 {
				x &= uint64(1)<<shift - 1
			}
		}
		if x != 0 {
			return i<<6 + 63 - bits.LeadingZeros64(x), true
		}
	}
	return 0, false
}

// closestBitLeft returns the lowest set bit at or above limit.
func closestBitLeft(w *uint256.Int, limit int) (int, bool) {
	limb := limit >> 6
	for i := limb; i < 4; i++ {
		x := w[i]
		if i == limb {
			x &= ^uint64(0) << uint(limit&63)
		}
		if x != 0 {
			return i<<6 + bits.TrailingZeros64(x), true
		}
	}
	return 0, false
}

func msb(w *uint256.Int) (int, bool) { return closestBitRight(w, 255) }
func lsb(w *uint256.Int) (int, bool) { return closestBitLeft(w, 0) }

func getBit(w *uint256.Int, i int) bool { return w[i>>6]&(1<<(uint(i)&63)) != 0 }
func setBit(w *uint256.Int, i int)      { w[i>>6] |= 1 << (uint(i) & 63) }
func clearBit(w *uint256.Int, i int)    { w[i>>6] &^= 1 << (uint(i) & 63) }
