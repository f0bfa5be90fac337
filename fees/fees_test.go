// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fees

import (
	"errors"
	"testing"

	"github.com/luxfi/amm/types"
)

func TestProtocolFeeLanes(t *testing.T) {
	f := NewProtocolFee(1000, 3000)
	if got := f.ZeroForOne(); got != 1000 {
		t.Fatalf("zeroForOne lane = %d, want 1000", got)
	}
	if got := f.OneForZero(); got != 3000 {
		t.Fatalf("oneForZero lane = %d, want 3000", got)
	}
	if got := f.Lane(true); got != 1000 {
		t.Fatalf("Lane(true) = %d, want 1000", got)
	}
	if got := f.Lane(false); got != 3000 {
		t.Fatalf("Lane(false) = %d, want 3000", got)
	}
}

func TestProtocolFeeValidate(t *testing.T) {
	tests := []struct {
		name string
		fee  ProtocolFee
		ok   bool
	}{
		{"zero", NewProtocolFee(0, 0), true},
		{"both at cap", NewProtocolFee(MaxProtocolFee, MaxProtocolFee), true},
		{"lane0 over cap", NewProtocolFee(MaxProtocolFee+1, 0), false},
		{"lane1 over cap", NewProtocolFee(0, MaxProtocolFee+1), false},
		{"stray high bits", ProtocolFee(1 << 24), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fee.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrProtocolFeeTooLarge) {
				t.Fatalf("expected ErrProtocolFeeTooLarge, got %v", err)
			}
		})
	}
}

func TestValidateLPFee(t *testing.T) {
	if err := ValidateLPFee(MaxLPFeeCL, MaxLPFeeCL); err != nil {
		t.Fatalf("cap should be allowed: %v", err)
	}
	if err := ValidateLPFee(MaxLPFeeCL+1, MaxLPFeeCL); !errors.Is(err, ErrLPFeeTooLarge) {
		t.Fatalf("expected ErrLPFeeTooLarge, got %v", err)
	}
	if err := ValidateLPFee(DynamicFeeFlag, MaxLPFeeBin); err != nil {
		t.Fatalf("dynamic flag should bypass the cap: %v", err)
	}
	if !IsDynamicFee(DynamicFeeFlag) {
		t.Fatal("DynamicFeeFlag not recognized")
	}
	if IsDynamicFee(3000) {
		t.Fatal("static fee misread as dynamic")
	}
}

func TestCalculateSwapFee(t *testing.T) {
	tests := []struct {
		name     string
		protocol uint16
		lp       uint32
		want     uint32
	}{
		{"no fees", 0, 0, 0},
		{"lp only", 0, 3000, 3000},
		{"protocol only", 1000, 0, 1000},
		// 1000 + 3000 - ceil(1000*3000/1e6) = 4000 - 3 = 3997
		{"both", 1000, 3000, 3997},
		// cap case: 4000 + 1e6 - ceil(4000*1e6/1e6) = 1e6
		{"lp at 100%", 4000, 1_000_000, 1_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateSwapFee(tt.protocol, tt.lp)
			if got != tt.want {
				t.Fatalf("CalculateSwapFee(%d, %d) = %d, want %d", tt.protocol, tt.lp, got, tt.want)
			}
		})
	}
}

// The composite fee never drops below either component and never
// exceeds their sum, across the full protocol lane range.
func TestSwapFeeBounds(t *testing.T) {
	lps := []uint32{0, 1, 500, 3000, 100_000, 1_000_000}
	for p := uint16(0); p <= MaxProtocolFee; p += 137 {
		for _, lp := range lps {
			got := CalculateSwapFee(p, lp)
			if got < uint32(p) || got < lp {
				t.Fatalf("composite %d below component (p=%d lp=%d)", got, p, lp)
			}
			if got > uint32(p)+lp {
				t.Fatalf("composite %d above sum (p=%d lp=%d)", got, p, lp)
			}
		}
	}
}

func TestProtocolFeePortion(t *testing.T) {
	// protocol 1000, lp 3000 -> composite 3997; of a 3997 fee the
	// protocol's share is 3997*1000/3997 = 1000.
	if got := ProtocolFeePortion(3997, 1000, 3997); got != 1000 {
		t.Fatalf("portion = %d, want 1000", got)
	}
	if got := ProtocolFeePortion(100, 0, 3000); got != 0 {
		t.Fatalf("portion with zero lane = %d, want 0", got)
	}
}

type staticController struct {
	fee ProtocolFee
	err error
}

func (c staticController) ProtocolFeeForPool(types.PoolKey) (ProtocolFee, error) {
	return c.fee, c.err
}

func TestSafeProtocolFee(t *testing.T) {
	key := types.PoolKey{}

	if got := SafeProtocolFee(nil, key); got != 0 {
		t.Fatalf("nil controller fee = %d, want 0", got)
	}
	if got := SafeProtocolFee(staticController{err: errors.New("boom")}, key); got != 0 {
		t.Fatalf("failing controller fee = %d, want 0", got)
	}
	if got := SafeProtocolFee(staticController{fee: NewProtocolFee(MaxProtocolFee+1, 0)}, key); got != 0 {
		t.Fatalf("invalid controller fee = %d, want 0", got)
	}
	want := NewProtocolFee(1000, 2000)
	if got := SafeProtocolFee(staticController{fee: want}, key); got != want {
		t.Fatalf("valid controller fee = %d, want %d", got, want)
	}
}
