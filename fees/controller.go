// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fees

import (
	"fmt"

	"github.com/luxfi/amm/types"
)

// Controller is the protocol-fee-controller query contract consumed by the
// pool managers. Implementations live outside the pricing core.
type Controller interface {
	// ProtocolFeeForPool returns the packed protocol fee for a new pool.
	ProtocolFeeForPool(key types.PoolKey) (ProtocolFee, error)
}

// SafeProtocolFee queries the controller for the initialize path. A nil
// controller, a failed call, or an out-of-range word all degrade to a zero
// protocol fee; initialization must not be blocked by a broken controller.
func SafeProtocolFee(c Controller, key types.PoolKey) ProtocolFee {
	if c == nil {
		return 0
	}
	fee, err := c.ProtocolFeeForPool(key)
	if err != nil {
		return 0
	}
	if fee.Validate() != nil {
		return 0
	}
	return fee
}

// FetchProtocolFee queries the controller for the explicit set path. Unlike
// SafeProtocolFee every failure propagates to the caller.
func FetchProtocolFee(c Controller, key types.PoolKey) (ProtocolFee, error) {
	if c == nil {
		return 0, fmt.Errorf("%w: no controller configured", types.ErrUnauthorized)
	}
	fee, err := c.ProtocolFeeForPool(key)
	if err != nil {
		return 0, fmt.Errorf("fee controller: %w", err)
	}
	if err := fee.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %d", ErrControllerValue, fee)
	}
	return fee, nil
}
