// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "errors"

// Errors shared by both pool engines. Every failure aborts the whole call
// before any state mutation becomes visible; there are no retries in the
// core.
var (
	ErrCurrencyNotSorted      = errors.New("currencies not sorted")
	ErrCurrenciesEqual        = errors.New("currencies identical")
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrPoolNotFound           = errors.New("pool not found")
	ErrInvalidFee             = errors.New("invalid fee")
	ErrSwapAmountZero         = errors.New("swap amount cannot be zero")
	ErrPoolPaused             = errors.New("pool manager paused")
	ErrUnauthorized           = errors.New("unauthorized")
)
