// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import "errors"

var (
	ErrTooManyItems      = errors.New("too many items")
	ErrFieldNotPopulated = errors.New("field is not populated")
	ErrInvalidSize       = errors.New("invalid size")
	ErrTrailingBytes     = errors.New("trailing bytes")
)
