// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consts

const (
	Name    = "paranode"
	Version = "v0.1.0"

	IDLen     = 32
	ByteLen   = 1
	IntLen    = 4
	Uint32Len = 4
	Uint64Len = 8
	Int64Len  = 8
	MaxUint   = ^uint(0)
	MaxInt    = int(MaxUint >> 1)
	MaxUint32 = ^uint32(0)
	MaxUint64 = ^uint64(0)
)
