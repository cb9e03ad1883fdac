// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/paranode/consts"
)

func TestPackerID(t *testing.T) {
	require := require.New(t)

	id := ids.GenerateTestID()
	wp := NewWriter(consts.IDLen, consts.IDLen)
	wp.PackID(id)
	require.NoError(wp.Err())

	var unpacked ids.ID
	rp := NewReader(wp.Bytes(), consts.IDLen)
	rp.UnpackID(true, &unpacked)
	require.NoError(rp.Done())
	require.Equal(id, unpacked)
}

func TestPackerRequiredUnpack(t *testing.T) {
	require := require.New(t)

	wp := NewWriter(consts.IDLen, consts.IDLen)
	wp.PackID(ids.Empty)

	var unpacked ids.ID
	rp := NewReader(wp.Bytes(), consts.IDLen)
	rp.UnpackID(true, &unpacked)
	require.ErrorIs(rp.Err(), ErrFieldNotPopulated)
}

func TestPackerUnpackBytes(t *testing.T) {
	require := require.New(t)

	payload := []byte("relay proof")
	wp := NewWriter(64, 64)
	wp.PackBytes(payload)
	wp.PackUint64(7)
	wp.PackInt64(-3)
	wp.PackString("para")

	var b []byte
	rp := NewReader(wp.Bytes(), 64)
	rp.UnpackBytes(-1, true, &b)
	require.Equal(payload, b)
	require.Equal(uint64(7), rp.UnpackUint64(true))
	require.Equal(int64(-3), rp.UnpackInt64())
	require.Equal("para", rp.UnpackString(true))
	require.NoError(rp.Done())
}

func TestPackerLimitedBytes(t *testing.T) {
	require := require.New(t)

	wp := NewWriter(64, 64)
	wp.PackBytes(make([]byte, 10))

	var b []byte
	rp := NewReader(wp.Bytes(), 64)
	rp.UnpackBytes(4, false, &b)
	require.Error(rp.Err())
}

func TestPackerTrailingBytes(t *testing.T) {
	require := require.New(t)

	wp := NewWriter(16, 16)
	wp.PackUint32(1)
	wp.PackUint32(2)

	rp := NewReader(wp.Bytes(), 16)
	require.Equal(uint32(1), rp.UnpackUint32())
	require.ErrorIs(rp.Done(), ErrTrailingBytes)
}

func TestPackerCountLimit(t *testing.T) {
	require := require.New(t)

	wp := NewWriter(8, 8)
	wp.PackCount(12)

	rp := NewReader(wp.Bytes(), 8)
	require.Zero(rp.UnpackCount(10))
	require.ErrorIs(rp.Err(), ErrTooManyItems)
}
