// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/ava-labs/paranode/consts"
)

// Packer is a wrapper struct for the Packer struct
// from avalanchego/utils/wrappers/packing.go. A bool [required] parameter is
// added to many unpacking methods, which signals the packer to add an error
// if the expected method does not unpack properly.
type Packer struct {
	p *wrappers.Packer
}

// NewReader returns a Packer instance with the current byte array set to [src]
// and a maximum size of [limit].
func NewReader(src []byte, limit int) *Packer {
	return &Packer{
		p: &wrappers.Packer{Bytes: src, MaxSize: limit},
	}
}

// NewWriter returns a Packer instance with an initial size of [initial] and a
// maximum size of [limit].
func NewWriter(initial, limit int) *Packer {
	return &Packer{
		p: &wrappers.Packer{
			MaxSize: limit,
			Bytes:   make([]byte, 0, initial),
		},
	}
}

func (p *Packer) Bytes() []byte {
	return p.p.Bytes
}

func (p *Packer) Offset() int {
	return p.p.Offset
}

func (p *Packer) Err() error {
	return p.p.Err
}

// Empty returns true if the reader has consumed every byte.
func (p *Packer) Empty() bool {
	return p.p.Offset == len(p.p.Bytes)
}

// Done returns the packer error, or [ErrTrailingBytes] if a reader was not
// fully consumed.
func (p *Packer) Done() error {
	if p.p.Err != nil {
		return p.p.Err
	}
	if !p.Empty() {
		return fmt.Errorf("%w: %d remaining", ErrTrailingBytes, len(p.p.Bytes)-p.p.Offset)
	}
	return nil
}

func (p *Packer) addErr(err error) {
	if p.p.Err == nil {
		p.p.Err = err
	}
}

func (p *Packer) PackID(src ids.ID) {
	p.p.PackFixedBytes(src[:])
}

// UnpackID unpacks an avalanchego ID into [dest]. If [required] is true,
// and the unpacked bytes are empty, Packer will add an ErrFieldNotPopulated error.
func (p *Packer) UnpackID(required bool, dest *ids.ID) {
	copy((*dest)[:], p.p.UnpackFixedBytes(consts.IDLen))
	if required && *dest == ids.Empty {
		p.addErr(fmt.Errorf("%w: ID field is not populated", ErrFieldNotPopulated))
	}
}

func (p *Packer) PackByte(b byte) {
	p.p.PackByte(b)
}

func (p *Packer) UnpackByte() byte {
	return p.p.UnpackByte()
}

func (p *Packer) PackBool(src bool) {
	p.p.PackBool(src)
}

func (p *Packer) UnpackBool() bool {
	return p.p.UnpackBool()
}

func (p *Packer) PackUint32(v uint32) {
	p.p.PackInt(v)
}

func (p *Packer) UnpackUint32() uint32 {
	return p.p.UnpackInt()
}

func (p *Packer) PackUint64(v uint64) {
	p.p.PackLong(v)
}

// UnpackUint64 attempts to unpack a uint64 from [p]. If [required] and the
// unpacked value is zero, Packer will add an ErrFieldNotPopulated error.
func (p *Packer) UnpackUint64(required bool) uint64 {
	v := p.p.UnpackLong()
	if required && v == 0 {
		p.addErr(fmt.Errorf("%w: Uint64 field is not populated", ErrFieldNotPopulated))
	}
	return v
}

func (p *Packer) PackInt64(v int64) {
	p.p.PackLong(uint64(v))
}

func (p *Packer) UnpackInt64() int64 {
	return int64(p.p.UnpackLong())
}

func (p *Packer) PackFixedBytes(b []byte) {
	p.p.PackFixedBytes(b)
}

func (p *Packer) UnpackFixedBytes(size int, dest *[]byte) {
	*dest = p.p.UnpackFixedBytes(size)
}

// PackBytes packs [b] with a length prefix.
func (p *Packer) PackBytes(b []byte) {
	p.p.PackBytes(b)
}

// UnpackBytes unpacks [limit] bytes into [dest]. Otherwise
// if [limit] >= 0, UnpackBytes unpacks a byte slice array into [dest]. If
// [required] is set to true and the amount of bytes written to [dest] is 0,
// UnpackBytes adds an err ErrFieldNotPopulated to the Packer.
func (p *Packer) UnpackBytes(limit int, required bool, dest *[]byte) {
	if limit >= 0 {
		*dest = p.p.UnpackLimitedBytes(uint32(limit))
	} else {
		*dest = p.p.UnpackBytes()
	}
	if required && len(*dest) == 0 {
		p.addErr(fmt.Errorf("%w: Bytes field is not populated", ErrFieldNotPopulated))
	}
}

func (p *Packer) PackString(s string) {
	p.p.PackStr(s)
}

func (p *Packer) UnpackString(required bool) string {
	str := p.p.UnpackStr()
	if required && len(str) == 0 {
		p.addErr(fmt.Errorf("%w: String field is not populated", ErrFieldNotPopulated))
	}
	return str
}

// PackCount packs the length of a collection that follows.
func (p *Packer) PackCount(n int) {
	p.p.PackInt(uint32(n))
}

// UnpackCount unpacks a collection length and enforces [limit].
func (p *Packer) UnpackCount(limit int) int {
	n := int(p.p.UnpackInt())
	if n > limit {
		p.addErr(fmt.Errorf("%w: %d > %d", ErrTooManyItems, n, limit))
		return 0
	}
	return n
}
