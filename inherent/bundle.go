// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inherent

import (
	"fmt"

	"github.com/ava-labs/paranode/codec"
	"github.com/ava-labs/paranode/consts"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/relay"
)

const (
	KindLen    = 8
	MaxEntries = 16
	// MaxPayload bounds a single entry. Parachain entries carry relay proofs
	// and message queues, so this is generous.
	MaxPayload = 4 * 1024 * 1024
)

// Kind identifies an inherent. Consumers look entries up by kind.
type Kind [KindLen]byte

var (
	KindTimestamp = Kind{'t', 'i', 'm', 's', 't', 'a', 'p', '0'}
	KindParachain = Kind{'s', 'y', 's', 'i', '1', '3', '3', '7'}
	KindAuthor    = Kind{'n', 'i', 'm', 'b', 'u', 's', 'i', 'o'}
)

func (k Kind) String() string {
	return string(k[:])
}

type Entry struct {
	Kind Kind
	Data []byte
}

// Bundle is the ordered set of inherents a block embeds. Order is:
// timestamp, then the parachain (relay or mocked) entry, then authorship.
type Bundle struct {
	entries []Entry
}

func NewBundle() *Bundle {
	return &Bundle{}
}

// Put appends an entry. Each kind may appear once.
func (b *Bundle) Put(k Kind, data []byte) error {
	if _, ok := b.Get(k); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, k)
	}
	b.entries = append(b.entries, Entry{Kind: k, Data: data})
	return nil
}

func (b *Bundle) Get(k Kind) ([]byte, bool) {
	for _, e := range b.entries {
		if e.Kind == k {
			return e.Data, true
		}
	}
	return nil, false
}

func (b *Bundle) Entries() []Entry {
	return b.entries
}

func (b *Bundle) Len() int {
	return len(b.entries)
}

// Kinds returns entry kinds in bundle order.
func (b *Bundle) Kinds() []Kind {
	kinds := make([]Kind, len(b.entries))
	for i, e := range b.entries {
		kinds[i] = e.Kind
	}
	return kinds
}

// Validate checks entry ordering. [parachain] requires a parachain entry.
func (b *Bundle) Validate(parachain bool) error {
	if len(b.entries) == 0 || b.entries[0].Kind != KindTimestamp {
		return ErrMissingTimestamp
	}
	for i, e := range b.entries {
		if e.Kind == KindParachain && i != 1 {
			return ErrMisplacedParachain
		}
	}
	if _, ok := b.Get(KindParachain); parachain && !ok {
		return ErrMissingParachain
	}
	return nil
}

func (b *Bundle) Timestamp() (int64, error) {
	data, ok := b.Get(KindTimestamp)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKind, KindTimestamp)
	}
	p := codec.NewReader(data, consts.Int64Len)
	ts := p.UnpackInt64()
	if err := p.Done(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return ts, nil
}

func (b *Bundle) Parachain() (*ParachainData, error) {
	data, ok := b.Get(KindParachain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKind, KindParachain)
	}
	d, err := UnmarshalParachainData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return d, nil
}

func (b *Bundle) Author() (ed25519.PublicKey, error) {
	data, ok := b.Get(KindAuthor)
	if !ok {
		return ed25519.EmptyPublicKey, fmt.Errorf("%w: %s", ErrMissingKind, KindAuthor)
	}
	if len(data) != ed25519.PublicKeyLen {
		return ed25519.EmptyPublicKey, ErrInvalidPayload
	}
	return ed25519.PublicKey(data), nil
}

// WithAuthor appends the authorship entry for [pk].
func WithAuthor(b *Bundle, pk ed25519.PublicKey) error {
	return b.Put(KindAuthor, pk[:])
}

func (b *Bundle) Marshal(p *codec.Packer) {
	p.PackCount(len(b.entries))
	for _, e := range b.entries {
		p.PackFixedBytes(e.Kind[:])
		p.PackBytes(e.Data)
	}
}

func UnmarshalBundle(p *codec.Packer) (*Bundle, error) {
	n := p.UnpackCount(MaxEntries)
	b := &Bundle{entries: make([]Entry, 0, n)}
	for i := 0; i < n && p.Err() == nil; i++ {
		var (
			kind []byte
			data []byte
		)
		p.UnpackFixedBytes(KindLen, &kind)
		p.UnpackBytes(MaxPayload, false, &data)
		if p.Err() != nil {
			break
		}
		if err := b.Put(Kind(kind), data); err != nil {
			return nil, err
		}
	}
	return b, p.Err()
}

func encodeTimestamp(ts int64) []byte {
	p := codec.NewWriter(consts.Int64Len, consts.Int64Len)
	p.PackInt64(ts)
	return p.Bytes()
}

// ParachainData is the payload of [KindParachain]. Mocked entries carry no
// relay proof and zeroed ordinal fields.
type ParachainData struct {
	ValidationData          relay.ValidationData
	Mocked                  bool
	CurrentParaBlock        uint64
	RelayOffset             uint64
	RelayBlocksPerParaBlock uint64
}

func (d *ParachainData) Bytes() []byte {
	p := codec.NewWriter(256, MaxPayload)
	p.PackBool(d.Mocked)
	p.PackUint64(d.CurrentParaBlock)
	p.PackUint64(d.RelayOffset)
	p.PackUint64(d.RelayBlocksPerParaBlock)
	d.ValidationData.Marshal(p)
	return p.Bytes()
}

func UnmarshalParachainData(b []byte) (*ParachainData, error) {
	p := codec.NewReader(b, MaxPayload)
	var d ParachainData
	d.Mocked = p.UnpackBool()
	d.CurrentParaBlock = p.UnpackUint64(false)
	d.RelayOffset = p.UnpackUint64(false)
	d.RelayBlocksPerParaBlock = p.UnpackUint64(false)
	vd, err := relay.UnmarshalValidationData(p)
	if err != nil {
		return nil, err
	}
	d.ValidationData = *vd
	return &d, p.Done()
}
