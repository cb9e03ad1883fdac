// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/paranode/codec"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/consts"
	"github.com/ava-labs/paranode/telemetry"
	"github.com/ava-labs/paranode/utils"
)

// historySize is the number of relay blocks a [Service] remembers. Older
// blocks are unknown relay parents.
const historySize = 256

var genesisHash = utils.ToID([]byte("paranode/relay/genesis"))

type ServiceConfig struct {
	SlotDuration    time.Duration
	FinalityLag     uint64
	MaxPoVSize      uint32
	AllowedAncestry uint64
}

func NewServiceConfig(c config.RelayConfig) ServiceConfig {
	return ServiceConfig{
		SlotDuration:    c.SlotDuration,
		FinalityLag:     c.FinalityLag,
		MaxPoVSize:      c.MaxPoVSize,
		AllowedAncestry: c.AllowedAncestry,
	}
}

type relayBlock struct {
	State
	storageRoot ids.ID
	// heads holds the para heads included as of this block.
	heads map[config.ParaID]ids.ID
}

// Service is a self-contained relay chain. It produces one block per slot,
// backs collations that extend a para's latest head and includes them in
// the next block. Paras are registered by their first collation.
type Service struct {
	config    ServiceConfig
	log       logging.Logger
	telemetry *telemetry.Handle
	now       func() time.Time

	lock       sync.RWMutex
	closed     bool
	blocks     []*relayBlock
	byHash     map[ids.ID]*relayBlock
	backed     map[config.ParaID]ids.ID
	pending    map[config.ParaID]*Collation
	downward   map[config.ParaID][]Message
	horizontal map[config.ParaID][]Message
}

func NewService(c ServiceConfig, log logging.Logger, tel *telemetry.Handle) *Service {
	s := &Service{
		config:     c,
		log:        log,
		telemetry:  tel,
		now:        time.Now,
		byHash:     map[ids.ID]*relayBlock{},
		backed:     map[config.ParaID]ids.ID{},
		pending:    map[config.ParaID]*Collation{},
		downward:   map[config.ParaID][]Message{},
		horizontal: map[config.ParaID][]Message{},
	}
	genesis := &relayBlock{
		State: State{Hash: genesisHash, Timestamp: s.now().UnixMilli()},
		heads: map[config.ParaID]ids.ID{},
	}
	genesis.storageRoot = storageRoot(genesis.heads)
	s.blocks = []*relayBlock{genesis}
	s.byHash[genesis.Hash] = genesis
	return s
}

// Run produces a block every slot until [ctx] is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.SlotDuration)
	defer ticker.Stop()
	s.log.Info("relay service started",
		zap.Duration("slot", s.config.SlotDuration),
		zap.Uint64("finalityLag", s.config.FinalityLag),
	)
	for {
		select {
		case <-ctx.Done():
			return s.Close()
		case <-ticker.C:
			if _, err := s.ProduceBlock(); err != nil {
				return nil
			}
		}
	}
}

// ProduceBlock appends a relay block including every pending collation.
func (s *Service) ProduceBlock() (State, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return State{}, ErrClosed
	}
	parent := s.head()
	heads := maps.Clone(parent.heads)
	for para, c := range s.pending {
		heads[para] = c.Head
	}
	included := len(s.pending)
	s.pending = map[config.ParaID]*Collation{}

	ts := s.now().UnixMilli()
	if ts < parent.Timestamp {
		ts = parent.Timestamp
	}
	b := &relayBlock{
		State: State{Number: parent.Number + 1, Timestamp: ts},
		heads: heads,
	}
	b.storageRoot = storageRoot(heads)
	p := codec.NewWriter(blockHeaderLen, blockHeaderLen)
	p.PackID(parent.Hash)
	p.PackUint64(b.Number)
	p.PackInt64(b.Timestamp)
	p.PackID(b.storageRoot)
	b.Hash = utils.ToID(p.Bytes())

	s.blocks = append(s.blocks, b)
	s.byHash[b.Hash] = b
	if len(s.blocks) > historySize {
		delete(s.byHash, s.blocks[0].Hash)
		s.blocks = s.blocks[1:]
	}

	s.log.Debug("produced relay block",
		zap.Uint64("number", b.Number),
		zap.Stringer("hash", b.Hash),
		zap.Int("included", included),
	)
	s.telemetry.Report(telemetry.VerbosityDebug, "relay.block", map[string]interface{}{
		"number":   b.Number,
		"hash":     b.Hash.String(),
		"included": included,
	})
	return b.State, nil
}

func (s *Service) head() *relayBlock {
	return s.blocks[len(s.blocks)-1]
}

// Head returns the latest (unfinalized) relay block.
func (s *Service) Head() State {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.head().State
}

func (s *Service) finalized() *relayBlock {
	head := s.head()
	if head.Number <= s.config.FinalityLag {
		return s.blocks[0]
	}
	target := head.Number - s.config.FinalityLag
	return s.blocks[len(s.blocks)-1-int(head.Number-target)]
}

func (s *Service) LatestRelayState(context.Context) (State, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return State{}, ErrClosed
	}
	return s.finalized().State, nil
}

func (s *Service) ValidationDataFor(_ context.Context, relayParent ids.ID, paraID config.ParaID) (*ValidationData, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	b, ok := s.byHash[relayParent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelayParent, relayParent)
	}
	head := b.heads[paraID]
	return &ValidationData{
		RelayParent:            b.Hash,
		RelayParentNumber:      b.Number,
		RelayParentStorageRoot: b.storageRoot,
		ParentHead:             head,
		MaxPoVSize:             s.config.MaxPoVSize,
		Proof:                  proof(b, paraID, head),
		DownwardMessages:       sentBy(s.downward[paraID], b.Number),
		HorizontalMessages:     sentBy(s.horizontal[paraID], b.Number),
	}, nil
}

// Announce backs [c]. It is included in the next relay block. Announcing
// the backed head again is a no-op.
func (s *Service) Announce(_ context.Context, c *Collation) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return ErrClosed
	}
	if c.ParaID == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownPara, c.ParaID)
	}
	rp, ok := s.byHash[c.RelayParent]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRelayParent, c.RelayParent)
	}
	if age := s.head().Number - rp.Number; age > s.config.AllowedAncestry {
		return fmt.Errorf("%w: %d blocks behind head", ErrRelayParentTooOld, age)
	}
	if s.config.MaxPoVSize > 0 && len(c.Block) > int(s.config.MaxPoVSize) {
		return fmt.Errorf("%w: %d > %d", ErrCollationTooLarge, len(c.Block), s.config.MaxPoVSize)
	}
	backed, ok := s.backed[c.ParaID]
	switch {
	case ok && backed == c.Head:
		// Announced again by a collator that missed our answer.
		return nil
	case ok && backed != c.ParentHead:
		return fmt.Errorf("%w: parent %s, para head %s", ErrStaleCollation, c.ParentHead, backed)
	}
	s.backed[c.ParaID] = c.Head
	s.pending[c.ParaID] = c
	s.downward[c.ParaID] = consume(s.downward[c.ParaID], c.ProcessedDownward)
	s.horizontal[c.ParaID] = consume(s.horizontal[c.ParaID], c.ProcessedHorizontal)

	s.log.Debug("backed collation",
		zap.Uint32("para", uint32(c.ParaID)),
		zap.Uint64("number", c.Number),
		zap.Stringer("head", c.Head),
	)
	s.telemetry.Report(telemetry.VerbosityInfo, "relay.collation", map[string]interface{}{
		"para":   uint32(c.ParaID),
		"number": c.Number,
		"head":   c.Head.String(),
	})
	return nil
}

// SendDownward queues a relay-to-para message.
func (s *Service) SendDownward(paraID config.ParaID, data []byte) error {
	return s.enqueue(s.downward, paraID, 0, data)
}

// SendHorizontal queues a para-to-para message.
func (s *Service) SendHorizontal(from, to config.ParaID, data []byte) error {
	return s.enqueue(s.horizontal, to, from, data)
}

func (s *Service) enqueue(queues map[config.ParaID][]Message, to, from config.ParaID, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case len(data) > MaxMessageSize:
		return fmt.Errorf("%w: message of %d bytes", ErrCollationTooLarge, len(data))
	case len(queues[to]) >= MaxMessages:
		return fmt.Errorf("%w: para %d", ErrQueueFull, to)
	}
	queues[to] = append(queues[to], Message{
		Sender: from,
		SentAt: s.head().Number,
		Data:   slices.Clone(data),
	})
	return nil
}

// Close stops block production. Later calls return [ErrClosed].
func (s *Service) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.closed = true
	return nil
}

func storageRoot(heads map[config.ParaID]ids.ID) ids.ID {
	paras := maps.Keys(heads)
	slices.Sort(paras)
	p := codec.NewWriter(len(paras)*(consts.IDLen+consts.Uint32Len), consts.MaxInt)
	for _, para := range paras {
		p.PackUint32(uint32(para))
		p.PackID(heads[para])
	}
	return utils.ToID(p.Bytes())
}

func proof(b *relayBlock, paraID config.ParaID, head ids.ID) []byte {
	p := codec.NewWriter(proofLen, proofLen)
	p.PackID(b.Hash)
	p.PackUint64(b.Number)
	p.PackID(b.storageRoot)
	p.PackUint32(uint32(paraID))
	p.PackID(head)
	return p.Bytes()
}

const (
	proofLen       = consts.IDLen*3 + consts.Uint64Len + consts.Uint32Len
	blockHeaderLen = consts.IDLen*2 + consts.Uint64Len + consts.Int64Len
)

// VerifyProof checks that [vd] carries a proof for [paraID] consistent with
// its own fields.
func VerifyProof(vd *ValidationData, paraID config.ParaID) error {
	p := codec.NewReader(vd.Proof, proofLen)
	var hash, root, head ids.ID
	p.UnpackID(true, &hash)
	number := p.UnpackUint64(false)
	p.UnpackID(true, &root)
	para := config.ParaID(p.UnpackUint32())
	p.UnpackID(false, &head)
	if err := p.Done(); err != nil {
		return fmt.Errorf("%w: malformed proof: %w", ErrUnknownRelayParent, err)
	}
	if hash != vd.RelayParent || number != vd.RelayParentNumber || root != vd.RelayParentStorageRoot {
		return fmt.Errorf("%w: proof does not match relay parent %s", ErrUnknownRelayParent, vd.RelayParent)
	}
	if para != paraID || head != vd.ParentHead {
		return fmt.Errorf("%w: proof is for para %d", ErrUnknownPara, para)
	}
	return nil
}

func sentBy(msgs []Message, number uint64) []Message {
	var out []Message
	for _, m := range msgs {
		if m.SentAt > number {
			break
		}
		out = append(out, m)
	}
	return out
}

func consume(msgs []Message, n uint32) []Message {
	if int(n) >= len(msgs) {
		return nil
	}
	return msgs[n:]
}
