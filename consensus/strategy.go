// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/set"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/builder"
	"github.com/ava-labs/paranode/chain"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/event"
	"github.com/ava-labs/paranode/importer"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/keystore"
	"github.com/ava-labs/paranode/mempool"
	"github.com/ava-labs/paranode/proposer"
	"github.com/ava-labs/paranode/relay"
	"github.com/ava-labs/paranode/telemetry"
)

type Kind uint8

const (
	KindCollatorAuthoring Kind = iota
	KindFullNodeValidation
	KindInstantSeal
)

func (k Kind) String() string {
	switch k {
	case KindCollatorAuthoring:
		return "collator-authoring"
	case KindFullNodeValidation:
		return "full-node-validation"
	case KindInstantSeal:
		return "instant-seal"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Strategy is one of [*CollatorAuthoring], [*FullNodeValidation] or
// [*InstantSeal]. It runs until its context is done.
type Strategy interface {
	Kind() Kind
	Run(ctx context.Context) error

	sealed()
}

// Announcer is satisfied by *network.Network.
type Announcer interface {
	AnnounceBlock(id ids.ID, payload []byte)
}

type noopAnnouncer struct{}

func (noopAnnouncer) AnnounceBlock(ids.ID, []byte) {}

type Params struct {
	Mode   config.Mode
	Role   config.Role
	ParaID config.ParaID
	Config config.ConsensusConfig
	// SlotDuration paces relay-backed strategies.
	SlotDuration time.Duration

	Log        logging.Logger
	Tracer     trace.Tracer
	Registerer prometheus.Registerer
	Telemetry  *telemetry.Handle

	Client   *chain.Client
	Importer *importer.Queue
	Pool     *mempool.Mempool
	Keystore *keystore.Keystore
	// Relay is nil in standalone mode.
	Relay relay.Interface
	// Channel feeds mocked relay messages in standalone mode.
	Channel    *inherent.MockChannel
	MaxPoVSize uint32
	Announcer  Announcer
	// TxFilter is applied to pooled transactions while proposing.
	TxFilter proposer.TxFilter
}

// Select picks the strategy for the node's mode and role. It is called once
// and fails fast when an authoring strategy has no signing key.
//
//	Collator      + Authority   -> CollatorAuthoring
//	Collator      + Participant -> FullNodeValidation (relay-tracking)
//	FullNode      + any         -> FullNodeValidation (relay-tracking)
//	StandaloneDev + Authority   -> InstantSeal (instant or manual sealing)
//	StandaloneDev + Participant -> FullNodeValidation (idle)
func Select(p Params) (Strategy, error) {
	m, err := newMetrics(p.Registerer)
	if err != nil {
		return nil, err
	}
	if p.Announcer == nil {
		p.Announcer = noopAnnouncer{}
	}

	switch {
	case p.Mode == config.ModeCollator && p.Role.IsAuthority():
		if p.Relay == nil {
			return nil, ErrMissingRelay
		}
		a, err := newAuthor(p, m)
		if err != nil {
			return nil, err
		}
		eligible, err := parseAuthors(p.Config.EligibleAuthors)
		if err != nil {
			return nil, err
		}
		return &CollatorAuthoring{
			author:    a,
			paraID:    p.ParaID,
			slot:      p.SlotDuration,
			relay:     p.Relay,
			assembler: inherent.NewRelayAssembler(p.Relay, p.ParaID),
			eligible:  eligible,
			force:     p.Config.ForceAuthoring,
			finality:  newFinalityTracker(p, m),
		}, nil

	case p.Mode.Parachain():
		if p.Relay == nil {
			return nil, ErrMissingRelay
		}
		return &FullNodeValidation{
			log:      p.Log,
			slot:     p.SlotDuration,
			relay:    p.Relay,
			metrics:  m,
			finality: newFinalityTracker(p, m),
		}, nil

	case p.Mode == config.ModeStandaloneDev && p.Role.IsAuthority():
		a, err := newAuthor(p, m)
		if err != nil {
			return nil, err
		}
		var b builder.Builder
		switch p.Config.Sealing {
		case config.SealingManual:
			b = builder.NewManual(p.Log)
		case config.SealingInstant, "":
			b = builder.NewTime(
				p.Log,
				p.Pool,
				func(context.Context) (int64, error) {
					return p.Client.Best().Timestamp, nil
				},
				p.Config.MinBlockGap,
				p.Config.InstantSealInterval,
			)
		default:
			return nil, fmt.Errorf("%w: %q", config.ErrInvalidSealing, p.Config.Sealing)
		}
		p.Pool.Subscribe(event.SubscriptionFunc[*mempool.Tx]{
			AcceptF: func(ctx context.Context, _ *mempool.Tx) error {
				b.Queue(ctx)
				return nil
			},
		})
		channel := p.Channel
		if channel == nil {
			channel = inherent.NewMockChannel(inherent.DefaultMockCapacity)
		}
		return &InstantSeal{
			author:    a,
			builder:   b,
			assembler: inherent.NewMockAssembler(channel, p.MaxPoVSize),
		}, nil

	case p.Mode == config.ModeStandaloneDev:
		return &FullNodeValidation{log: p.Log, metrics: m}, nil

	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownMode, p.Mode)
	}
}

func parseAuthors(keys []string) (set.Set[ed25519.PublicKey], error) {
	authors := set.NewSet[ed25519.PublicKey](len(keys))
	for _, k := range keys {
		pk, err := ed25519.ParsePublicKey(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAuthor, k)
		}
		authors.Add(pk)
	}
	return authors, nil
}

// author holds what every authoring strategy shares: a proposer bound to
// the pool and keystore, the import queue and the network.
type author struct {
	log       logging.Logger
	tracer    trace.Tracer
	telemetry *telemetry.Handle
	metrics   *metrics
	client    *chain.Client
	importer  *importer.Queue
	proposer  *proposer.Proposer
	announcer Announcer
	key       ed25519.PublicKey
}

func newAuthor(p Params, m *metrics) (*author, error) {
	key, err := p.Keystore.Key()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningUnavailable, err)
	}
	prop, err := proposer.New(
		proposer.NewConfig(p.Config),
		p.Log,
		p.Tracer,
		p.Pool,
		p.Keystore,
		p.TxFilter,
		p.Registerer,
	)
	if err != nil {
		return nil, err
	}
	return &author{
		log:       p.Log,
		tracer:    p.Tracer,
		telemetry: p.Telemetry,
		metrics:   m,
		client:    p.Client,
		importer:  p.Importer,
		proposer:  prop,
		announcer: p.Announcer,
		key:       key.PublicKey(),
	}, nil
}

// produce proposes a child of [parent] with [bundle], imports it and
// announces it to peers.
func (a *author) produce(ctx context.Context, parent *block.Block, bundle *inherent.Bundle) (*proposer.Proposal, error) {
	if err := inherent.WithAuthor(bundle, a.key); err != nil {
		return nil, err
	}
	proposal, err := a.proposer.Propose(ctx, parent, bundle)
	if err != nil {
		if errors.Is(err, keystore.ErrNoSigningKey) {
			return nil, fmt.Errorf("%w: %w", ErrSigningUnavailable, err)
		}
		return nil, err
	}
	b := proposal.Block
	if err := a.importer.Import(ctx, b); err != nil {
		a.proposer.Abandon(ctx, proposal)
		return nil, fmt.Errorf("%w: %w", ErrImportRejected, err)
	}
	a.announcer.AnnounceBlock(b.ID(), b.Bytes())
	a.metrics.authored.Inc()
	a.log.Info("authored block",
		zap.Stringer("id", b.ID()),
		zap.Uint64("height", b.Height),
		zap.Int("txs", len(b.Txs)),
	)
	a.telemetry.Report(telemetry.VerbosityInfo, "block.authored", map[string]interface{}{
		"id":     b.ID().String(),
		"height": b.Height,
		"txs":    len(b.Txs),
	})
	return proposal, nil
}

// skip records a failed round. Import rejections indicate a local bug and
// log at error level; everything else is expected to recover.
func (a *author) skip(err error) {
	skip(a.log, a.metrics, err)
}

func skip(log logging.Logger, m *metrics, err error) {
	m.skipped.WithLabelValues(reason(err)).Inc()
	if errors.Is(err, ErrImportRejected) {
		log.Error("skipping round", zap.Error(err))
		return
	}
	log.Warn("skipping round", zap.Error(err))
}
