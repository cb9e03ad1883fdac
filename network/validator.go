// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/relay"
)

var ErrInvalidAnnouncement = errors.New("invalid block announcement")

// RelayValidator accepts announced blocks whose relay parent is known to
// [r]. A relay that cannot be reached does not block announcements; the
// importer still verifies them.
func RelayValidator(r relay.Interface, paraID config.ParaID) AnnounceValidator {
	return func(ctx context.Context, b *block.Block) error {
		d, err := b.Inherents.Parachain()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAnnouncement, err)
		}
		if d.Mocked {
			return fmt.Errorf("%w: mocked relay data", ErrInvalidAnnouncement)
		}
		_, err = r.ValidationDataFor(ctx, d.ValidationData.RelayParent, paraID)
		switch {
		case err == nil, errors.Is(err, relay.ErrUnavailable):
			return nil
		default:
			return fmt.Errorf("%w: %w", ErrInvalidAnnouncement, err)
		}
	}
}
