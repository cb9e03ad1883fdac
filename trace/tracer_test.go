// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trace

import (
	"context"
	"testing"

	"github.com/ava-labs/avalanchego/trace"
	"github.com/stretchr/testify/require"
)

func TestDisabledTracerIsNoop(t *testing.T) {
	require := require.New(t)

	tr, err := New(&Config{AppName: "paranode"})
	require.NoError(err)
	require.Equal(trace.Noop, tr)

	ctx, span := tr.Start(context.Background(), "test")
	require.NotNil(ctx)
	require.False(span.IsRecording())
	span.End()
	require.NoError(tr.Close())
}

func TestEnabledTracerCloses(t *testing.T) {
	require := require.New(t)

	tr, err := New(&Config{
		Enabled:         true,
		TraceSampleRate: 1,
		Endpoint:        "http://127.0.0.1:1/api/v2/spans",
		AppName:         "paranode",
	})
	require.NoError(err)
	_, span := tr.Start(context.Background(), "test")
	require.True(span.IsRecording())
	span.End()
	// Export fails against a closed port; shutdown still returns.
	_ = tr.Close()
}
