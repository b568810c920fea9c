package mergequeue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	require.True(t, Completed.Terminal())
	require.True(t, Failed.Terminal())
	require.True(t, Cancelled.Terminal())
	require.False(t, Waiting.Terminal())
	require.False(t, Testing.Terminal())
	require.False(t, Merging.Terminal())
}

func TestProcessorLifecycle(t *testing.T) {
	acquire := func(ctx context.Context) (func(context.Context) error, error) {
		return func(context.Context) error { return nil }, nil
	}
	p := &Processor{acquire: acquire}
	require.True(t, p.TryStart(context.Background()))
	require.False(t, p.TryStart(context.Background()))
	require.True(t, p.IsRunning())
	p.Stop()
	require.False(t, p.IsRunning())
	p.Stop()
}
