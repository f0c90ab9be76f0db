package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryProviderCopiesValues(t *testing.T) {
	ctx := context.Background()
	p, err := NewMemoryProvider(0)
	require.NoError(t, err)

	value := []byte("rules")
	require.NoError(t, p.Set(ctx, "k", value, time.Minute))
	value[0] = 'X'

	got, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "rules", string(got))

	got[0] = 'Y'
	again, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "rules", string(again))

	require.NoError(t, p.Del(ctx, "k"))
	_, err = p.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, p.Close())
}

func TestNoopProviderAlwaysMisses(t *testing.T) {
	var p Provider = NoopProvider{}
	require.NoError(t, p.Set(context.Background(), "k", []byte("v"), 0))
	_, err := p.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrCacheMiss)
}
