package loadercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/boostrace/pkg/utils/cache"
)

type counter struct {
	calls int
}

func (c *counter) load(_ context.Context, key int) (*string, error) {
	c.calls++
	if key < 0 {
		return nil, errors.New("negative key")
	}
	ret := "v" + string(rune('0'+key))
	return &ret, nil
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	c := &counter{}
	lc := New(WithLoader[int, string](c.load))

	v, err := lc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", *v)
	_, err = lc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.calls, "second get must be served from cache")

	lc.Invalidate(ctx, 1)
	_, err = lc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, c.calls)
}

func TestGetError(t *testing.T) {
	c := &counter{}
	lc := New(WithLoader[int, string](c.load))
	_, err := lc.Get(context.Background(), -1)
	require.Error(t, err)
	_, err = lc.Get(context.Background(), -1)
	require.Error(t, err)
	assert.Equal(t, 2, c.calls, "errors are not cached")
}

func TestExpiration(t *testing.T) {
	c := &counter{}
	lc := New(
		WithLoader[int, string](c.load),
		WithExpiration[int, string](-time.Second))
	for range 3 {
		_, err := lc.Get(context.Background(), 2)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.calls)
}

func TestNoLoader(t *testing.T) {
	lc := New[int, string]()
	_, err := lc.Get(context.Background(), 1)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
