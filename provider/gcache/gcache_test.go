package gcache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{Capacity: 8})
	require.NoError(t, err)

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "k", []byte("v"), 1, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	b, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	require.NoError(t, p.Del(ctx, "k"))
	require.NoError(t, p.Del(ctx, "k"), "deleting a missing key is not an error")
	_, ok, _ = p.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRUEvictionCallsOnEvict(t *testing.T) {
	ctx := context.Background()
	var evicted []string
	p, err := New(Config{Capacity: 2, OnEvict: func(k string) { evicted = append(evicted, k) }})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := p.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}, 1, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"k0"}, evicted)
	_, ok, _ := p.Get(ctx, "k0")
	assert.False(t, ok)
	assert.Equal(t, 2, p.Len())
}

func TestInvalidCapacity(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}
