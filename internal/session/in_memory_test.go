package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_Set(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	err := store.Set(ctx, VerifierKey, "first")
	require.NoError(t, err)

	err = store.Set(ctx, VerifierKey, "second")
	require.NoError(t, err)

	value, err := store.Get(ctx, VerifierKey)
	require.NoError(t, err)
	assert.Equal(t, "second", value, "a later Set should overwrite the slot")
}

func TestInMemoryStore_Get(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	t.Run("gets a stored value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "key", "value"))

		value, err := store.Get(ctx, "key")
		require.NoError(t, err)
		assert.Equal(t, "value", value)
	})

	t.Run("returns ErrNotFound for a missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestInMemoryStore_Clear(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, VerifierKey, "value"))
	require.NoError(t, store.Clear(ctx, VerifierKey))

	_, err := store.Get(ctx, VerifierKey)
	assert.ErrorIs(t, err, ErrNotFound, "should not be able to get a cleared value")

	assert.NoError(t, store.Clear(ctx, VerifierKey), "clearing twice is not an error")
}
