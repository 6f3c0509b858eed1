package memory

import (
	"context"
	"testing"

	registrykv "github.com/adrianwedd/ltm-service/internal/registry/kv"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "b", "k", []byte("v1")))
	v, err := s.Get(ctx, "b", "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, s.Put(ctx, "b", "k", []byte("v2")))
	v, err = s.Get(ctx, "b", "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
}

func TestGetMissingKey(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "b", "missing")
	require.ErrorIs(t, err, registrykv.ErrKeyNotFound)
}

func TestListIsScopedToBucket(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", "k1", []byte("1")))
	require.NoError(t, s.Put(ctx, "a", "k2", []byte("2")))
	require.NoError(t, s.Put(ctx, "b", "k3", []byte("3")))

	all, err := s.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, []byte("1"), all["k1"])
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "b", "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "b", "k"))
	require.NoError(t, s.Delete(ctx, "b", "k"))
	_, err := s.Get(ctx, "b", "k")
	require.ErrorIs(t, err, registrykv.ErrKeyNotFound)
}
