package blob_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehaul/tariff-engine/store/blob"
)

func newTestBlobStore(t *testing.T) *blob.Store {
	t.Helper()
	s, err := blob.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestBlobStore(t)
	ctx := context.Background()

	payload := []byte("signed contract bytes")
	require.NoError(t, s.Put(ctx, "documents/client-steelco/doc-1", payload))

	got, err := s.Get(ctx, "documents/client-steelco/doc-1")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestGet_MissingKey(t *testing.T) {
	s := newTestBlobStore(t)
	_, err := s.Get(context.Background(), "documents/nope")
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestBlobStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestPut_Overwrites(t *testing.T) {
	s := newTestBlobStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v1")))
	require.NoError(t, s.Put(ctx, "k", []byte("v2")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestCanceledContext(t *testing.T) {
	s := newTestBlobStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Put(ctx, "k", []byte("v")))
	_, err := s.Get(ctx, "k")
	assert.Error(t, err)
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := blob.Open(dir + "/blobs")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("persisted")))
	require.NoError(t, s.Close())

	// Reopen and read back.
	s2, err := blob.Open(dir + "/blobs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })
	got, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}
