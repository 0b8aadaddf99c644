package sbtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawMemStorageReadWriteRoundTrip(t *testing.T) {
	s := NewRawMemStorage()
	require.NoError(t, s.Init())

	pageSize := 64
	src := make([]byte, pageSize)
	for i := range src {
		src[i] = byte(i)
	}

	require.NoError(t, s.WritePage(0, pageSize, src))
	require.NoError(t, s.WritePage(2, pageSize, src)) // extends past a gap

	dst := make([]byte, pageSize)
	require.NoError(t, s.ReadPage(0, pageSize, dst))
	require.Equal(t, src, dst)

	require.NoError(t, s.ReadPage(2, pageSize, dst))
	require.Equal(t, src, dst)

	// the gap page (1) was never written; it must read back as zero.
	zero := make([]byte, pageSize)
	require.NoError(t, s.ReadPage(1, pageSize, dst))
	require.Equal(t, zero, dst)
}

func TestRawMemStorageOutOfRangeRead(t *testing.T) {
	s := NewRawMemStorage()
	require.NoError(t, s.Init())
	dst := make([]byte, 64)
	require.Error(t, s.ReadPage(5, 64, dst))
}

func TestFileStorageOnMemMapFsRoundTrip(t *testing.T) {
	s := NewMemFS("/tree.db")
	require.NoError(t, s.Init())
	defer s.Close()

	pageSize := 64
	src := make([]byte, pageSize)
	copy(src, "hello-page")

	require.NoError(t, s.WritePage(3, pageSize, src))

	dst := make([]byte, pageSize)
	require.NoError(t, s.ReadPage(3, pageSize, dst))
	require.Equal(t, src, dst)
}
