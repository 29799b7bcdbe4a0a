package md5

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasher_KnownDigest(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "5d41402abc4b2a76b9719d911017c592", got)
	require.Equal(t, got, Sum([]byte("hello")))
}

func TestHasher_DistinguishesContent(t *testing.T) {
	t.Parallel()

	require.NotEqual(t, Sum([]byte("a")), Sum([]byte("b")))
}
