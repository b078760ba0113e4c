package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
	require.Equal(t, got, Sum([]byte("hello world")))
}

func TestHasherHashDistinguishesInputs(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte(`{"title":"A"}`))
	require.NoError(t, err)
	b, err := h.Hash([]byte(`{"title":"B"}`))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 64)
}
