package sigilcrypto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

// Not parallel: swaps the package entropy source.
func TestEntropyFailure(t *testing.T) {
	saved := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = saved })

	_, err := NewSalt()
	require.ErrorContains(t, err, "entropy exhausted")

	_, err = Seal([]byte("secret"), make([]byte, SessionKeyLength))
	require.ErrorContains(t, err, "generating nonce")
}
