package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIsHex(t *testing.T) {
	g := NewIDGen()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := g.Next()
		require.NoError(t, err)
		assert.Len(t, id, 32)
		assert.True(t, IsID(id), id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestClaimRetriesOnCollision(t *testing.T) {
	// Three identical draws followed by a distinct one.
	src := bytes.Repeat([]byte{0xaa}, 16*3)
	src = append(src, bytes.Repeat([]byte{0xbb}, 16)...)
	g := NewIDGenFrom(bytes.NewReader(src), 10)

	existing := map[string]bool{strings.Repeat("aa", 16): true}
	calls := 0
	id, attempts, err := g.Claim(func(id string) (bool, error) {
		calls++
		return existing[id], nil
	})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("bb", 16), id)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
	assert.False(t, existing[id])
}

func TestClaimGivesUp(t *testing.T) {
	g := NewIDGenFrom(bytes.NewReader(make([]byte, 16*5)), 5)
	_, attempts, err := g.Claim(func(string) (bool, error) { return true, nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIDExhausted))
	assert.Equal(t, 5, attempts)
}

func TestClaimPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	_, _, err := NewIDGen().Claim(func(string) (bool, error) { return false, boom })
	assert.Equal(t, boom, err)

	_, _, err = NewIDGenFrom(bytes.NewReader(nil), 3).Claim(func(string) (bool, error) { return false, nil })
	assert.Error(t, err)
}

func TestIsID(t *testing.T) {
	assert.True(t, IsID("0123456789abcdef0123456789abcdef"))
	assert.False(t, IsID("0123456789ABCDEF0123456789ABCDEF"))
	assert.False(t, IsID("../../etc/passwd"))
	assert.False(t, IsID(""))
}

func TestRedactIP(t *testing.T) {
	assert.Equal(t, "192.168.1.0", RedactIP("192.168.1.77:5555"))
	assert.True(t, strings.HasPrefix(RedactIP("not-an-ip"), "hash:"))
}
