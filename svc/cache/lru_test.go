package cache

import (
	"context"
	"testing"
	"time"

	"thoth/pkg/codec"
	"thoth/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUPasteAndEnvironment(t *testing.T) {
	c, err := NewLRU(2)
	require.NoError(t, err)
	ctx := context.Background()

	p := &domain.Paste{ID: "a", Application: domain.Application{Name: "x", Version: "1"}}
	c.SetPaste(p, time.Minute)
	assert.Equal(t, p, c.GetPaste(ctx, "a"))
	assert.Nil(t, c.GetEnvironment(ctx, "a"))

	env := &domain.Environment{Custom: map[string]codec.Value{"k": codec.Bool(true)}}
	c.SetEnvironment("a", env, time.Minute)
	assert.Equal(t, env, c.GetEnvironment(ctx, "a"))

	c.Delete("a")
	assert.Nil(t, c.GetPaste(ctx, "a"))
	assert.Nil(t, c.GetEnvironment(ctx, "a"))
}

func TestLRUExpiry(t *testing.T) {
	c, err := NewLRU(4)
	require.NoError(t, err)
	c.SetPaste(&domain.Paste{ID: "old"}, -time.Second)
	assert.Nil(t, c.GetPaste(context.Background(), "old"))
}

func TestLRUCancelledContext(t *testing.T) {
	c, err := NewLRU(4)
	require.NoError(t, err)
	c.SetPaste(&domain.Paste{ID: "a"}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, c.GetPaste(ctx, "a"))
}

func TestNewLRUBounds(t *testing.T) {
	_, err := NewLRU(0)
	assert.Error(t, err)
	_, err = NewLRU(100001)
	assert.Error(t, err)
}
