package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"thoth/pkg/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU holds decoded pastes and environments in process. Values are shared
// between readers and must be treated as read-only.
type LRU struct {
	pastes *lru.Cache[string, item[*domain.Paste]]
	envs   *lru.Cache[string, item[*domain.Environment]]
	mu     sync.Mutex
}
type item[T any] struct {
	v   T
	exp time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	pastes, err := lru.New[string, item[*domain.Paste]](size)
	if err != nil {
		return nil, err
	}
	envs, err := lru.New[string, item[*domain.Environment]](size)
	if err != nil {
		return nil, err
	}
	return &LRU{pastes: pastes, envs: envs}, nil
}
func get[T any](ctx context.Context, mu *sync.Mutex, c *lru.Cache[string, item[T]], id string) (T, bool) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, false
	default:
	}
	mu.Lock()
	defer mu.Unlock()
	it, ok := c.Get(id)
	if !ok {
		return zero, false
	}
	if time.Now().After(it.exp) {
		c.Remove(id)
		return zero, false
	}
	return it.v, true
}
func (l *LRU) GetPaste(ctx context.Context, id string) *domain.Paste {
	p, _ := get(ctx, &l.mu, l.pastes, id)
	return p
}
func (l *LRU) SetPaste(p *domain.Paste, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pastes.Add(p.ID, item[*domain.Paste]{v: p, exp: time.Now().Add(ttl)})
}
func (l *LRU) GetEnvironment(ctx context.Context, id string) *domain.Environment {
	env, _ := get(ctx, &l.mu, l.envs, id)
	return env
}
func (l *LRU) SetEnvironment(id string, env *domain.Environment, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.envs.Add(id, item[*domain.Environment]{v: env, exp: time.Now().Add(ttl)})
}
func (l *LRU) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pastes.Remove(id)
	l.envs.Remove(id)
}
