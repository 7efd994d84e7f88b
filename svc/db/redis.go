package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net"
	"os"
	"time"

	"thoth/cfg"
	"thoth/pkg/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	pasteKeyPrefix = "thoth:paste:"
	envKeyPrefix   = "thoth:env:"
)

// Redis is the shared read cache in front of SQLite. Pastes never change,
// so entries only leave by TTL or by an administrative delete.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedis(url string, c *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond
	if c.RedisTLS {
		tlsConfig, err := buildRedisTLSConfig(c.RedisCACert)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build Redis TLS config")
		}
		tlsConfig.ServerName = opt.Addr
		if host, _, err := net.SplitHostPort(opt.Addr); err == nil {
			tlsConfig.ServerName = host
		}
		opt.TLSConfig = tlsConfig
	}
	if c.RedisUsername != "" {
		opt.Username = c.RedisUsername
	}
	if c.RedisPassword.Value() != "" {
		opt.Password = c.RedisPassword.Value()
	}
	client := redis.NewClient(opt)
	r := &Redis{client: client, timeout: c.RedisTimeout}
	if r.timeout <= 0 {
		r.timeout = 500 * time.Millisecond
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return r, nil
}
func buildRedisTLSConfig(caPath string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caPath == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, errors.Wrap(err, "load system cert pool")
		}
		tlsConfig.RootCAs = pool
		return tlsConfig, nil
	}
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, errors.Wrap(err, "read Redis CA cert")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to append Redis CA cert to pool")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}
func (r *Redis) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "unmarshal %s", key)
	}
	return true, nil
}
func (r *Redis) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return errors.Wrapf(r.client.Set(ctx, key, data, ttl).Err(), "set %s", key)
}
func (r *Redis) CachePaste(ctx context.Context, p *domain.Paste, ttl time.Duration) error {
	return r.setJSON(ctx, pasteKeyPrefix+p.ID, p, ttl)
}

// GetPaste returns nil without error on a cache miss.
func (r *Redis) GetPaste(ctx context.Context, id string) (*domain.Paste, error) {
	var p domain.Paste
	ok, err := r.getJSON(ctx, pasteKeyPrefix+id, &p)
	if !ok || err != nil {
		return nil, err
	}
	return &p, nil
}
func (r *Redis) CacheEnvironment(ctx context.Context, id string, env *EnvironmentRows, ttl time.Duration) error {
	return r.setJSON(ctx, envKeyPrefix+id, env, ttl)
}

// GetEnvironment returns nil without error on a cache miss.
func (r *Redis) GetEnvironment(ctx context.Context, id string) (*EnvironmentRows, error) {
	var env EnvironmentRows
	ok, err := r.getJSON(ctx, envKeyPrefix+id, &env)
	if !ok || err != nil {
		return nil, err
	}
	return &env, nil
}
func (r *Redis) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Del(ctx, pasteKeyPrefix+id, envKeyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, "delete paste")
	}
	return nil
}
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
