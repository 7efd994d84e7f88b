package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

var DefaultAllowedContentTypes = []string{
	"application/x-yaml",
	"application/json",
	"application/xml",
	"text/x-java-properties",
	"text/plain",
	"text/x-log",
	"text/csv",
}

type Cfg struct {
	Port                string
	Environment         string
	LogLevel            string
	PasteStorage        string
	DatabaseFile        string
	PublicDir           string
	MaxBodySize         int64
	AllowedContentTypes []string
	LRUCacheSize        int
	CacheTTL            time.Duration
	RedisURL            string
	RedisTLS            bool
	RedisCACert         string
	RedisUsername       string
	RedisPassword       Secret
	RedisTimeout        time.Duration
	MetricsUser         string
	MetricsPass         Secret
	ContextTimeout      time.Duration
	DBMaxOpenConns      int
	DBMaxIdleConns      int
	DBQueryTimeout      time.Duration
	CheckpointInterval  time.Duration
	OrphanSweepInterval time.Duration
	OrphanGracePeriod   time.Duration
	OrphanSweepRate     float64
	BehindProxy         bool
	EnablePprof         bool
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	c.Port = getEnv("PORT", "1234")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.PasteStorage = getEnv("PASTE_STORAGE", "data")
	c.DatabaseFile = getEnv("DATABASE_FILE", "data.db")
	c.PublicDir = getEnv("PUBLIC_DIR", "public")
	c.AllowedContentTypes = getSlice("ALLOWED_CONTENT_TYPES", DefaultAllowedContentTypes)
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisCACert = getEnv("REDIS_TLS_CA_CERT", "")
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.BehindProxy = getEnv("BEHIND_PROXY", "false") == "true"
	c.EnablePprof = getEnv("ENABLE_PPROF", "false") == "true"
	var err error
	if c.MaxBodySize, err = getInt64("MAX_BODY_SIZE", 1000000); err != nil {
		return nil, err
	}
	if c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	if c.CacheTTL, err = getDuration("CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 100); err != nil {
		return nil, err
	}
	if c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10); err != nil {
		return nil, err
	}
	if c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if c.CheckpointInterval, err = getDuration("WAL_CHECKPOINT_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if c.OrphanSweepInterval, err = getDuration("ORPHAN_SWEEP_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if c.OrphanGracePeriod, err = getDuration("ORPHAN_GRACE_PERIOD", time.Hour); err != nil {
		return nil, err
	}
	if c.OrphanSweepRate, err = getFloat("ORPHAN_SWEEP_RATE", 20); err != nil {
		return nil, err
	}
	return c, nil
}

// DatabasePath resolves DATABASE_FILE against the storage root unless it
// is absolute.
func (c *Cfg) DatabasePath() string {
	if filepath.IsAbs(c.DatabaseFile) {
		return c.DatabaseFile
	}
	return filepath.Join(c.PasteStorage, c.DatabaseFile)
}
func (c *Cfg) IsProduction() bool {
	return c.Environment == "production"
}
func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return errors.New("PORT must be a number between 1 and 65535")
	}
	if c.PasteStorage == "" {
		return errors.New("PASTE_STORAGE is required")
	}
	if c.DatabaseFile == "" {
		return errors.New("DATABASE_FILE is required")
	}
	if c.MaxBodySize <= 0 {
		return errors.New("MAX_BODY_SIZE must be positive")
	}
	if c.MaxBodySize > 512*1024*1024 {
		return errors.New("MAX_BODY_SIZE cannot exceed 512MB")
	}
	if len(c.AllowedContentTypes) == 0 {
		return errors.New("ALLOWED_CONTENT_TYPES must not be empty")
	}
	for _, ct := range c.AllowedContentTypes {
		if !strings.Contains(ct, "/") {
			return fmt.Errorf("invalid media type in ALLOWED_CONTENT_TYPES: %s", ct)
		}
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.CacheTTL < time.Second {
		return errors.New("CACHE_TTL must be at least 1s")
	}
	if c.ContextTimeout < time.Second {
		return errors.New("CONTEXT_TIMEOUT must be at least 1s")
	}
	if c.DBMaxOpenConns <= 0 || c.DBMaxIdleConns < 0 {
		return errors.New("DB_MAX_OPEN_CONNS must be positive and DB_MAX_IDLE_CONNS non-negative")
	}
	if c.OrphanSweepInterval < time.Minute {
		return errors.New("ORPHAN_SWEEP_INTERVAL must be at least 1m")
	}
	if c.OrphanGracePeriod < time.Minute {
		return errors.New("ORPHAN_GRACE_PERIOD must be at least 1m")
	}
	if c.OrphanSweepRate <= 0 {
		return errors.New("ORPHAN_SWEEP_RATE must be positive")
	}
	if c.IsProduction() {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
		if c.EnablePprof {
			return errors.New("ENABLE_PPROF must be false in production")
		}
	}
	return nil
}
func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
}
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getFloat(key string, fallback float64) (float64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	var result []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
