package svc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"thoth/cfg"
	"thoth/metrics"
	"thoth/pkg/domain"
	"thoth/svc/cache"
	"thoth/svc/db"
	"thoth/svc/files"
	"thoth/svc/util"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var ErrShuttingDown = errors.New("service shutting down")

type Paste struct {
	db       *db.SQLite
	files    *files.Store
	lru      *cache.LRU
	rdb      *db.Redis
	ids      *util.IDGen
	cacheTTL time.Duration
	group    singleflight.Group
	shutdown atomic.Bool
	opWg     sync.WaitGroup
}

// NewPaste wires the persistence engine. rdb may be nil when no redis is
// configured.
func NewPaste(sqlDB *db.SQLite, fs *files.Store, lru *cache.LRU, rdb *db.Redis, ids *util.IDGen, c *cfg.Cfg) *Paste {
	if sqlDB == nil || fs == nil || lru == nil || ids == nil || c == nil {
		panic("paste service: nil dependency (sqlDB, files, lru, ids, or cfg)")
	}
	return &Paste{
		db:       sqlDB,
		files:    fs,
		lru:      lru,
		rdb:      rdb,
		ids:      ids,
		cacheTTL: c.CacheTTL,
	}
}

// Shutdown refuses new creates and waits for running ones.
func (p *Paste) Shutdown() {
	p.shutdown.Store(true)
	p.opWg.Wait()
	util.Debug().Msg("paste service shutdown complete")
}

// Create stores a paste. Attachments are written into an exclusively
// reserved directory first and the rows are committed last, so a crash
// leaves at worst an unreferenced directory for the sweeper. The caller's
// cancellation does not reach the writes.
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	if p.shutdown.Load() {
		return nil, ErrShuttingDown
	}
	p.opWg.Add(1)
	defer p.opWg.Done()
	ctx = context.WithoutCancel(ctx)

	paste := &domain.Paste{
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
		Application: params.Application,
	}
	var bytes int64
	id, attempts, err := p.ids.Claim(func(id string) (bool, error) {
		exists, err := p.db.Exists(ctx, id)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
		if err := p.files.Reserve(id); err != nil {
			if errors.Is(err, files.ErrReserved) {
				return true, nil
			}
			return false, err
		}
		written, err := p.files.WriteAll(id, params.Files)
		if err != nil {
			p.discard(id)
			return false, err
		}
		paste.ID = id
		err = p.db.CreatePaste(ctx, db.NewPaste{
			Paste:       *paste,
			Environment: params.Environment,
			Files:       written,
		})
		if err != nil {
			p.discard(id)
			if errors.Is(err, db.ErrDuplicateID) {
				return true, nil
			}
			return false, err
		}
		for _, f := range written {
			bytes += f.Size
		}
		return false, nil
	})
	if attempts > 1 {
		metrics.IDCollisions.Add(float64(attempts - 1))
	}
	if err != nil {
		switch {
		case errors.Is(err, util.ErrIDExhausted):
			return nil, domain.ErrIDGenerationFailed
		case errors.Is(err, files.ErrInvalidName), errors.Is(err, files.ErrDuplicateName):
			return nil, domain.ErrInvalidRequest.WithDetails("%s", err.Error())
		}
		return nil, errors.Wrap(err, "create paste")
	}
	paste.ID = id

	p.lru.SetPaste(paste, p.cacheTTL)
	if p.rdb != nil {
		if err := p.rdb.CachePaste(ctx, paste, p.cacheTTL); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to cache in Redis")
		}
	}
	metrics.PasteCreated.Inc()
	metrics.FilesWritten.Add(float64(len(params.Files)))
	metrics.BytesStored.Add(float64(bytes))
	return paste, nil
}
func (p *Paste) discard(id string) {
	if err := p.files.Remove(id); err != nil {
		util.Error().Err(err).Str("id", id).Msg("failed to discard paste directory")
	}
}

func (p *Paste) Get(ctx context.Context, id string) (*domain.Paste, error) {
	if !util.IsID(id) {
		return nil, domain.ErrNotFound
	}
	if paste := p.lru.GetPaste(ctx, id); paste != nil {
		metrics.CacheHits.WithLabelValues("lru").Inc()
		metrics.PasteRetrieved.WithLabelValues("paste").Inc()
		return paste, nil
	}
	if p.rdb != nil {
		paste, err := p.rdb.GetPaste(ctx, id)
		if err != nil {
			util.Warn().Err(err).Str("id", id).Msg("redis paste lookup failed")
		} else if paste != nil {
			metrics.CacheHits.WithLabelValues("redis").Inc()
			p.lru.SetPaste(paste, p.cacheTTL)
			metrics.PasteRetrieved.WithLabelValues("paste").Inc()
			return paste, nil
		}
	}
	v, err, _ := p.group.Do("paste:"+id, func() (interface{}, error) {
		metrics.CacheMisses.Inc()
		paste, err := p.db.GetPaste(ctx, id)
		if err != nil {
			return nil, err
		}
		p.lru.SetPaste(paste, p.cacheTTL)
		if p.rdb != nil {
			if err := p.rdb.CachePaste(ctx, paste, p.cacheTTL); err != nil {
				util.Warn().Err(err).Str("id", id).Msg("failed to cache in Redis")
			}
		}
		return paste, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "get paste")
	}
	metrics.PasteRetrieved.WithLabelValues("paste").Inc()
	return v.(*domain.Paste), nil
}
func (p *Paste) Exists(ctx context.Context, id string) (bool, error) {
	_, err := p.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Environment returns the merged predefined and custom metadata. An
// undecodable stored blob fails the read.
func (p *Paste) Environment(ctx context.Context, id string) (*domain.Environment, error) {
	if !util.IsID(id) {
		return nil, domain.ErrNotFound
	}
	if env := p.lru.GetEnvironment(ctx, id); env != nil {
		metrics.CacheHits.WithLabelValues("lru").Inc()
		metrics.PasteRetrieved.WithLabelValues("metadata").Inc()
		return env, nil
	}
	v, err, _ := p.group.Do("env:"+id, func() (interface{}, error) {
		rows, fromRedis := p.cachedEnvironmentRows(ctx, id)
		if rows == nil {
			metrics.CacheMisses.Inc()
			var err error
			rows, err = p.db.GetEnvironmentRows(ctx, id)
			if err != nil {
				return nil, err
			}
		}
		env, err := rows.Decode()
		if err != nil {
			metrics.CorruptReads.Inc()
			return nil, errors.Wrapf(err, "decode environment of %s", id)
		}
		p.lru.SetEnvironment(id, &env, p.cacheTTL)
		if p.rdb != nil && !fromRedis {
			if err := p.rdb.CacheEnvironment(ctx, id, rows, p.cacheTTL); err != nil {
				util.Warn().Err(err).Str("id", id).Msg("failed to cache environment in Redis")
			}
		}
		return &env, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "get environment")
	}
	metrics.PasteRetrieved.WithLabelValues("metadata").Inc()
	return v.(*domain.Environment), nil
}
func (p *Paste) cachedEnvironmentRows(ctx context.Context, id string) (*db.EnvironmentRows, bool) {
	if p.rdb == nil {
		return nil, false
	}
	rows, err := p.rdb.GetEnvironment(ctx, id)
	if err != nil {
		util.Warn().Err(err).Str("id", id).Msg("redis environment lookup failed")
		return nil, false
	}
	if rows == nil {
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("redis").Inc()
	return rows, true
}

// Files lists attachment metadata. Unknown pastes yield an empty list.
func (p *Paste) Files(ctx context.Context, id string) ([]domain.PasteFile, error) {
	if !util.IsID(id) {
		return []domain.PasteFile{}, nil
	}
	list, err := p.db.ListFiles(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	metrics.PasteRetrieved.WithLabelValues("files").Inc()
	return list, nil
}

// File returns a lazy handle; callers probe Exists before streaming.
func (p *Paste) File(id, filename string) files.Handle {
	return p.files.Handle(id, filename)
}

// FileChecksum is the stored blake2b digest of an attachment, or "" when
// the row is unknown.
func (p *Paste) FileChecksum(ctx context.Context, id, filename string) string {
	f, err := p.db.GetFile(ctx, id, filename)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			util.Warn().Err(err).Str("id", id).Msg("checksum lookup failed")
		}
		return ""
	}
	return f.Checksum
}

// Delete removes a paste with all its rows, attachments and cache entries.
func (p *Paste) Delete(ctx context.Context, id string) error {
	if !util.IsID(id) {
		return domain.ErrNotFound
	}
	removed, err := p.db.DeletePaste(ctx, id)
	if err != nil {
		return errors.Wrap(err, "delete from db")
	}
	if err := p.files.Remove(id); err != nil {
		return errors.Wrap(err, "delete attachments")
	}
	p.lru.Delete(id)
	if p.rdb != nil {
		if err := p.rdb.Delete(ctx, id); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to delete from redis")
		}
	}
	if !removed {
		return domain.ErrNotFound
	}
	metrics.PasteDeleted.Inc()
	util.Info().Str("id", id).Msg("paste deleted")
	return nil
}
