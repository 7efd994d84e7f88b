package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"thoth/cfg"
	"thoth/svc/api"
	"thoth/svc/cache"
	"thoth/svc/db"
	"thoth/svc/files"
	"thoth/svc/svc"
	"thoth/svc/util"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

type options struct {
	health bool
	delete string
	sweep  bool
	env    string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("thoth", pflag.ContinueOnError)
	fs.BoolVar(&o.health, "health", false, "ping the database and exit")
	fs.StringVar(&o.delete, "delete", "", "delete the paste with this id and exit")
	fs.BoolVar(&o.sweep, "sweep", false, "remove orphaned paste directories once and exit")
	fs.StringVar(&o.env, "env-file", ".env", "optional dotenv file loaded before the environment is read")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, errors.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := godotenv.Load(opts.env); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", opts.env, err)
		os.Exit(1)
	}

	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")

	switch {
	case opts.health:
		os.Exit(runHealth(c))
	case opts.delete != "":
		os.Exit(runDelete(c, opts.delete))
	case opts.sweep:
		os.Exit(runSweep(c))
	}
	if err := serve(c); err != nil {
		util.Error().Err(err).Msg("thoth stopped with error")
		os.Exit(1)
	}
}

func runHealth(c *cfg.Cfg) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sqlDB, err := db.NewSQLite(c.DatabasePath())
	if err != nil {
		return 1
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(ctx); err != nil {
		return 1
	}
	return 0
}

// app holds everything the serve and maintenance commands share.
type app struct {
	db    *db.SQLite
	files *files.Store
	rdb   *db.Redis
	paste *svc.Paste
}

func open(c *cfg.Cfg) (*app, error) {
	sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath(), c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "initialize database")
	}
	util.Info().Str("path", c.DatabasePath()).Msg("database initialized")
	fs, err := files.New(c.PasteStorage)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "create LRU cache")
	}
	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.IsProduction() {
				sqlDB.Close()
				return nil, errors.Wrap(err, "redis required in production")
			}
			util.Warn().Err(err).Str("url", util.RedactURL(c.RedisURL)).Msg("redis unavailable, continuing without it")
			rdb = nil
		} else {
			util.Info().Str("url", util.RedactURL(c.RedisURL)).Msg("redis connected")
		}
	}
	return &app{
		db:    sqlDB,
		files: fs,
		rdb:   rdb,
		paste: svc.NewPaste(sqlDB, fs, lruCache, rdb, util.NewIDGen(), c),
	}, nil
}
func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	a.db.Close()
}

func runDelete(c *cfg.Cfg, id string) int {
	a, err := open(c)
	if err != nil {
		util.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer a.Close()
	if err := a.paste.Delete(context.Background(), id); err != nil {
		util.Error().Err(err).Str("id", id).Msg("delete failed")
		return 1
	}
	return 0
}
func runSweep(c *cfg.Cfg) int {
	a, err := open(c)
	if err != nil {
		util.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer a.Close()
	sweeper := svc.NewSweeper(a.db, a.files, c.OrphanGracePeriod, c.OrphanSweepRate)
	removed, err := sweeper.Sweep(context.Background())
	if err != nil {
		util.Error().Err(err).Int("removed", removed).Msg("sweep failed")
		return 1
	}
	util.Info().Int("removed", removed).Msg("sweep complete")
	return 0
}

func serve(c *cfg.Cfg) error {
	util.Info().Str("environment", c.Environment).Msg("starting thoth")
	a, err := open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := api.NewServer(c, a.paste, a.db, a.files, a.rdb)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		a.db.RunWALMaintenance(ctx, c.CheckpointInterval)
	}()
	go func() {
		defer workers.Done()
		svc.NewSweeper(a.db, a.files, c.OrphanGracePeriod, c.OrphanSweepRate).Run(ctx, c.OrphanSweepInterval)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		util.Info().Str("signal", sig.String()).Msg("shutting down gracefully...")
	case err := <-errCh:
		if err != nil {
			cancel()
			workers.Wait()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	a.paste.Shutdown()
	cancel()
	workers.Wait()
	util.Info().Msg("shutdown complete")
	return nil
}
