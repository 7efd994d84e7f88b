package db

import (
	"context"
	"database/sql"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"thoth/pkg/codec"
	"thoth/pkg/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	ErrCircuitOpen = errors.New("database circuit breaker open")
	ErrDuplicateID = errors.New("paste id already exists")
)

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 100
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}
func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

// dsn turns on foreign keys for every pooled connection; the cascade
// deletes depend on it.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "FULL")
	return "file:" + path + "?" + q.Encode()
}
func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}
func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		isUniqueViolation(err) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT NOT NULL PRIMARY KEY,
		created_at DATETIME NOT NULL,
		application_name VARCHAR(100) NOT NULL,
		application_version VARCHAR(25) NOT NULL
	);
	CREATE TABLE IF NOT EXISTS paste_files (
		paste_id TEXT NOT NULL,
		filename VARCHAR(128) NOT NULL,
		size INTEGER NOT NULL,
		checksum TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (paste_id, filename),
		FOREIGN KEY (paste_id) REFERENCES pastes(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS paste_environment_os (
		paste_id TEXT NOT NULL PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		version VARCHAR(32) NOT NULL,
		architecture VARCHAR(12) NOT NULL,
		FOREIGN KEY (paste_id) REFERENCES pastes(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS paste_environment_jvm (
		paste_id TEXT NOT NULL PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		version VARCHAR(32) NOT NULL,
		vendor VARCHAR(32) NOT NULL,
		FOREIGN KEY (paste_id) REFERENCES pastes(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS paste_environment_custom (
		paste_id TEXT NOT NULL,
		name VARCHAR(64) NOT NULL,
		type VARCHAR(16) NOT NULL CHECK (type IN ('string', 'number', 'boolean', 'string[]', 'number[]')),
		data BLOB NOT NULL,
		PRIMARY KEY (paste_id, name),
		FOREIGN KEY (paste_id) REFERENCES pastes(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_pastes_created_at ON pastes(created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// NewPaste is everything CreatePaste writes, in one transaction.
type NewPaste struct {
	Paste       domain.Paste
	Environment domain.Environment
	Files       []domain.PasteFile
}

// CreatePaste inserts the root row, the environment rows and the file rows
// atomically. A primary key clash on pastes.id returns ErrDuplicateID so the
// caller can retry with a fresh id.
func (s *SQLite) CreatePaste(ctx context.Context, np NewPaste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	err := s.createPaste(queryCtx, np)
	s.recordError(err)
	return err
}
func (s *SQLite) createPaste(ctx context.Context, np NewPaste) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	p := np.Paste
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pastes (id, created_at, application_name, application_version) VALUES (?, ?, ?, ?)`,
		p.ID, p.CreatedAt.UTC(), p.Application.Name, p.Application.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(ErrDuplicateID, p.ID)
		}
		return errors.Wrap(err, "insert paste")
	}
	osEnv := np.Environment.OperatingSystem
	_, err = tx.ExecContext(ctx,
		`INSERT INTO paste_environment_os (paste_id, name, version, architecture) VALUES (?, ?, ?, ?)`,
		p.ID, osEnv.Name, osEnv.Version, osEnv.Architecture,
	)
	if err != nil {
		return errors.Wrap(err, "insert operating system")
	}
	if jvm := np.Environment.JavaVirtualMachine; jvm != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO paste_environment_jvm (paste_id, name, version, vendor) VALUES (?, ?, ?, ?)`,
			p.ID, jvm.Name, jvm.Version, jvm.Vendor,
		)
		if err != nil {
			return errors.Wrap(err, "insert jvm")
		}
	}
	if len(np.Environment.Custom) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO paste_environment_custom (paste_id, name, type, data) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare custom metadata")
		}
		defer stmt.Close()
		keys := make([]string, 0, len(np.Environment.Custom))
		for k := range np.Environment.Custom {
			if !domain.IsPredefinedKey(k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := np.Environment.Custom[k]
			blob, err := codec.Encode(v)
			if err != nil {
				return errors.Wrapf(err, "encode %s", k)
			}
			if blob == nil {
				blob = []byte{}
			}
			if _, err := stmt.ExecContext(ctx, p.ID, k, string(v.Kind()), blob); err != nil {
				return errors.Wrapf(err, "insert custom metadata %s", k)
			}
		}
	}
	if len(np.Files) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO paste_files (paste_id, filename, size, checksum) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare files")
		}
		defer stmt.Close()
		for _, f := range np.Files {
			if _, err := stmt.ExecContext(ctx, p.ID, f.Filename, f.Size, f.Checksum); err != nil {
				return errors.Wrapf(err, "insert file %s", f.Filename)
			}
		}
	}
	return errors.Wrap(tx.Commit(), "commit paste")
}
func (s *SQLite) GetPaste(ctx context.Context, id string) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var p domain.Paste
	err := s.db.QueryRowContext(queryCtx,
		`SELECT id, created_at, application_name, application_version FROM pastes WHERE id = ?`, id,
	).Scan(&p.ID, &p.CreatedAt, &p.Application.Name, &p.Application.Version)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get paste")
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// ListFiles returns an empty slice both for a paste without attachments
// and for an unknown paste.
func (s *SQLite) ListFiles(ctx context.Context, id string) ([]domain.PasteFile, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(queryCtx,
		`SELECT filename, size, checksum FROM paste_files WHERE paste_id = ? ORDER BY rowid`, id)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db list files")
	}
	defer rows.Close()
	files := make([]domain.PasteFile, 0)
	for rows.Next() {
		var (
			name, sum string
			size      int64
		)
		if err := rows.Scan(&name, &size, &sum); err != nil {
			return nil, errors.Wrap(err, "scan file")
		}
		files = append(files, domain.NewPasteFile(name, size, sum))
	}
	return files, errors.Wrap(rows.Err(), "iterate files")
}
func (s *SQLite) GetFile(ctx context.Context, id, filename string) (*domain.PasteFile, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var (
		size int64
		sum  string
	)
	err := s.db.QueryRowContext(queryCtx,
		`SELECT size, checksum FROM paste_files WHERE paste_id = ? AND filename = ?`, id, filename,
	).Scan(&size, &sum)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get file")
	}
	f := domain.NewPasteFile(filename, size, sum)
	return &f, nil
}

// DeletePaste removes the root row; the child tables follow through their
// cascades. It reports whether a row existed.
func (s *SQLite) DeletePaste(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM pastes WHERE id = ?`, id)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "delete paste")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete paste rows affected")
	}
	return n > 0, nil
}
func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var exists int
	err := s.db.QueryRowContext(queryCtx, `SELECT 1 FROM pastes WHERE id = ? LIMIT 1`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return exists == 1, nil
}
func (s *SQLite) Close() error {
	return s.db.Close()
}
