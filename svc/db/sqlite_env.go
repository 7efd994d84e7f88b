package db

import (
	"context"
	"database/sql"

	"thoth/pkg/codec"
	"thoth/pkg/domain"

	"github.com/pkg/errors"
)

// CustomRow is a stored custom metadata entry before decoding.
type CustomRow struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data []byte `json:"data"`
}

// EnvironmentRows is the stored form of an environment. It is what the
// redis tier caches, so a cached copy decodes through the same path as a
// fresh read.
type EnvironmentRows struct {
	OperatingSystem    domain.OperatingSystem     `json:"os"`
	JavaVirtualMachine *domain.JavaVirtualMachine `json:"jvm,omitempty"`
	Custom             []CustomRow                `json:"custom"`
}

// Decode rebuilds the environment. A blob that does not decode fails the
// whole read.
func (r EnvironmentRows) Decode() (domain.Environment, error) {
	env := domain.Environment{
		OperatingSystem:    r.OperatingSystem,
		JavaVirtualMachine: r.JavaVirtualMachine,
		Custom:             make(map[string]codec.Value, len(r.Custom)),
	}
	for _, row := range r.Custom {
		kind, err := codec.ParseKind(row.Type)
		if err != nil {
			return domain.Environment{}, errors.Wrapf(err, "custom metadata %s", row.Name)
		}
		v, err := codec.Decode(row.Data, kind)
		if err != nil {
			return domain.Environment{}, errors.Wrapf(err, "custom metadata %s", row.Name)
		}
		env.Custom[row.Name] = v
	}
	return env, nil
}

// GetEnvironmentRows returns domain.ErrNotFound only when the operating
// system row is missing.
func (s *SQLite) GetEnvironmentRows(ctx context.Context, id string) (*EnvironmentRows, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.getEnvironmentRows(queryCtx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	s.recordError(err)
	return rows, err
}
func (s *SQLite) getEnvironmentRows(ctx context.Context, id string) (*EnvironmentRows, error) {
	var env EnvironmentRows
	err := s.db.QueryRowContext(ctx,
		`SELECT name, version, architecture FROM paste_environment_os WHERE paste_id = ?`, id,
	).Scan(&env.OperatingSystem.Name, &env.OperatingSystem.Version, &env.OperatingSystem.Architecture)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "db get operating system")
	}

	var jvm domain.JavaVirtualMachine
	err = s.db.QueryRowContext(ctx,
		`SELECT name, version, vendor FROM paste_environment_jvm WHERE paste_id = ?`, id,
	).Scan(&jvm.Name, &jvm.Version, &jvm.Vendor)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, errors.Wrap(err, "db get jvm")
	default:
		env.JavaVirtualMachine = &jvm
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, data FROM paste_environment_custom WHERE paste_id = ? ORDER BY name`, id)
	if err != nil {
		return nil, errors.Wrap(err, "db get custom metadata")
	}
	defer rows.Close()
	env.Custom = make([]CustomRow, 0)
	for rows.Next() {
		var row CustomRow
		if err := rows.Scan(&row.Name, &row.Type, &row.Data); err != nil {
			return nil, errors.Wrap(err, "scan custom metadata")
		}
		env.Custom = append(env.Custom, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate custom metadata")
	}
	return &env, nil
}
