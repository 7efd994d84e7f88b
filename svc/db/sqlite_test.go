package db

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"thoth/pkg/codec"
	"thoth/pkg/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePaste(id string) NewPaste {
	return NewPaste{
		Paste: domain.Paste{
			ID:          id,
			CreatedAt:   time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
			Application: domain.Application{Name: "x", Version: "1"},
		},
		Environment: domain.Environment{
			OperatingSystem: domain.OperatingSystem{Name: "linux", Version: "6.1", Architecture: "x86_64"},
		},
	}
}

const (
	idA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	idB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestCreateAndGetPaste(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	np := samplePaste(idA)
	np.Files = []domain.PasteFile{domain.NewPasteFile("notes.txt", 11, "abc")}
	require.NoError(t, s.CreatePaste(ctx, np))

	got, err := s.GetPaste(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, idA, got.ID)
	assert.Equal(t, np.Paste.Application, got.Application)
	assert.True(t, got.CreatedAt.Equal(np.Paste.CreatedAt))

	exists, err := s.Exists(ctx, idA)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.GetPaste(ctx, idB)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	files, err := s.ListFiles(ctx, idA)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, domain.PasteFile{Filename: "notes.txt", Size: 11, Extension: ".txt", Checksum: "abc"}, files[0])

	f, err := s.GetFile(ctx, idA, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "abc", f.Checksum)
	_, err = s.GetFile(ctx, idA, "other.txt")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListFilesUnknownPasteIsEmpty(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.CreatePaste(ctx, samplePaste(idA)))

	none, err := s.ListFiles(ctx, idA)
	require.NoError(t, err)
	unknown, err := s.ListFiles(ctx, idB)
	require.NoError(t, err)
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)
	assert.Equal(t, none, unknown)
}

func TestDuplicateIDIsReported(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.CreatePaste(ctx, samplePaste(idA)))

	err := s.CreatePaste(ctx, samplePaste(idA))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID), "%v", err)
	assert.NoError(t, s.checkCircuit())
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	np := samplePaste(idA)
	np.Files = []domain.PasteFile{
		domain.NewPasteFile("same.txt", 1, ""),
		domain.NewPasteFile("same.txt", 2, ""),
	}
	require.Error(t, s.CreatePaste(ctx, np))

	exists, err := s.Exists(ctx, idA)
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = s.GetEnvironmentRows(ctx, idA)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEnvironmentRoundTrip(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	withJVM := samplePaste(idA)
	withJVM.Environment.JavaVirtualMachine = &domain.JavaVirtualMachine{Name: "OpenJDK", Version: "21.0.2", Vendor: "Eclipse Adoptium"}
	withJVM.Environment.Custom = map[string]codec.Value{
		"str":       codec.String("größe 🚀"),
		"emptyStr":  codec.String(""),
		"num":       codec.Number(math.MinInt32),
		"flag":      codec.Bool(false),
		"list":      codec.Strings([]string{"a", "", "b"}),
		"emptyList": codec.Strings(nil),
		"nums":      codec.Numbers([]int32{math.MaxInt32, -1}),
		"noNums":    codec.Numbers(nil),
	}
	require.NoError(t, s.CreatePaste(ctx, withJVM))
	require.NoError(t, s.CreatePaste(ctx, samplePaste(idB)))

	rows, err := s.GetEnvironmentRows(ctx, idA)
	require.NoError(t, err)
	env, err := rows.Decode()
	require.NoError(t, err)
	require.NotNil(t, env.JavaVirtualMachine)
	assert.Equal(t, "Eclipse Adoptium", env.JavaVirtualMachine.Vendor)
	assert.Equal(t, withJVM.Environment.OperatingSystem, env.OperatingSystem)
	require.Len(t, env.Custom, len(withJVM.Environment.Custom))
	for k, want := range withJVM.Environment.Custom {
		assert.True(t, want.Equal(env.Custom[k]), k)
	}

	rows, err = s.GetEnvironmentRows(ctx, idB)
	require.NoError(t, err)
	assert.Nil(t, rows.JavaVirtualMachine)
	assert.Empty(t, rows.Custom)
}

func TestCorruptBlobFailsDecode(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.CreatePaste(ctx, samplePaste(idA)))
	_, err := s.DB().Exec(
		`INSERT INTO paste_environment_custom (paste_id, name, type, data) VALUES (?, 'bad', 'string[]', ?)`,
		idA, []byte{0, 0, 0, 9, 'x'},
	)
	require.NoError(t, err)

	rows, err := s.GetEnvironmentRows(ctx, idA)
	require.NoError(t, err)
	_, err = rows.Decode()
	assert.True(t, errors.Is(err, codec.ErrCorrupt))
}

func TestDeleteCascades(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	np := samplePaste(idA)
	np.Environment.JavaVirtualMachine = &domain.JavaVirtualMachine{Name: "a", Version: "b", Vendor: "c"}
	np.Environment.Custom = map[string]codec.Value{"k": codec.Number(1)}
	np.Files = []domain.PasteFile{domain.NewPasteFile("a.log", 1, "")}
	require.NoError(t, s.CreatePaste(ctx, np))

	removed, err := s.DeletePaste(ctx, idA)
	require.NoError(t, err)
	assert.True(t, removed)

	for _, table := range []string{"paste_files", "paste_environment_os", "paste_environment_jvm", "paste_environment_custom"} {
		var n int
		require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM "+table+" WHERE paste_id = ?", idA).Scan(&n))
		assert.Zero(t, n, table)
	}

	removed, err = s.DeletePaste(ctx, idA)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCheckpointAndPing(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.CreatePaste(ctx, samplePaste(idA)))
	assert.NoError(t, s.Checkpoint(ctx))
}

func TestCircuitOpensAfterFailures(t *testing.T) {
	s := newTestDB(t)
	for i := 0; i < maxFailures; i++ {
		s.recordError(errors.New("disk I/O error"))
	}
	assert.Equal(t, ErrCircuitOpen, s.checkCircuit())
	s.recordError(nil)
	assert.NoError(t, s.checkCircuit())
}
