package files

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"thoth/pkg/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "0123456789abcdef0123456789abcdef"

func TestReserveIsExclusive(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Reserve(testID))
	err = s.Reserve(testID)
	assert.True(t, errors.Is(err, ErrReserved))

	assert.True(t, errors.Is(s.Reserve("../escape"), ErrInvalidID))
}

func TestWriteAllAndHandle(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	require.NoError(t, s.Reserve(testID))

	rows, err := s.WriteAll(testID, []domain.Attachment{
		{Filename: "notes.txt", Content: []byte("hello world")},
		{Filename: "latest.log", Content: []byte("[INFO] started\n")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "notes.txt", rows[0].Filename)
	assert.Equal(t, int64(11), rows[0].Size)
	assert.Equal(t, ".txt", rows[0].Extension)
	assert.Len(t, rows[0].Checksum, 64)
	assert.NotEqual(t, rows[0].Checksum, rows[1].Checksum)

	onDisk, err := os.ReadFile(filepath.Join(root, "pastes", testID, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(onDisk))

	h := s.Handle(testID, "notes.txt")
	require.True(t, h.Exists())
	f, err := h.Open()
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(b))
	assert.True(t, strings.HasPrefix(h.ContentType(), "text/plain"))

	assert.False(t, s.Handle(testID, "missing.txt").Exists())
	assert.False(t, s.Handle(testID, "..").Exists())
	assert.False(t, s.Handle("nothex", "notes.txt").Exists())
}

func TestWriteAllRejectsBadNames(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Reserve(testID))

	_, err = s.WriteAll(testID, []domain.Attachment{{Filename: "a/b.txt"}})
	assert.True(t, errors.Is(err, ErrInvalidName))

	_, err = s.WriteAll(testID, []domain.Attachment{{Filename: "x.txt"}, {Filename: "x.txt"}})
	assert.True(t, errors.Is(err, ErrDuplicateName))

	_, err = s.WriteAll(testID, []domain.Attachment{{Filename: strings.Repeat("a", domain.MaxFilenameLen+1)}})
	assert.True(t, errors.Is(err, ErrInvalidName))
}

func TestNormalizeNameNFC(t *testing.T) {
	decomposed := "cafe\u0301.txt"
	name, err := NormalizeName(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9.txt", name)
}

func TestListAndRemove(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Reserve(testID))
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "not-a-paste"), 0o750))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testID, entries[0].ID)

	require.NoError(t, s.Remove(testID))
	entries, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
