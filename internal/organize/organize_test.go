package organize

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dcim(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"100MEDIA", "101MEDIA", "MISC"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, dir), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "100MEDIA", "DSCF0001.JPG"), []byte("one"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "101MEDIA", "DSCF0002.jpg"), []byte("two"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "101MEDIA", "DSCF0003.AVI"), []byte("video"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "MISC", "other.jpg"), []byte("misc"), 0644))
	return root
}

func TestOrganizeWithoutExif(t *testing.T) {
	src := dcim(t)
	dest := t.TempDir()

	sum, err := Organize(context.Background(), Options{Source: src, Dest: dest}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, Summary{Placed: 2, NoExif: 2}, sum)

	assert.FileExists(t, filepath.Join(dest, "DSCF0001.JPG"))
	assert.FileExists(t, filepath.Join(dest, "DSCF0002.jpg"))
	assert.NoFileExists(t, filepath.Join(dest, "DSCF0003.AVI"))
	assert.NoFileExists(t, filepath.Join(dest, "other.jpg"))

	// a second run skips what is already there
	sum, err = Organize(context.Background(), Options{Source: src, Dest: dest}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Existing)
	assert.Zero(t, sum.Placed)
}

func TestOrganizeLinks(t *testing.T) {
	src := dcim(t)
	dest := t.TempDir()

	_, err := Organize(context.Background(), Options{Source: src, Dest: dest, Link: true}, testLogger())
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(dest, "DSCF0001.JPG"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(src, "100MEDIA", "DSCF0001.JPG"), target)
}

func TestOrganizeMissingSource(t *testing.T) {
	_, err := Organize(context.Background(), Options{Source: filepath.Join(t.TempDir(), "DCIM"), Dest: t.TempDir()}, testLogger())
	assert.Error(t, err)
}
