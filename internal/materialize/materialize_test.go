package materialize

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/flashtrap/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture creates a real file in a store dir and a symlink to it in an input dir.
func fixture(t *testing.T) (input string, regular, linked models.Frame) {
	t.Helper()
	input = t.TempDir()
	store := t.TempDir()

	regPath := filepath.Join(input, "reg.jpg")
	require.NoError(t, os.WriteFile(regPath, []byte("regular"), 0644))
	regular = models.Frame{ID: "reg.jpg", Path: regPath, Resolved: regPath}

	target := filepath.Join(store, "target.jpg")
	require.NoError(t, os.WriteFile(target, []byte("linked"), 0644))
	linkPath := filepath.Join(input, "lnk.jpg")
	require.NoError(t, os.Symlink(target, linkPath))
	linked = models.Frame{ID: "lnk.jpg", Path: linkPath, Resolved: target}
	return input, regular, linked
}

func readString(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"copy", "move", "link"} {
		a, err := ParseAction(s)
		require.NoError(t, err)
		assert.Equal(t, Action(s), a)
	}
	a, err := ParseAction("")
	require.NoError(t, err)
	assert.Equal(t, ActionCopy, a)

	_, err = ParseAction("delete")
	assert.Error(t, err)
}

func TestMaterializeCopy(t *testing.T) {
	input, regular, linked := fixture(t)
	m, err := New(Options{Dest: filepath.Join(input, DefaultDirName), Action: ActionCopy}, testLogger())
	require.NoError(t, err)

	for _, f := range []models.Frame{regular, linked} {
		dst, err := m.Materialize(f)
		require.NoError(t, err)

		info, err := os.Lstat(dst)
		require.NoError(t, err)
		assert.True(t, info.Mode().IsRegular(), "%s should be a regular file", f.ID)
		assert.FileExists(t, f.Path, "copy must keep the input reference")
	}
	assert.Equal(t, "regular", readString(t, filepath.Join(m.Dest(), "reg.jpg")))
	assert.Equal(t, "linked", readString(t, filepath.Join(m.Dest(), "lnk.jpg")))
}

func TestMaterializeMove(t *testing.T) {
	input, regular, linked := fixture(t)
	m, err := New(Options{Dest: filepath.Join(input, DefaultDirName), Action: ActionMove}, testLogger())
	require.NoError(t, err)

	_, err = m.Materialize(regular)
	require.NoError(t, err)
	_, err = m.Materialize(linked)
	require.NoError(t, err)

	assert.NoFileExists(t, regular.Path)
	_, err = os.Lstat(linked.Path)
	assert.True(t, os.IsNotExist(err), "move must remove the input link")
	assert.FileExists(t, linked.Resolved, "move must not delete the link target")

	assert.Equal(t, "regular", readString(t, filepath.Join(m.Dest(), "reg.jpg")))
	assert.Equal(t, "linked", readString(t, filepath.Join(m.Dest(), "lnk.jpg")))
}

func TestMaterializeLink(t *testing.T) {
	input, _, linked := fixture(t)
	m, err := New(Options{Dest: filepath.Join(input, DefaultDirName), Action: ActionLink}, testLogger())
	require.NoError(t, err)

	dst, err := m.Materialize(linked)
	require.NoError(t, err)
	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, linked.Resolved, target)

	// second run is a no-op
	_, err = m.Materialize(linked)
	require.NoError(t, err)
	assert.FileExists(t, linked.Path)
}

func TestMaterializeMoveLinkOnly(t *testing.T) {
	input, _, linked := fixture(t)
	m, err := New(Options{Dest: filepath.Join(input, DefaultDirName), Action: ActionMove, LinkOnly: true}, testLogger())
	require.NoError(t, err)

	dst, err := m.Materialize(linked)
	require.NoError(t, err)

	target, err := os.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, linked.Resolved, target)
	_, err = os.Lstat(linked.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestMaterializeMoveLinkOnlyRegularFile(t *testing.T) {
	input, regular, _ := fixture(t)
	m, err := New(Options{Dest: filepath.Join(input, DefaultDirName), Action: ActionMove, LinkOnly: true}, testLogger())
	require.NoError(t, err)

	dst, err := m.Materialize(regular)
	require.NoError(t, err)

	info, err := os.Lstat(dst)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "a regular input must be moved, not linked")
	assert.Equal(t, "regular", readString(t, dst))
	assert.NoFileExists(t, regular.Path)
}

func TestMaterializeAllOnlyTouchesVerdicts(t *testing.T) {
	input, regular, linked := fixture(t)
	m, err := New(Options{Dest: filepath.Join(input, DefaultDirName), Action: ActionCopy}, testLogger())
	require.NoError(t, err)

	done, err := m.MaterializeAll(context.Background(), []models.Frame{regular, linked}, models.NewVerdictSet("lnk.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []string{"lnk.jpg"}, done)
	assert.FileExists(t, filepath.Join(m.Dest(), "lnk.jpg"))
	assert.NoFileExists(t, filepath.Join(m.Dest(), "reg.jpg"))
}

func TestMaterializeAllReportsFailures(t *testing.T) {
	input, regular, _ := fixture(t)
	m, err := New(Options{Dest: filepath.Join(input, DefaultDirName)}, testLogger())
	require.NoError(t, err)

	gone := models.Frame{ID: "gone.jpg", Path: filepath.Join(input, "gone.jpg")}
	done, err := m.MaterializeAll(context.Background(), []models.Frame{regular, gone}, models.NewVerdictSet("reg.jpg", "gone.jpg"))
	assert.Equal(t, []string{"reg.jpg"}, done)
	assert.ErrorContains(t, err, "gone.jpg")
}

func TestNewRequiresDest(t *testing.T) {
	_, err := New(Options{}, testLogger())
	assert.Error(t, err)

	_, err = New(Options{Dest: t.TempDir(), Action: "shred"}, testLogger())
	assert.Error(t, err)
}

func TestPlace(t *testing.T) {
	_, regular, _ := fixture(t)
	out := t.TempDir()

	dst := filepath.Join(out, "a", "b", "copy.jpg")
	require.NoError(t, Place(regular.Path, dst, false))
	assert.Equal(t, "regular", readString(t, dst))

	err := Place(regular.Path, dst, false)
	assert.ErrorIs(t, err, ErrExists)

	lnk := filepath.Join(out, "link.jpg")
	require.NoError(t, Place(regular.Path, lnk, true))
	target, err := os.Readlink(lnk)
	require.NoError(t, err)
	assert.Equal(t, regular.Path, target)
}
