package extractor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/flashtrap/internal/detect"
	"github.com/bdougie/flashtrap/internal/models"
	"github.com/bdougie/flashtrap/internal/synth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnumerate(t *testing.T) {
	dir := t.TempDir()
	store := t.TempDir()

	require.NoError(t, synth.WritePNG(filepath.Join(dir, "b_regular.png"), synth.Uniform(8, 8, 8)))
	target := filepath.Join(store, "real.png")
	require.NoError(t, synth.WritePNG(target, synth.Uniform(8, 8, 8)))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "a_link.png")))
	require.NoError(t, os.Symlink(filepath.Join(store, "missing.png"), filepath.Join(dir, "c_dangling.jpg")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.jpg"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "_flash.jpg"), 0755))

	listing, err := Enumerate(dir)
	require.NoError(t, err)

	resolvedTarget, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	want := []models.Frame{
		{ID: "a_link.png", Path: filepath.Join(dir, "a_link.png"), Resolved: resolvedTarget},
		{ID: "b_regular.png", Path: filepath.Join(dir, "b_regular.png"), Resolved: filepath.Join(dir, "b_regular.png")},
	}
	assert.Equal(t, want, listing.Frames)
	assert.True(t, listing.Frames[0].IsLink())
	assert.False(t, listing.Frames[1].IsLink())

	require.Len(t, listing.Unresolved, 1)
	assert.Equal(t, "c_dangling.jpg", listing.Unresolved[0].FrameID)
	assert.ErrorIs(t, listing.Unresolved[0], detect.ErrUnresolvedReference)
}

func TestEnumerateMissingDir(t *testing.T) {
	_, err := Enumerate(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	require.NoError(t, synth.WritePNG(good, synth.Uniform(12, 10, 8)))
	bad := filepath.Join(dir, "bad.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not a jpeg"), 0644))

	img, err := Load(models.Frame{ID: "good.png", Path: good, Resolved: good})
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())

	_, err = Load(models.Frame{ID: "bad.jpg", Path: bad, Resolved: bad})
	assert.ErrorIs(t, err, detect.ErrInvalidInput)

	missing := filepath.Join(dir, "gone.png")
	_, err = Load(models.Frame{ID: "gone.png", Path: missing, Resolved: missing})
	assert.ErrorIs(t, err, detect.ErrUnresolvedReference)
}

func TestExtractFramesValidation(t *testing.T) {
	ctx := context.Background()
	_, err := ExtractFrames(ctx, discardLogger(), "video.mp4", t.TempDir(), 0)
	assert.Error(t, err)

	_, err = ExtractFrames(ctx, discardLogger(), filepath.Join(t.TempDir(), "missing.mp4"), t.TempDir(), 1)
	assert.ErrorContains(t, err, "does not exist")
}

func TestExtractFramesSkipsExisting(t *testing.T) {
	out := t.TempDir()
	video := filepath.Join(t.TempDir(), "trap01.mp4")
	require.NoError(t, os.WriteFile(video, []byte("stub"), 0644))

	frameDir := filepath.Join(out, "trap01")
	require.NoError(t, os.MkdirAll(frameDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(frameDir, "frame_0001.jpg"), []byte("x"), 0644))

	dir, err := ExtractFrames(context.Background(), discardLogger(), video, out, 1)
	require.NoError(t, err)
	assert.Equal(t, frameDir, dir)
}

func TestExtractFramesRunsFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	video := filepath.Join(t.TempDir(), "broken.mp4")
	require.NoError(t, os.WriteFile(video, []byte("definitely not a video"), 0644))

	_, err := ExtractFrames(context.Background(), discardLogger(), video, t.TempDir(), 1)
	assert.ErrorContains(t, err, "ffmpeg failed")
}

func TestDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, synth.WritePNG(path, synth.Uniform(40, 30, 8)))

	w, h, err := Dimensions(models.Frame{ID: "frame.png", Path: path, Resolved: path})
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)
}
