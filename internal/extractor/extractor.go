package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExtractFrames extracts frames from a video file at specified intervals into
// <outputDir>/<video name>/frame_NNNN.jpg and returns that directory. Camera
// traps running in video mode are fed through here before detection.
func ExtractFrames(ctx context.Context, logger *slog.Logger, videoPath, outputDir string, interval int) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive, got %d", interval)
	}

	// Check if video file exists
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return "", fmt.Errorf("video file does not exist at path: '%s'", videoPath)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory '%s': %w", outputDir, err)
	}

	// Create a subfolder with the video's name
	videoName := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	frameDirPath := filepath.Join(outputDir, videoName)

	if n := countFrames(frameDirPath); n > 0 {
		logger.Info("Frames already exist, skipping extraction",
			"dir", frameDirPath,
			"frames", n)
		return frameDirPath, nil
	}

	if err := os.MkdirAll(frameDirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create frame directory '%s': %w", frameDirPath, err)
	}

	logger.Info("Extracting frames",
		"video", videoPath,
		"dir", frameDirPath,
		"interval_seconds", interval)

	ffmpegCommand := exec.CommandContext(ctx,
		"ffmpeg",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", interval),
		filepath.Join(frameDirPath, "frame_%04d.jpg"),
	)

	// Capture output for better error reporting
	output, err := ffmpegCommand.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}

	logger.Info("Successfully extracted frames",
		"dir", frameDirPath,
		"frames", countFrames(frameDirPath))
	return frameDirPath, nil
}

func countFrames(dir string) int {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(strings.ToLower(file.Name()), ".jpg") {
			n++
		}
	}
	return n
}
