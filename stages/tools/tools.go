// Package tools runs the external media tools used by the pipeline stages: exiftool, mediainfo, and
// ffmpeg.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cschleiden/go-mediaflow/stages"
)

var commandContext = exec.CommandContext

type Options struct {
	// Exiftool, Mediainfo, and Ffmpeg are the binaries to run. They default to the tool name,
	// resolved through PATH.
	Exiftool  string
	Mediainfo string
	Ffmpeg    string

	Logger *slog.Logger
}

type Tools struct {
	exiftool  string
	mediainfo string
	ffmpeg    string

	logger *slog.Logger
}

var (
	_ stages.MetadataExtractor = (*Tools)(nil)
	_ stages.MediaTools        = (*Tools)(nil)
)

func New(options Options) *Tools {
	orDefault := func(v, def string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}

		return def
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &Tools{
		exiftool:  orDefault(options.Exiftool, "exiftool"),
		mediainfo: orDefault(options.Mediainfo, "mediainfo"),
		ffmpeg:    orDefault(options.Ffmpeg, "ffmpeg"),
		logger:    options.Logger,
	}
}

// Binaries returns the configured binaries, for preflight checks.
func (t *Tools) Binaries() []string {
	return []string{t.exiftool, t.mediainfo, t.ffmpeg}
}

// LookPath reports the first configured binary that can't be found.
func (t *Tools) LookPath() error {
	for _, bin := range t.Binaries() {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s: %w", bin, err)
		}
	}

	return nil
}

func (t *Tools) run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	if len(args) == 0 || args[len(args)-1] == "" {
		return nil, errors.New("no path given")
	}

	t.logger.DebugContext(ctx, "running tool", "tool", binary, "args", args)

	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", filepath.Base(binary), err, strings.TrimSpace(string(output)))
	}

	return output, nil
}

func (t *Tools) ImageThumbnail(ctx context.Context, src, dst string) ([]byte, error) {
	return t.run(ctx, t.ffmpeg,
		"-y",
		"-i", src,
		"-vf", "scale=640:360:force_original_aspect_ratio=decrease",
		"-frames:v", "1",
		"-loglevel", "fatal",
		dst,
	)
}

func (t *Tools) VideoFrames(ctx context.Context, src, dstPattern string) ([]byte, error) {
	return t.run(ctx, t.ffmpeg,
		"-y",
		"-i", src,
		"-vf", "fps=1,scale=iw/3:ih/3",
		"-loglevel", "fatal",
		dstPattern,
	)
}

func (t *Tools) TranscodeVideo(ctx context.Context, src, dst string) ([]byte, error) {
	return t.run(ctx, t.ffmpeg,
		"-y",
		"-i", src,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-c:a", "aac",
		"-loglevel", "fatal",
		dst,
	)
}

func (t *Tools) TranscodeAudio(ctx context.Context, src, dst string) ([]byte, error) {
	return t.run(ctx, t.ffmpeg,
		"-y",
		"-i", src,
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-loglevel", "fatal",
		dst,
	)
}
