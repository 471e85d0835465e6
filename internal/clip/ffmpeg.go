package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Spec describes the audio asset an Extractor must produce.
type Spec struct {
	Duration   time.Duration
	Channels   int
	SampleRate int
}

var DefaultSpec = Spec{
	Duration:   10 * time.Second,
	Channels:   1,
	SampleRate: 22050,
}

// Extractor records a short clip from streamURL into outPath. It must give up
// when ctx is done.
type Extractor interface {
	Extract(ctx context.Context, streamURL, outPath string, spec Spec) error
}

// FFmpeg extracts clips by running the ffmpeg binary at Path.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) Extract(ctx context.Context, streamURL, outPath string, spec Spec) error {
	if strings.HasPrefix(streamURL, "-") {
		return fmt.Errorf("refusing stream url %q", streamURL)
	}

	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, ffmpegArgs(streamURL, outPath, spec)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Stream readers can hold the pipes open after the kill.
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg stopped: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("ffmpeg exited with %d: %s", exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return fmt.Errorf("running ffmpeg: %w", err)
	}
	return nil
}

func ffmpegArgs(streamURL, outPath string, spec Spec) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", streamURL,
		"-t", strconv.FormatFloat(spec.Duration.Seconds(), 'f', -1, 64),
		"-ac", strconv.Itoa(spec.Channels),
		"-ar", strconv.Itoa(spec.SampleRate),
		"-f", "mp3",
		"-y", outPath,
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
