// Package ffmpeg wraps the external ffmpeg binary used to merge
// downloaded stream segments into a single container file.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/coursevault/coursevault/internal/domain"
)

// Merger merges media segments via the ffmpeg binary.
type Merger struct {
	ffmpegPath string
}

// NewMerger locates ffmpeg in PATH. Absence is reported as
// domain.ErrFFmpegNotFound so callers can fail before any network work.
func NewMerger() (*Merger, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFFmpegNotFound, err)
	}
	return &Merger{ffmpegPath: path}, nil
}

// IsAvailable checks if ffmpeg is available on the system.
func IsAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Version returns the ffmpeg version string.
func Version() (string, error) {
	out, err := exec.Command("ffmpeg", "-version").Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Concat concatenates video-only segments into outputPath without
// re-encoding, preserving the order of segmentPaths exactly.
func (m *Merger) Concat(ctx context.Context, segmentPaths []string, outputPath string) error {
	listFile, err := writeConcatList(segmentPaths, filepath.Dir(outputPath))
	if err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listFile)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts",
		"-y",
		outputPath,
	}
	return m.run(ctx, args)
}

// Mux merges separate video and audio segment sets into one container.
// Video is stream-copied; audio is re-encoded to AAC so mismatched
// source codecs always mux cleanly.
func (m *Merger) Mux(ctx context.Context, videoPaths, audioPaths []string, outputPath string) error {
	dir := filepath.Dir(outputPath)

	videoList, err := writeConcatList(videoPaths, dir)
	if err != nil {
		return fmt.Errorf("write video list: %w", err)
	}
	defer os.Remove(videoList)

	audioList, err := writeConcatList(audioPaths, dir)
	if err != nil {
		return fmt.Errorf("write audio list: %w", err)
	}
	defer os.Remove(audioList)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", videoList,
		"-f", "concat",
		"-safe", "0",
		"-i", audioList,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts",
		"-y",
		outputPath,
	}
	return m.run(ctx, args)
}

func (m *Merger) run(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v: %s", domain.ErrMergeFailed, err, lastLine(stderr.String()))
	}
	return nil
}

// writeConcatList writes a concat-demuxer list file next to the output.
func writeConcatList(paths []string, dir string) (string, error) {
	f, err := os.CreateTemp(dir, "segments-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if _, err := fmt.Fprintf(w, "file '%s'\n", escapeConcatPath(abs)); err != nil {
			os.Remove(f.Name())
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

// escapeConcatPath escapes single quotes for the concat demuxer list format.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

// lastLine returns the last non-empty line of ffmpeg's stderr, which is
// usually the actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
