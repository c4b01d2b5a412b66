package ffmpeg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coursevault/coursevault/internal/domain"
)

func TestNewMerger_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := NewMerger()
	if err == nil {
		t.Fatal("expected error when ffmpeg is absent")
	}
	if !errors.Is(err, domain.ErrFFmpegNotFound) {
		t.Errorf("err = %v, want ErrFFmpegNotFound", err)
	}
}

func TestIsAvailable_EmptyPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	if IsAvailable() {
		t.Error("IsAvailable = true with empty PATH")
	}
}

// installFakeFfmpeg puts a stub ffmpeg on PATH that prints a version banner.
func installFakeFfmpeg(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\necho 'ffmpeg version 6.1.1-test'\necho 'built with gcc 13'\n"
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)
}

func TestIsAvailable_OnPath(t *testing.T) {
	installFakeFfmpeg(t)

	if !IsAvailable() {
		t.Error("IsAvailable = false with ffmpeg on PATH")
	}
}

func TestVersion(t *testing.T) {
	installFakeFfmpeg(t)

	v, err := Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "ffmpeg version 6.1.1-test" {
		t.Errorf("Version = %q, want first banner line only", v)
	}
}

func TestVersion_Missing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	if _, err := Version(); err == nil {
		t.Error("expected error when ffmpeg is absent")
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "video_00000.ts"),
		filepath.Join(dir, "video_00001.ts"),
	}

	listFile, err := writeConcatList(paths, dir)
	if err != nil {
		t.Fatalf("writeConcatList: %v", err)
	}
	defer os.Remove(listFile)

	data, err := os.ReadFile(listFile)
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	// Order must match the input exactly.
	if !strings.Contains(lines[0], "video_00000.ts") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "video_00001.ts") {
		t.Errorf("line 1 = %q", lines[1])
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "file '") {
			t.Errorf("line %q missing file directive", l)
		}
	}
}

func TestEscapeConcatPath(t *testing.T) {
	got := escapeConcatPath("/tmp/it's here.ts")
	want := `/tmp/it'\''s here.ts`
	if got != want {
		t.Errorf("escapeConcatPath = %q, want %q", got, want)
	}
}

func TestLastLine(t *testing.T) {
	out := "frame=  100\nsomething happened\nActual error here\n\n"
	if got := lastLine(out); got != "Actual error here" {
		t.Errorf("lastLine = %q", got)
	}
	if got := lastLine(""); got != "" {
		t.Errorf("lastLine(empty) = %q", got)
	}
}
