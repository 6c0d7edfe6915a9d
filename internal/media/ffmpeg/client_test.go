package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ridereel/internal/media/ffmpeg"
	"ridereel/internal/services"
)

type stubExecutor struct {
	lines []string
	err   error
	write []byte
	args  [][]string
}

func (s *stubExecutor) Run(_ context.Context, _ string, args []string, onOutput func(string)) error {
	s.args = append(s.args, append([]string(nil), args...))
	for _, line := range s.lines {
		if onOutput != nil {
			onOutput(line)
		}
	}
	if s.write != nil {
		if err := os.WriteFile(args[len(args)-1], s.write, 0o644); err != nil {
			return err
		}
	}
	return s.err
}

const encoderListing = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 A....D aac                  AAC (Advanced Audio Coding)`

func TestEncodersParsesListing(t *testing.T) {
	exec := &stubExecutor{lines: strings.Split(encoderListing, "\n")}
	client := ffmpeg.New("ffmpeg", ffmpeg.WithExecutor(exec))
	encoders, err := client.Encoders(context.Background())
	if err != nil {
		t.Fatalf("Encoders: %v", err)
	}
	for _, want := range []string{"libx264", "h264_nvenc", "aac"} {
		if !encoders[want] {
			t.Fatalf("expected %s in %v", want, encoders)
		}
	}
	if encoders["="] || encoders["Video"] || len(encoders) != 3 {
		t.Fatalf("legend lines leaked into encoders: %v", encoders)
	}
}

func TestRunTagsExternalToolErrors(t *testing.T) {
	client := ffmpeg.New("", ffmpeg.WithExecutor(&stubExecutor{err: errors.New("exit status 1")}))
	if client.Binary() != "ffmpeg" {
		t.Fatalf("default binary = %q", client.Binary())
	}
	err := client.Run(context.Background(), "encode clip", []string{"-i", "x"})
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "encode clip") {
		t.Fatalf("expected external tool error with operation, got %v", err)
	}
}

func TestThumbnailReadsRawGray(t *testing.T) {
	exec := &stubExecutor{write: make([]byte, 16*16)}
	client := ffmpeg.New("ffmpeg", ffmpeg.WithExecutor(exec))
	data, err := client.Thumbnail(context.Background(), "Fly6Pro_0001.MP4", 12.5, 16, t.TempDir())
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if len(data) != 256 {
		t.Fatalf("thumbnail size = %d", len(data))
	}
	joined := strings.Join(exec.args[0], " ")
	for _, want := range []string{"-ss 12.500", "scale=16:16", "-pix_fmt gray", "-f rawvideo"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %s", want, joined)
		}
	}
}

func TestThumbnailRejectsShortOutput(t *testing.T) {
	client := ffmpeg.New("ffmpeg", ffmpeg.WithExecutor(&stubExecutor{write: []byte{1, 2, 3}}))
	if _, err := client.Thumbnail(context.Background(), "v.MP4", 0, 16, t.TempDir()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestGrabFrameRequiresOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "frames", "f.jpg")
	client := ffmpeg.New("ffmpeg", ffmpeg.WithExecutor(&stubExecutor{}))
	if err := client.GrabFrame(context.Background(), "v.MP4", 1, out, 640); err == nil {
		t.Fatal("expected error when no frame is written")
	}
	exec := &stubExecutor{write: []byte{0xff, 0xd8}}
	client = ffmpeg.New("ffmpeg", ffmpeg.WithExecutor(exec))
	if err := client.GrabFrame(context.Background(), "v.MP4", 1, out, 640); err != nil {
		t.Fatalf("GrabFrame: %v", err)
	}
	if !strings.Contains(strings.Join(exec.args[0], " "), "scale=640:-2") {
		t.Fatalf("missing scale filter: %v", exec.args[0])
	}
}

func TestFormatSeconds(t *testing.T) {
	if ffmpeg.FormatSeconds(-1) != "0.000" || ffmpeg.FormatSeconds(9.8) != "9.800" {
		t.Fatal("unexpected seek formatting")
	}
}
