package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ridereel/internal/logging"
	"ridereel/internal/services"
)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps ffmpeg CLI interactions.
type Client struct {
	binary string
	exec   Executor
	logger *slog.Logger
}

// New constructs an ffmpeg client. An empty binary resolves "ffmpeg" from PATH.
func New(binary string, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	client := &Client{binary: binary, exec: commandExecutor{}, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "ffmpeg")
	return client
}

// Binary returns the executable the client invokes.
func (c *Client) Binary() string {
	return c.binary
}

// Run executes ffmpeg with args. Failures are tagged with ErrExternalTool.
func (c *Client) Run(ctx context.Context, operation string, args []string) error {
	return c.run(ctx, operation, args, nil)
}

func (c *Client) run(ctx context.Context, operation string, args []string, onOutput func(string)) error {
	c.logger.Debug("ffmpeg command", logging.String("operation", operation), logging.String("args", strings.Join(args, " ")))
	if err := c.exec.Run(ctx, c.binary, args, onOutput); err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "", operation, "ffmpeg interrupted", ctx.Err())
		}
		return services.Wrap(services.ErrExternalTool, "", operation, "ffmpeg failed", err)
	}
	return nil
}

// Encoders lists the encoder names the ffmpeg build supports.
func (c *Client) Encoders(ctx context.Context) (map[string]bool, error) {
	found := make(map[string]bool)
	err := c.run(ctx, "list encoders", []string{"-hide_banner", "-encoders"}, func(line string) {
		if name, ok := parseEncoderLine(line); ok {
			found[name] = true
		}
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// parseEncoderLine reads lines like " V....D libx264   libx264 H.264 ...".
func parseEncoderLine(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	flags := fields[0]
	if len(flags) != 6 || strings.Trim(flags, "VASFXBD.") != "" || flags == "------" {
		return "", false
	}
	if !strings.ContainsAny(flags[:1], "VAS") {
		return "", false
	}
	if fields[1] == "=" {
		return "", false
	}
	return fields[1], true
}

// GrabFrame writes the frame at seek seconds as a JPEG scaled to width pixels
// wide (0 keeps the source size).
func (c *Client) GrabFrame(ctx context.Context, video string, seek float64, out string, width int) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create frame directory: %w", err)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", FormatSeconds(seek),
		"-i", video,
		"-frames:v", "1",
		"-q:v", "2",
	}
	if width > 0 {
		args = append(args, "-vf", "scale="+strconv.Itoa(width)+":-2")
	}
	args = append(args, out)
	if err := c.run(ctx, "grab frame", args, nil); err != nil {
		return err
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "", "grab frame", "no frame written for "+filepath.Base(video), err)
	}
	return nil
}

// Thumbnail returns a size×size 8-bit grayscale image of the frame at seek.
func (c *Client) Thumbnail(ctx context.Context, video string, seek float64, size int, scratchDir string) ([]byte, error) {
	if size <= 0 {
		size = 64
	}
	tmp, err := os.CreateTemp(scratchDir, "thumb-*.gray")
	if err != nil {
		return nil, fmt.Errorf("create thumbnail temp: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	dim := strconv.Itoa(size)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", FormatSeconds(seek),
		"-i", video,
		"-frames:v", "1",
		"-vf", "scale=" + dim + ":" + dim,
		"-pix_fmt", "gray",
		"-f", "rawvideo",
		tmpPath,
	}
	if err := c.run(ctx, "thumbnail", args, nil); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}
	if len(data) != size*size {
		return nil, services.Wrap(services.ErrExternalTool, "", "thumbnail",
			fmt.Sprintf("expected %d bytes, got %d", size*size, len(data)), nil)
	}
	return data, nil
}

// FormatSeconds renders a seek value with millisecond precision.
func FormatSeconds(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}
