package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"ridereel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a normalized config rooted at a fresh project directory.
// It applies any provided options after the derived paths are filled in.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg, _, _, err := config.LoadWithProject(filepath.Join(base, "missing.toml"), base)
	if err != nil {
		t.Fatalf("load test config: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDetector points detection at a command.
func WithDetector(command string, args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detection.Command = command
		b.cfg.Detection.Args = args
	}
}

// WithDirectories creates the project output directories and the input dir.
func WithDirectories() ConfigOption {
	return func(b *configBuilder) {
		if err := b.cfg.EnsureDirectories(); err != nil {
			b.t.Fatalf("ensure directories: %v", err)
		}
		if err := os.MkdirAll(b.cfg.Paths.InputDir, 0o755); err != nil {
			b.t.Fatalf("mkdir input dir: %v", err)
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the project directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.ProjectDir
}
