package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 5 * time.Second

// Version runs "<binary> -version" and returns the first output line, e.g.
// "ffmpeg version 7.1 Copyright ...". ffmpeg and ffprobe share the flag.
func Version(ctx context.Context, binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", fmt.Errorf("binary not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "-version").Output() //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", binary, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s -version printed nothing", binary)
}

// ShortVersion trims a version banner to "name version X".
func ShortVersion(banner string) string {
	fields := strings.Fields(banner)
	if len(fields) >= 3 && fields[1] == "version" {
		return strings.Join(fields[:3], " ")
	}
	return banner
}
