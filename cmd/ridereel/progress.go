package main

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progressReporter draws one bar per pipeline phase ("grab", "clips", ...).
// A new phase finishes the previous bar.
type progressReporter struct {
	out io.Writer

	mu    sync.Mutex
	phase string
	total int
	bar   *progressbar.ProgressBar
}

// newProgressReporter returns nil when out is not an interactive terminal
// so logs stay clean under CI and redirection.
func newProgressReporter(out io.Writer, disabled bool) *progressReporter {
	if disabled || !shouldColorize(out) {
		return nil
	}
	return &progressReporter{out: out}
}

// Report satisfies workerpool.Progress.
func (p *progressReporter) Report(phase string, done, total int) {
	if p == nil || total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || phase != p.phase || total != p.total {
		p.finishLocked()
		p.phase = phase
		p.total = total
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(phase),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	_ = p.bar.Set(done)
	if done >= total {
		p.finishLocked()
	}
}

// Finish clears any bar still on screen.
func (p *progressReporter) Finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *progressReporter) finishLocked() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
	p.phase = ""
	p.total = 0
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
