package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/Sternrassler/slack-exporter/pkg/ratelimit"
	"github.com/Sternrassler/slack-exporter/pkg/retry"
)

// progress rewrites a single status line during waits. It stays silent when
// the output is not a terminal; the logs carry the same events.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	dirty   bool
}

func newProgress(w io.Writer) *progress {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = term.IsTerminal(int(f.Fd()))
	}
	return &progress{w: w, enabled: enabled}
}

func (p *progress) throttle(state ratelimit.State, remaining time.Duration) {
	p.line("Rate %.1f/%d calls per minute, waiting %s", state.Rate, state.Limit, remaining.Round(time.Second))
}

func (p *progress) retry(w retry.Wait) {
	p.line("%s failed (attempt %d), trying again in %s", w.Operation, w.Attempt, w.Remaining.Round(time.Second))
}

func (p *progress) line(format string, args ...any) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\r\033[K"+format, args...)
	p.dirty = true
}

// done clears a pending status line.
func (p *progress) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirty {
		fmt.Fprint(p.w, "\r\033[K")
		p.dirty = false
	}
}
