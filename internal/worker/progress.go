package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Progress renders a single-line status for a sharpening run and builds the
// closing summary. It is safe for concurrent use.
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	unit    string
	enabled bool
	start   time.Time

	done    int
	total   int
	failed  int
	skipped int
}

// progressState is a consistent copy of the counters.
type progressState struct {
	done, total, failed, skipped int
	elapsed                      time.Duration
}

// rate returns finished items per second.
func (s progressState) rate() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.done) / s.elapsed.Seconds()
}

// eta estimates the remaining time, or 0 when unknown or finished.
func (s progressState) eta() time.Duration {
	r := s.rate()
	if r <= 0 || s.done >= s.total {
		return 0
	}
	return time.Duration(float64(s.total-s.done)/r) * time.Second
}

// NewProgress creates a tracker for total items of the given unit ("images",
// "tiles"). total may be 0 and set later through Update.
func NewProgress(total int, unit string, enabled bool) *Progress {
	if unit == "" {
		unit = "items"
	}
	return &Progress{
		out:     os.Stderr,
		unit:    unit,
		enabled: enabled,
		start:   time.Now(),
		total:   total,
	}
}

// Update records done of total finished items, failed of which failed.
func (p *Progress) Update(done, total, failed int) {
	p.mu.Lock()
	p.done, p.total, p.failed = done, total, failed
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// SetSkipped records items that were left untouched, such as existing
// outputs or tiles outside the bounding box. They are not part of total.
func (p *Progress) SetSkipped(n int) {
	p.mu.Lock()
	p.skipped = n
	p.mu.Unlock()
}

// Callback adapts Update to a Pool progress hook.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

func (p *Progress) snapshot() progressState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return progressState{
		done:    p.done,
		total:   p.total,
		failed:  p.failed,
		skipped: p.skipped,
		elapsed: time.Since(p.start),
	}
}

// Print writes the status line, overwriting the previous one.
func (p *Progress) Print() {
	fmt.Fprint(p.out, "\r"+p.line(p.snapshot())+"          ")
}

func (p *Progress) line(s progressState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d/%d %s", bar(s.done, s.total), s.done, s.total, p.unit)
	if s.failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", s.failed)
	}
	fmt.Fprintf(&b, " - %.1f %s/sec", s.rate(), p.unit)

	switch {
	case s.done >= s.total:
		fmt.Fprintf(&b, " - Done in %s", formatDuration(s.elapsed))
	case s.eta() > 0:
		fmt.Fprintf(&b, " - ETA: %s", formatDuration(s.eta()))
	}
	return b.String()
}

// bar draws a fixed-width bar. An empty run counts as full.
func bar(done, total int) string {
	filled := barWidth
	if total > 0 {
		filled = min(max(done*barWidth/total, 0), barWidth)
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

// Done prints the final status line followed by a newline.
func (p *Progress) Done() {
	if !p.enabled {
		return
	}
	p.Print()
	fmt.Fprintln(p.out)
}

// Summary describes the finished run in one line.
func (p *Progress) Summary() string {
	s := p.snapshot()
	msg := fmt.Sprintf("Sharpened %d/%d %s (%d failed", s.done-s.failed, s.total, p.unit, s.failed)
	if s.skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", s.skipped)
	}
	return msg + fmt.Sprintf(") in %s (%.1f %s/sec)", formatDuration(s.elapsed), s.rate(), p.unit)
}

// formatDuration renders d as 42s, 3m7s or 2h5m.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
