package importer

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress writes a running count of imported records to a writer. It is
// safe for concurrent use by the batch workers.
type Progress struct {
	mu           sync.Mutex
	w            io.Writer
	label        string
	total        int
	done         int
	every        int
	lastReported int
	start        time.Time
	started      bool
}

// NewProgress reports every `every` records out of total, labelled with
// the target being imported. A nil writer discards the output.
func NewProgress(w io.Writer, label string, total, every int) *Progress {
	if w == nil {
		w = io.Discard
	}
	if every < 1 {
		every = 1
	}
	return &Progress{w: w, label: label, total: total, every: every}
}

// Start resets the counters and the clock.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
	p.started = true
	p.done = 0
	p.lastReported = 0
}

// Add records n more imported records.
func (p *Progress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.done = min(p.done+n, p.total)
	if p.done-p.lastReported >= p.every {
		p.report()
		p.lastReported = p.done
	}
}

// Done returns the number of records counted so far.
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Finish prints the final line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.w)
}

// Elapsed returns the time since Start.
func (p *Progress) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return 0
	}
	return time.Since(p.start)
}

func (p *Progress) report() {
	elapsed := time.Since(p.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.done) / elapsed
	}
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	fmt.Fprintf(p.w, "\r%s: %d/%d (%.1f%%) - %.1f records/s", p.label, p.done, p.total, pct, rate)
}
