package transcriber

import (
	"sync"
	"time"
)

// CoalesceInterval is the UI refresh cadence for preview text.
const CoalesceInterval = 80 * time.Millisecond

// Coalescer throttles a high-frequency stream of partial-text updates
// down to at most one callback per interval. Intermediate values are
// superseded, the last value before any gap is always delivered.
type Coalescer struct {
	interval time.Duration
	emit     func(string)

	mu        sync.Mutex
	latest    string
	scheduled bool
}

func NewCoalescer(interval time.Duration, emit func(string)) *Coalescer {
	if interval <= 0 {
		interval = CoalesceInterval
	}
	return &Coalescer{interval: interval, emit: emit}
}

// Push records the newest preview value and schedules a flush if none
// is pending.
func (c *Coalescer) Push(text string) {
	c.mu.Lock()
	c.latest = text
	if c.scheduled {
		c.mu.Unlock()
		return
	}
	c.scheduled = true
	c.mu.Unlock()

	time.AfterFunc(c.interval, c.flush)
}

func (c *Coalescer) flush() {
	c.mu.Lock()
	c.scheduled = false
	text := c.latest
	c.latest = ""
	c.mu.Unlock()

	if text != "" {
		c.emit(text)
	}
}

// Flush delivers any pending value immediately. Called once the final
// text is known so the preview never lags behind the result.
func (c *Coalescer) Flush() {
	c.flush()
}
