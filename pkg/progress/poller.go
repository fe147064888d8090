package progress

import (
	"context"
	"sync"
	"time"
)

// ProgressFunc reads the authoritative engine progress (0-100)
type ProgressFunc func() int

// DisplayFunc receives the smoothed percentage on every tick
type DisplayFunc func(displayed float64)

// Poller samples engine progress at a fixed interval and feeds the
// smoothed value to a display callback. It is strictly a consumer:
// it never mutates engine state and never decides completion itself.
type Poller struct {
	interval time.Duration
	read     ProgressFunc
	display  DisplayFunc

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// NewPoller creates a poller; interval <= 0 defaults to one second
func NewPoller(interval time.Duration, read ProgressFunc, display DisplayFunc) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{interval: interval, read: read, display: display}
}

// Start launches the polling goroutine. The poller stops when the engine
// reports 100, when ctx is cancelled, or when Stop is called.
func (p *Poller) Start(ctx context.Context, estimate time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	p.stop = cancel

	sm := NewSmoother(estimate, time.Now())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				engine := p.read()
				p.display(sm.Observe(now, engine))
				if engine >= 100 {
					return
				}
			}
		}
	}()
}

// Stop cancels polling and waits for the goroutine to exit
func (p *Poller) Stop() {
	if p.stop != nil {
		p.stop()
	}
	p.wg.Wait()
}
