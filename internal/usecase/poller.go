package usecase

import (
	"sync"
	"time"

	"scribedesk/internal/platform/clock"
)

// unitPoller schedules one fetch at a time. Each fetch decides whether the
// next one is needed by calling Ensure again.
type unitPoller struct {
	clock    clock.Clock
	interval time.Duration
	poll     func()

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

func newUnitPoller(clk clock.Clock, interval time.Duration, poll func()) *unitPoller {
	return &unitPoller{clock: clk, interval: interval, poll: poll}
}

// Ensure arms the next tick unless one is already pending.
func (p *unitPoller) Ensure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.timer != nil {
		return
	}
	p.timer = p.clock.AfterFunc(p.interval, p.fire)
}

// Cancel drops a pending tick. The poller can be armed again afterwards.
func (p *unitPoller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Stop cancels the pending tick for good.
func (p *unitPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *unitPoller) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

func (p *unitPoller) fire() {
	p.mu.Lock()
	p.timer = nil
	stopped := p.stopped
	p.mu.Unlock()

	if !stopped {
		p.poll()
	}
}
