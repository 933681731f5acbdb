package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"djmix/deck"
	"djmix/logger"
)

// StatusFunc receives deck snapshots from the Monitor.
type StatusFunc func(statuses []deck.Status)

// Monitor polls deck status at a fixed interval, the way a UI refreshes its
// progress bars.
type Monitor struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
	wg       *sync.WaitGroup

	mu       sync.Mutex
	handlers []StatusFunc
	cancel   context.CancelFunc
}

// NewMonitor creates a Monitor for e.
func NewMonitor(e *Engine, interval time.Duration, wg *sync.WaitGroup) *Monitor {
	return &Monitor{
		engine:   e,
		interval: interval,
		logger:   logger.WithComponent("monitor"),
		wg:       wg,
	}
}

// OnStatus adds a handler called on every poll.
func (m *Monitor) OnStatus(fn StatusFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Start begins polling until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.logger.Debug("Starting status monitoring", slog.Duration("interval", m.interval))

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.poll()
			case <-ctx.Done():
				m.logger.Debug("Status monitoring stopped")
				return
			}
		}
	}()
}

// Stop stops polling.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Monitor) poll() {
	statuses := m.engine.Statuses()

	m.mu.Lock()
	handlers := append([]StatusFunc(nil), m.handlers...)
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(statuses)
	}
}
