// Package netmon tracks backend connectivity and schedules the engine's
// periodic background work.
//
// Connectivity is a binary online/offline state derived from periodic health
// probes against the remote backend, with an explicit override for hosts that
// have a better signal. Transitions fire listeners; the sync processor uses
// the offline-to-online edge to trigger a debounced sync.
package netmon

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Probe checks backend reachability. A nil return means online.
type Probe func(ctx context.Context) error

// Monitor derives online/offline state from a reachability probe.
type Monitor struct {
	probe    Probe
	interval time.Duration
	logger   *log.Logger

	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func(online bool)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a connectivity monitor.
//
// The probe runs every interval once Start is called. The monitor starts in
// the offline state; the first successful probe flips it online. If logger is
// nil, a default logger writing to stderr is used.
func NewMonitor(probe Probe, interval time.Duration, logger *log.Logger) *Monitor {
	if interval == 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	return &Monitor{
		probe:     probe,
		interval:  interval,
		logger:    logger,
		listeners: make(map[int]func(bool)),
	}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline overrides the connectivity state directly. Hosts with their own
// network signal (or tests) use this instead of waiting for a probe cycle.
func (m *Monitor) SetOnline(online bool) {
	m.transition(online)
}

// OnChange registers a listener fired on every online/offline transition.
// The listener receives the new state. Returns an unsubscribe function.
func (m *Monitor) OnChange(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Start begins probing in the background. Call Stop to shut down.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop halts probing and waits for the probe goroutine to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	// Probe immediately so the daemon doesn't sit offline for a full
	// interval after startup.
	m.runProbe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runProbe(ctx)
		}
	}
}

func (m *Monitor) runProbe(ctx context.Context) {
	if m.probe == nil {
		return
	}
	err := m.probe(ctx)
	m.transition(err == nil)
}

// transition updates the state and notifies listeners on an actual change.
func (m *Monitor) transition(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	if online {
		m.logger.Printf("Connectivity restored")
	} else {
		m.logger.Printf("Connectivity lost")
	}

	for _, fn := range listeners {
		fn(online)
	}
}
