// Package monitor tracks whether the processing gateway is reachable.
//
// A Monitor probes the gateway immediately when started and then on a fixed
// interval. It announces each transition once, to registered listeners and
// as an SSE event, and never returns errors to its callers.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/gateway"
	"github.com/lutrinapp/lutrin/internal/sse"
)

// State is the gateway reachability as last observed.
type State string

// Monitor states.
const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Prober checks the gateway. gateway.Client implements it.
type Prober interface {
	Status(ctx context.Context) (*gateway.StatusReport, error)
}

// Listener reacts to connectivity transitions. Callbacks run on the
// monitor's goroutine and should return quickly.
type Listener interface {
	// OnOnline is called when the gateway becomes reachable again after
	// being offline. Listeners should rebuild their state from scratch.
	// The first successful probe after startup is not a recovery and does
	// not call it.
	OnOnline()
	OnOffline()
}

// EventEmitter broadcasts connectivity events.
type EventEmitter interface {
	Emit(event any)
}

// Report is a snapshot of the monitor's view.
type Report struct {
	State     State     `json:"state"`
	Since     time.Time `json:"since,omitzero"`
	LastProbe time.Time `json:"last_probe,omitzero"`
	Message   string    `json:"message,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Running   bool      `json:"running"`
}

// Monitor periodically probes the gateway.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	emitter  EventEmitter

	mu        sync.Mutex
	running   bool
	shutdown  bool
	cancel    context.CancelFunc
	done      chan struct{}
	state     State
	since     time.Time
	lastProbe time.Time
	message   string
	lastErr   string
	listeners []Listener
}

// New creates a stopped monitor.
func New(prober Prober, cfg config.MonitorConfig, logger *slog.Logger, emitter EventEmitter) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: cfg.Interval,
		timeout:  cfg.ProbeTimeout,
		logger:   logger,
		emitter:  emitter,
		state:    StateUnknown,
	}
}

// AddListener registers l for future transitions.
func (m *Monitor) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Start begins probing. Calling Start on a running or shut down monitor
// does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running || m.shutdown {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx, m.done)
}

// Stop halts probing and waits for an in-flight probe to be abandoned.
// It reports whether the monitor was running; calling Stop on a stopped
// monitor does nothing.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	return true
}

// Shutdown stops the monitor for good. It lets the DI container manage its
// lifecycle.
func (m *Monitor) Shutdown() error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	m.Stop()
	return nil
}

// Online reports whether network work should be attempted. An unknown
// state counts as online so work is not refused before the first probe.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateOffline
}

// Report returns the current view.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Report{
		State:     m.state,
		Since:     m.since,
		LastProbe: m.lastProbe,
		Message:   m.message,
		LastError: m.lastErr,
		Running:   m.running,
	}
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	report, err := m.prober.Status(probeCtx)
	cancel()

	// A probe abandoned by Stop says nothing about the gateway.
	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	next := StateOnline
	if err != nil {
		next = StateOffline
	}

	m.mu.Lock()
	m.lastProbe = now
	if err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastErr = ""
		m.message = report.Message
	}

	prev := m.state
	changed := prev != next
	if changed {
		m.state = next
		m.since = now
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if !changed {
		return
	}

	if next == StateOnline {
		m.logger.Info("gateway online")
	} else {
		m.logger.Warn("gateway offline", "error", err)
	}

	if m.emitter != nil {
		m.emitter.Emit(sse.NewConnectivityEvent(next == StateOnline, now))
	}
	if next == StateOnline && prev == StateUnknown {
		return
	}
	for _, l := range listeners {
		if next == StateOnline {
			l.OnOnline()
		} else {
			l.OnOffline()
		}
	}
}
