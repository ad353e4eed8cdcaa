package main

import (
	"fmt"
	"io"
	"log"

	"github.com/salesbeat/fieldsync/internal/backend"
	"github.com/salesbeat/fieldsync/internal/config"
	"github.com/salesbeat/fieldsync/internal/dashboard"
	"github.com/salesbeat/fieldsync/internal/events"
	"github.com/salesbeat/fieldsync/internal/logging"
	"github.com/salesbeat/fieldsync/internal/netmon"
	"github.com/salesbeat/fieldsync/internal/queue"
	"github.com/salesbeat/fieldsync/internal/store"
	"github.com/salesbeat/fieldsync/internal/syncer"
)

// engine bundles the wired components a command needs.
type engine struct {
	cfg     *config.Config
	store   *store.Store
	bus     *events.Bus
	queue   *queue.Queue
	remote  backend.Client
	monitor *netmon.Monitor
	proc    *syncer.Processor
	loader  *dashboard.Loader
}

// newEngine loads config and wires the component graph. Commands that only
// touch the local store may pass requireBackend=false and run without a
// configured backend URL.
func newEngine(logWriter io.Writer, requireBackend bool) (*engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if requireBackend {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w (run 'fieldsync init')", err)
		}
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logging.New("events", logWriter))
	q := queue.New(st, bus, logging.New("queue", logWriter))

	var remote backend.Client
	if cfg.Backend.URL != "" {
		remote, err = backend.NewREST(backend.RESTConfig{
			BaseURL: cfg.Backend.URL,
			APIKey:  cfg.Backend.APIKey,
			Logger:  logging.New("backend", logWriter),
		})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	var monitor *netmon.Monitor
	if remote != nil {
		monitor = netmon.NewMonitor(remote.Ping, cfg.Sync.ProbeInterval,
			logging.New("netmon", logWriter))
	}

	procCfg := syncer.DefaultConfig()
	procCfg.OnlineDebounce = cfg.Sync.OnlineDebounce
	procCfg.MinGap = cfg.Sync.MinGap
	procCfg.Logger = logging.New("sync", logWriter)
	proc := syncer.New(q, remote, bus, procCfg)

	loader := dashboard.NewLoader(st, remote, dashboard.Config{
		SnapshotsDir:  cfg.Snapshots.Dir,
		RevenueTarget: cfg.Dashboard.RevenueTarget,
		Online: func() bool {
			if monitor == nil {
				return remote != nil
			}
			return monitor.Online()
		},
		Logger: logging.New("dashboard", logWriter),
	})

	return &engine{
		cfg:     cfg,
		store:   st,
		bus:     bus,
		queue:   q,
		remote:  remote,
		monitor: monitor,
		proc:    proc,
		loader:  loader,
	}, nil
}

// close releases the engine's resources.
func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		log.Printf("Warning: failed to close store: %v", err)
	}
}
