package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesbeat/fieldsync/internal/config"
	"github.com/salesbeat/fieldsync/internal/events"
	"github.com/salesbeat/fieldsync/internal/logging"
	"github.com/salesbeat/fieldsync/internal/model"
	"github.com/salesbeat/fieldsync/internal/netmon"
	"github.com/salesbeat/fieldsync/internal/snapshot"
	"github.com/salesbeat/fieldsync/internal/status"
	"github.com/salesbeat/fieldsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync engine in the foreground",
	Long: `Run the full sync engine: connectivity monitoring, queue polling,
snapshot watching, dashboard refresh, and the status push server.

On startup the daemon:
  1. Cleans up stuck and stale queue entries (one-time pass)
  2. Starts probing backend connectivity
  3. Polls the queue every few seconds and syncs when entries are pending
  4. Watches the snapshots directory for offline-captured visits
  5. Refreshes the cached dashboard for today on a coarse timer

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runDaemon() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	var logWriter io.Writer = os.Stderr
	if cfg.Log.File != "" {
		logWriter = logging.Tee(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	}

	eng, err := newEngine(logWriter, true)
	if err != nil {
		return err
	}
	defer eng.close()

	logger := logging.New("daemon", logWriter)
	userID := eng.cfg.Backend.UserID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-time startup cleanup keeps the queue and the pending badge from
	// growing without bound.
	removed, err := eng.queue.CleanupStuckItems(ctx, eng.proc.ActiveIDs())
	if err != nil {
		logger.Printf("Warning: startup cleanup failed: %v", err)
	} else if removed > 0 {
		logger.Printf("Startup cleanup removed %d entries", removed)
	}

	// Status push server.
	statusServer := status.NewServer(&status.Config{
		Port:   eng.cfg.Status.Port,
		Logger: logging.New("status", logWriter),
	})
	if err := statusServer.Start(); err != nil {
		return err
	}
	defer func() {
		if err := statusServer.Stop(); err != nil {
			logger.Printf("Warning: status server stop: %v", err)
		}
	}()

	handler := status.NewHandler(statusServer, logging.New("status", logWriter))
	handler.Attach(eng.bus, eng.proc)
	defer handler.Detach()
	eng.loader.OnStep(handler.OnCacheStep)

	// Connectivity: sync shortly after coming back online, and feed the
	// status surface.
	unsubConn := eng.monitor.OnChange(func(online bool) {
		handler.OnConnectivity(online)
		if online {
			go eng.proc.HandleOnline(ctx)
		}
	})
	defer unsubConn()
	eng.monitor.Start(ctx)
	defer eng.monitor.Stop()

	// Snapshot watcher feeds VisitDataChanged into the refresh path.
	watcher, err := snapshot.NewWatcher(eng.cfg.Snapshots.Dir, eng.bus, 0,
		logging.New("snapshot", logWriter))
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	refreshToday := func() {
		date := time.Now().Format(model.DateFormat)
		if _, err := eng.loader.Refresh(ctx, userID, date); err != nil {
			logger.Printf("Warning: dashboard refresh failed: %v", err)
		}
	}

	unsubVisitData := eng.bus.OnVisitDataChanged(func(events.VisitDataChanged) {
		go refreshToday()
	})
	defer unsubVisitData()

	// Optimistic patch first, reconciling refresh shortly after.
	unsubVisitStatus := eng.bus.OnVisitStatusChanged(func(ev events.VisitStatusChanged) {
		if _, err := eng.loader.ApplyVisitStatusChanged(ctx, userID, ev); err != nil {
			logger.Printf("Warning: optimistic patch failed: %v", err)
		}
		go func() {
			timer := time.NewTimer(2 * time.Second)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
				refreshToday()
			}
		}()
	})
	defer unsubVisitStatus()

	// Periodic work. The queue poll keeps firing in the background; the
	// dashboard refresh pauses while the host is hidden.
	sched := netmon.NewScheduler(logging.New("sched", logWriter))
	defer sched.StopAll()

	sched.Schedule("queue-poll", netmon.TaskOptions{
		Period:         eng.cfg.Sync.QueuePollInterval,
		RunWhileHidden: true,
	}, func() {
		if !eng.monitor.Online() {
			return
		}
		count, err := eng.queue.PendingCount(ctx)
		if err != nil || count == 0 {
			return
		}
		if _, err := eng.proc.TrySync(ctx); err != nil {
			logger.Printf("Warning: polled sync failed: %v", err)
		}
	})

	sched.Schedule("status-progress", netmon.TaskOptions{
		Period:         2 * time.Second,
		RunWhileHidden: true,
	}, func() {
		if statusServer.ClientCount() == 0 {
			return
		}
		pending, err := eng.queue.PendingCount(ctx)
		if err != nil {
			return
		}
		handler.Progress(pending)
	})

	sched.Schedule("dashboard-refresh", netmon.TaskOptions{
		Period: eng.cfg.Dashboard.RefreshInterval,
	}, func() {
		if eng.monitor.Online() {
			refreshToday()
		}
	})

	fmt.Printf("%s fieldsync daemon running\n", ui.RenderAccent("🚀"))
	fmt.Printf("   Store: %s\n", eng.cfg.Store.Path)
	fmt.Printf("   Snapshots: %s\n", eng.cfg.Snapshots.Dir)
	fmt.Printf("   Status: http://localhost:%d\n", eng.cfg.Status.Port)
	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Printf("Shutdown signal received")
	cancel()
	return nil
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
