// Package status: event handling and message formatting for the status feed.
package status

import (
	"encoding/json"
	"log"
	"time"

	"github.com/salesbeat/fieldsync/internal/dashboard"
	"github.com/salesbeat/fieldsync/internal/events"
	"github.com/salesbeat/fieldsync/internal/syncer"
)

// Handler bridges engine events to the WebSocket server: it subscribes to the
// bus and the processor's progress feed and formats each event as a status
// message.
type Handler struct {
	server *Server
	logger *log.Logger

	unsubscribes []func()
}

// NewHandler creates an event handler connected to a status server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// Attach subscribes the handler to the bus and processor. Call Detach on
// teardown.
func (h *Handler) Attach(bus *events.Bus, processor *syncer.Processor) {
	h.unsubscribes = append(h.unsubscribes,
		bus.OnQueueChanged(h.onQueueChanged),
		bus.OnSyncComplete(h.onSyncComplete),
	)
	processor.OnEntryState(h.onEntryState)
}

// Detach unsubscribes from the bus.
func (h *Handler) Detach() {
	for _, unsub := range h.unsubscribes {
		unsub()
	}
	h.unsubscribes = nil
}

// OnConnectivity broadcasts online/offline transitions. Wired to the
// connectivity monitor by the daemon.
func (h *Handler) OnConnectivity(online bool) {
	h.broadcast(MessageTypeConnectivity, ConnectivityData{Online: online})
}

// OnCacheStep broadcasts one dashboard warming step. Wired to the loader's
// step observer by the daemon.
func (h *Handler) OnCacheStep(step dashboard.CacheStep) {
	h.broadcast(MessageTypeCacheStep, CacheStepData{
		StepID: step.ID,
		Label:  step.Label,
		Status: string(step.Status),
	})
}

// Progress re-broadcasts the pending count so long-lived status pages stay
// current even between queue events.
func (h *Handler) Progress(pending int) {
	h.broadcast(MessageTypeQueueChanged, QueueChangedData{Pending: pending})
}

func (h *Handler) onQueueChanged(ev events.QueueChanged) {
	h.broadcast(MessageTypeQueueChanged, QueueChangedData{Pending: ev.Pending})
}

func (h *Handler) onSyncComplete(ev events.SyncComplete) {
	h.logger.Printf("Sync complete: processed=%d failed=%d", ev.Processed, ev.Failed)
	h.broadcast(MessageTypeSyncComplete, SyncCompleteData{
		Processed: ev.Processed,
		Failed:    ev.Failed,
	})
}

func (h *Handler) onEntryState(state syncer.EntryState) {
	h.broadcast(MessageTypeEntryState, EntryStateData{
		EntryID:    state.Entry.ID,
		Action:     string(state.Entry.Action),
		Label:      state.Entry.Action.Label(),
		Status:     state.Status,
		RetryCount: state.Entry.RetryCount,
	})
}

func (h *Handler) broadcast(msgType MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", msgType, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
