package events

import (
	"io"
	"log"
	"testing"
)

func newTestBus() *Bus {
	return NewBus(log.New(io.Discard, "", 0))
}

func TestPublishReachesAllListeners(t *testing.T) {
	bus := newTestBus()

	var first, second []int
	bus.OnQueueChanged(func(ev QueueChanged) { first = append(first, ev.Pending) })
	bus.OnQueueChanged(func(ev QueueChanged) { second = append(second, ev.Pending) })

	bus.PublishQueueChanged(QueueChanged{Pending: 3})

	if len(first) != 1 || first[0] != 3 {
		t.Errorf("first listener got %v, want [3]", first)
	}
	if len(second) != 1 || second[0] != 3 {
		t.Errorf("second listener got %v, want [3]", second)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus()

	var got int
	unsub := bus.OnSyncComplete(func(SyncComplete) { got++ })

	bus.PublishSyncComplete(SyncComplete{Processed: 1})
	unsub()
	bus.PublishSyncComplete(SyncComplete{Processed: 2})

	if got != 1 {
		t.Errorf("listener fired %d times, want 1", got)
	}
}

func TestPanickingListenerDoesNotBreakPublish(t *testing.T) {
	bus := newTestBus()

	var delivered bool
	bus.OnVisitDataChanged(func(VisitDataChanged) { panic("bad subscriber") })
	bus.OnVisitDataChanged(func(VisitDataChanged) { delivered = true })

	bus.PublishVisitDataChanged(VisitDataChanged{})

	if !delivered {
		t.Error("healthy listener was not reached after a panicking one")
	}
}

func TestVisitStatusChangedCarriesPayload(t *testing.T) {
	bus := newTestBus()

	var got VisitStatusChanged
	bus.OnVisitStatusChanged(func(ev VisitStatusChanged) { got = ev })

	bus.PublishVisitStatusChanged(VisitStatusChanged{RetailerID: "r-1", OrderValue: 750})

	if got.RetailerID != "r-1" || got.OrderValue != 750 {
		t.Errorf("got %+v, want RetailerID=r-1 OrderValue=750", got)
	}
}
