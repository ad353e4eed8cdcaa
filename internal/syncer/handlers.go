package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/salesbeat/fieldsync/internal/backend"
	"github.com/salesbeat/fieldsync/internal/queue"
)

// handler replays one queued mutation against the remote backend.
type handler func(ctx context.Context, remote backend.Client, data json.RawMessage) error

// handlers maps each queue action to its replay function. Create actions
// insert; update actions patch by the payload's id; delete actions remove by
// id. CHECK_IN creates the visit row, CHECK_OUT patches it closed.
var handlers = map[queue.Action]handler{
	queue.ActionCreateOrder:           insertInto(backend.TableOrders),
	queue.ActionUpdateOrder:           updateIn(backend.TableOrders),
	queue.ActionCreateVisit:           insertInto(backend.TableVisits),
	queue.ActionCheckIn:               insertInto(backend.TableVisits),
	queue.ActionCheckOut:              updateIn(backend.TableVisits),
	queue.ActionCreateStock:           insertInto(backend.TableStock),
	queue.ActionUpdateStock:           updateIn(backend.TableStock),
	queue.ActionCreateRetailer:        insertInto(backend.TableRetailers),
	queue.ActionUpdateRetailer:        updateIn(backend.TableRetailers),
	queue.ActionDeleteRetailer:        deleteFrom(backend.TableRetailers),
	queue.ActionCreateAttendance:      insertInto(backend.TableAttendance),
	queue.ActionUpdateAttendance:      updateIn(backend.TableAttendance),
	queue.ActionCreateBeat:            insertInto(backend.TableBeats),
	queue.ActionUpdateBeat:            updateIn(backend.TableBeats),
	queue.ActionDeleteBeat:            deleteFrom(backend.TableBeats),
	queue.ActionCreateBeatPlan:        insertInto(backend.TableBeatPlans),
	queue.ActionUpdateBeatPlan:        updateIn(backend.TableBeatPlans),
	queue.ActionNoOrder:               insertInto(backend.TableNoOrders),
	queue.ActionCreateCompetitionData: insertInto(backend.TableCompetitionData),
	queue.ActionCreateReturnStock:     insertInto(backend.TableReturnStock),
	queue.ActionSendInvoiceSMS:        rpcCall("send_invoice_sms"),
}

func insertInto(table string) handler {
	return func(ctx context.Context, remote backend.Client, data json.RawMessage) error {
		return remote.Insert(ctx, table, data)
	}
}

func updateIn(table string) handler {
	return func(ctx context.Context, remote backend.Client, data json.RawMessage) error {
		id, err := payloadID(data)
		if err != nil {
			return err
		}
		return remote.Update(ctx, table, id, data)
	}
}

func deleteFrom(table string) handler {
	return func(ctx context.Context, remote backend.Client, data json.RawMessage) error {
		id, err := payloadID(data)
		if err != nil {
			return err
		}
		return remote.Delete(ctx, table, id)
	}
}

func rpcCall(name string) handler {
	return func(ctx context.Context, remote backend.Client, data json.RawMessage) error {
		return remote.RPC(ctx, name, data)
	}
}

// payloadID extracts the record id from an action payload.
func payloadID(data json.RawMessage) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("failed to parse payload: %w", err)
	}
	if probe.ID == "" {
		return "", fmt.Errorf("payload has no id")
	}
	return probe.ID, nil
}
