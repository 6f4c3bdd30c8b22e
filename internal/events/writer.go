package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dispatchline/internal/db"
)

// Event types written by the engine.
const (
	OrderCreated   = "order.created"
	OrderUpdated   = "order.updated"
	OrderCancelled = "order.cancelled"
	StatusIngested = "status.ingested"
	QuotaConsumed  = "quota.consumed"
	ContractAdded  = "contract.created"
	MasterImported = "masterdata.imported"
)

// Writer appends audit rows in the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, q db.DBTX, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = q.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
