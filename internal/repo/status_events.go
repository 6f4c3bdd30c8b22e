package repo

import (
	"context"
	"time"

	"dispatchline/internal/domain"
)

// maxInArgs keeps IN lists well below SQLite's bound-parameter limit.
const maxInArgs = 500

func (r Repo) InsertStatusEvent(ctx context.Context, ev domain.StatusEvent, receivedAt time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO status_events(order_id,progress_state,updated_at,reason_code,received_at) VALUES (?,?,?,?,?)`,
		ev.OrderID, ev.ProgressState, formatTS(ev.UpdatedAt), ev.ReasonCode, formatTS(receivedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestStatus returns the newest event for an order; ok is false when none exists.
func (r Repo) LatestStatus(ctx context.Context, orderID string) (ev domain.StatusEvent, ok bool, err error) {
	latest, err := r.LatestStatusForOrders(ctx, []string{orderID})
	if err != nil {
		return ev, false, err
	}
	ev, ok = latest[orderID]
	return ev, ok, nil
}

// LatestStatusForOrders reduces each order's history to its newest updated_at.
// Equal timestamps resolve to the later insert.
func (r Repo) LatestStatusForOrders(ctx context.Context, orderIDs []string) (map[string]domain.StatusEvent, error) {
	out := make(map[string]domain.StatusEvent, len(orderIDs))
	for start := 0; start < len(orderIDs); start += maxInArgs {
		end := min(start+maxInArgs, len(orderIDs))
		chunk := orderIDs[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		events, err := r.queryStatusEvents(ctx, `SELECT id,order_id,progress_state,updated_at,reason_code FROM status_events
WHERE order_id IN (`+placeholders(len(chunk))+`) ORDER BY order_id, updated_at, id`, args...)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			out[ev.OrderID] = ev
		}
	}
	return out, nil
}

// ListStatusEvents returns an order's full history, oldest first.
func (r Repo) ListStatusEvents(ctx context.Context, orderID string) ([]domain.StatusEvent, error) {
	return r.queryStatusEvents(ctx, `SELECT id,order_id,progress_state,updated_at,reason_code FROM status_events
WHERE order_id=? ORDER BY updated_at, id`, orderID)
}

func (r Repo) queryStatusEvents(ctx context.Context, query string, args ...any) ([]domain.StatusEvent, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusEvent
	for rows.Next() {
		var ev domain.StatusEvent
		var updated string
		if err := rows.Scan(&ev.ID, &ev.OrderID, &ev.ProgressState, &updated, &ev.ReasonCode); err != nil {
			return nil, err
		}
		if ev.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
