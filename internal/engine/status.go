package engine

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"dispatchline/internal/bizday"
	"dispatchline/internal/domain"
	"dispatchline/internal/events"
	"dispatchline/internal/repo"
	"dispatchline/internal/schedule"
)

// IngestResult reports the merged status after an event was stored.
type IngestResult struct {
	EventID       int64                  `json:"event_id"`
	Status        schedule.DerivedStatus `json:"status"`
	QuotaConsumed bool                   `json:"quota_consumed"`
	MonthKey      string                 `json:"month_key,omitempty"`
}

// IngestStatus appends a live status event. The first time an order with a contract
// reaches done, one unit of that contract's quota is consumed for the order's business month.
// Late events with an older timestamp are stored but do not change the derived status.
func (e Engine) IngestStatus(ctx context.Context, ev domain.StatusEvent, actorID string) (IngestResult, error) {
	if ev.OrderID == "" {
		return IngestResult{}, invalid("order_id is required")
	}
	if !domain.ValidProgressState(ev.ProgressState) {
		return IngestResult{}, invalid("unknown progress_state %q", ev.ProgressState)
	}
	now := e.now()
	if ev.UpdatedAt.IsZero() {
		ev.UpdatedAt = now
	}
	var res IngestResult
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		order, err := r.GetOrder(ctx, ev.OrderID)
		if err != nil {
			return err
		}
		before, err := e.derive(ctx, r, order)
		if err != nil {
			return err
		}
		id, err := r.InsertStatusEvent(ctx, ev, now)
		if err != nil {
			return err
		}
		after, err := e.derive(ctx, r, order)
		if err != nil {
			return err
		}
		res = IngestResult{EventID: id, Status: after}
		if err := e.audit(ctx, tx, events.StatusIngested, "order", order.ID, actorID, events.EventPayload{
			"event_id":       id,
			"progress_state": ev.ProgressState,
			"reason_code":    ev.ReasonCode,
			"updated_at":     repo.FormatTimestamp(ev.UpdatedAt),
		}); err != nil {
			return err
		}
		if before.Status == domain.ProgressDone || after.Status != domain.ProgressDone || order.ContractID == nil {
			return nil
		}
		month, consumed, err := e.consume(ctx, tx, r, order, actorID)
		if err != nil {
			return err
		}
		res.QuotaConsumed, res.MonthKey = consumed, month
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInvalidInput) {
			e.log().Error("status ingest failed", zap.String("order_id", ev.OrderID), zap.Error(err))
		}
		return IngestResult{}, err
	}
	e.log().Debug("status ingested", zap.String("order_id", ev.OrderID), zap.String("status", res.Status.Status),
		zap.Bool("quota_consumed", res.QuotaConsumed))
	return res, nil
}

func (e Engine) derive(ctx context.Context, r repo.Repo, order domain.WorkOrder) (schedule.DerivedStatus, error) {
	ev, ok, err := r.LatestStatus(ctx, order.ID)
	if err != nil {
		return schedule.DerivedStatus{}, err
	}
	var latest *domain.StatusEvent
	if ok {
		latest = &ev
	}
	return schedule.DeriveStatus(order, latest, e.now(), e.Status), nil
}

// consume records one ledger row for a completed order. The ledger is keyed by order,
// so a second call for the same order is a no-op.
func (e Engine) consume(ctx context.Context, tx *sql.Tx, r repo.Repo, order domain.WorkOrder, actorID string) (string, bool, error) {
	month := e.Calendar.MonthKey(order.Start)
	inserted, err := r.RecordConsumption(ctx, order.ID, *order.ContractID, month, e.stamp())
	if err != nil || !inserted {
		return month, false, err
	}
	e.log().Info("quota consumed", zap.String("contract_id", *order.ContractID), zap.String("order_id", order.ID),
		zap.String("month", month))
	return month, true, e.audit(ctx, tx, events.QuotaConsumed, "contract", *order.ContractID, actorID,
		events.EventPayload{"order_id": order.ID, "month": month})
}

// ReconcileQuota back-fills the ledger for planned contract orders whose latest status is
// done. An empty monthKey scans every order. It returns the number of rows added.
func (e Engine) ReconcileQuota(ctx context.Context, monthKey, actorID string) (int, error) {
	filters := repo.OrderFilters{}
	if monthKey != "" {
		key, err := bizday.ParseMonthKey(monthKey)
		if err != nil {
			return 0, err
		}
		first, err := e.Calendar.ParseDate(key + "-01")
		if err != nil {
			return 0, err
		}
		w, err := e.Calendar.Window(bizday.ViewMonth, first)
		if err != nil {
			return 0, err
		}
		filters.From, filters.To = w.From, w.To
	}
	added := 0
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		orders, err := r.ListOrders(ctx, filters)
		if err != nil {
			return err
		}
		var ids []string
		for _, o := range orders {
			if o.ContractID != nil {
				ids = append(ids, o.ID)
			}
		}
		latest, err := r.LatestStatusForOrders(ctx, ids)
		if err != nil {
			return err
		}
		for _, o := range orders {
			ev, ok := latest[o.ID]
			if o.ContractID == nil || !ok || ev.ProgressState != domain.ProgressDone {
				continue
			}
			_, consumed, err := e.consume(ctx, tx, r, o, actorID)
			if err != nil {
				return err
			}
			if consumed {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.log().Info("quota reconciled", zap.String("month", monthKey), zap.Int("added", added))
	return added, nil
}
