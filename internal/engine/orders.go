package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dispatchline/internal/bizday"
	"dispatchline/internal/domain"
	"dispatchline/internal/events"
	"dispatchline/internal/repo"
	"dispatchline/internal/schedule"
)

// TimeSpec locates an order in time. Either BusinessDate with Start and End ("HH:MM",
// resolved against the business day) or the absolute StartAt and EndAt.
type TimeSpec struct {
	BusinessDate string
	Start        string
	End          string
	StartAt      time.Time
	EndAt        time.Time
}

// SaveOrderRequest creates an order when ExpectedVersion is zero and otherwise patches
// the order ID at that version. Nil fields are left unchanged on update.
type SaveOrderRequest struct {
	ID              string
	ExpectedVersion int64
	ContractID      *string
	SiteID          *string
	WorkerID        *string
	Times           *TimeSpec
	WorkType        *string
	Memo            *string
	ActorID         string
}

// ResolveTimes turns a TimeSpec into absolute instants at storage precision, so the
// interval that is validated and conflict-checked is the one that gets persisted.
func (e Engine) ResolveTimes(ts TimeSpec) (time.Time, time.Time, error) {
	if ts.BusinessDate != "" {
		date, err := e.Calendar.ParseDate(ts.BusinessDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start, err := e.Calendar.ResolveBusinessInstant(date, ts.Start)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := e.Calendar.ResolveBusinessEnd(date, ts.End)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return storable(start), storable(end), nil
	}
	if ts.StartAt.IsZero() || ts.EndAt.IsZero() {
		return time.Time{}, time.Time{}, invalid("business_date with start and end, or start_at and end_at, is required")
	}
	return storable(ts.StartAt), storable(ts.EndAt), nil
}

func storable(t time.Time) time.Time {
	return t.Truncate(repo.TimestampPrecision)
}

// TrySaveOrder validates a candidate, checks it against the worker's other planned orders
// and commits it in one transaction. Nothing is written when it returns an error.
func (e Engine) TrySaveOrder(ctx context.Context, req SaveOrderRequest) (domain.WorkOrder, error) {
	if req.ExpectedVersion > 0 {
		return e.updateOrder(ctx, req)
	}
	if req.ExpectedVersion < 0 {
		return domain.WorkOrder{}, invalid("expected_version must be positive")
	}
	return e.createOrder(ctx, req)
}

// CheckOrder runs the save validation without writing anything.
func (e Engine) CheckOrder(ctx context.Context, req SaveOrderRequest) (domain.WorkOrder, error) {
	base := domain.WorkOrder{ID: req.ID, LifecycleState: domain.LifecyclePlanned}
	if req.ExpectedVersion > 0 {
		current, err := e.loadForWrite(ctx, e.Repo, req.ID, req.ExpectedVersion)
		if err != nil {
			return domain.WorkOrder{}, err
		}
		base = current
	}
	o, err := e.applyRequest(ctx, e.Repo, base, req)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	return o, e.checkConflicts(ctx, e.Repo, o)
}

func (e Engine) createOrder(ctx context.Context, req SaveOrderRequest) (domain.WorkOrder, error) {
	now := e.stamp()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	var saved domain.WorkOrder
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		if req.ID != "" {
			if _, err := r.GetOrder(ctx, req.ID); err == nil {
				return invalid("order %s already exists", req.ID)
			} else if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}
		base := domain.WorkOrder{ID: id, LifecycleState: domain.LifecyclePlanned}
		o, err := e.applyRequest(ctx, r, base, req)
		if err != nil {
			return err
		}
		if err := e.checkConflicts(ctx, r, o); err != nil {
			return err
		}
		o.Version = 1
		o.CreatedBy, o.UpdatedBy = req.ActorID, req.ActorID
		o.CreatedAt, o.UpdatedAt = now, now
		if err := r.InsertOrder(ctx, o); err != nil {
			return err
		}
		saved = o
		return e.audit(ctx, tx, events.OrderCreated, "order", o.ID, req.ActorID, e.orderPayload(o))
	})
	if err != nil {
		e.logRejected("create", id, err)
		return domain.WorkOrder{}, err
	}
	e.log().Info("order created", zap.String("order_id", saved.ID), zap.String("worker_id", saved.WorkerID),
		zap.Time("start", saved.Start), zap.Time("end", saved.End))
	return saved, nil
}

func (e Engine) updateOrder(ctx context.Context, req SaveOrderRequest) (domain.WorkOrder, error) {
	if req.ID == "" {
		return domain.WorkOrder{}, invalid("order id is required for an update")
	}
	var saved domain.WorkOrder
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		current, err := e.loadForWrite(ctx, r, req.ID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		o, err := e.applyRequest(ctx, r, current, req)
		if err != nil {
			return err
		}
		if err := e.checkConflicts(ctx, r, o); err != nil {
			return err
		}
		o.Version = current.Version + 1
		o.UpdatedBy = req.ActorID
		o.UpdatedAt = e.stamp()
		ok, err := r.UpdateOrderIfVersion(ctx, o, req.ExpectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return domain.StaleWriteError{OrderID: o.ID, Expected: req.ExpectedVersion, Actual: current.Version, State: current.LifecycleState}
		}
		saved = o
		payload := e.orderPayload(o)
		payload["previous_version"] = current.Version
		return e.audit(ctx, tx, events.OrderUpdated, "order", o.ID, req.ActorID, payload)
	})
	if err != nil {
		e.logRejected("update", req.ID, err)
		return domain.WorkOrder{}, err
	}
	e.log().Info("order updated", zap.String("order_id", saved.ID), zap.Int64("version", saved.Version))
	return saved, nil
}

// CancelOrder moves an order to its terminal state. Cancelling twice is a stale write.
func (e Engine) CancelOrder(ctx context.Context, id string, expectedVersion int64, actorID string) (domain.WorkOrder, error) {
	if expectedVersion <= 0 {
		return domain.WorkOrder{}, invalid("expected_version must be positive")
	}
	var saved domain.WorkOrder
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		current, err := e.loadForWrite(ctx, r, id, expectedVersion)
		if err != nil {
			return err
		}
		o := current
		o.LifecycleState = domain.LifecycleCancelled
		o.Version = current.Version + 1
		o.UpdatedBy = actorID
		o.UpdatedAt = e.stamp()
		ok, err := r.UpdateOrderIfVersion(ctx, o, expectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return domain.StaleWriteError{OrderID: id, Expected: expectedVersion, Actual: current.Version, State: current.LifecycleState}
		}
		saved = o
		return e.audit(ctx, tx, events.OrderCancelled, "order", id, actorID, events.EventPayload{"version": o.Version})
	})
	if err != nil {
		e.logRejected("cancel", id, err)
		return domain.WorkOrder{}, err
	}
	e.log().Info("order cancelled", zap.String("order_id", id), zap.Int64("version", saved.Version))
	return saved, nil
}

// OrderView is an order with its derived status.
type OrderView struct {
	Order  domain.WorkOrder       `json:"order"`
	Status schedule.DerivedStatus `json:"status"`
}

func (e Engine) GetOrder(ctx context.Context, id string) (OrderView, error) {
	o, err := e.Repo.GetOrder(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	var latest *domain.StatusEvent
	if ev, ok, err := e.Repo.LatestStatus(ctx, id); err != nil {
		return OrderView{}, err
	} else if ok {
		latest = &ev
	}
	return OrderView{Order: o, Status: schedule.DeriveStatus(o, latest, e.now(), e.Status)}, nil
}

// OrderQuery filters ListOrders. From and To bound the order start.
type OrderQuery struct {
	From             time.Time
	To               time.Time
	WorkerID         string
	ContractID       string
	IncludeCancelled bool
	Limit            int
}

func (e Engine) ListOrders(ctx context.Context, q OrderQuery) ([]domain.WorkOrder, error) {
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return nil, domain.ErrInvalidInterval
	}
	return e.Repo.ListOrders(ctx, repo.OrderFilters{
		From:             q.From,
		To:               q.To,
		WorkerID:         q.WorkerID,
		ContractID:       q.ContractID,
		IncludeCancelled: q.IncludeCancelled,
		Limit:            q.Limit,
	})
}

// StatusHistory lists every status event received for an order.
func (e Engine) StatusHistory(ctx context.Context, orderID string) ([]domain.StatusEvent, error) {
	if _, err := e.Repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return e.Repo.ListStatusEvents(ctx, orderID)
}

// loadForWrite reads the order inside the write transaction and enforces the version.
func (e Engine) loadForWrite(ctx context.Context, r repo.Repo, id string, expected int64) (domain.WorkOrder, error) {
	current, err := r.GetOrder(ctx, id)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if current.Cancelled() || current.Version != expected {
		return domain.WorkOrder{}, domain.StaleWriteError{OrderID: id, Expected: expected, Actual: current.Version, State: current.LifecycleState}
	}
	return current, nil
}

// applyRequest overlays the request on base and validates the result.
func (e Engine) applyRequest(ctx context.Context, r repo.Repo, base domain.WorkOrder, req SaveOrderRequest) (domain.WorkOrder, error) {
	o := base
	if req.ContractID != nil {
		if *req.ContractID == "" {
			o.ContractID = nil
		} else {
			id := *req.ContractID
			o.ContractID = &id
		}
	}
	if req.SiteID != nil {
		o.SiteID = *req.SiteID
	}
	if req.WorkerID != nil {
		o.WorkerID = *req.WorkerID
	}
	if req.WorkType != nil {
		o.WorkType = *req.WorkType
	}
	if req.Memo != nil {
		o.Memo = *req.Memo
	}
	if req.Times != nil {
		start, end, err := e.ResolveTimes(*req.Times)
		if err != nil {
			return domain.WorkOrder{}, err
		}
		o.Start, o.End = start, end
	} else if o.Start.IsZero() {
		return domain.WorkOrder{}, invalid("order times are required")
	}
	if o.WorkerID == "" {
		return domain.WorkOrder{}, invalid("worker_id is required")
	}
	if o.SiteID == "" {
		return domain.WorkOrder{}, invalid("site_id is required")
	}
	if err := schedule.ValidateInterval(o.Start, o.End); err != nil {
		return domain.WorkOrder{}, err
	}
	if o.ContractID != nil {
		if _, err := r.GetContract(ctx, *o.ContractID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.WorkOrder{}, invalid("contract %s does not exist", *o.ContractID)
			}
			return domain.WorkOrder{}, err
		}
	}
	return o, nil
}

// checkConflicts loads the worker's planned orders around the candidate within the
// caller's transaction, so the check and the following write see the same rows.
func (e Engine) checkConflicts(ctx context.Context, r repo.Repo, candidate domain.WorkOrder) error {
	snapshot, err := r.ListWorkerOrdersOverlapping(ctx, candidate.WorkerID, candidate.Start, candidate.End)
	if err != nil {
		return err
	}
	return schedule.CheckConflict(candidate, snapshot)
}

func (e Engine) logRejected(op, id string, err error) {
	var conflict domain.ConflictError
	var stale domain.StaleWriteError
	switch {
	case errors.As(err, &conflict):
		e.log().Info("order rejected: conflict", zap.String("op", op), zap.String("order_id", id),
			zap.String("worker_id", conflict.WorkerID), zap.Strings("conflicting", conflict.Conflicting))
	case errors.As(err, &stale):
		e.log().Info("order rejected: stale write", zap.String("op", op), zap.String("order_id", id),
			zap.Int64("expected", stale.Expected), zap.Int64("actual", stale.Actual))
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidInterval),
		errors.Is(err, domain.ErrInvalidTimeFormat), errors.Is(err, domain.ErrNotFound):
		e.log().Debug("order rejected", zap.String("op", op), zap.String("order_id", id), zap.Error(err))
	default:
		e.log().Error("order write failed", zap.String("op", op), zap.String("order_id", id), zap.Error(err))
	}
}

func (e Engine) orderPayload(o domain.WorkOrder) events.EventPayload {
	p := events.EventPayload{
		"worker_id":     o.WorkerID,
		"site_id":       o.SiteID,
		"start":         repo.FormatTimestamp(o.Start),
		"end":           repo.FormatTimestamp(o.End),
		"version":       o.Version,
		"business_date": bizday.FormatDate(e.Calendar.BusinessDateOf(o.Start)),
	}
	if o.ContractID != nil {
		p["contract_id"] = *o.ContractID
	}
	return p
}
