package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"dispatchline/internal/bizday"
	"dispatchline/internal/domain"
	"dispatchline/internal/engine"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Create work order",
		Description:   "Rejected with 409 conflict when the worker already has a planned order overlapping the interval.",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateOrderRequest `json:"body"`
	}) (*struct {
		Body domain.WorkOrder `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.TrySaveOrder(ctx, input.Body.toSave(actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkOrder `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-order",
		Method:      http.MethodPatch,
		Path:        "/orders/{order_id}",
		Summary:     "Update work order",
		Description: "Applies the given fields when expected_version matches the stored version.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		OrderID string             `path:"order_id"`
		Body    UpdateOrderRequest `json:"body"`
	}) (*struct {
		Body domain.WorkOrder `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		req := engine.SaveOrderRequest{
			ID:              input.OrderID,
			ExpectedVersion: b.ExpectedVersion,
			ContractID:      b.ContractID,
			SiteID:          b.SiteID,
			WorkerID:        b.WorkerID,
			Times:           b.times().spec(),
			WorkType:        b.WorkType,
			Memo:            b.Memo,
			ActorID:         actorID,
		}
		if raw, ok := rawBodyMap(ctx)["contract_id"]; ok && isNullRaw(raw) {
			empty := ""
			req.ContractID = &empty
		}
		o, err := e.TrySaveOrder(ctx, req)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkOrder `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-order",
		Method:      http.MethodPost,
		Path:        "/orders/check",
		Summary:     "Dry-run an order save",
		Description: "Validates a candidate and reports overlapping orders without writing anything.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CheckOrderRequest `json:"body"`
	}) (*struct {
		Body CheckOrderResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		candidate, err := e.CheckOrder(ctx, input.Body.toSave(actorID))
		resp := CheckOrderResponse{OK: err == nil, Candidate: candidate}
		var conflict domain.ConflictError
		if err != nil && !errors.As(err, &conflict) {
			return nil, handleError(err)
		}
		resp.ConflictingOrderIDs = conflict.Conflicting
		return &struct {
			Body CheckOrderResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-order",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/cancel",
		Summary:     "Cancel work order",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		OrderID string             `path:"order_id"`
		Body    CancelOrderRequest `json:"body"`
	}) (*struct {
		Body domain.WorkOrder `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CancelOrder(ctx, input.OrderID, input.Body.ExpectedVersion, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkOrder `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get work order with derived status",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body engine.OrderView `json:"body"`
	}, error) {
		view, err := e.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.OrderView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List work orders by start time",
		Description: "from and to accept a business date (YYYY-MM-DD, meaning that day's opening) or an RFC3339 instant.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		From             string `query:"from"`
		To               string `query:"to"`
		WorkerID         string `query:"worker_id"`
		ContractID       string `query:"contract_id"`
		IncludeCancelled bool   `query:"include_cancelled"`
		Limit            int    `query:"limit" minimum:"0"`
	}) (*struct {
		Body []domain.WorkOrder `json:"body"`
	}, error) {
		from, err := parseBound(e, input.From)
		if err != nil {
			return nil, handleError(err)
		}
		to, err := parseBound(e, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListOrders(ctx, engine.OrderQuery{
			From:             from,
			To:               to,
			WorkerID:         input.WorkerID,
			ContractID:       input.ContractID,
			IncludeCancelled: input.IncludeCancelled,
			Limit:            input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.WorkOrder{}
		}
		return &struct {
			Body []domain.WorkOrder `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-order-status-events",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}/status-events",
		Summary:     "Status event history of an order",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body []domain.StatusEvent `json:"body"`
	}, error) {
		items, err := e.StatusHistory(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.StatusEvent{}
		}
		return &struct {
			Body []domain.StatusEvent `json:"body"`
		}{Body: items}, nil
	})
}

// parseBound reads a business date or an RFC3339 instant. Empty means unbounded.
func parseBound(e engine.Engine, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) == len("2006-01-02") {
		d, err := e.Calendar.ParseDate(s)
		if err != nil {
			return time.Time{}, err
		}
		w, err := e.Calendar.Window(bizday.ViewDay, d)
		if err != nil {
			return time.Time{}, err
		}
		return w.From, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.TimeFormatError{Input: s}
	}
	return t, nil
}
