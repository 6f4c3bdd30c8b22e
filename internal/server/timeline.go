package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"dispatchline/internal/bizday"
	"dispatchline/internal/domain"
	"dispatchline/internal/engine"
)

func registerTimeline(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-timeline",
		Method:      http.MethodGet,
		Path:        "/timeline",
		Summary:     "Timeline for a day, week or month",
		Description: "Orders starting in the window with their derived status; the day view also carries lane assignments per worker.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		View             string `query:"view" doc:"day, week or month; defaults to day"`
		Date             string `query:"date" doc:"Business date, YYYY-MM-DD; defaults to the current business date"`
		WorkerID         string `query:"worker_id"`
		IncludeCancelled bool   `query:"include_cancelled"`
	}) (*struct {
		Body engine.Timeline `json:"body"`
	}, error) {
		view, err := bizday.ParseView(input.View)
		if err != nil {
			return nil, handleError(err)
		}
		tl, err := e.GetTimeline(ctx, view, input.Date, engine.TimelineOptions{
			WorkerID:         input.WorkerID,
			IncludeCancelled: input.IncludeCancelled,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Timeline `json:"body"`
		}{Body: tl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-capacity",
		Method:      http.MethodGet,
		Path:        "/capacity",
		Summary:     "Capacity utilization for a window",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		View string `query:"view" doc:"day, week or month; defaults to day"`
		Date string `query:"date"`
	}) (*struct {
		Body engine.CapacityReport `json:"body"`
	}, error) {
		view, err := bizday.ParseView(input.View)
		if err != nil {
			return nil, handleError(err)
		}
		rep, err := e.GetCapacity(ctx, view, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CapacityReport `json:"body"`
		}{Body: rep}, nil
	})
}

func registerStatusEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "ingest-status-event",
		Method:        http.MethodPost,
		Path:          "/status-events",
		Summary:       "Ingest a live status event",
		Description:   "The first transition of a contract order into done consumes one unit of the contract's monthly quota.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body StatusEventRequest `json:"body"`
	}) (*struct {
		Body engine.IngestResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev := domain.StatusEvent{
			OrderID:       input.Body.OrderID,
			ProgressState: input.Body.ProgressState,
			ReasonCode:    input.Body.ReasonCode,
		}
		if input.Body.UpdatedAt != nil {
			ev.UpdatedAt = *input.Body.UpdatedAt
		}
		res, err := e.IngestStatus(ctx, ev, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.IngestResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0" maximum:"1000"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
