package engine

import (
	"context"
	"time"

	"dispatchline/internal/bizday"
	"dispatchline/internal/domain"
	"dispatchline/internal/repo"
	"dispatchline/internal/schedule"
)

// TimelineOptions narrow a timeline read.
type TimelineOptions struct {
	WorkerID         string
	IncludeCancelled bool
}

// Timeline is the merged read model for one window. Lanes are only laid out for the day view
// and cover every order returned, cancelled ones included when requested.
type Timeline struct {
	Window        bizday.Window                     `json:"window"`
	GeneratedAt   time.Time                         `json:"generated_at" format:"date-time"`
	Orders        []domain.WorkOrder                `json:"orders"`
	StatusByOrder map[string]schedule.DerivedStatus `json:"status_by_order"`
	LanesByWorker map[string]schedule.LaneLayout    `json:"lanes_by_worker,omitempty"`
	WorkerNames   map[string]string                 `json:"worker_names"`
	SiteNames     map[string]string                 `json:"site_names"`
}

// GetTimeline reads orders starting in the view's window and merges their latest status.
func (e Engine) GetTimeline(ctx context.Context, view bizday.View, date string, opts TimelineOptions) (Timeline, error) {
	w, err := e.window(view, date)
	if err != nil {
		return Timeline{}, err
	}
	orders, err := e.Repo.ListOrders(ctx, repo.OrderFilters{
		From:             w.From,
		To:               w.To,
		WorkerID:         opts.WorkerID,
		IncludeCancelled: opts.IncludeCancelled,
	})
	if err != nil {
		return Timeline{}, err
	}
	schedule.SortOrders(orders)
	ids := make([]string, len(orders))
	workerIDs := make([]string, len(orders))
	siteIDs := make([]string, len(orders))
	for i, o := range orders {
		ids[i], workerIDs[i], siteIDs[i] = o.ID, o.WorkerID, o.SiteID
	}
	latest, err := e.Repo.LatestStatusForOrders(ctx, ids)
	if err != nil {
		return Timeline{}, err
	}
	now := e.now()
	tl := Timeline{
		Window:        w,
		GeneratedAt:   now,
		Orders:        orders,
		StatusByOrder: make(map[string]schedule.DerivedStatus, len(orders)),
		WorkerNames:   e.Names.Workers(ctx, workerIDs),
		SiteNames:     e.Names.Sites(ctx, siteIDs),
	}
	if tl.Orders == nil {
		tl.Orders = []domain.WorkOrder{}
	}
	for _, o := range orders {
		var ev *domain.StatusEvent
		if l, ok := latest[o.ID]; ok {
			ev = &l
		}
		tl.StatusByOrder[o.ID] = schedule.DeriveStatus(o, ev, now, e.Status)
	}
	if w.View == bizday.ViewDay {
		// cancelled orders shown alongside their replacements get lanes of their own
		tl.LanesByWorker = schedule.PackLanesByWorker(orders)
	}
	return tl, nil
}

// CapacityReport is the utilization summary for one window.
type CapacityReport struct {
	Window   bizday.Window     `json:"window"`
	Capacity schedule.Capacity `json:"capacity"`
}

// GetCapacity counts planned orders in the window against the active worker pool.
func (e Engine) GetCapacity(ctx context.Context, view bizday.View, date string) (CapacityReport, error) {
	w, err := e.window(view, date)
	if err != nil {
		return CapacityReport{}, err
	}
	used, err := e.Repo.CountOrders(ctx, w.From, w.To)
	if err != nil {
		return CapacityReport{}, err
	}
	workers, err := e.Repo.CountActiveWorkers(ctx)
	if err != nil {
		return CapacityReport{}, err
	}
	return CapacityReport{Window: w, Capacity: schedule.Summarize(used, workers, w.DayCount, e.Capacity)}, nil
}

// window defaults date to the current business date.
func (e Engine) window(view bizday.View, date string) (bizday.Window, error) {
	var d time.Time
	if date == "" {
		d = e.Calendar.BusinessDateOf(e.now())
	} else {
		parsed, err := e.Calendar.ParseDate(date)
		if err != nil {
			return bizday.Window{}, err
		}
		d = parsed
	}
	return e.Calendar.Window(view, d)
}
