package schedule

import (
	"cmp"
	"slices"
	"time"

	"dispatchline/internal/domain"
)

// LaneLayout assigns each order a display lane so overlapping orders never share one.
type LaneLayout struct {
	Lanes     map[string]int `json:"lanes"`
	LaneCount int            `json:"lane_count"`
}

// PackLanes runs first-fit interval partitioning over orders sorted by start, end and id.
// Each order takes the lowest lane whose last order ended at or before its start; when none
// is free a new lane opens. Sorting by start makes the lane count equal to the maximum number
// of simultaneously open orders, and the total order makes the result independent of input order.
func PackLanes(orders []domain.WorkOrder) LaneLayout {
	sorted := slices.Clone(orders)
	slices.SortFunc(sorted, compareOrders)

	layout := LaneLayout{Lanes: make(map[string]int, len(sorted))}
	var laneEnds []time.Time
	for _, o := range sorted {
		lane := -1
		for i, end := range laneEnds {
			if !end.After(o.Start) {
				lane = i
				break
			}
		}
		if lane == -1 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, o.End)
		} else {
			laneEnds[lane] = o.End
		}
		layout.Lanes[o.ID] = lane
	}
	layout.LaneCount = len(laneEnds)
	return layout
}

// PackLanesByWorker groups orders by worker and packs each group independently.
func PackLanesByWorker(orders []domain.WorkOrder) map[string]LaneLayout {
	byWorker := map[string][]domain.WorkOrder{}
	for _, o := range orders {
		byWorker[o.WorkerID] = append(byWorker[o.WorkerID], o)
	}
	out := make(map[string]LaneLayout, len(byWorker))
	for worker, group := range byWorker {
		out[worker] = PackLanes(group)
	}
	return out
}

// SortOrders sorts in place by start, end, then id.
func SortOrders(orders []domain.WorkOrder) {
	slices.SortFunc(orders, compareOrders)
}

func compareOrders(a, b domain.WorkOrder) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
