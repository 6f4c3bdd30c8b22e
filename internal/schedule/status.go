package schedule

import (
	"slices"
	"time"

	"dispatchline/internal/domain"
)

// Warning levels for orders that have gone quiet.
const (
	WarningNone  = 0
	WarningWarn  = 1
	WarningAlert = 2
)

// StatusRules control staleness escalation and trouble classification.
type StatusRules struct {
	WarnAfter      time.Duration
	AlertAfter     time.Duration
	TroubleReasons []string
}

// DefaultStatusRules escalates after 30 and 60 minutes of silence.
func DefaultStatusRules() StatusRules {
	return StatusRules{
		WarnAfter:      30 * time.Minute,
		AlertAfter:     60 * time.Minute,
		TroubleReasons: []string{"recleaning", "shortfall_makeup"},
	}
}

// DerivedStatus is the displayable state of one order at a point in time.
// It is computed on every read and never stored.
type DerivedStatus struct {
	OrderID      string     `json:"order_id"`
	Status       string     `json:"status" enum:"not_started,in_progress,confirming,coordinating,done,cancelled"`
	WarningLevel int        `json:"warning_level" minimum:"0" maximum:"2"`
	LastUpdateAt *time.Time `json:"last_update_at,omitempty" format:"date-time"`
	ReasonCode   string     `json:"reason_code,omitempty"`
	Trouble      bool       `json:"trouble,omitempty"`
}

// DeriveStatus merges an order with its latest status event (nil when none arrived yet).
func DeriveStatus(order domain.WorkOrder, latest *domain.StatusEvent, now time.Time, rules StatusRules) DerivedStatus {
	ds := DerivedStatus{OrderID: order.ID}
	if order.Cancelled() {
		ds.Status = domain.StatusCancelled
		return ds
	}
	ds.Status = domain.ProgressNotStarted
	since := order.Start
	if latest != nil {
		ds.Status = latest.ProgressState
		ds.ReasonCode = latest.ReasonCode
		ds.Trouble = latest.ReasonCode != "" && slices.Contains(rules.TroubleReasons, latest.ReasonCode)
		at := latest.UpdatedAt
		ds.LastUpdateAt = &at
		since = latest.UpdatedAt
	}
	if ds.Status == domain.ProgressNotStarted || ds.Status == domain.ProgressInProgress {
		ds.WarningLevel = warningLevel(now.Sub(since), rules)
	}
	return ds
}

func warningLevel(age time.Duration, rules StatusRules) int {
	switch {
	case age >= rules.AlertAfter:
		return WarningAlert
	case age >= rules.WarnAfter:
		return WarningWarn
	default:
		return WarningNone
	}
}

// Latest reduces an event history to the newest event. Ties keep the later entry.
func Latest(events []domain.StatusEvent) (domain.StatusEvent, bool) {
	if len(events) == 0 {
		return domain.StatusEvent{}, false
	}
	best := events[0]
	for _, ev := range events[1:] {
		if !ev.UpdatedAt.Before(best.UpdatedAt) {
			best = ev
		}
	}
	return best, true
}

// LatestByOrder reduces a mixed history to the newest event per order id.
func LatestByOrder(events []domain.StatusEvent) map[string]domain.StatusEvent {
	out := make(map[string]domain.StatusEvent)
	for _, ev := range events {
		cur, ok := out[ev.OrderID]
		if !ok || !ev.UpdatedAt.Before(cur.UpdatedAt) {
			out[ev.OrderID] = ev
		}
	}
	return out
}
