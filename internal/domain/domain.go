package domain

import "time"

// Lifecycle states of a work order. Cancelled is terminal.
const (
	LifecyclePlanned   = "planned"
	LifecycleCancelled = "cancelled"
)

// Progress states reported by live status events.
const (
	ProgressNotStarted   = "not_started"
	ProgressInProgress   = "in_progress"
	ProgressConfirming   = "confirming"
	ProgressCoordinating = "coordinating"
	ProgressDone         = "done"
)

// StatusCancelled is the derived status of a cancelled order. It is never a progress state.
const StatusCancelled = "cancelled"

// Contract kinds.
const (
	ContractRecurring = "recurring"
	ContractOneOff    = "one_off"
)

// WorkOrder is a planned, time-boxed assignment of a worker to a site.
type WorkOrder struct {
	ID             string    `json:"id"`
	ContractID     *string   `json:"contract_id,omitempty"`
	SiteID         string    `json:"site_id"`
	WorkerID       string    `json:"worker_id"`
	Start          time.Time `json:"start" format:"date-time"`
	End            time.Time `json:"end" format:"date-time"`
	WorkType       string    `json:"work_type,omitempty"`
	LifecycleState string    `json:"lifecycle_state" enum:"planned,cancelled"`
	Memo           string    `json:"memo,omitempty"`
	Version        int64     `json:"version"`
	CreatedBy      string    `json:"created_by,omitempty"`
	UpdatedBy      string    `json:"updated_by,omitempty"`
	CreatedAt      string    `json:"created_at" format:"date-time"`
	UpdatedAt      string    `json:"updated_at" format:"date-time"`
}

// Cancelled reports whether the order reached its terminal state.
func (o WorkOrder) Cancelled() bool {
	return o.LifecycleState == LifecycleCancelled
}

// StatusEvent is a live progress update for a work order.
type StatusEvent struct {
	ID            int64     `json:"id,omitempty"`
	OrderID       string    `json:"order_id"`
	ProgressState string    `json:"progress_state" enum:"not_started,in_progress,confirming,coordinating,done"`
	UpdatedAt     time.Time `json:"updated_at" format:"date-time"`
	ReasonCode    string    `json:"reason_code,omitempty"`
}

// Contract is a recurring or one-off service agreement.
type Contract struct {
	ID              string         `json:"id"`
	SiteID          string         `json:"site_id"`
	Kind            string         `json:"kind" enum:"recurring,one_off"`
	MonthlyQuota    int            `json:"monthly_quota"`
	ConsumedByMonth map[string]int `json:"consumed_by_month,omitempty"`
	CreatedAt       string         `json:"created_at" format:"date-time"`
}

type Worker struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Active      bool   `json:"active" yaml:"active"`
}

type Site struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// Event is an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ValidProgressState reports whether s is a known progress state.
func ValidProgressState(s string) bool {
	switch s {
	case ProgressNotStarted, ProgressInProgress, ProgressConfirming, ProgressCoordinating, ProgressDone:
		return true
	}
	return false
}

// ValidContractKind reports whether k is a known contract kind.
func ValidContractKind(k string) bool {
	return k == ContractRecurring || k == ContractOneOff
}
