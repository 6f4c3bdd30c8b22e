package server

import (
	"time"

	"dispatchline/internal/domain"
	"dispatchline/internal/engine"
)

// Request payloads

// OrderTimes are given either as a business date with HH:MM bounds or as absolute instants.
type OrderTimes struct {
	BusinessDate string     `json:"business_date,omitempty" example:"2024-05-01" doc:"Business date; hours before the rollover belong to the next calendar day"`
	Start        string     `json:"start,omitempty" example:"23:00"`
	End          string     `json:"end,omitempty" example:"01:00"`
	StartAt      *time.Time `json:"start_at,omitempty"`
	EndAt        *time.Time `json:"end_at,omitempty"`
}

func (t OrderTimes) present() bool {
	return t.BusinessDate != "" || t.Start != "" || t.End != "" || t.StartAt != nil || t.EndAt != nil
}

func (t OrderTimes) spec() *engine.TimeSpec {
	if !t.present() {
		return nil
	}
	ts := &engine.TimeSpec{BusinessDate: t.BusinessDate, Start: t.Start, End: t.End}
	if t.StartAt != nil {
		ts.StartAt = *t.StartAt
	}
	if t.EndAt != nil {
		ts.EndAt = *t.EndAt
	}
	return ts
}

type CreateOrderRequest struct {
	ID           string     `json:"id,omitempty"`
	ContractID   *string    `json:"contract_id,omitempty"`
	SiteID       string     `json:"site_id" minLength:"1"`
	WorkerID     string     `json:"worker_id" minLength:"1"`
	BusinessDate string     `json:"business_date,omitempty" example:"2024-05-01"`
	Start        string     `json:"start,omitempty" example:"23:00"`
	End          string     `json:"end,omitempty" example:"01:00"`
	StartAt      *time.Time `json:"start_at,omitempty"`
	EndAt        *time.Time `json:"end_at,omitempty"`
	WorkType     string     `json:"work_type,omitempty"`
	Memo         string     `json:"memo,omitempty"`
}

func (r CreateOrderRequest) times() OrderTimes {
	return OrderTimes{BusinessDate: r.BusinessDate, Start: r.Start, End: r.End, StartAt: r.StartAt, EndAt: r.EndAt}
}

func (r CreateOrderRequest) toSave(actorID string) engine.SaveOrderRequest {
	return engine.SaveOrderRequest{
		ID:         r.ID,
		ContractID: r.ContractID,
		SiteID:     &r.SiteID,
		WorkerID:   &r.WorkerID,
		Times:      r.times().spec(),
		WorkType:   &r.WorkType,
		Memo:       &r.Memo,
		ActorID:    actorID,
	}
}

type UpdateOrderRequest struct {
	ExpectedVersion int64      `json:"expected_version" minimum:"1"`
	ContractID      *string    `json:"contract_id,omitempty" doc:"null or empty clears the contract"`
	SiteID          *string    `json:"site_id,omitempty"`
	WorkerID        *string    `json:"worker_id,omitempty"`
	BusinessDate    string     `json:"business_date,omitempty"`
	Start           string     `json:"start,omitempty"`
	End             string     `json:"end,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	WorkType        *string    `json:"work_type,omitempty"`
	Memo            *string    `json:"memo,omitempty"`
}

func (r UpdateOrderRequest) times() OrderTimes {
	return OrderTimes{BusinessDate: r.BusinessDate, Start: r.Start, End: r.End, StartAt: r.StartAt, EndAt: r.EndAt}
}

// CheckOrderRequest is a create, or with order_id and expected_version a patch, that is
// validated but never written.
type CheckOrderRequest struct {
	OrderID         string     `json:"order_id,omitempty"`
	ExpectedVersion int64      `json:"expected_version,omitempty" minimum:"0"`
	ContractID      *string    `json:"contract_id,omitempty"`
	SiteID          *string    `json:"site_id,omitempty"`
	WorkerID        *string    `json:"worker_id,omitempty"`
	BusinessDate    string     `json:"business_date,omitempty"`
	Start           string     `json:"start,omitempty"`
	End             string     `json:"end,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	WorkType        *string    `json:"work_type,omitempty"`
	Memo            *string    `json:"memo,omitempty"`
}

func (r CheckOrderRequest) toSave(actorID string) engine.SaveOrderRequest {
	times := OrderTimes{BusinessDate: r.BusinessDate, Start: r.Start, End: r.End, StartAt: r.StartAt, EndAt: r.EndAt}
	return engine.SaveOrderRequest{
		ID:              r.OrderID,
		ExpectedVersion: r.ExpectedVersion,
		ContractID:      r.ContractID,
		SiteID:          r.SiteID,
		WorkerID:        r.WorkerID,
		Times:           times.spec(),
		WorkType:        r.WorkType,
		Memo:            r.Memo,
		ActorID:         actorID,
	}
}

type CancelOrderRequest struct {
	ExpectedVersion int64 `json:"expected_version" minimum:"1"`
}

type StatusEventRequest struct {
	OrderID       string     `json:"order_id" minLength:"1"`
	ProgressState string     `json:"progress_state" enum:"not_started,in_progress,confirming,coordinating,done"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty" doc:"Defaults to the time of receipt"`
	ReasonCode    string     `json:"reason_code,omitempty"`
}

type CreateContractRequest struct {
	ID           string `json:"id,omitempty"`
	SiteID       string `json:"site_id" minLength:"1"`
	Kind         string `json:"kind,omitempty" enum:"recurring,one_off"`
	MonthlyQuota int    `json:"monthly_quota,omitempty" minimum:"0"`
}

type ReconcileRequest struct {
	Month string `json:"month,omitempty" example:"2024-05"`
}

type MasterDataRequest struct {
	Workers []domain.Worker `json:"workers,omitempty"`
	Sites   []domain.Site   `json:"sites,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type CheckOrderResponse struct {
	OK                  bool             `json:"ok"`
	Candidate           domain.WorkOrder `json:"candidate"`
	ConflictingOrderIDs []string         `json:"conflicting_order_ids,omitempty"`
}

type ReconcileResponse struct {
	Month string `json:"month,omitempty"`
	Added int    `json:"added"`
}

type ImportResponse struct {
	Workers int `json:"workers"`
	Sites   int `json:"sites"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}
