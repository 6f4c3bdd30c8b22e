package schedule

import (
	"math"

	"dispatchline/internal/domain"
)

type Level string

const (
	LevelSafe   Level = "safe"
	LevelWarn   Level = "warn"
	LevelDanger Level = "danger"
)

// CapacityRules are per-worker-per-day order counts and the utilization alarm ratios.
type CapacityRules struct {
	SafePerWorkerDay     float64
	StandardPerWorkerDay float64
	MaxPerWorkerDay      float64
	WarnRatio            float64
	DangerRatio          float64
}

func DefaultCapacityRules() CapacityRules {
	return CapacityRules{
		SafePerWorkerDay:     2.0,
		StandardPerWorkerDay: 2.5,
		MaxPerWorkerDay:      3.0,
		WarnRatio:            0.7,
		DangerRatio:          0.9,
	}
}

type Capacity struct {
	Used        int     `json:"used"`
	Workers     int     `json:"workers"`
	Days        int     `json:"days"`
	SafeCap     int     `json:"safe_cap"`
	StandardCap int     `json:"standard_cap"`
	MaxCap      int     `json:"max_cap"`
	Utilization float64 `json:"utilization"`
	Level       Level   `json:"level" enum:"safe,warn,danger"`
}

// Summarize computes capacity for any window; only the worker-day product matters.
func Summarize(used, workers, days int, rules CapacityRules) Capacity {
	workerDays := float64(workers * days)
	c := Capacity{
		Used:        used,
		Workers:     workers,
		Days:        days,
		SafeCap:     floorCap(workerDays * rules.SafePerWorkerDay),
		StandardCap: floorCap(workerDays * rules.StandardPerWorkerDay),
		MaxCap:      floorCap(workerDays * rules.MaxPerWorkerDay),
	}
	c.Utilization = float64(used) / float64(max(c.StandardCap, 1))
	switch {
	case c.Utilization > rules.DangerRatio:
		c.Level = LevelDanger
	case c.Utilization > rules.WarnRatio:
		c.Level = LevelWarn
	default:
		c.Level = LevelSafe
	}
	return c
}

// floorCap tolerates float noise from non-dyadic multipliers such as 2.2.
func floorCap(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Floor(v + 1e-9))
}

// QuotaStatus is a contract's consumption for one month. Remaining is nil when untracked.
type QuotaStatus struct {
	ContractID string `json:"contract_id"`
	Month      string `json:"month"`
	Used       int    `json:"used"`
	Quota      int    `json:"quota"`
	Remaining  *int   `json:"remaining"`
}

// Quota reads consumption for monthKey; a zero monthly quota means unbounded.
func Quota(c domain.Contract, monthKey string) QuotaStatus {
	qs := QuotaStatus{
		ContractID: c.ID,
		Month:      monthKey,
		Used:       c.ConsumedByMonth[monthKey],
		Quota:      c.MonthlyQuota,
	}
	if c.MonthlyQuota > 0 {
		remaining := max(0, c.MonthlyQuota-qs.Used)
		qs.Remaining = &remaining
	}
	return qs
}
