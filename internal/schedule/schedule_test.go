package schedule

import (
	"fmt"
	"time"

	"dispatchline/internal/domain"
)

var base = time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func order(id, worker string, startMin, endMin int) domain.WorkOrder {
	return domain.WorkOrder{
		ID:             id,
		WorkerID:       worker,
		SiteID:         "site-" + id,
		Start:          at(startMin),
		End:            at(endMin),
		LifecycleState: domain.LifecyclePlanned,
		Version:        1,
	}
}

func cancelled(o domain.WorkOrder) domain.WorkOrder {
	o.LifecycleState = domain.LifecycleCancelled
	return o
}

func orderID(i int) string { return fmt.Sprintf("o-%03d", i) }
