package schedule

import (
	"time"

	"dispatchline/internal/domain"
)

// Overlaps reports whether half-open intervals [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FindConflicts returns the existing orders that double-book the candidate's worker.
// A cancelled candidate never conflicts, which keeps the relation symmetric.
func FindConflicts(candidate domain.WorkOrder, existing []domain.WorkOrder) []domain.WorkOrder {
	if candidate.Cancelled() {
		return nil
	}
	var out []domain.WorkOrder
	for _, o := range existing {
		if o.WorkerID != candidate.WorkerID || o.Cancelled() {
			continue
		}
		if candidate.ID != "" && o.ID == candidate.ID {
			continue
		}
		if Overlaps(candidate.Start, candidate.End, o.Start, o.End) {
			out = append(out, o)
		}
	}
	return out
}

// HasConflict reports whether any existing order double-books the candidate's worker.
func HasConflict(candidate domain.WorkOrder, existing []domain.WorkOrder) bool {
	return len(FindConflicts(candidate, existing)) > 0
}

// CheckConflict returns a domain.ConflictError naming every overlapping order, or nil.
func CheckConflict(candidate domain.WorkOrder, existing []domain.WorkOrder) error {
	conflicts := FindConflicts(candidate, existing)
	if len(conflicts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ID)
	}
	return domain.ConflictError{OrderID: candidate.ID, WorkerID: candidate.WorkerID, Conflicting: ids}
}

// ValidateInterval enforces start < end.
func ValidateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return domain.ErrInvalidInterval
	}
	return nil
}
