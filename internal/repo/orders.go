package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"dispatchline/internal/domain"
)

const orderColumns = `id,contract_id,site_id,worker_id,start_at,end_at,work_type,lifecycle_state,memo,version,created_by,updated_by,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (domain.WorkOrder, error) {
	var o domain.WorkOrder
	var contractID sql.NullString
	var start, end string
	err := s.Scan(&o.ID, &contractID, &o.SiteID, &o.WorkerID, &start, &end, &o.WorkType, &o.LifecycleState,
		&o.Memo, &o.Version, &o.CreatedBy, &o.UpdatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if contractID.Valid {
		o.ContractID = &contractID.String
	}
	if o.Start, err = parseTS(start); err != nil {
		return o, err
	}
	if o.End, err = parseTS(end); err != nil {
		return o, err
	}
	return o, nil
}

func (r Repo) InsertOrder(ctx context.Context, o domain.WorkOrder) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO work_orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, nullableStringPtr(o.ContractID), o.SiteID, o.WorkerID, formatTS(o.Start), formatTS(o.End), o.WorkType,
		o.LifecycleState, o.Memo, o.Version, o.CreatedBy, o.UpdatedBy, o.CreatedAt, o.UpdatedAt)
	return err
}

// UpdateOrderIfVersion writes o only when the stored version equals expectedVersion and the
// order is still planned. The stored version becomes o.Version. It reports whether a row changed.
func (r Repo) UpdateOrderIfVersion(ctx context.Context, o domain.WorkOrder, expectedVersion int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE work_orders SET contract_id=?, site_id=?, worker_id=?, start_at=?, end_at=?, work_type=?,
lifecycle_state=?, memo=?, version=?, updated_by=?, updated_at=?
WHERE id=? AND version=? AND lifecycle_state='planned'`,
		nullableStringPtr(o.ContractID), o.SiteID, o.WorkerID, formatTS(o.Start), formatTS(o.End), o.WorkType,
		o.LifecycleState, o.Memo, o.Version, o.UpdatedBy, o.UpdatedAt,
		o.ID, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	return scanOrder(r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM work_orders WHERE id=?`, id))
}

// OrderFilters select orders whose start lies in [From, To).
type OrderFilters struct {
	From             time.Time
	To               time.Time
	WorkerID         string
	ContractID       string
	IncludeCancelled bool
	Limit            int
}

func (r Repo) ListOrders(ctx context.Context, f OrderFilters) ([]domain.WorkOrder, error) {
	var clauses []string
	var args []any
	if !f.From.IsZero() {
		clauses = append(clauses, "start_at >= ?")
		args = append(args, formatTS(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "start_at < ?")
		args = append(args, formatTS(f.To))
	}
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.ContractID != "" {
		clauses = append(clauses, "contract_id=?")
		args = append(args, f.ContractID)
	}
	if !f.IncludeCancelled {
		clauses = append(clauses, "lifecycle_state='planned'")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + orderColumns + ` FROM work_orders ` + where + ` ORDER BY start_at, end_at, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryOrders(ctx, query, args...)
}

// ListWorkerOrdersOverlapping returns the worker's planned orders intersecting [from, to).
// It is the snapshot conflict detection runs against.
func (r Repo) ListWorkerOrdersOverlapping(ctx context.Context, workerID string, from, to time.Time) ([]domain.WorkOrder, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM work_orders
WHERE worker_id=? AND lifecycle_state='planned' AND start_at < ? AND end_at > ?
ORDER BY start_at, end_at, id`, workerID, formatTS(to), formatTS(from))
}

// CountOrders counts planned orders starting in [from, to).
func (r Repo) CountOrders(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_orders WHERE lifecycle_state='planned' AND start_at >= ? AND start_at < ?`,
		formatTS(from), formatTS(to)).Scan(&n)
	return n, err
}

func (r Repo) queryOrders(ctx context.Context, query string, args ...any) ([]domain.WorkOrder, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
