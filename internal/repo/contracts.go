package repo

import (
	"context"
	"database/sql"

	"dispatchline/internal/domain"
)

func (r Repo) InsertContract(ctx context.Context, c domain.Contract) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO contracts(id,site_id,kind,monthly_quota,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.SiteID, c.Kind, c.MonthlyQuota, c.CreatedAt)
	return err
}

// GetContract loads a contract together with its per-month consumption counters.
func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	var c domain.Contract
	err := r.DB.QueryRowContext(ctx, `SELECT id,site_id,kind,monthly_quota,created_at FROM contracts WHERE id=?`, id).
		Scan(&c.ID, &c.SiteID, &c.Kind, &c.MonthlyQuota, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.ConsumedByMonth, err = r.ConsumedByMonth(ctx, id)
	return c, err
}

func (r Repo) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,site_id,kind,monthly_quota,created_at FROM contracts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contract
	for rows.Next() {
		var c domain.Contract
		if err := rows.Scan(&c.ID, &c.SiteID, &c.Kind, &c.MonthlyQuota, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ConsumedByMonth counts ledger rows per month for a contract.
func (r Repo) ConsumedByMonth(ctx context.Context, contractID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT month_key, COUNT(*) FROM quota_consumptions WHERE contract_id=? GROUP BY month_key`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var month string
		var n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, err
		}
		out[month] = n
	}
	return out, rows.Err()
}

// RecordConsumption appends a ledger row for a completed order. Repeats are ignored, so
// it reports true only the first time an order is counted.
func (r Repo) RecordConsumption(ctx context.Context, orderID, contractID, monthKey, ts string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO quota_consumptions(order_id,contract_id,month_key,consumed_at) VALUES (?,?,?,?)`,
		orderID, contractID, monthKey, ts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
