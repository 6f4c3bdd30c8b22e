package repo

import (
	"context"
	"database/sql"

	"dispatchline/internal/domain"
)

func (r Repo) UpsertWorker(ctx context.Context, w domain.Worker, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO workers(id,display_name,active,updated_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, active=excluded.active, updated_at=excluded.updated_at`,
		w.ID, w.DisplayName, boolInt(w.Active), now)
	return err
}

func (r Repo) UpsertSite(ctx context.Context, s domain.Site, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sites(id,display_name,updated_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, updated_at=excluded.updated_at`,
		s.ID, s.DisplayName, now)
	return err
}

func (r Repo) GetWorker(ctx context.Context, id string) (domain.Worker, error) {
	var w domain.Worker
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT id,display_name,active FROM workers WHERE id=?`, id).Scan(&w.ID, &w.DisplayName, &active)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	w.Active = active == 1
	return w, err
}

func (r Repo) GetSite(ctx context.Context, id string) (domain.Site, error) {
	var s domain.Site
	err := r.DB.QueryRowContext(ctx, `SELECT id,display_name FROM sites WHERE id=?`, id).Scan(&s.ID, &s.DisplayName)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListWorkers(ctx context.Context, activeOnly bool) ([]domain.Worker, error) {
	query := `SELECT id,display_name,active FROM workers`
	if activeOnly {
		query += ` WHERE active=1`
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Worker
	for rows.Next() {
		var w domain.Worker
		var active int
		if err := rows.Scan(&w.ID, &w.DisplayName, &active); err != nil {
			return nil, err
		}
		w.Active = active == 1
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,display_name FROM sites ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Site
	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(&s.ID, &s.DisplayName); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountActiveWorkers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM workers WHERE active=1`).Scan(&n)
	return n, err
}
