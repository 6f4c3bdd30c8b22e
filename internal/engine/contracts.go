package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dispatchline/internal/bizday"
	"dispatchline/internal/domain"
	"dispatchline/internal/events"
	"dispatchline/internal/masterdata"
	"dispatchline/internal/repo"
	"dispatchline/internal/schedule"
)

// ContractInput creates a contract. A zero MonthlyQuota means the contract is not capped.
type ContractInput struct {
	ID           string
	SiteID       string
	Kind         string
	MonthlyQuota int
	ActorID      string
}

func (e Engine) CreateContract(ctx context.Context, in ContractInput) (domain.Contract, error) {
	if in.SiteID == "" {
		return domain.Contract{}, invalid("site_id is required")
	}
	if in.Kind == "" {
		in.Kind = domain.ContractRecurring
	}
	if !domain.ValidContractKind(in.Kind) {
		return domain.Contract{}, invalid("unknown contract kind %q", in.Kind)
	}
	if in.MonthlyQuota < 0 {
		return domain.Contract{}, invalid("monthly_quota must not be negative")
	}
	c := domain.Contract{
		ID:           in.ID,
		SiteID:       in.SiteID,
		Kind:         in.Kind,
		MonthlyQuota: in.MonthlyQuota,
		CreatedAt:    e.stamp(),
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		if _, err := r.GetContract(ctx, c.ID); err == nil {
			return invalid("contract %s already exists", c.ID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := r.InsertContract(ctx, c); err != nil {
			return err
		}
		return e.audit(ctx, tx, events.ContractAdded, "contract", c.ID, in.ActorID, events.EventPayload{
			"site_id":       c.SiteID,
			"kind":          c.Kind,
			"monthly_quota": c.MonthlyQuota,
		})
	})
	if err != nil {
		return domain.Contract{}, err
	}
	e.log().Info("contract created", zap.String("contract_id", c.ID), zap.Int("monthly_quota", c.MonthlyQuota))
	return c, nil
}

func (e Engine) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	return e.Repo.GetContract(ctx, id)
}

func (e Engine) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	return e.Repo.ListContracts(ctx)
}

// GetQuota reports consumption for one business month; an empty month means the current one.
func (e Engine) GetQuota(ctx context.Context, contractID, monthKey string) (schedule.QuotaStatus, error) {
	if monthKey == "" {
		monthKey = e.Calendar.MonthKey(e.now())
	}
	key, err := bizday.ParseMonthKey(monthKey)
	if err != nil {
		return schedule.QuotaStatus{}, err
	}
	c, err := e.Repo.GetContract(ctx, contractID)
	if err != nil {
		return schedule.QuotaStatus{}, err
	}
	return schedule.Quota(c, key), nil
}

// ImportMasterData upserts a reference data snapshot.
func (e Engine) ImportMasterData(ctx context.Context, imp masterdata.Import, actorID string) error {
	now := e.stamp()
	err := e.inTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		for _, w := range imp.Workers {
			if err := r.UpsertWorker(ctx, w, now); err != nil {
				return err
			}
		}
		for _, s := range imp.Sites {
			if err := r.UpsertSite(ctx, s, now); err != nil {
				return err
			}
		}
		return e.audit(ctx, tx, events.MasterImported, "masterdata", "", actorID, events.EventPayload{
			"workers": len(imp.Workers),
			"sites":   len(imp.Sites),
		})
	})
	if err != nil {
		return err
	}
	e.log().Info("master data imported", zap.Int("workers", len(imp.Workers)), zap.Int("sites", len(imp.Sites)))
	return nil
}

func (e Engine) ListWorkers(ctx context.Context, activeOnly bool) ([]domain.Worker, error) {
	return e.Repo.ListWorkers(ctx, activeOnly)
}

func (e Engine) ListSites(ctx context.Context) ([]domain.Site, error) {
	return e.Repo.ListSites(ctx)
}

// LatestEvents returns the newest audit events, optionally filtered.
func (e Engine) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 50
	}
	return e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
}
