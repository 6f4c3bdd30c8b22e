package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dispatchline/internal/bizday"
	"dispatchline/internal/config"
	"dispatchline/internal/db"
	"dispatchline/internal/domain"
	"dispatchline/internal/events"
	"dispatchline/internal/masterdata"
	"dispatchline/internal/repo"
	"dispatchline/internal/schedule"
)

// Engine is the timeline query and save façade. All writes go through it.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Calendar bizday.Calendar
	Status   schedule.StatusRules
	Capacity schedule.CapacityRules
	Names    masterdata.Names
	Logger   *zap.Logger
	Now      func() time.Time
}

func New(conn *sql.DB, cfg *config.Config) (Engine, error) {
	if cfg == nil {
		return Engine{}, errors.New("config not loaded")
	}
	loc, err := cfg.Location()
	if err != nil {
		return Engine{}, fmt.Errorf("operator timezone: %w", err)
	}
	r := repo.New(conn)
	e := Engine{
		DB:       conn,
		Repo:     r,
		Config:   cfg,
		Calendar: bizday.New(loc, cfg.BusinessDay.RolloverHour),
		Status: schedule.StatusRules{
			WarnAfter:      cfg.Staleness.WarnAfter,
			AlertAfter:     cfg.Staleness.AlertAfter,
			TroubleReasons: cfg.Status.TroubleReasons,
		},
		Capacity: schedule.CapacityRules{
			SafePerWorkerDay:     cfg.Capacity.SafePerWorkerDay,
			StandardPerWorkerDay: cfg.Capacity.StandardPerWorkerDay,
			MaxPerWorkerDay:      cfg.Capacity.MaxPerWorkerDay,
			WarnRatio:            cfg.Capacity.WarnRatio,
			DangerRatio:          cfg.Capacity.DangerRatio,
		},
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
	var dir masterdata.Directory = masterdata.SQLDirectory{Repo: r}
	if cfg.MasterData.BaseURL != "" {
		dir = masterdata.NewCached(masterdata.NewHTTPDirectory(cfg.MasterData.BaseURL), cfg.MasterData.CacheSize, cfg.MasterData.CacheTTL)
	}
	e.Names = masterdata.Names{Directory: dir, Logger: e.Logger, Timeout: cfg.MasterData.LookupTimeout}
	return e, nil
}

// WithLogger returns a copy of the engine logging to l.
func (e Engine) WithLogger(l *zap.Logger) Engine {
	if l == nil {
		l = zap.NewNop()
	}
	e.Logger = l
	e.Names.Logger = l
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// audit appends an event stamped with the engine clock.
func (e Engine) audit(ctx context.Context, tx *sql.Tx, evtType, kind, id, actor string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, kind, id, actor, payload)
}

func (e Engine) stamp() string {
	return repo.FormatTimestamp(e.now())
}

// inTx runs fn with a repo bound to a write transaction.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx, r repo.Repo) error) error {
	return db.WithinTx(ctx, e.DB, func(tx *sql.Tx) error {
		return fn(tx, e.Repo.WithTx(tx))
	})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}
