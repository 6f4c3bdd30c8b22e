package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchline/internal/bizday"
	"dispatchline/internal/config"
	"dispatchline/internal/db"
	"dispatchline/internal/domain"
	"dispatchline/internal/engine"
	"dispatchline/internal/events"
	"dispatchline/internal/masterdata"
	"dispatchline/internal/migrate"
	"dispatchline/internal/schedule"
)

var tokyo = mustLoc("Asia/Tokyo")

func mustLoc(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng, err := engine.New(conn, config.Default("ops-1"))
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, tokyo)
	clock := &now
	eng.Now = func() time.Time { return *clock }
	return testEnv{Engine: eng, Ctx: context.Background(), clock: clock}
}

func (env testEnv) setNow(t time.Time) { *env.clock = t }

func str(s string) *string { return &s }

func night(date, start, end string) *engine.TimeSpec {
	return &engine.TimeSpec{BusinessDate: date, Start: start, End: end}
}

func (env testEnv) create(t *testing.T, worker, date, start, end string) domain.WorkOrder {
	t.Helper()
	o, err := env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{
		SiteID: str("s1"), WorkerID: str(worker), Times: night(date, start, end), ActorID: "dispatcher",
	})
	require.NoError(t, err)
	return o
}

func TestCreateResolvesBusinessDayAcrossMidnight(t *testing.T) {
	env := newTestEnv(t)
	o := env.create(t, "w1", "2024-05-01", "23:00", "01:00")
	assert.Equal(t, time.Date(2024, 5, 1, 23, 0, 0, 0, tokyo), o.Start.In(tokyo))
	assert.Equal(t, time.Date(2024, 5, 2, 1, 0, 0, 0, tokyo), o.End.In(tokyo))
	assert.Equal(t, int64(1), o.Version)
	assert.Equal(t, domain.LifecyclePlanned, o.LifecycleState)
	assert.Equal(t, "dispatcher", o.CreatedBy)

	closing := env.create(t, "w2", "2024-05-01", "02:00", "04:00")
	assert.Equal(t, time.Date(2024, 5, 2, 4, 0, 0, 0, tokyo), closing.End.In(tokyo))
}

func TestConflictAcrossDaySeamIsRejected(t *testing.T) {
	env := newTestEnv(t)
	first := env.create(t, "w1", "2024-05-01", "23:00", "01:00")

	_, err := env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{
		SiteID: str("s2"), WorkerID: str("w1"), Times: night("2024-05-01", "00:30", "02:00"),
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	var ce domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{first.ID}, ce.Conflicting)
	assert.Equal(t, "w1", ce.WorkerID)

	orders, err := env.Engine.ListOrders(env.Ctx, engine.OrderQuery{WorkerID: "w1"})
	require.NoError(t, err)
	assert.Len(t, orders, 1, "a rejected save leaves nothing behind")

	// touching intervals and other workers do not conflict
	env.create(t, "w1", "2024-05-01", "01:00", "03:00")
	env.create(t, "w2", "2024-05-01", "00:30", "02:00")
}

func TestCancelledOrdersNeverConflict(t *testing.T) {
	env := newTestEnv(t)
	first := env.create(t, "w1", "2024-05-01", "18:00", "20:00")
	cancelled, err := env.Engine.CancelOrder(env.Ctx, first.ID, first.Version, "dispatcher")
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled())
	assert.Equal(t, int64(2), cancelled.Version)

	env.create(t, "w1", "2024-05-01", "19:00", "21:00")
}

func TestUpdateIsVersionChecked(t *testing.T) {
	env := newTestEnv(t)
	o := env.create(t, "w1", "2024-05-01", "18:00", "20:00")

	moved, err := env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{
		ID: o.ID, ExpectedVersion: 1, Times: night("2024-05-01", "18:30", "20:30"), Memo: str("moved"), ActorID: "lead",
	})
	require.NoError(t, err, "an order never conflicts with itself")
	assert.Equal(t, int64(2), moved.Version)
	assert.Equal(t, "moved", moved.Memo)
	assert.Equal(t, "lead", moved.UpdatedBy)
	assert.Equal(t, "s1", moved.SiteID)

	_, err = env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{ID: o.ID, ExpectedVersion: 1, Memo: str("late")})
	require.ErrorIs(t, err, domain.ErrStaleWrite)
	var stale domain.StaleWriteError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, int64(2), stale.Actual)

	view, err := env.Engine.GetOrder(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "moved", view.Order.Memo)
}

func TestCancelTwiceIsStale(t *testing.T) {
	env := newTestEnv(t)
	o := env.create(t, "w1", "2024-05-01", "18:00", "20:00")
	c, err := env.Engine.CancelOrder(env.Ctx, o.ID, 1, "lead")
	require.NoError(t, err)

	_, err = env.Engine.CancelOrder(env.Ctx, o.ID, c.Version, "lead")
	assert.ErrorIs(t, err, domain.ErrStaleWrite)
	_, err = env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{ID: o.ID, ExpectedVersion: c.Version, Memo: str("x")})
	assert.ErrorIs(t, err, domain.ErrStaleWrite)
	_, err = env.Engine.CancelOrder(env.Ctx, "missing", 1, "lead")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvalidCandidatesAreRejected(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		req  engine.SaveOrderRequest
		want error
	}{
		{"reversed", engine.SaveOrderRequest{SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-01", "18:00", "17:00")}, domain.ErrInvalidInterval},
		{"empty", engine.SaveOrderRequest{SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-01", "18:00", "18:00")}, domain.ErrInvalidInterval},
		{"bad hour", engine.SaveOrderRequest{SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-01", "25:00", "26:00")}, domain.ErrInvalidTimeFormat},
		{"bad date", engine.SaveOrderRequest{SiteID: str("s1"), WorkerID: str("w1"), Times: night("05/01/2024", "18:00", "19:00")}, domain.ErrInvalidTimeFormat},
		{"no worker", engine.SaveOrderRequest{SiteID: str("s1"), Times: night("2024-05-01", "18:00", "19:00")}, domain.ErrInvalidInput},
		{"no times", engine.SaveOrderRequest{SiteID: str("s1"), WorkerID: str("w1")}, domain.ErrInvalidInput},
		{"unknown contract", engine.SaveOrderRequest{SiteID: str("s1"), WorkerID: str("w1"), ContractID: str("nope"), Times: night("2024-05-01", "18:00", "19:00")}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.TrySaveOrder(env.Ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	orders, err := env.Engine.ListOrders(env.Ctx, engine.OrderQuery{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckOrderWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	first := env.create(t, "w1", "2024-05-01", "23:00", "01:00")

	_, err := env.Engine.CheckOrder(env.Ctx, engine.SaveOrderRequest{
		SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-01", "00:30", "02:00"),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	candidate, err := env.Engine.CheckOrder(env.Ctx, engine.SaveOrderRequest{
		SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-01", "01:00", "02:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 1, 0, 0, 0, tokyo), candidate.Start.In(tokyo))

	orders, err := env.Engine.ListOrders(env.Ctx, engine.OrderQuery{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, first.ID, orders[0].ID)
}

func TestCheckOrderDoesNotWaitForWriters(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "w1", "2024-05-01", "23:00", "01:00")

	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = env.Engine.CheckOrder(env.Ctx, engine.SaveOrderRequest{
		SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-01", "00:30", "02:00"),
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = env.Engine.CheckOrder(env.Ctx, engine.SaveOrderRequest{
		SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-01", "01:00", "02:00"),
	})
	assert.NoError(t, err)
}

func TestSubMillisecondInstantsAreNormalized(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 5, 1, 21, 0, 0, 0, tokyo)
	save := func(worker string, start, end time.Time) (domain.WorkOrder, error) {
		return env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{
			SiteID: str("s1"), WorkerID: str(worker),
			Times: &engine.TimeSpec{StartAt: start, EndAt: end},
		})
	}

	first, err := save("w1", base.Add(-time.Hour), base.Add(900*time.Microsecond))
	require.NoError(t, err)
	assert.True(t, first.End.Equal(base), "end is kept at millisecond precision")
	stored, err := env.Engine.GetOrder(env.Ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.Order.Start.Equal(first.Start))
	assert.True(t, stored.Order.End.Equal(first.End))

	// touches the stored end once both sides are normalized
	second, err := save("w1", base.Add(500*time.Microsecond), base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, second.Start.Equal(base))

	_, err = save("w1", base.Add(-time.Minute).Add(300*time.Microsecond), base.Add(time.Minute))
	var ce domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ce.Conflicting)

	_, err = save("w2", base.Add(100*time.Microsecond), base.Add(500*time.Microsecond))
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
	orders, err := env.Engine.ListOrders(env.Ctx, engine.OrderQuery{WorkerID: "w2"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestConcurrentSavesAdmitOnlyOne(t *testing.T) {
	env := newTestEnv(t)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{
				SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-01", "22:00", "23:30"),
			})
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestTimelineMergesStatusAndLanes(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.ImportMasterData(env.Ctx, masterdata.Import{
		Workers: []domain.Worker{{ID: "w1", DisplayName: "Sato", Active: true}},
		Sites:   []domain.Site{{ID: "s1", DisplayName: "Tower 3F"}},
	}, "admin"))

	a := env.create(t, "w1", "2024-05-01", "18:00", "20:00")
	_, err := env.Engine.CancelOrder(env.Ctx, a.ID, a.Version, "lead")
	require.NoError(t, err)
	b := env.create(t, "w1", "2024-05-01", "19:00", "21:00")
	c := env.create(t, "w2", "2024-05-01", "01:00", "03:00")
	env.create(t, "w1", "2024-05-02", "18:00", "19:00")

	_, err = env.Engine.IngestStatus(env.Ctx, domain.StatusEvent{
		OrderID: b.ID, ProgressState: domain.ProgressInProgress, UpdatedAt: time.Date(2024, 5, 1, 19, 5, 0, 0, tokyo),
	}, "ugoki")
	require.NoError(t, err)
	env.setNow(time.Date(2024, 5, 1, 20, 10, 0, 0, tokyo))

	tl, err := env.Engine.GetTimeline(env.Ctx, bizday.ViewDay, "2024-05-01", engine.TimelineOptions{})
	require.NoError(t, err)
	require.Len(t, tl.Orders, 2)
	assert.Equal(t, b.ID, tl.Orders[0].ID)
	assert.Equal(t, c.ID, tl.Orders[1].ID)
	assert.Equal(t, domain.ProgressInProgress, tl.StatusByOrder[b.ID].Status)
	assert.Equal(t, schedule.WarningAlert, tl.StatusByOrder[b.ID].WarningLevel)
	assert.Equal(t, domain.ProgressNotStarted, tl.StatusByOrder[c.ID].Status)
	assert.Equal(t, 1, tl.LanesByWorker["w1"].LaneCount)
	assert.Equal(t, "Sato", tl.WorkerNames["w1"])
	assert.Equal(t, masterdata.Placeholder, tl.WorkerNames["w2"])
	assert.Equal(t, "Tower 3F", tl.SiteNames["s1"])

	tl, err = env.Engine.GetTimeline(env.Ctx, bizday.ViewDay, "2024-05-01", engine.TimelineOptions{WorkerID: "w1", IncludeCancelled: true})
	require.NoError(t, err)
	require.Len(t, tl.Orders, 2)
	assert.Equal(t, domain.StatusCancelled, tl.StatusByOrder[a.ID].Status)
	lanes := tl.LanesByWorker["w1"]
	assert.Equal(t, 2, lanes.LaneCount)
	assert.NotEqual(t, lanes.Lanes[a.ID], lanes.Lanes[b.ID])

	week, err := env.Engine.GetTimeline(env.Ctx, bizday.ViewWeek, "2024-05-01", engine.TimelineOptions{})
	require.NoError(t, err)
	assert.Len(t, week.Orders, 3)
	assert.Nil(t, week.LanesByWorker)

	_, err = env.Engine.GetTimeline(env.Ctx, bizday.View("year"), "2024-05-01", engine.TimelineOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidView)
}

func TestCapacityCountsPlannedOrders(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.ImportMasterData(env.Ctx, masterdata.Import{
		Workers: []domain.Worker{{ID: "w1", DisplayName: "Sato", Active: true}, {ID: "w2", DisplayName: "Ito", Active: true}},
	}, "admin"))
	env.create(t, "w1", "2024-05-01", "18:00", "19:00")
	env.create(t, "w1", "2024-05-01", "20:00", "21:00")
	env.create(t, "w2", "2024-05-01", "18:00", "19:00")
	gone := env.create(t, "w2", "2024-05-01", "20:00", "21:00")
	_, err := env.Engine.CancelOrder(env.Ctx, gone.ID, gone.Version, "lead")
	require.NoError(t, err)

	rep, err := env.Engine.GetCapacity(env.Ctx, bizday.ViewDay, "2024-05-01")
	require.NoError(t, err)
	c := rep.Capacity
	assert.Equal(t, 3, c.Used)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, 4, c.SafeCap)
	assert.Equal(t, 5, c.StandardCap)
	assert.Equal(t, 6, c.MaxCap)
	assert.InDelta(t, 0.6, c.Utilization, 1e-9)
	assert.Equal(t, schedule.LevelSafe, c.Level)

	env.create(t, "w2", "2024-05-01", "22:00", "23:00")
	rep, err = env.Engine.GetCapacity(env.Ctx, bizday.ViewDay, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, schedule.LevelWarn, rep.Capacity.Level)

	rep, err = env.Engine.GetCapacity(env.Ctx, bizday.ViewMonth, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 31, rep.Capacity.Days)
	assert.Equal(t, 155, rep.Capacity.StandardCap)
}

func TestQuotaConsumedOncePerOrder(t *testing.T) {
	env := newTestEnv(t)
	contract, err := env.Engine.CreateContract(env.Ctx, engine.ContractInput{SiteID: "s1", Kind: domain.ContractRecurring, MonthlyQuota: 4, ActorID: "admin"})
	require.NoError(t, err)

	// starts 2024-06-01 01:00 wall clock, but belongs to business month 2024-05
	o, err := env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{
		ContractID: str(contract.ID), SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-31", "01:00", "03:00"),
	})
	require.NoError(t, err)

	ingest := func(state string, at time.Time) engine.IngestResult {
		res, err := env.Engine.IngestStatus(env.Ctx, domain.StatusEvent{OrderID: o.ID, ProgressState: state, UpdatedAt: at}, "ugoki")
		require.NoError(t, err)
		return res
	}
	base := time.Date(2024, 6, 1, 1, 0, 0, 0, tokyo)
	assert.False(t, ingest(domain.ProgressInProgress, base).QuotaConsumed)
	done := ingest(domain.ProgressDone, base.Add(time.Hour))
	assert.True(t, done.QuotaConsumed)
	assert.Equal(t, "2024-05", done.MonthKey)
	assert.False(t, ingest(domain.ProgressDone, base.Add(2*time.Hour)).QuotaConsumed)
	assert.False(t, ingest(domain.ProgressInProgress, base.Add(3*time.Hour)).QuotaConsumed)
	assert.False(t, ingest(domain.ProgressDone, base.Add(4*time.Hour)).QuotaConsumed)

	q, err := env.Engine.GetQuota(env.Ctx, contract.ID, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Used)
	require.NotNil(t, q.Remaining)
	assert.Equal(t, 3, *q.Remaining)

	q, err = env.Engine.GetQuota(env.Ctx, contract.ID, "2024-06")
	require.NoError(t, err)
	assert.Equal(t, 0, q.Used)

	_, err = env.Engine.GetQuota(env.Ctx, contract.ID, "May")
	assert.ErrorIs(t, err, domain.ErrInvalidTimeFormat)
	_, err = env.Engine.GetQuota(env.Ctx, "missing", "2024-05")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	added, err := env.Engine.ReconcileQuota(env.Ctx, "2024-05", "admin")
	require.NoError(t, err)
	assert.Zero(t, added)

	evs, err := env.Engine.LatestEvents(env.Ctx, 10, events.QuotaConsumed, "", "")
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestLateStatusEventDoesNotRegress(t *testing.T) {
	env := newTestEnv(t)
	o := env.create(t, "w1", "2024-05-01", "18:00", "20:00")
	at := time.Date(2024, 5, 1, 19, 0, 0, 0, tokyo)
	_, err := env.Engine.IngestStatus(env.Ctx, domain.StatusEvent{OrderID: o.ID, ProgressState: domain.ProgressConfirming, UpdatedAt: at}, "")
	require.NoError(t, err)
	res, err := env.Engine.IngestStatus(env.Ctx, domain.StatusEvent{OrderID: o.ID, ProgressState: domain.ProgressInProgress, UpdatedAt: at.Add(-time.Hour)}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressConfirming, res.Status.Status)

	history, err := env.Engine.StatusHistory(env.Ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = env.Engine.IngestStatus(env.Ctx, domain.StatusEvent{OrderID: o.ID, ProgressState: "paused"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = env.Engine.IngestStatus(env.Ctx, domain.StatusEvent{OrderID: "missing", ProgressState: domain.ProgressDone}, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcileBackfillsLedger(t *testing.T) {
	env := newTestEnv(t)
	contract, err := env.Engine.CreateContract(env.Ctx, engine.ContractInput{ID: "k1", SiteID: "s1", MonthlyQuota: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.ContractRecurring, contract.Kind)
	o, err := env.Engine.TrySaveOrder(env.Ctx, engine.SaveOrderRequest{
		ContractID: str("k1"), SiteID: str("s1"), WorkerID: str("w1"), Times: night("2024-05-10", "18:00", "20:00"),
	})
	require.NoError(t, err)
	// a status row written behind the engine's back, e.g. by a bulk loader
	_, err = env.Engine.Repo.InsertStatusEvent(env.Ctx, domain.StatusEvent{
		OrderID: o.ID, ProgressState: domain.ProgressDone, UpdatedAt: time.Date(2024, 5, 10, 20, 0, 0, 0, tokyo),
	}, time.Now())
	require.NoError(t, err)

	added, err := env.Engine.ReconcileQuota(env.Ctx, "2024-05", "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	added, err = env.Engine.ReconcileQuota(env.Ctx, "", "admin")
	require.NoError(t, err)
	assert.Zero(t, added)

	q, err := env.Engine.GetQuota(env.Ctx, "k1", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 1, q.Used)

	_, err = env.Engine.CreateContract(env.Ctx, engine.ContractInput{ID: "k1", SiteID: "s1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = env.Engine.CreateContract(env.Ctx, engine.ContractInput{SiteID: "s1", Kind: "weekly"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
