package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchline/internal/domain"
)

func event(orderID, state string, updated time.Time, reason string) *domain.StatusEvent {
	return &domain.StatusEvent{OrderID: orderID, ProgressState: state, UpdatedAt: updated, ReasonCode: reason}
}

func TestDeriveStatusWithoutEventUsesOrderStart(t *testing.T) {
	rules := DefaultStatusRules()
	o := order("a", "w1", 0, 60)

	ds := DeriveStatus(o, nil, at(-10), rules)
	assert.Equal(t, domain.ProgressNotStarted, ds.Status)
	assert.Equal(t, WarningNone, ds.WarningLevel, "orders in the future are not stale")
	assert.Nil(t, ds.LastUpdateAt)

	assert.Equal(t, WarningNone, DeriveStatus(o, nil, at(29), rules).WarningLevel)
	assert.Equal(t, WarningWarn, DeriveStatus(o, nil, at(30), rules).WarningLevel)
	assert.Equal(t, WarningWarn, DeriveStatus(o, nil, at(59), rules).WarningLevel)
	assert.Equal(t, WarningAlert, DeriveStatus(o, nil, at(60), rules).WarningLevel)
}

func TestDeriveStatusUsesLatestEvent(t *testing.T) {
	rules := DefaultStatusRules()
	o := order("a", "w1", 0, 120)

	ds := DeriveStatus(o, event("a", domain.ProgressInProgress, at(50), ""), at(85), rules)
	assert.Equal(t, domain.ProgressInProgress, ds.Status)
	assert.Equal(t, WarningWarn, ds.WarningLevel)
	require.NotNil(t, ds.LastUpdateAt)
	assert.Equal(t, at(50), *ds.LastUpdateAt)

	for _, state := range []string{domain.ProgressConfirming, domain.ProgressCoordinating, domain.ProgressDone} {
		ds := DeriveStatus(o, event("a", state, at(0), ""), at(600), rules)
		assert.Equal(t, state, ds.Status)
		assert.Equal(t, WarningNone, ds.WarningLevel, state)
	}
}

func TestDeriveStatusCancelledIgnoresEvents(t *testing.T) {
	o := cancelled(order("a", "w1", 0, 60))
	ds := DeriveStatus(o, event("a", domain.ProgressInProgress, at(0), "recleaning"), at(600), DefaultStatusRules())
	assert.Equal(t, domain.StatusCancelled, ds.Status)
	assert.Equal(t, WarningNone, ds.WarningLevel)
	assert.False(t, ds.Trouble)
}

func TestDeriveStatusTroubleReason(t *testing.T) {
	o := order("a", "w1", 0, 60)
	ds := DeriveStatus(o, event("a", domain.ProgressInProgress, at(0), "recleaning"), at(5), DefaultStatusRules())
	assert.True(t, ds.Trouble)
	assert.Equal(t, "recleaning", ds.ReasonCode)

	ds = DeriveStatus(o, event("a", domain.ProgressInProgress, at(0), "customer_request"), at(5), DefaultStatusRules())
	assert.False(t, ds.Trouble)
}

// TestDeriveStatus_StalenessMonotonic property-tests that the warning level never drops as now advances.
func TestDeriveStatus_StalenessMonotonic(t *testing.T) {
	rules := DefaultStatusRules()
	rng := rand.New(rand.NewSource(3))
	states := []string{domain.ProgressNotStarted, domain.ProgressInProgress, domain.ProgressDone}
	for trial := 0; trial < 200; trial++ {
		o := order("a", "w1", rng.Intn(120), 180)
		var ev *domain.StatusEvent
		if rng.Intn(2) == 0 {
			ev = event("a", states[rng.Intn(len(states))], at(rng.Intn(120)), "")
		}
		if rng.Intn(6) == 0 {
			o = cancelled(o)
		}
		prev := -1
		for step := -60; step < 300; step += rng.Intn(7) + 1 {
			ds := DeriveStatus(o, ev, at(step), rules)
			assert.GreaterOrEqual(t, ds.WarningLevel, prev, "trial %d step %d", trial, step)
			if ds.Status == domain.ProgressDone || ds.Status == domain.StatusCancelled {
				assert.Equal(t, WarningNone, ds.WarningLevel, "trial %d", trial)
			}
			prev = ds.WarningLevel
		}
	}
}

func TestLatest(t *testing.T) {
	_, ok := Latest(nil)
	assert.False(t, ok)

	history := []domain.StatusEvent{
		*event("a", domain.ProgressInProgress, at(10), ""),
		*event("a", domain.ProgressDone, at(30), ""),
		*event("a", domain.ProgressConfirming, at(20), ""),
	}
	got, ok := Latest(history)
	require.True(t, ok)
	assert.Equal(t, domain.ProgressDone, got.ProgressState)

	mixed := append(history, *event("b", domain.ProgressNotStarted, at(5), ""))
	byOrder := LatestByOrder(mixed)
	assert.Equal(t, domain.ProgressDone, byOrder["a"].ProgressState)
	assert.Equal(t, domain.ProgressNotStarted, byOrder["b"].ProgressState)
}
