package bizday

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchline/internal/domain"
)

func tokyo(t *testing.T) Calendar {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return New(loc, DefaultRolloverHour)
}

func TestResolveBusinessInstantDayBoundary(t *testing.T) {
	cal := tokyo(t)
	d, err := cal.ParseDate("2024-05-01")
	require.NoError(t, err)

	for h := 0; h < 24; h++ {
		for _, m := range []int{0, 1, 30, 59} {
			hhmm := fmt.Sprintf("%02d:%02d", h, m)
			got, err := cal.ResolveBusinessInstant(d, hhmm)
			require.NoError(t, err, hhmm)
			wantDay := 1
			if h < 4 {
				wantDay = 2
			}
			assert.Equal(t, wantDay, got.Day(), hhmm)
			assert.Equal(t, time.May, got.Month(), hhmm)
			assert.Equal(t, h, got.Hour(), hhmm)
			assert.Equal(t, m, got.Minute(), hhmm)
		}
	}
}

func TestResolveAcrossMonthEnd(t *testing.T) {
	cal := tokyo(t)
	d, err := cal.ParseDate("2024-12-31")
	require.NoError(t, err)
	got, err := cal.ResolveBusinessInstant(d, "01:15")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01T01:15:00+09:00", got.Format(time.RFC3339))
}

func TestResolveBusinessEndClosesDay(t *testing.T) {
	cal := tokyo(t)
	d, _ := cal.ParseDate("2024-05-01")
	end, err := cal.ResolveBusinessEnd(d, "04:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02T04:00:00+09:00", end.Format(time.RFC3339))

	end, err = cal.ResolveBusinessEnd(d, "18:30")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T18:30:00+09:00", end.Format(time.RFC3339))

	end, err = cal.ResolveBusinessEnd(d, "01:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02T01:00:00+09:00", end.Format(time.RFC3339))

	_, err = cal.ResolveBusinessEnd(d, "4pm")
	assert.ErrorIs(t, err, domain.ErrInvalidTimeFormat)
}

func TestParseHHMMRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "24:00", "7", "07:60", "ab:cd", "07:5", "123:00", "-1:00", "07-30"} {
		_, _, err := ParseHHMM(in)
		assert.ErrorIs(t, err, domain.ErrInvalidTimeFormat, in)
	}
	h, m, err := ParseHHMM("7:05")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)
}

func TestParseDateRejectsMalformed(t *testing.T) {
	cal := tokyo(t)
	_, err := cal.ParseDate("2024/05/01")
	assert.ErrorIs(t, err, domain.ErrInvalidTimeFormat)
}

func TestBusinessDateOfInvertsResolve(t *testing.T) {
	cal := tokyo(t)
	d, _ := cal.ParseDate("2024-05-01")
	for _, hhmm := range []string{"04:00", "16:00", "23:59", "00:00", "03:59"} {
		inst, err := cal.ResolveBusinessInstant(d, hhmm)
		require.NoError(t, err)
		assert.Equal(t, "2024-05-01", FormatDate(cal.BusinessDateOf(inst)), hhmm)
	}
	inst, _ := cal.ResolveBusinessInstant(d, "02:00")
	assert.Equal(t, "2024-05", cal.MonthKey(inst))

	last, _ := cal.ParseDate("2024-05-31")
	inst, _ = cal.ResolveBusinessInstant(last, "02:00")
	assert.Equal(t, "2024-05", cal.MonthKey(inst), "early hours of June 1st still bill to May")
}

func TestWindows(t *testing.T) {
	cal := tokyo(t)
	d, _ := cal.ParseDate("2024-05-01") // Wednesday

	day, err := cal.Window(ViewDay, d)
	require.NoError(t, err)
	assert.Equal(t, 1, day.DayCount)
	assert.Equal(t, "2024-05-01T04:00:00+09:00", day.From.Format(time.RFC3339))
	assert.Equal(t, "2024-05-02T04:00:00+09:00", day.To.Format(time.RFC3339))

	inst, _ := cal.ResolveBusinessInstant(d, "03:59")
	assert.True(t, day.Contains(inst))
	inst, _ = cal.ResolveBusinessInstant(d, "04:00")
	assert.True(t, day.Contains(inst))

	week, err := cal.Window(ViewWeek, d)
	require.NoError(t, err)
	assert.Equal(t, 7, week.DayCount)
	assert.Equal(t, "2024-04-29T04:00:00+09:00", week.From.Format(time.RFC3339))
	assert.Equal(t, "2024-05-06T04:00:00+09:00", week.To.Format(time.RFC3339))

	sunday, _ := cal.ParseDate("2024-05-05")
	sameWeek, _ := cal.Window(ViewWeek, sunday)
	assert.Equal(t, week.From, sameWeek.From)

	month, err := cal.Window(ViewMonth, d)
	require.NoError(t, err)
	assert.Equal(t, 31, month.DayCount)
	assert.Equal(t, "2024-06-01T04:00:00+09:00", month.To.Format(time.RFC3339))

	feb, _ := cal.ParseDate("2024-02-10")
	leap, _ := cal.Window(ViewMonth, feb)
	assert.Equal(t, 29, leap.DayCount)

	_, err = cal.Window(View("year"), d)
	assert.ErrorIs(t, err, domain.ErrInvalidView)
}

func TestParseView(t *testing.T) {
	v, err := ParseView("")
	require.NoError(t, err)
	assert.Equal(t, ViewDay, v)
	v, err = ParseView("Week")
	require.NoError(t, err)
	assert.Equal(t, ViewWeek, v)
	_, err = ParseView("timeline")
	assert.ErrorIs(t, err, domain.ErrInvalidView)
}
