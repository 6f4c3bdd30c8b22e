// Package bizday maps business-local time expressions onto absolute instants.
//
// A business day runs from the afternoon shift start through the early hours of the
// following calendar day. Hours before the rollover hour belong to the previous business
// date, so "01:00" on business date D is D+1 01:00 in wall-clock terms. Everything downstream
// compares the instants produced here, never raw "HH:MM" strings.
package bizday

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dispatchline/internal/domain"
)

// DefaultRolloverHour is the first hour that belongs to the calendar date itself.
const DefaultRolloverHour = 4

const dateLayout = "2006-01-02"

type View string

const (
	ViewDay   View = "day"
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

// ParseView validates a view name. An empty name means day.
func ParseView(s string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case "", ViewDay:
		return ViewDay, nil
	case ViewWeek:
		return ViewWeek, nil
	case ViewMonth:
		return ViewMonth, nil
	}
	return "", fmt.Errorf("%w %q: expected day, week or month", domain.ErrInvalidView, s)
}

// Calendar resolves business dates in one operator time zone.
type Calendar struct {
	Location     *time.Location
	RolloverHour int
}

func New(loc *time.Location, rolloverHour int) Calendar {
	return Calendar{Location: loc, RolloverHour: rolloverHour}
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// ParseHHMM parses "HH:MM" (or "H:MM") on a 24h clock.
func ParseHHMM(s string) (hour, minute int, err error) {
	raw := strings.TrimSpace(s)
	h, m, ok := strings.Cut(raw, ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, 0, domain.TimeFormatError{Input: s}
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, domain.TimeFormatError{Input: s}
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, domain.TimeFormatError{Input: s}
	}
	return hour, minute, nil
}

// ParseDate parses a YYYY-MM-DD business date at local midnight.
func (c Calendar) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), c.loc())
	if err != nil {
		return time.Time{}, domain.TimeFormatError{Input: s}
	}
	return d, nil
}

// ResolveBusinessInstant converts a business date plus wall-clock "HH:MM" into an instant.
func (c Calendar) ResolveBusinessInstant(businessDate time.Time, hhmm string) (time.Time, error) {
	hour, minute, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := businessDate.Date()
	if hour < c.RolloverHour {
		d++
	}
	return time.Date(y, m, d, hour, minute, 0, 0, c.loc()), nil
}

// ResolveBusinessEnd resolves the end bound of an order. An end of exactly the rollover
// hour closes the business day, so "02:00"-"04:00" stays inside one day.
func (c Calendar) ResolveBusinessEnd(businessDate time.Time, hhmm string) (time.Time, error) {
	hour, minute, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	if hour == c.RolloverHour && minute == 0 {
		y, m, d := businessDate.Date()
		return time.Date(y, m, d+1, hour, 0, 0, 0, c.loc()), nil
	}
	return c.ResolveBusinessInstant(businessDate, hhmm)
}

// BusinessDateOf returns the business date (local midnight) an instant belongs to.
func (c Calendar) BusinessDateOf(t time.Time) time.Time {
	local := t.In(c.loc())
	y, m, d := local.Date()
	if local.Hour() < c.RolloverHour {
		d--
	}
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc())
}

// MonthKey returns the YYYY-MM key of the business month an instant belongs to.
func (c Calendar) MonthKey(t time.Time) string {
	return c.BusinessDateOf(t).Format("2006-01")
}

// FormatDate renders a business date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// ParseMonthKey validates a YYYY-MM key.
func ParseMonthKey(s string) (string, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return "", domain.TimeFormatError{Input: s}
	}
	return t.Format("2006-01"), nil
}

// Window is a half-open range [From, To) of whole business days.
type Window struct {
	View     View      `json:"view"`
	Date     string    `json:"date"`
	From     time.Time `json:"from" format:"date-time"`
	To       time.Time `json:"to" format:"date-time"`
	DayCount int       `json:"day_count"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Window resolves the business days covered by a view around date.
// Weeks are ISO weeks starting on Monday; months are calendar months.
func (c Calendar) Window(view View, date time.Time) (Window, error) {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, c.loc())
	var first time.Time
	var days int
	switch view {
	case ViewDay, "":
		view = ViewDay
		first, days = day, 1
	case ViewWeek:
		offset := (int(day.Weekday()) + 6) % 7
		first, days = day.AddDate(0, 0, -offset), 7
	case ViewMonth:
		first = time.Date(y, m, 1, 0, 0, 0, 0, c.loc())
		days = first.AddDate(0, 1, -1).Day()
	default:
		return Window{}, fmt.Errorf("%w %q", domain.ErrInvalidView, view)
	}
	last := first.AddDate(0, 0, days)
	return Window{
		View:     view,
		Date:     FormatDate(day),
		From:     c.rollover(first),
		To:       c.rollover(last),
		DayCount: days,
	}, nil
}

func (c Calendar) rollover(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.RolloverHour, 0, 0, 0, c.loc())
}
