package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"dispatchline/internal/app"
	"dispatchline/internal/bizday"
	"dispatchline/internal/domain"
	"dispatchline/internal/schedule"
)

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func row(cells ...any) table.Row {
	return table.Row(cells)
}

func location(ws *app.Workspace) *time.Location {
	if loc := ws.Engine.Calendar.Location; loc != nil {
		return loc
	}
	return time.Local
}

// clock renders an instant as operator-local HH:MM, suffixed with +1 when it
// falls on the calendar day after the business date bd.
func clock(ws *app.Workspace, t, bd time.Time) string {
	local := t.In(location(ws))
	y, m, d := local.Date()
	by, bm, bdd := bd.Date()
	s := local.Format("15:04")
	if y != by || m != bm || d != bdd {
		s += " +1"
	}
	return s
}

// span renders an order's start and end against the business date it starts in.
func span(ws *app.Workspace, o domain.WorkOrder) (string, string) {
	bd := ws.Engine.Calendar.BusinessDateOf(o.Start)
	return clock(ws, o.Start, bd), clock(ws, o.End, bd)
}

func businessDate(ws *app.Workspace, t time.Time) string {
	return bizday.FormatDate(ws.Engine.Calendar.BusinessDateOf(t))
}

func warningLabel(level int) string {
	switch level {
	case schedule.WarningWarn:
		return "warn"
	case schedule.WarningAlert:
		return "alert"
	default:
		return "-"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printOrder(ws *app.Workspace, o domain.WorkOrder) error {
	if viper.GetBool("json") {
		return printJSON(o)
	}
	start, end := span(ws, o)
	fmt.Printf("%s v%d %s: %s at %s on %s, %s to %s\n",
		o.ID, o.Version, o.LifecycleState, o.WorkerID, o.SiteID,
		businessDate(ws, o.Start), start, end)
	return nil
}

func printOrders(ws *app.Workspace, orders []domain.WorkOrder) {
	tw := newTable("ID", "Date", "Start", "End", "Worker", "Site", "Contract", "State", "Version")
	for _, o := range orders {
		start, end := span(ws, o)
		tw.AppendRow(row(o.ID, businessDate(ws, o.Start), start, end,
			o.WorkerID, o.SiteID, deref(o.ContractID), o.LifecycleState, o.Version))
	}
	tw.Render()
}
