package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dispatchline/internal/app"
	"dispatchline/internal/domain"
	"dispatchline/internal/engine"
)

type orderFlags struct {
	contractID string
	siteID     string
	workerID   string
	date       string
	start      string
	end        string
	workType   string
	memo       string
}

func (f *orderFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.contractID, "contract", "", "contract id")
	cmd.Flags().StringVar(&f.siteID, "site", "", "site id")
	cmd.Flags().StringVar(&f.workerID, "worker", "", "worker id")
	cmd.Flags().StringVar(&f.date, "date", "", "business date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.start, "start", "", "start time HH:MM within the business day")
	cmd.Flags().StringVar(&f.end, "end", "", "end time HH:MM within the business day")
	cmd.Flags().StringVar(&f.workType, "work-type", "", "work type")
	cmd.Flags().StringVar(&f.memo, "memo", "", "memo")
}

// request builds a partial save; only flags the user set are carried.
func (f *orderFlags) request(cmd *cobra.Command) (engine.SaveOrderRequest, error) {
	req := engine.SaveOrderRequest{ActorID: actorID()}
	changed := cmd.Flags().Changed
	if changed("contract") {
		req.ContractID = &f.contractID
	}
	if changed("site") {
		req.SiteID = &f.siteID
	}
	if changed("worker") {
		req.WorkerID = &f.workerID
	}
	if changed("work-type") {
		req.WorkType = &f.workType
	}
	if changed("memo") {
		req.Memo = &f.memo
	}
	anyTime := changed("date") || changed("start") || changed("end")
	if anyTime {
		if f.date == "" || f.start == "" || f.end == "" {
			return req, errors.New("--date, --start and --end must be given together")
		}
		req.Times = &engine.TimeSpec{BusinessDate: f.date, Start: f.start, End: f.end}
	}
	return req, nil
}

func orderCmd() *cobra.Command {
	order := &cobra.Command{
		Use:   "order",
		Short: "Work orders",
		Long:  "Create, edit and cancel work orders. Writes are rejected when they overlap another planned order of the same worker.",
	}
	order.AddCommand(orderCreateCmd())
	order.AddCommand(orderUpdateCmd())
	order.AddCommand(orderCheckCmd())
	order.AddCommand(orderCancelCmd())
	order.AddCommand(orderShowCmd())
	order.AddCommand(orderListCmd())
	order.AddCommand(orderHistoryCmd())
	return order
}

func orderCreateCmd() *cobra.Command {
	var f orderFlags
	var id string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work order",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			if req.Times == nil {
				return errors.New("--date, --start and --end are required")
			}
			req.ID = id
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				o, err := ws.Engine.TrySaveOrder(ctx, req)
				if err != nil {
					return err
				}
				return printOrder(ws, o)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&id, "id", "", "order id (generated when empty)")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func orderUpdateCmd() *cobra.Command {
	var f orderFlags
	var version int64
	cmd := &cobra.Command{
		Use:   "update <order-id>",
		Short: "Update a work order at a known version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			req.ID = args[0]
			req.ExpectedVersion = version
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				o, err := ws.Engine.TrySaveOrder(ctx, req)
				if err != nil {
					return err
				}
				return printOrder(ws, o)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().Int64Var(&version, "version", 0, "version the change is based on")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func orderCheckCmd() *cobra.Command {
	var f orderFlags
	var id string
	var version int64
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Dry-run a create or update without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			req.ID = id
			req.ExpectedVersion = version
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				candidate, err := ws.Engine.CheckOrder(ctx, req)
				var ce domain.ConflictError
				switch {
				case err == nil:
					if viper.GetBool("json") {
						return printJSON(map[string]any{"ok": true, "candidate": candidate})
					}
					start, end := span(ws, candidate)
					fmt.Printf("OK: %s at %s on %s, %s to %s\n", candidate.WorkerID, candidate.SiteID, businessDate(ws, candidate.Start), start, end)
					return nil
				case errors.As(err, &ce):
					if viper.GetBool("json") {
						return printJSON(map[string]any{"ok": false, "candidate": candidate, "conflicting_order_ids": ce.Conflicting})
					}
					fmt.Printf("CONFLICT: worker %s already holds %v\n", ce.WorkerID, ce.Conflicting)
					return nil
				default:
					return err
				}
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&id, "id", "", "existing order id when checking an update")
	cmd.Flags().Int64Var(&version, "version", 0, "version the change is based on (0 checks a create)")
	return cmd
}

func orderCancelCmd() *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				o, err := ws.Engine.CancelOrder(ctx, args[0], version, actorID())
				if err != nil {
					return err
				}
				return printOrder(ws, o)
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "version the cancellation is based on")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func orderShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show a work order with its derived status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				view, err := ws.Engine.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				o := view.Order
				start, end := span(ws, o)
				tw := newTable("Field", "Value")
				tw.AppendRow(row("ID", o.ID))
				tw.AppendRow(row("Worker", o.WorkerID))
				tw.AppendRow(row("Site", o.SiteID))
				tw.AppendRow(row("Contract", deref(o.ContractID)))
				tw.AppendRow(row("Business date", businessDate(ws, o.Start)))
				tw.AppendRow(row("Start", start))
				tw.AppendRow(row("End", end))
				tw.AppendRow(row("Lifecycle", o.LifecycleState))
				tw.AppendRow(row("Status", view.Status.Status))
				tw.AppendRow(row("Warning", warningLabel(view.Status.WarningLevel)))
				tw.AppendRow(row("Version", o.Version))
				tw.AppendRow(row("Memo", o.Memo))
				tw.Render()
				return nil
			})
		},
	}
}

func orderListCmd() *cobra.Command {
	var from, to, workerID, contractID string
	var includeCancelled bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders starting within a range of business dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				cal := ws.Engine.Calendar
				fromDate, err := cal.ParseDate(from)
				if err != nil {
					return err
				}
				toDate := fromDate
				if to != "" {
					if toDate, err = cal.ParseDate(to); err != nil {
						return err
					}
				}
				fromWin, err := cal.Window("day", fromDate)
				if err != nil {
					return err
				}
				toWin, err := cal.Window("day", toDate)
				if err != nil {
					return err
				}
				orders, err := ws.Engine.ListOrders(ctx, engine.OrderQuery{
					From:             fromWin.From,
					To:               toWin.To,
					WorkerID:         workerID,
					ContractID:       contractID,
					IncludeCancelled: includeCancelled,
					Limit:            limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				printOrders(ws, orders)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first business date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last business date, inclusive (defaults to --from)")
	cmd.Flags().StringVar(&workerID, "worker", "", "worker id")
	cmd.Flags().StringVar(&contractID, "contract", "", "contract id")
	cmd.Flags().BoolVar(&includeCancelled, "include-cancelled", false, "include cancelled orders")
	cmd.Flags().IntVar(&limit, "limit", 0, "max orders")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func orderHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <order-id>",
		Short: "Status events received for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.StatusHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Updated", "Progress", "Reason")
				for _, ev := range items {
					tw.AppendRow(row(ev.ID, ev.UpdatedAt.In(location(ws)).Format(time.DateTime), ev.ProgressState, ev.ReasonCode))
				}
				tw.Render()
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	status := &cobra.Command{Use: "status", Short: "Live progress events"}
	var progress, reason, at string
	ingest := &cobra.Command{
		Use:   "ingest <order-id>",
		Short: "Record a progress event for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				updated := time.Now()
				if at != "" {
					t, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return fmt.Errorf("--at: %w", err)
					}
					updated = t
				}
				res, err := ws.Engine.IngestStatus(ctx, domain.StatusEvent{
					OrderID:       args[0],
					ProgressState: progress,
					UpdatedAt:     updated,
					ReasonCode:    reason,
				}, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Recorded event %d: %s is %s (%s)\n", res.EventID, args[0], res.Status.Status, warningLabel(res.Status.WarningLevel))
				if res.QuotaConsumed {
					fmt.Printf("Quota consumed for %s\n", res.MonthKey)
				}
				return nil
			})
		},
	}
	ingest.Flags().StringVar(&progress, "progress", "", "not_started|in_progress|confirming|coordinating|done")
	ingest.Flags().StringVar(&reason, "reason", "", "reason code")
	ingest.Flags().StringVar(&at, "at", "", "event time (RFC3339, defaults to now)")
	_ = ingest.MarkFlagRequired("progress")
	status.AddCommand(ingest)
	return status
}
