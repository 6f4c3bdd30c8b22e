package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dispatchline/internal/app"
	"dispatchline/internal/bizday"
	"dispatchline/internal/engine"
	"dispatchline/internal/masterdata"
	"dispatchline/internal/server"
)

func timelineCmd() *cobra.Command {
	var view, date, workerID string
	var includeCancelled bool
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Orders of a business day, week or month with live status",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := bizday.ParseView(view)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				tl, err := ws.Engine.GetTimeline(ctx, v, date, engine.TimelineOptions{WorkerID: workerID, IncludeCancelled: includeCancelled})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tl)
				}
				fmt.Printf("%s view from %s (%d days)\n", tl.Window.View, tl.Window.Date, tl.Window.DayCount)
				tw := newTable("Date", "Worker", "Lane", "Start", "End", "Site", "Status", "Warning", "ID")
				for _, o := range tl.Orders {
					lane := ""
					if layout, ok := tl.LanesByWorker[o.WorkerID]; ok {
						lane = fmt.Sprint(layout.Lanes[o.ID])
					}
					st := tl.StatusByOrder[o.ID]
					start, end := span(ws, o)
					tw.AppendRow(row(businessDate(ws, o.Start), named(tl.WorkerNames, o.WorkerID), lane, start, end,
						named(tl.SiteNames, o.SiteID), st.Status, warningLabel(st.WarningLevel), o.ID))
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "day", "day|week|month")
	cmd.Flags().StringVar(&date, "date", "", "business date (defaults to today's business date)")
	cmd.Flags().StringVar(&workerID, "worker", "", "worker id")
	cmd.Flags().BoolVar(&includeCancelled, "include-cancelled", false, "include cancelled orders")
	return cmd
}

func named(names map[string]string, id string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}

func capacityCmd() *cobra.Command {
	var view, date string
	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Planned orders against the active roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := bizday.ParseView(view)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				rep, err := ws.Engine.GetCapacity(ctx, v, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				c := rep.Capacity
				tw := newTable("Window", "Used", "Workers", "Days", "Safe", "Standard", "Max", "Utilization", "Level")
				tw.AppendRow(row(fmt.Sprintf("%s %s", rep.Window.View, rep.Window.Date), c.Used, c.Workers, c.Days,
					c.SafeCap, c.StandardCap, c.MaxCap, fmt.Sprintf("%.0f%%", c.Utilization*100), c.Level))
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "day", "day|week|month")
	cmd.Flags().StringVar(&date, "date", "", "business date (defaults to today's business date)")
	return cmd
}

func contractCmd() *cobra.Command {
	contract := &cobra.Command{Use: "contract", Short: "Contracts and monthly quotas"}

	var id, siteID, kind string
	var quota int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				c, err := ws.Engine.CreateContract(ctx, engine.ContractInput{
					ID: id, SiteID: siteID, Kind: kind, MonthlyQuota: quota, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("Created contract %s (%s, %d per month)\n", c.ID, c.Kind, c.MonthlyQuota)
				return nil
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "contract id")
	create.Flags().StringVar(&siteID, "site", "", "site id")
	create.Flags().StringVar(&kind, "kind", "recurring", "recurring|one_off")
	create.Flags().IntVar(&quota, "monthly-quota", 0, "orders per business month (0 is unlimited)")
	_ = create.MarkFlagRequired("id")
	_ = create.MarkFlagRequired("site")

	list := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListContracts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Site", "Kind", "Monthly quota", "Created")
				for _, c := range items {
					tw.AppendRow(row(c.ID, c.SiteID, c.Kind, c.MonthlyQuota, c.CreatedAt))
				}
				tw.Render()
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <contract-id>",
		Short: "Show a contract with consumption per month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				c, err := ws.Engine.GetContract(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("%s: site %s, %s, quota %d\n", c.ID, c.SiteID, c.Kind, c.MonthlyQuota)
				months := make([]string, 0, len(c.ConsumedByMonth))
				for m := range c.ConsumedByMonth {
					months = append(months, m)
				}
				sort.Strings(months)
				tw := newTable("Month", "Consumed")
				for _, m := range months {
					tw.AppendRow(row(m, c.ConsumedByMonth[m]))
				}
				tw.Render()
				return nil
			})
		},
	}

	var month string
	quotaShow := &cobra.Command{
		Use:   "quota <contract-id>",
		Short: "Quota usage for a business month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				q, err := ws.Engine.GetQuota(ctx, args[0], month)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(q)
				}
				remaining := "unlimited"
				if q.Remaining != nil {
					remaining = fmt.Sprint(*q.Remaining)
				}
				fmt.Printf("%s %s: used %d of %d, remaining %s\n", q.ContractID, q.Month, q.Used, q.Quota, remaining)
				return nil
			})
		},
	}
	quotaShow.Flags().StringVar(&month, "month", "", "YYYY-MM (defaults to the current business month)")

	contract.AddCommand(create, list, show, quotaShow)
	return contract
}

func quotaCmd() *cobra.Command {
	quota := &cobra.Command{Use: "quota", Short: "Quota ledger maintenance"}
	var month string
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Record consumption for done orders missing from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				added, err := ws.Engine.ReconcileQuota(ctx, month, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"month": month, "added": added})
				}
				fmt.Printf("Reconciled %s: %d consumption(s) added\n", month, added)
				return nil
			})
		},
	}
	reconcile.Flags().StringVar(&month, "month", "", "YYYY-MM")
	_ = reconcile.MarkFlagRequired("month")
	quota.AddCommand(reconcile)
	return quota
}

func masterdataCmd() *cobra.Command {
	md := &cobra.Command{Use: "masterdata", Short: "Workers and sites"}
	var file string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Upsert workers and sites from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			parsed, err := masterdata.ParseImport(data)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.ImportMasterData(ctx, parsed, actorID()); err != nil {
					return err
				}
				fmt.Printf("Imported %d workers and %d sites\n", len(parsed.Workers), len(parsed.Sites))
				return nil
			})
		},
	}
	imp.Flags().StringVar(&file, "file", "", "YAML file with workers and sites")
	_ = imp.MarkFlagRequired("file")

	var activeOnly bool
	workers := &cobra.Command{
		Use:   "workers",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListWorkers(ctx, activeOnly)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Active")
				for _, w := range items {
					tw.AppendRow(row(w.ID, w.DisplayName, w.Active))
				}
				tw.Render()
				return nil
			})
		},
	}
	workers.Flags().BoolVar(&activeOnly, "active-only", false, "only active workers")

	sites := &cobra.Command{
		Use:   "sites",
		Short: "List sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListSites(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name")
				for _, s := range items {
					tw.AppendRow(row(s.ID, s.DisplayName))
				}
				tw.Render()
				return nil
			})
		},
	}
	md.AddCommand(imp, workers, sites)
	return md
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("DISPATCHLINE_JWT_SECRET is required for bearer auth")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
				handler, err := server.New(server.Config{
					Engine:   ws.Engine,
					BasePath: basePath,
					Logger:   ws.Logger,
					Auth: server.AuthConfig{
						JWTSecret:              secret,
						AllowLegacyActorHeader: legacyHeader,
						DevLogin:               devLogin,
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				ws.Logger.Info("serving dispatch api",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.Bool("dev_login", devLogin))
				fmt.Printf("Serving Dispatchline API on http://%s%s (OpenAPI at %s/openapi.json, docs at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&legacyHeader, "allow-legacy-actor-header", false, "accept X-Actor-Id without a token")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	return cmd
}
