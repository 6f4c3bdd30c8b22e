package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dispatchline/internal/app"
	"dispatchline/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "dl",
	Short: "Dispatchline CLI",
	Long: `Dispatchline schedules time-boxed work orders for night-shift crews.
Core concepts:
- Business day: runs from the afternoon through 04:00 the next morning; "01:00" on 2024-05-01 means 2024-05-02 01:00.
- Work order: a worker at a site for [start, end). A worker never holds two overlapping planned orders.
- Version: every write names the version it read; a mismatch is rejected as a stale write.
- Status: live progress events merged into each order, escalating when an order goes quiet.
- Capacity: planned orders against the active roster (2.0 safe, 2.5 standard, 3.0 max per worker-day).
- Contracts: recurring agreements whose monthly quota is consumed when an order reaches done.
- Event log: every change, view with 'dl log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DISPATCHLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to <workspace>/dispatch.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in the audit log")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(capacityCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(quotaCmd())
	rootCmd.AddCommand(masterdataCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var operator string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create dispatch.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.Init(cmd.Context(), viper.GetString("workspace"), operator, force)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing dispatch.yml")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return printJSON(ws.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate dispatch.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := config.FromFile(path); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	})
	return cfg
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every order write, status ingest, quota consumption and import, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				events, err := ws.Engine.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor", "Payload")
				for _, ev := range events {
					tw.AppendRow(row(ev.ID, ev.TS, ev.Type, ev.EntityKind+"/"+ev.EntityID, ev.ActorID, ev.Payload))
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func workspaceOptions() app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		LogLevel:   viper.GetString("log-level"),
	}
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ws, err := app.Open(ctx, workspaceOptions())
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
