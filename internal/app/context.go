package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"dispatchline/internal/config"
	"dispatchline/internal/db"
	"dispatchline/internal/engine"
	"dispatchline/internal/logging"
	"dispatchline/internal/migrate"
)

// Options select the workspace and config a command runs against.
type Options struct {
	Workspace  string
	ConfigPath string
	OperatorID string
	LogLevel   string
}

// Workspace is an opened workspace: migrated database, config, logger and engine.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Logger *zap.Logger
	Engine engine.Engine
}

// Open prepares the workspace directory, loads dispatch.yml (or defaults when absent)
// and migrates the database.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e, err := engine.New(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Workspace{
		Dir:    opts.Workspace,
		DB:     conn,
		Config: cfg,
		Logger: logger,
		Engine: e.WithLogger(logger),
	}, nil
}

func (w *Workspace) Close() error {
	_ = w.Logger.Sync()
	return w.DB.Close()
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		operator := opts.OperatorID
		if operator == "" {
			operator = "local"
		}
		cfg = config.Default(operator)
	}
	return cfg, nil
}

// Init writes a default dispatch.yml unless one exists (or force is set) and creates the database.
func Init(ctx context.Context, workspace, operatorID string, force bool) (string, error) {
	if operatorID == "" {
		return "", fmt.Errorf("operator id is required")
	}
	path := config.Path(workspace)
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault(operatorID)), 0o644); err != nil {
		return "", err
	}
	ws, err := Open(ctx, Options{Workspace: workspace})
	if err != nil {
		return "", err
	}
	return path, ws.Close()
}
