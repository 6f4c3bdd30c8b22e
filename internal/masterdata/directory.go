// Package masterdata resolves worker and site ids to display names.
//
// Names are cosmetic: callers degrade to Placeholder when a lookup fails instead of
// failing the scheduling operation that asked for them.
package masterdata

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dispatchline/internal/domain"
	"dispatchline/internal/repo"
)

// Placeholder is shown when a name cannot be resolved.
const Placeholder = "(unknown)"

// Directory looks up display names in the master data service.
type Directory interface {
	WorkerName(ctx context.Context, id string) (string, error)
	SiteName(ctx context.Context, id string) (string, error)
}

// SQLDirectory reads the locally imported reference tables.
type SQLDirectory struct {
	Repo repo.Repo
}

func (d SQLDirectory) WorkerName(ctx context.Context, id string) (string, error) {
	w, err := d.Repo.GetWorker(ctx, id)
	if err != nil {
		return "", err
	}
	return w.DisplayName, nil
}

func (d SQLDirectory) SiteName(ctx context.Context, id string) (string, error) {
	s, err := d.Repo.GetSite(ctx, id)
	if err != nil {
		return "", err
	}
	return s.DisplayName, nil
}

// Names resolves many ids at once, substituting Placeholder on any failure. A positive
// Timeout is one deadline for the whole batch: ids still pending when it passes get
// Placeholder without a lookup.
type Names struct {
	Directory Directory
	Logger    *zap.Logger
	Timeout   time.Duration
}

func (n Names) logger() *zap.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return zap.NewNop()
}

func (n Names) Workers(ctx context.Context, ids []string) map[string]string {
	return n.resolve(ctx, "worker", ids, func(ctx context.Context, id string) (string, error) {
		return n.Directory.WorkerName(ctx, id)
	})
}

func (n Names) Sites(ctx context.Context, ids []string) map[string]string {
	return n.resolve(ctx, "site", ids, func(ctx context.Context, id string) (string, error) {
		return n.Directory.SiteName(ctx, id)
	})
}

func (n Names) resolve(ctx context.Context, kind string, ids []string, lookup func(context.Context, string) (string, error)) map[string]string {
	out := make(map[string]string, len(ids))
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	skipped := 0
	for _, id := range ids {
		if _, seen := out[id]; seen || id == "" {
			continue
		}
		if n.Directory == nil {
			out[id] = Placeholder
			continue
		}
		if ctx.Err() != nil {
			out[id] = Placeholder
			skipped++
			continue
		}
		name, err := lookup(ctx, id)
		if err != nil || name == "" {
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				n.logger().Warn("master data lookup failed", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
			}
			name = Placeholder
		}
		out[id] = name
	}
	if skipped > 0 {
		n.logger().Warn("master data lookups skipped", zap.String("kind", kind), zap.Int("count", skipped), zap.Error(ctx.Err()))
	}
	return out
}
