package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/farmgate-io/farmgate/internal/config"
	"github.com/farmgate-io/farmgate/pkg/errorbank"
)

// Runner produces database dumps on a fixed interval and prunes old ones.
type Runner struct {
	cfg    config.Backup
	db     config.Database
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a backup runner from configuration.
func New(cfg config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:    cfg.Backup,
		db:     cfg.Database,
		logger: logger,
	}
}

// Module schedules the backup runner on the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, r *Runner) {
		lc.Append(fx.Hook{
			OnStart: r.start,
			OnStop:  r.stop,
		})
	}),
)

func (r *Runner) start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.logger.Info("backup runner disabled")

		return nil
	}
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return errorbank.IO("failed to create backup directory", errorbank.WithCause(err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(runCtx)

	r.logger.Info("backup runner started", zap.Duration("interval", r.cfg.Interval))

	return nil
}

func (r *Runner) stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		r.logger.Info("backup runner stopped")

		return nil
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if path, err := r.Run(ctx); err != nil {
				r.logger.Error("scheduled backup failed", zap.Error(err))
			} else {
				r.logger.Info("scheduled backup completed", zap.String("path", path))
			}
		}
	}
}

// Run executes one backup. Only one run is active at a time; an overlapping
// call fails fast instead of queueing.
func (r *Runner) Run(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", errorbank.Conflict("a backup is already in progress")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return "", errorbank.IO("failed to create backup directory", errorbank.WithCause(err))
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	path := filepath.Join(r.cfg.Dir, fmt.Sprintf("farmgate-%s.sql", stamp))

	cmd, err := r.dumpCommand(ctx, path)
	if err != nil {
		return "", err
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(path)
		return "", errorbank.IO("database dump failed",
			errorbank.WithCause(err),
			errorbank.WithDetail("output", strings.TrimSpace(string(out))),
		)
	}

	if err := r.prune(); err != nil {
		r.logger.Warn("backup retention pruning failed", zap.Error(err))
	}

	return path, nil
}

func (r *Runner) dumpCommand(ctx context.Context, path string) (*exec.Cmd, error) {
	switch r.db.Driver {
	case "postgres":
		return exec.CommandContext(ctx, "pg_dump", "--dbname", r.db.WriterDSN, "--file", path), nil
	case "mysql":
		return exec.CommandContext(ctx, "mysqldump", "--result-file", path), nil
	default:
		return nil, errorbank.BadRequest(fmt.Sprintf("backups unsupported for driver %s", r.db.Driver))
	}
}

// prune keeps only the newest Retention dump files.
func (r *Runner) prune() error {
	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		return err
	}

	var dumps []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "farmgate-") && strings.HasSuffix(e.Name(), ".sql") {
			dumps = append(dumps, e.Name())
		}
	}
	if len(dumps) <= r.cfg.Retention {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(dumps)
	for _, name := range dumps[:len(dumps)-r.cfg.Retention] {
		if err := os.Remove(filepath.Join(r.cfg.Dir, name)); err != nil {
			return err
		}
	}
	return nil
}
