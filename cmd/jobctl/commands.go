package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"fetchd/internal/adapter/repo"
	"fetchd/internal/domain"
	"fetchd/internal/infra"
	"fetchd/internal/jobs"
	"fetchd/internal/storage"
)

// appContext is what every command needs: config, a quiet logger and the
// configured store.
type appContext struct {
	cfg    *infra.Config
	logger zerolog.Logger
	store  domain.JobStore
	close  func()
}

func newAppContext(ctx context.Context, envFile string) (*appContext, error) {
	cfg, logger, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	store, closeFn, err := repo.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &appContext{cfg: cfg, logger: logger, store: store, close: closeFn}, nil
}

func (ac *appContext) Close() {
	if ac.close != nil {
		ac.close()
	}
}

func loadConfig(envFile string) (*infra.Config, zerolog.Logger, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, zerolog.Nop(), fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	// command output goes to stdout, so logs stay quiet unless something breaks
	logger := infra.NewLogger(cfg.AppEnv, "jobctl").Output(os.Stderr).Level(zerolog.WarnLevel)
	return cfg, logger, nil
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func listAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	tw := tabwriter.NewWriter(output(cmd), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tCREATED\tCONSUMED")
	for _, id := range ac.store.ListIDs(ctx) {
		job, ok := ac.store.Get(ctx, id)
		if !ok {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\n", id, "unreadable")
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%t\n",
			job.ID, job.Status, job.Progress, job.CreatedAt.Format(time.RFC3339), job.Consumed())
	}
	return tw.Flush()
}

func showAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	id := cmd.String("id")
	job, ok := ac.store.Get(ctx, id)
	if !ok {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	enc := json.NewEncoder(output(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

func sweepAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	workspace, err := storage.NewWorkspace(ac.cfg.DownloadsDir)
	if err != nil {
		return err
	}
	sweeper := jobs.NewSweeper(ac.store, workspace, jobs.SweeperConfig{Expiry: ac.cfg.JobExpiry}, ac.logger)
	report := sweeper.SweepOnce(ctx)
	if err := json.NewEncoder(output(cmd)).Encode(report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d job(s) could not be reclaimed", report.Failed)
	}
	return nil
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	if cfg.StoreBackend != infra.StoreBackendPostgres {
		return fmt.Errorf("migrate needs JOB_STORE=%s, got %q", infra.StoreBackendPostgres, cfg.StoreBackend)
	}
	pg, closeFn, err := repo.OpenPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintln(output(cmd), "schema ready")
	return nil
}
