package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/clipvote/internal/app"
	"github.com/abdul-hamid-achik/clipvote/internal/apperror"
	"github.com/abdul-hamid-achik/clipvote/internal/cli/output"
	"github.com/abdul-hamid-achik/clipvote/internal/config"
	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/ingest"
	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/queue"
	"github.com/abdul-hamid-achik/clipvote/internal/storage"
	"github.com/abdul-hamid-achik/clipvote/internal/version"
)

// env holds the connections a command works against.
type env struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	store   db.Store
	files   storage.Port
	broker  queue.Broker
	service *ingest.Service
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

type opener func(ctx context.Context) (*env, error)

type cli struct {
	jsonOutput bool
	quietMode  bool
	printer    *output.Printer
	open       opener
	env        *env
	root       *cobra.Command
}

// Execute runs clipctl against the environment configuration.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newCLI(openFromConfig)
	defer c.close()

	err := c.root.ExecuteContext(ctx)
	if err != nil && c.jsonOutput {
		_ = output.New(output.WithOutput(os.Stderr)).JSON(errorBody(err))
	}
	return detailed(err)
}

// errorBody is the --json rendering of a failed command.
func errorBody(err error) map[string]interface{} {
	return map[string]interface{}{
		"code":    apperror.Code(err),
		"message": apperror.SafeMessage(err),
		"status":  apperror.StatusCode(err),
		"detail":  detailed(err).Error(),
	}
}

// detailed keeps the cause of an ingestion error visible to the operator.
func detailed(err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Internal != nil {
		return fmt.Errorf("%s: %w", appErr.Message, appErr.Internal)
	}
	return err
}

func newRootCmd(open opener) *cobra.Command {
	return newCLI(open).root
}

func newCLI(open opener) *cli {
	c := &cli{open: open}

	rootCmd := &cobra.Command{
		Use:   "clipctl",
		Short: "clipvote operator CLI - ingest and manage video processing jobs",
		Long: `clipctl is the operator interface for the clipvote video pipeline.

It talks to the same database, storage and queue as the workers,
configured through the usual environment variables.

Get started:
  clipctl migrate                          # Create the videos table
  clipctl assets                           # Render the default watermark and title card
  clipctl ingest clip.mp4 --owner 1        # Upload and dispatch a video
  clipctl status 42 --watch                # Follow it to done
  clipctl list --status failed             # Find videos to resubmit`,
		Version: version.Full(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.printer = output.New(
				output.WithJSON(c.jsonOutput),
				output.WithQuiet(c.quietMode),
				output.WithOutput(cmd.OutOrStdout()),
				output.WithErrOutput(cmd.ErrOrStderr()),
			)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "Output as JSON (for scripting)")
	rootCmd.PersistentFlags().BoolVar(&c.quietMode, "quiet", false, "Suppress non-error output")
	rootCmd.SetVersionTemplate("clipctl version {{.Version}}\n")

	rootCmd.AddCommand(c.migrateCmd())
	rootCmd.AddCommand(c.ingestCmd())
	rootCmd.AddCommand(c.enqueueCmd())
	rootCmd.AddCommand(c.statusCmd())
	rootCmd.AddCommand(c.listCmd())
	rootCmd.AddCommand(c.resubmitCmd())
	rootCmd.AddCommand(c.deleteCmd())
	rootCmd.AddCommand(c.assetsCmd())

	c.root = rootCmd
	return c
}

// connect opens the environment once per invocation.
func (c *cli) connect(ctx context.Context) (*env, error) {
	if c.env != nil {
		return c.env, nil
	}
	e, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	c.env = e
	return e, nil
}

func (c *cli) close() {
	if c.env != nil {
		c.env.Close()
		c.env = nil
	}
}

func openFromConfig(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel)
	ctx = logger.WithLogger(ctx, logger.Default())

	e := &env{cfg: cfg}

	pool, err := app.OpenPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.pool = pool
	e.closers = append(e.closers, pool.Close)
	e.store = db.NewStore(pool)

	files, err := app.NewStorage(ctx, cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.files = files

	broker, err := app.NewBroker(ctx, cfg, fmt.Sprintf("clipctl-%d", os.Getpid()))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.broker = broker
	e.closers = append(e.closers, func() { _ = broker.Close() })

	e.service = ingest.NewService(e.store, e.files, e.broker, cfg.MaxUploadSize)
	return e, nil
}
