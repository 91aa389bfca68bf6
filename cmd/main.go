package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/gesture/internal/config"
	"github.com/okian/gesture/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries state shared by every command.
type cli struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:          "gesture",
		Short:        "Hand-gesture inference service",
		Long:         "Serves rock/paper/scissors predictions from stored ONNX models and manages their records.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.serve(cmd.Context())
			},
		},
		seedCmd(c),
		modelsCmd(c),
		tokenCmd(c),
	)
	return cmd
}

// setup loads configuration and initializes logging.
func (c *cli) setup(ctx context.Context) error {
	if err := logger.Init(); err != nil {
		return err
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Get().Error(ctx, "failed to load config", logger.Error(err))
		return err
	}
	if cfg.LogJSON {
		if err := logger.InitWith(logger.Options{JSON: true}); err != nil {
			return err
		}
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}
