package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maax3v3/colormix"
	"github.com/maax3v3/colormix/internal/cli"
	"github.com/maax3v3/colormix/internal/config"
	"github.com/maax3v3/colormix/internal/pipeline"
	"github.com/maax3v3/colormix/internal/server"
	"github.com/maax3v3/colormix/internal/store"
)

func main() {
	cmd, err := cli.Parse(os.Args[1:])
	if errors.Is(err, cli.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// analyze prints its report on stdout
	logOut := os.Stdout
	if cmd.Name == cli.CommandAnalyze {
		logOut = os.Stderr
	}
	logger := NewLogger(logOut, cmd.Config.Level())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd cli.Command, logger *slog.Logger) error {
	cfg := cmd.Config
	if cmd.WriteConfig != "" {
		if err := cfg.Save(cmd.WriteConfig); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		logger.Info("config written", "path", cmd.WriteConfig)
		return nil
	}
	analyzer, err := colormix.NewAnalyzer(ctx, options(cfg, logger))
	if err != nil {
		return err
	}
	kv, err := colormix.OpenStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening data dir: %w", err)
	}
	history := store.NewHistory(kv)

	switch cmd.Name {
	case cli.CommandServe:
		srv := server.New(server.Options{
			Analyzer:       analyzer,
			History:        history,
			Calibrations:   store.NewCalibrations(kv),
			ContainerWidth: cfg.ContainerWidth,
			Logger:         logger,
		})
		logger.Info("starting server", "addr", cfg.Addr, "model", cfg.Model, "data_dir", cfg.DataDir)
		return srv.Serve(ctx, cfg.Addr)
	case cli.CommandAnalyze:
		_, err := pipeline.Run(ctx, cmd.Analyze, cfg.ContainerWidth, pipeline.Deps{
			Analyzer: analyzer,
			History:  history,
			Logger:   logger,
		})
		return err
	}
	return fmt.Errorf("unknown command %q", cmd.Name)
}

func options(cfg *config.Config, logger *slog.Logger) colormix.Options {
	return colormix.Options{
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		Language:       cfg.Language,
		ContainerWidth: cfg.ContainerWidth,
		Logger:         logger,
	}
}
