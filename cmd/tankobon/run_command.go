package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tankobon/internal/bot"
	"tankobon/internal/daemon"
	"tankobon/internal/logging"
	"tankobon/internal/notifications"
	"tankobon/internal/queue"
	"tankobon/internal/sources"
	"tankobon/internal/telegram"
	"tankobon/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireBotToken(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("tankobon-%s.events", runID))
	logger, err := logging.NewDaemonLogger(cfg, eventsPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.PruneRunLogs(logger, logging.RunLogRetention{
		Dir:     cfg.Paths.LogDir,
		Days:    cfg.Logging.RetentionDays,
		Current: eventsPath,
	})

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	client := telegram.NewFromConfig(cfg, logger)
	registry := sources.NewRegistryFromConfig(cfg, logger)
	notifier := notifications.NewServiceWithLogger(cfg, logger)

	manager := workflow.NewManager(cfg, store, workflow.Dependencies{
		Pages:     registry,
		Transport: client,
		Notifier:  notifier,
	}, logger)

	poller, err := bot.NewFromConfig(cfg, client, manager, registry, logger)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, daemon.Options{
		Store:    store,
		Workflow: manager,
		Poller:   poller,
		Telegram: client,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return err
	}
	logger.Info("tankobon ready",
		logging.Int("sources", registry.Len()),
		logging.String("events", eventsPath),
	)

	<-signalCtx.Done()
	logger.Info("tankobon shutting down")
	return nil
}
