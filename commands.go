package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"socrates/bot"
	"socrates/chat"
	"socrates/config"
	"socrates/scheduler"
	"socrates/server"
	"socrates/storage"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API, the ingestion and digest schedule and the admin bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			app, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					slog.Info("received shutdown signal", "signal", sig)
					cancel()
				case <-runCtx.Done():
				}
			}()

			sched, err := scheduler.NewScheduler(cfg.Timezone)
			if err != nil {
				return fmt.Errorf("initialize scheduler: %w", err)
			}
			if err := sched.ScheduleIngest(cfg.IngestCadence, func() {
				if _, err := app.runIngest(runCtx); err != nil {
					slog.Error("scheduled ingestion failed", "error", err)
				}
			}); err != nil {
				return fmt.Errorf("schedule ingestion: %w", err)
			}
			if err := sched.ScheduleDigest(cfg.Digest.Day, func() {
				if _, err := app.runDigest(runCtx); err != nil {
					slog.Error("scheduled digest failed", "error", err)
				}
			}); err != nil {
				return fmt.Errorf("schedule digest: %w", err)
			}
			sched.Start()
			defer sched.Stop()
			slog.Info("jobs scheduled", "ingest_cadence", cfg.IngestCadence, "digest_day", cfg.Digest.Day, "timezone", cfg.Timezone)

			if app.tgBot != nil {
				triggers := &triggerAdapter{app: app}
				commands := bot.NewCommandHandler(
					&tgSender{app: app},
					&settingsAdapter{db: app.db},
					cfg,
					bot.WithRegistrar(app.telegram),
					bot.WithStats(&statsAdapter{db: app.db}),
					bot.WithIngest(triggers),
					bot.WithDigest(triggers),
				)
				slog.Info("starting bot polling")
				go app.poll(runCtx, app.tgBot, commands)
			}

			srv := server.New(chat.NewEngine(app.db, app.gateway, cfg, chat.WithSettings(app.db)))
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(cfg.HTTP.Addr)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-runCtx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("http server shutdown", "error", err)
			}
			slog.Info("stopped")
			return nil
		},
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch the configured feeds once and store scored bookmarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			app, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			summary, err := app.runIngest(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeIngest(summary))
			return nil
		},
	}
}

func newDigestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Assemble the weekly digest from pending bookmarks now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			app, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.runDigest(cmd.Context())
			if result != nil {
				fmt.Fprintln(cmd.OutOrStdout(), describeDigest(result))
			}
			return err
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending bookmarks, stored chats and effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := storage.NewDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			rctx := cmd.Context()

			counts, err := db.CountBookmarksByCategory(rctx, storage.VisibilityPending)
			if err != nil {
				return fmt.Errorf("count pending bookmarks: %w", err)
			}
			rows := make([][]string, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, []string{c.Category, strconv.Itoa(c.Count)})
			}
			fmt.Fprintln(out, "Pending bookmarks")
			fmt.Fprintln(out, renderTable([]string{"Category", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

			users, err := db.CountChatsByUser(rctx)
			if err != nil {
				return fmt.Errorf("count chats: %w", err)
			}
			rows = rows[:0]
			for _, u := range users {
				rows = append(rows, []string{u.UserID, strconv.Itoa(u.Chats)})
			}
			fmt.Fprintln(out, "Chats")
			fmt.Fprintln(out, renderTable([]string{"User", "Chats"}, rows, []columnAlignment{alignLeft, alignRight}))

			eff := cfg.WithOverrides(rctx, db)
			lastFetch, err := db.GetSetting(rctx, config.SettingLastFeedFetch)
			if err != nil {
				lastFetch = "never"
			}
			settings := [][]string{
				{"Threshold score", strconv.Itoa(eff.ThresholdScore)},
				{"Include Other category", strconv.FormatBool(eff.IncludeOtherCategory)},
				{"Show reasoning", strconv.FormatBool(eff.Chat.ShowReasoning)},
				{"Hide links", strconv.FormatBool(eff.Chat.HideLinks)},
				{"Ingest cadence", eff.IngestCadence},
				{"Digest day", eff.Digest.Day},
				{"Last feed fetch", lastFetch},
			}
			fmt.Fprintln(out, "Settings")
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, settings, nil))
			return nil
		},
	}
}
