package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scribelabs/minuted/internal/agent"
	"github.com/scribelabs/minuted/internal/config"
	"github.com/scribelabs/minuted/internal/database"
	"github.com/scribelabs/minuted/internal/logging"
	"github.com/scribelabs/minuted/internal/memory"
	"github.com/scribelabs/minuted/internal/schedule"
	"github.com/scribelabs/minuted/internal/server"
	"github.com/scribelabs/minuted/internal/summarizer"
	"github.com/scribelabs/minuted/internal/syncer"
	"github.com/scribelabs/minuted/internal/transcripts"
)

// defaultSyncLimit bounds how many stored meetings the sync subcommand
// re-reconciles.
const defaultSyncLimit = 10

var cfgFile string

func main() {
	config.LoadDotenv()

	rootCmd := &cobra.Command{
		Use:   "minuted",
		Short: "Meeting summarization agent with cross-meeting memory",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Process stored transcripts for every user folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscripts(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Re-sync the most recent stored summaries without summarizing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncOnly(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP summarization API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("thread", defaults.GetString("thread.id"), "Thread identifier for API and sync modes")
	cmd.PersistentFlags().String("shared-thread", defaults.GetString("thread.shared_id"), "Shared thread identifier (empty disables cross-thread context)")
	cmd.PersistentFlags().String("transcript-root", defaults.GetString("transcripts.root"), "Root folder with per-user transcript directories")
	cmd.PersistentFlags().String("scheduler-base-url", defaults.GetString("scheduler.base_url"), "Scheduling service base URL (empty disables sync)")
	cmd.PersistentFlags().String("sync-state-path", defaults.GetString("sync.state_path"), "Path to the sync state file")
	cmd.PersistentFlags().Bool("sync-create-followups", defaults.GetBool("sync.create_followups"), "Schedule a follow-up meeting when a summary has action items but no meeting requests")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "thread.id", "thread")
	bindFlag(cmd, "thread.shared_id", "shared-thread")
	bindFlag(cmd, "transcripts.root", "transcript-root")
	bindFlag(cmd, "scheduler.base_url", "scheduler-base-url")
	bindFlag(cmd, "sync.state_path", "sync-state-path")
	bindFlag(cmd, "sync.create_followups", "sync-create-followups")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// runtime bundles the wired components shared by every subcommand. The
// reconciler is built once so all agents share one SyncState writer.
type runtime struct {
	cfg        config.AppConfig
	logger     *zap.Logger
	db         *gorm.DB
	store      *memory.Store
	reconciler *syncer.Reconciler
}

func newRuntime() (*runtime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	store, err := memory.NewStore(memory.StoreConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: appConfig, logger: logger, db: db, store: store}
	rt.reconciler, err = rt.newReconciler()
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *runtime) close() {
	if sqlDB, err := r.db.DB(); err == nil {
		sqlDB.Close()
	}
	r.logger.Sync() //nolint:errcheck
}

// newAgent wires the pipeline for one thread. Absent collaborators disable
// their capability instead of failing construction.
func (r *runtime) newAgent(thread memory.ThreadID, withSummarizer bool) (*agent.Agent, error) {
	sharedThread := memory.ThreadID("")
	if r.cfg.SharedThreadID != "" {
		parsed, err := memory.NewThreadID(r.cfg.SharedThreadID)
		if err != nil {
			return nil, err
		}
		sharedThread = parsed
	}

	assembler, err := memory.NewAssembler(memory.AssemblerConfig{
		Store:           r.store,
		SharedThread:    sharedThread,
		MeetingLimit:    r.cfg.ContextMeetings,
		ActionItemLimit: r.cfg.ContextActionItems,
		SharedLimit:     r.cfg.ContextShared,
	})
	if err != nil {
		return nil, err
	}

	var transcriptSummarizer summarizer.Summarizer
	if withSummarizer {
		openAI, err := summarizer.NewOpenAISummarizer(summarizer.OpenAIConfig{
			APIKey:  r.cfg.SummarizerAPIKey,
			Model:   r.cfg.SummarizerModel,
			BaseURL: r.cfg.SummarizerBaseURL,
			Logger:  r.logger,
		})
		switch {
		case err == nil:
			transcriptSummarizer = openAI
		case errors.Is(err, summarizer.ErrMissingAPIKey):
			r.logger.Warn("summarizer disabled: no API key configured")
		default:
			return nil, err
		}
	}

	return agent.New(agent.Config{
		Store:        r.store,
		Assembler:    assembler,
		Summarizer:   transcriptSummarizer,
		Reconciler:   r.reconciler,
		Thread:       thread,
		SharedThread: sharedThread,
		Logger:       r.logger,
	})
}

// newReconciler returns nil when no scheduling service is configured; the
// sync capability is then absent rather than failing.
func (r *runtime) newReconciler() (*syncer.Reconciler, error) {
	if r.cfg.SchedulerBaseURL == "" {
		r.logger.Warn("scheduling sync disabled: no scheduler base URL configured")
		return nil, nil
	}

	client, err := schedule.NewHTTPClient(schedule.HTTPClientConfig{
		BaseURL:   r.cfg.SchedulerBaseURL,
		Token:     r.cfg.SchedulerToken,
		TokenPath: r.cfg.TokenPath,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, err
	}

	allocator, err := schedule.NewAllocator(schedule.AllocatorConfig{
		Client:             client,
		StartHour:          r.cfg.WorkdayStartHour,
		EndHour:            r.cfg.WorkdayEndHour,
		GranularityMinutes: r.cfg.SlotGranularityMins,
		Logger:             r.logger,
	})
	if err != nil {
		return nil, err
	}

	return syncer.NewReconciler(syncer.ReconcilerConfig{
		Store:                   r.store,
		Client:                  client,
		Allocator:               allocator,
		State:                   syncer.NewStateFile(r.cfg.SyncStatePath),
		Logger:                  r.logger,
		FollowupDurationMinutes: r.cfg.FollowupDurationMin,
		CreateFollowups:         r.cfg.CreateFollowups,
	})
}

func runTranscripts(ctx context.Context) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	users, err := transcripts.DiscoverUsers(rt.cfg.TranscriptRoot)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		rt.logger.Warn("no user folders found", zap.String("root", rt.cfg.TranscriptRoot))
		return nil
	}

	// One tear-down of the previous run's external resources; each transcript
	// then appends to the new generation.
	if rt.reconciler != nil {
		report, err := rt.reconciler.PreClean(ctx)
		if err != nil {
			return err
		}
		rt.logger.Info("previous generation cleaned",
			zap.Int("deleted", report.Deleted),
			zap.Int("skipped_already_gone", report.SkippedAlreadyGone),
			zap.Int("skipped_error", report.SkippedError))
	}

	processed := 0
	for _, user := range users {
		thread, err := memory.NewThreadID(user)
		if err != nil {
			return err
		}
		userAgent, err := rt.newAgent(thread, true)
		if err != nil {
			return err
		}

		loaded, err := transcripts.LoadForUser(rt.cfg.TranscriptRoot, user)
		if err != nil {
			return err
		}

		for _, transcript := range loaded {
			result, err := userAgent.Process(ctx, transcript.Text)
			if err != nil {
				if errors.Is(err, agent.ErrSummarizerUnavailable) {
					return err
				}
				rt.logger.Error("transcript failed",
					zap.String("user", user),
					zap.String("file", transcript.Name),
					zap.Error(err))
				continue
			}
			processed++
			rt.logger.Info("transcript complete",
				zap.String("user", user),
				zap.String("file", transcript.Name),
				zap.Uint64("meeting_id", result.MeetingID),
				zap.String("tldr", result.Summary.TLDR))
		}

		metrics := userAgent.Metrics()
		rt.logger.Info("user complete",
			zap.String("user", user),
			zap.Int("requests", metrics.TotalRequests),
			zap.Int64("total_latency_ms", metrics.TotalLatencyMillis))
	}

	rt.logger.Info("run complete",
		zap.Int("users", len(users)),
		zap.Int("meetings", processed))
	return nil
}

func runSyncOnly(ctx context.Context) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	thread, err := memory.NewThreadID(rt.cfg.ThreadID)
	if err != nil {
		return err
	}
	threadAgent, err := rt.newAgent(thread, false)
	if err != nil {
		return err
	}

	report, err := threadAgent.SyncRecent(ctx, defaultSyncLimit)
	if err != nil {
		return err
	}

	rt.logger.Info("sync complete",
		zap.Int("created", report.Created),
		zap.Int("deleted", report.Deleted),
		zap.Int("skipped_already_gone", report.SkippedAlreadyGone),
		zap.Int("skipped_error", report.SkippedError))
	return nil
}

func runServer(ctx context.Context) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	thread, err := memory.NewThreadID(rt.cfg.ThreadID)
	if err != nil {
		return err
	}
	threadAgent, err := rt.newAgent(thread, true)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Processor: threadAgent,
		Store:     rt.store,
		Thread:    thread,
		Logger:    rt.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    rt.cfg.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("server starting", zap.String("address", rt.cfg.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		rt.logger.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
