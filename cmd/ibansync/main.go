package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/ibansync/constants"
	"github.com/joseph-ayodele/ibansync/internal/common"
	"github.com/joseph-ayodele/ibansync/internal/intake"
	"github.com/joseph-ayodele/ibansync/internal/notification"
	"github.com/joseph-ayodele/ibansync/internal/pipeline"
	"github.com/joseph-ayodele/ibansync/internal/reconcile"
	"github.com/joseph-ayodele/ibansync/internal/remote"
	"github.com/joseph-ayodele/ibansync/internal/report"
	repo "github.com/joseph-ayodele/ibansync/internal/repository"
	"github.com/joseph-ayodele/ibansync/internal/rpc"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	settings := flag.String("settings", "", "path to the settings file (default: $IBANSYNC_SETTINGS or settings.json beside the executable)")
	flag.Parse()

	// A missing .env is fine; the environment may already carry the overrides.
	_ = godotenv.Load()

	cfg, err := common.LoadConfig(settingsPath(*settings))
	if err != nil {
		printError("Error: %v\n", err)
		return constants.ExitConfig
	}
	if err := intake.EnsureDirs(cfg.LocalDirs()...); err != nil {
		printError("Error: %v\n", err)
		return constants.ExitConfig
	}

	runID := uuid.New().String()
	baseLogger, logCloser := common.NewLogger(cfg.Log, os.Stdout)
	defer func() {
		if err := logCloser.Close(); err != nil {
			printError("closing log file: %v\n", err)
		}
	}()
	logger := baseLogger.With("run_id", runID)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = common.WithRunID(ctx, runID)

	logger.Info("run.start", "intake", cfg.LocalPaths.Intake, "sftp", cfg.SFTPAddr(), "db_driver", cfg.Database.Driver)

	store, err := remote.Dial(ctx, remote.Config{
		Addr:          cfg.SFTPAddr(),
		Username:      cfg.SFTP.Username,
		Password:      cfg.SFTP.Password,
		PrivateKey:    cfg.SFTP.PrivateKey,
		KnownHosts:    cfg.SFTP.KnownHosts,
		Timeout:       cfg.SFTP.Timeout.Std(),
		IncomingDir:   cfg.RemotePaths.Incoming,
		DownloadedDir: cfg.RemotePaths.Downloaded,
		IntakeDir:     cfg.LocalPaths.Intake,
	}, logger)
	if err != nil {
		logger.Error("run.abort", "stage", "sftp", "error", err, "kind", common.KindOf(err))
		return constants.ExitFatal
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("sftp.close_failed", "error", err)
		}
	}()

	db, err := repo.Open(ctx, repo.Config{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.Database.DSN,
		Schema:      cfg.Database.Schema,
		DialTimeout: cfg.Database.DialTimeout.Std(),
	}, logger)
	if err != nil {
		logger.Error("run.abort", "stage", "database", "error", err, "kind", common.KindOf(err))
		return constants.ExitFatal
	}
	defer db.Close(logger)

	// Wire repositories and services
	customers := repo.NewCustomerRepository(db, logger)
	history := repo.NewHistoryRepository(db, logger)
	updates := rpc.NewClient(rpc.Config{
		URL:     cfg.RPC.URL,
		Method:  cfg.RPC.Method,
		Timeout: cfg.RPC.Timeout.Std(),
	}, logger)
	engine := reconcile.NewEngine(customers, updates, history, logger)

	var reports pipeline.ReportWriter
	if cfg.LocalPaths.Report != "" {
		reports = report.NewService(logger)
	}

	orch := pipeline.NewOrchestrator(pipeline.Config{
		IntakeDir:    cfg.LocalPaths.Intake,
		ProcessedDir: cfg.LocalPaths.Processed,
		ReportDir:    cfg.LocalPaths.Report,
	}, store, notification.NewParser(cfg.Document.Namespace), engine, reports, logger)

	sum, err := orch.Run(ctx)
	if err != nil {
		logger.Error("run.abort", "stage", "pipeline", "error", err, "kind", common.KindOf(err))
		if errors.Is(err, context.Canceled) {
			logger.Warn("run.interrupted")
		}
		return constants.ExitFatal
	}

	if sum.HasErrors() {
		logger.Warn("run.done_with_errors", "summary", sum)
		return constants.ExitWithErrors
	}
	logger.Info("run.done", "summary", sum)
	return constants.ExitOK
}

// settingsPath picks the flag, then IBANSYNC_SETTINGS, then settings.json beside the executable.
func settingsPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("IBANSYNC_SETTINGS"); p != "" {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		return "settings.json"
	}
	return filepath.Join(filepath.Dir(exe), "settings.json")
}
