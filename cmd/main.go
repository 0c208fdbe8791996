package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/arqgene/moldock/internal/auth"
	"github.com/arqgene/moldock/internal/babel"
	"github.com/arqgene/moldock/internal/config"
	"github.com/arqgene/moldock/internal/docking"
	"github.com/arqgene/moldock/internal/fetch"
	"github.com/arqgene/moldock/internal/httpapi"
	"github.com/arqgene/moldock/internal/jobs"
	"github.com/arqgene/moldock/internal/persistence"
	"github.com/arqgene/moldock/internal/service"
	"github.com/arqgene/moldock/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	if err := run(); err != nil {
		log.Error("moldock: %v", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgOpts []config.Option
	if settings, err := config.LoadRuntimeSettingsFile(config.RuntimeSettingsFilePath()); err == nil {
		cfgOpts = append(cfgOpts, config.WithRuntimeSettings(settings))
	}
	cfg, err := config.NewFromEnv(cfgOpts...)
	if err != nil {
		return err
	}

	store, err := persistence.NewSQLiteStore(cfg.Workspace.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	settingsStore, err := config.NewRuntimeSettingsStore(config.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
	if err != nil {
		return err
	}

	queue := jobs.NewQueue(cfg.Docking.BatchWorkers, store)

	orch, err := service.NewOrchestrator(
		*cfg,
		babel.New(cfg.Tools.ObabelBin, cfg.Tools.ConvertTimeout),
		docking.New(cfg.Tools.SminaBin, cfg.Tools.DockTimeout),
		fetch.NewAlphaFold(cfg.Databases.AlphaFoldURL, cfg.Databases.FetchTimeout),
		fetch.NewUniProt(cfg.Databases.UniProtURL, cfg.Databases.FetchTimeout),
		fetch.NewESMFold(cfg.Databases.ESMFoldURL, cfg.Databases.FetchTimeout),
		fetch.NewPubChem(cfg.Databases.PubChemURL, cfg.Databases.FetchTimeout),
		service.WithQueue(queue),
		service.WithFileRecorder(store),
		service.WithRuntimeSettings(settingsStore),
	)
	if err != nil {
		return err
	}

	queue.Start(orch.ExecuteBatchJob)
	defer queue.Stop()

	serverOpts := []httpapi.Option{
		httpapi.WithUI(cfg.Server.StaticDir, cfg.Server.UIEnabled),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithQueue(queue),
	}
	if cfg.Server.SessionSecret != "" {
		serverOpts = append(serverOpts,
			httpapi.WithAuth(auth.NewService(store), auth.NewSessionManager(cfg.Server.SessionSecret)))
	} else {
		log.Warn("SESSION_SECRET is not set, running without authentication")
	}
	srv := httpapi.NewServer(orch, cfg.Workspace, serverOpts...)

	cronEngine := cron.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Listening on %s", cfg.Server.ListenAddr)
	return runWithComponents(ctx, cfg.Server.ListenAddr,
		func() error { return orch.ScheduleCleanup(cronEngine) },
		cronEngine, srv)
}

// runWithComponents starts the cron engine and HTTP server and blocks until
// the context is cancelled or the server fails.
func runWithComponents(ctx context.Context, addr string, schedule func() error, cronEngine cronRunner, httpSrv httpServer) error {
	if err := schedule(); err != nil {
		return err
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
