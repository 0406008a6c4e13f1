package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/api"
	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/casestore"
	"github.com/Mindburn-Labs/caseflow/pkg/config"
	"github.com/Mindburn-Labs/caseflow/pkg/event"
	"github.com/Mindburn-Labs/caseflow/pkg/handlers"
	"github.com/Mindburn-Labs/caseflow/pkg/heartbeat"
	"github.com/Mindburn-Labs/caseflow/pkg/objectstore"
	"github.com/Mindburn-Labs/caseflow/pkg/observability"
	"github.com/Mindburn-Labs/caseflow/pkg/orchestrator"
	"github.com/Mindburn-Labs/caseflow/pkg/queue"
	"github.com/Mindburn-Labs/caseflow/pkg/slotregistry"
	"github.com/Mindburn-Labs/caseflow/pkg/store"
)

var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 1 {
		cmd = args[1]
	}

	switch cmd {
	case "serve", "server":
		if err := runServer(); err != nil {
			fmt.Fprintf(stderr, "caseflow: %v\n", err)
			return 1
		}
		return 0
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "caseflow %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: caseflow <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Start the orchestrator and admin API (default)")
	fmt.Fprintln(w, "  version  Print the version")
	fmt.Fprintln(w, "  help     Print this help")
}

func runServer() error {
	cfg := config.Load()
	if cfg.ProfilePath != "" {
		profile, err := config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return err
		}
		profile.Apply(cfg)
		slog.Info("applied tuning profile", "path", cfg.ProfilePath, "name", profile.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "caseflow",
		ServiceVersion: version,
		Environment:    "production",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.TelemetryEnabled,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	objects, err := objectstore.NewStoreFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	cases := casestore.New(objects).WithRetries(cfg.SaveRetries)
	registry := slotregistry.New(objects).WithTTL(cfg.HoldTTL).WithRetries(cfg.RegistryRetries)

	procLog, deadLetters, closeDB, err := openOperatorStores(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	core := orchestrator.New(cases, procLog, deadLetters,
		orchestrator.WithMaxChainDepth(cfg.BreakerDepth),
		orchestrator.WithObservability(obs),
	)
	core.RegisterHandler(caserecord.PhaseInitial, handlers.NewIntakeHandler())
	core.RegisterHandler(caserecord.PhaseAssessment, handlers.NewAssessmentHandler())
	core.RegisterHandler(caserecord.PhaseReservation,
		handlers.NewReservationHandler(registry).WithCadence(cfg.CheckInCadence))
	core.RegisterHandler(caserecord.PhaseFollowUp,
		handlers.NewFollowUpHandler(registry).WithCadence(cfg.CheckInCadence))
	core.RegisterDispatcher(handlers.ChannelChat, &logDispatcher{})

	manager := queue.NewManager(ctx, func(ctx context.Context, evt *event.Envelope) error {
		_, err := core.ProcessEvent(ctx, evt)
		return err
	}, queue.WithObservability(obs))
	defer manager.Stop()

	scheduler := heartbeat.NewScheduler(cases, manager.Enqueue,
		heartbeat.WithTick(cfg.HeartbeatTick),
		heartbeat.WithDwellThresholds(map[caserecord.Phase]time.Duration{
			caserecord.PhaseInitial:     cfg.DwellInitial,
			caserecord.PhaseAssessment:  cfg.DwellAssessment,
			caserecord.PhaseReservation: cfg.DwellReservation,
		}),
	)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server, err := api.NewServer(cases, registry, manager, procLog, deadLetters)
	if err != nil {
		return fmt.Errorf("init admin server: %w", err)
	}
	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.Handler(api.Options{
			JWTSecret:      cfg.JWTSecret,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("caseflow listening", "port", cfg.Port, "storage", cfg.StorageType, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// openOperatorStores opens the SQLite-backed processing log and dead-letter
// store, falling back to in-memory implementations when no path is set.
func openOperatorStores(cfg *config.Config) (store.ProcessingLog, store.DeadLetterStore, func(), error) {
	if cfg.SQLitePath == "" {
		return store.NewInMemoryProcessingLog(), store.NewInMemoryDeadLetterStore(), func() {}, nil
	}

	db, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open operator db: %w", err)
	}
	procLog, err := store.NewSQLiteProcessingLog(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("init processing log: %w", err)
	}
	deadLetters, err := store.NewSQLiteDeadLetterStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("init dead letter store: %w", err)
	}
	return procLog, deadLetters, func() { _ = db.Close() }, nil
}
