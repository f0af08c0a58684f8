package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/agentis-health/discharge-orchestrator/internal/api"
	"github.com/agentis-health/discharge-orchestrator/internal/audit"
	"github.com/agentis-health/discharge-orchestrator/internal/clients"
	"github.com/agentis-health/discharge-orchestrator/internal/config"
	"github.com/agentis-health/discharge-orchestrator/internal/consent"
	"github.com/agentis-health/discharge-orchestrator/internal/executor"
	"github.com/agentis-health/discharge-orchestrator/internal/llm"
	"github.com/agentis-health/discharge-orchestrator/internal/orchestrate"
)

func main() {
	// 1. Load configuration
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "trigger-server").Logger()

	// 2. Consent policy source and engine
	policySource := consent.NewFileSource(log, cfg.Consent.PolicyPath, cfg.Consent.ScenarioPath)

	engineOpts := []consent.Option{
		consent.WithLogger(log),
		consent.WithScopeFallback(cfg.Consent.ScopeFallback),
	}
	if cfg.Consent.DemoParity {
		log.Info().Msg("numeric-parity demo strategy enabled")
		engineOpts = append(engineOpts, consent.WithStrategy(consent.ParityStrategy{}))
	}
	engine := consent.NewEngine(policySource, engineOpts...)

	// 3. Audit sinks: memory ring always, Postgres when configured
	memSink := audit.NewMemorySink(cfg.Audit.MemorySize)
	sinks := audit.MultiSink{memSink, audit.LoggerSink{Log: log}}

	if cfg.Audit.DatabaseURL != "" {
		ctx := context.Background()
		dbPool, err := pgxpool.New(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to audit database")
		}
		defer dbPool.Close()
		if err := dbPool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping audit database")
		}
		log.Info().Msg("audit database connection established")
		sinks = append(sinks, audit.NewPostgresSink(dbPool))
	}

	// 4. Collaborators and pipeline. Each mock gets one long-lived subprocess
	// so its in-memory state survives across requests.
	emrConn := clients.NewConn(cfg.Mocks.EMRCommand)
	defer emrConn.Close()
	directoryConn := clients.NewConn(cfg.Mocks.DirectoryCommand)
	defer directoryConn.Close()
	billingConn := clients.NewConn(cfg.Mocks.BillingCommand)
	defer billingConn.Close()

	exec := executor.New(engine, clients.MockTaskStore{}, clients.MockMessenger{}, sinks, log)
	pipeline := &orchestrate.Pipeline{
		EMR:        clients.EMRClient{Conn: emrConn},
		Directory:  clients.DirectoryClient{Conn: directoryConn},
		LLM:        llm.New(cfg.LLM),
		Exec:       exec,
		NotesPath:  "data/fixtures/discharge_notes.json",
		PolicyPath: cfg.Consent.PolicyPath,
		Log:        log,
	}

	// 5. HTTP server
	billing := clients.BillingClient{Conn: billingConn}
	server := api.NewServer(engine, pipeline, billing, memSink, policySource, "data/csv/patient.csv", log)
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      server.Router(cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("trigger server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-quit
	log.Info().Msg("shutting down trigger server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("trigger server stopped")
}
