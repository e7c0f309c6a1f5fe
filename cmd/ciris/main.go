// Command ciris boots one CIRIS occurrence end to end: configuration,
// persistence, the capability registry and buses, the H3ERE pipeline, the
// consent/credit gate, the round-based processor, and the HTTP API and
// WebSocket adapter fronting all of it. Grounded in idiom on the
// teacher's examples/agent-with-telemetry/main.go: a numbered, fail-fast
// bootstrap sequence ending in signal-driven graceful shutdown.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	goredis "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/adapter/ws"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/audit"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/config"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/dsar"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/gate"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/graph"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/handlers"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/httpapi"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/llm/providers/bedrock"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/llm/providers/mock"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/persistence"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/persistence/migrations"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/persistence/postgres"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/persistence/sqlite"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/pipeline"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/processor"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/shutdown"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/telemetry"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/telemetry/promexport"
)

func main() {
	// 1. Load and validate configuration first (fail fast).
	cfg, err := config.Load(os.Getenv("CIRIS_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, parseLevel(cfg.Logging.Level))
	logger.Info("starting occurrence", logging.Fields{"occurrence_id": cfg.OccurrenceID})

	// 2. Open the persistence backend selected by config.
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("persistence init failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer closeStore()

	// 3. Build the narrowing adapters every downstream package needs, and
	// the credit-grant decorator persistence-backed ledgers require (a
	// memoryLedger grants on first sight; a durable store does not).
	taskAdapter := persistence.TaskAdapter{Store: store}
	thoughtAdapter := persistence.ThoughtAdapter{Store: store}
	consentAdapter := persistence.ConsentAdapter{Store: store}
	ledger := gate.NewGrantingLedger(persistence.LedgerAdapter{Store: store}, cfg.Gate.DefaultCreditGrant)
	auditAdapter := persistence.AuditAdapter{Store: store}
	graphAdapter := persistence.GraphAdapter{Store: store}

	// 4. Audit chain, signed with a configured or ephemeral Ed25519 key.
	signingKey, err := auditSigningKey(cfg.Audit.SigningKeySeedHex)
	if err != nil {
		logger.Error("audit signing key invalid", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	if cfg.Audit.SigningKeySeedHex == "" {
		logger.Warn("no audit signing key seed configured; generated an ephemeral key for this process", logging.Fields{})
	}
	chain := audit.New(auditAdapter, signingKey)

	// 5. Capability registry, and every provider it selects among.
	reg := registry.New(logger, registry.DefaultBreakerConfig())

	allowedOrigins := []string{}
	wsAdapter := ws.New(logger, allowedOrigins)
	if err := reg.Register("communication", model.ProviderEntry{
		Capability: "communication", InstanceRef: "ws-adapter", Priority: 0, Strategy: model.StrategyPriority,
	}, wsAdapter); err != nil {
		logger.Error("failed to register communication provider", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	if err := reg.Register("memory", model.ProviderEntry{
		Capability: "memory", InstanceRef: "persistence-graph", Priority: 0, Strategy: model.StrategyPriority,
	}, graphAdapter); err != nil {
		logger.Error("failed to register memory provider", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	// In-process fallback: if the durable graph store's circuit trips,
	// the Memory Bus fails over to this volatile store rather than
	// rejecting every RECALL/MEMORIZE outright.
	if err := reg.Register("memory", model.ProviderEntry{
		Capability: "memory", InstanceRef: "in-process-graph", Priority: 1, Strategy: model.StrategyPriority,
	}, graph.New()); err != nil {
		logger.Error("failed to register fallback memory provider", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	llmBackend, err := buildLLMBackend(cfg)
	if err != nil {
		logger.Error("failed to build llm provider", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	if err := reg.Register("llm", model.ProviderEntry{
		Capability: "llm", InstanceRef: "llm-" + cfg.LLM.Provider, Priority: 0, Strategy: model.StrategyPriority,
	}, llmBackend); err != nil {
		logger.Error("failed to register llm provider", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	// tool has no concrete provider in this core: no adjacent
	// tool-execution service was named in scope, so that capability stays
	// unregistered. bus.dispatch already handles an empty provider list
	// gracefully (KindCircuitOpen), so TOOL actions fail closed rather than
	// panicking. The Wise Bus also has no registered guidance provider, but
	// it is still constructed and consulted below: the prohibited-capability
	// check runs before provider selection, so it needs no backend to
	// enforce invariant 6.

	// 6. Buses, pipeline, dispatcher, and the processor they all feed.
	commBus := bus.NewCommunicationBus(reg, logger)
	memBus := bus.NewMemoryBus(reg, logger)
	llmBus := bus.NewLLMBus(reg, logger)
	toolBus := bus.NewToolBus(reg, logger)
	runtimeControlBus := bus.NewRuntimeControlBus(reg, logger)
	wiseBus := bus.NewWiseBus(reg, logger)

	dispatcher := handlers.NewDispatcher(logger, handlers.Dependencies{
		Communication: commBus,
		Memory:        memBus,
		Tool:          toolBus,
	})

	p := &pipeline.Pipeline{
		Ethical:     pipeline.NewEthicalDMA(llmBus),
		CommonSense: pipeline.NewCommonSenseDMA(llmBus),
		Domain:      pipeline.NewDomainSpecificDMA(llmBus),
		ASPDMA:      pipeline.NewActionSelectionDMA(llmBus),
		Conscience:  pipeline.NewConscience(llmBus),
		Finalizer:   &pipeline.DefaultFinalizer{Logger: logger},
		Dispatcher:  dispatcher,
		Recorder:    pipeline.NewAuditRecorder(chain, cfg.OccurrenceID),
		Logger:      logger,
		Wise:        pipeline.NewWiseGate(wiseBus),
	}

	proc := processor.New(processor.Config{
		OccurrenceID:  cfg.OccurrenceID,
		MaxConcurrent: cfg.Processor.MaxConcurrent,
		PollInterval:  cfg.Processor.PollInterval,
		RoundDeadline: cfg.Processor.RoundDeadline,
		Logger:        logger,
	}, p, taskAdapter, thoughtAdapter)

	if err := reg.Register("runtimecontrol", model.ProviderEntry{
		Capability: "runtimecontrol", InstanceRef: "processor", Priority: 0, Strategy: model.StrategyPriority,
	}, proc); err != nil {
		logger.Error("failed to register runtimecontrol provider", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	// 7. Gate, DSAR tracker, emergency-shutdown verifier.
	g := gate.New(cfg.OccurrenceID, consentAdapter, ledger, taskAdapter, chain, logger)
	wsAdapter.OnInbound = func(msg ws.InboundMessage) {
		evt := gate.InboundEvent{
			AdapterID:  "ws",
			ChannelID:  msg.ChannelID,
			SubjectID:  msg.SubjectID,
			Payload:    msg.Payload,
			ArrivedAt:  msg.ArrivedAt,
			Role:       "user",
		}
		if _, err := g.Accept(context.Background(), evt); err != nil {
			logger.Warn("inbound message rejected by gate", logging.Fields{"channel_id": msg.ChannelID, "error": err.Error()})
		}
	}

	dsarTracker := dsar.NewTracker(cfg.OccurrenceID, consentAdapter, auditAdapter)

	var verifier *shutdown.Verifier
	if cfg.Shutdown.TrustedPublicKeyHex != "" {
		trustedKey, err := hex.DecodeString(cfg.Shutdown.TrustedPublicKeyHex)
		if err != nil {
			logger.Error("invalid shutdown trusted public key", logging.Fields{"error": err.Error()})
			os.Exit(1)
		}
		verifier, err = shutdown.NewVerifier(ed25519.PublicKey(trustedKey))
		if err != nil {
			logger.Error("invalid shutdown trusted public key", logging.Fields{"error": err.Error()})
			os.Exit(1)
		}
	}

	// 8. Telemetry: tracing (optional, OTLP or stdout) and Prometheus export.
	var tracer *telemetry.Tracer
	if cfg.Telemetry.Enabled {
		tracer, err = telemetry.New(context.Background(), "ciris-"+cfg.OccurrenceID, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			logger.Error("telemetry init failed", logging.Fields{"error": err.Error()})
			os.Exit(1)
		}
	}
	promExporter := promexport.New()

	// Attach the tracer (nil when telemetry is disabled) so every bus call
	// and pipeline round emits a span (§3 Correlation/Trace Span).
	commBus.SetTracer(tracer)
	memBus.SetTracer(tracer)
	llmBus.SetTracer(tracer)
	toolBus.SetTracer(tracer)
	runtimeControlBus.SetTracer(tracer)
	wiseBus.SetTracer(tracer)
	p.Tracer = tracer

	// 9. Optional multi-occurrence presence via Redis.
	var presence *registry.Presence
	if cfg.Redis.URL != "" {
		opt, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis url", logging.Fields{"error": err.Error()})
			os.Exit(1)
		}
		presence = registry.NewPresence(goredis.NewClient(opt), registry.DefaultPresenceConfig())
	}

	// 10. HTTP API server.
	sessions := httpapi.NewSessions(cfg.Auth.AdminCredential, cfg.Auth.TokenTTL)
	httpServer := httpapi.New(httpapi.Dependencies{
		OccurrenceID:     cfg.OccurrenceID,
		Logger:           logger,
		Sessions:         sessions,
		Gate:             g,
		Tasks:            taskAdapter,
		Thoughts:         thoughtAdapter,
		Processor:        proc,
		RuntimeControl:   runtimeControlBus,
		Memory:           memBus,
		Registry:         reg,
		Audit:            chain,
		AuditLog:         auditAdapter,
		DSAR:             dsarTracker,
		PromExporter:     promExporter,
		ShutdownVerifier: verifier,
	}, cfg.HTTP.Address, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)

	// WebSocket adapter shares the same listener, multiplexed by channel
	// under /ws/:channel_id.
	mux := http.NewServeMux()
	mux.Handle("/", httpServer.Handler())
	mux.Handle("/ws/", http.StripPrefix("/ws/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		channelID := r.URL.Path
		wsAdapter.Handler(channelID).ServeHTTP(w, r)
	})))

	combined := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// 11. Start the processor loop and the periodic presence/metrics tick.
	ctx, cancel := context.WithCancel(context.Background())
	proc.Start(ctx)
	stopTicker := startPeriodicTick(ctx, cfg.OccurrenceID, proc, presence, promExporter, logger)

	// 12. Graceful shutdown on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logging.Fields{"address": cfg.HTTP.Address})
		if err := combined.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received", logging.Fields{})
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", logging.Fields{"error": err.Error()})
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	stopTicker()
	cancel()
	proc.Stop()
	_ = combined.Shutdown(shutdownCtx)
	if tracer != nil {
		_ = tracer.Shutdown(shutdownCtx)
	}
	logger.Info("shutdown complete", logging.Fields{})
}

// parseLevel maps the config's string log level to logging.Level,
// defaulting to info for anything unrecognized rather than failing
// startup over a typo'd setting.
func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// auditSigningKey derives an Ed25519 private key from a hex-encoded
// 32-byte seed, or generates an ephemeral one when seedHex is empty.
func auditSigningKey(seedHex string) (ed25519.PrivateKey, error) {
	if seedHex == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, cerr.Wrap("auditSigningKey", cerr.KindFatal, err)
		}
		return priv, nil
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, cerr.New("auditSigningKey", cerr.KindValidation, "audit.signing_key_seed_hex is not valid hex")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, cerr.New("auditSigningKey", cerr.KindValidation, "audit.signing_key_seed_hex must decode to 32 bytes")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// openStore opens the persistence backend selected by cfg.Persistence.Driver
// and returns a close function that releases every resource it opened,
// regardless of which branch ran.
func openStore(cfg *config.Config, logger logging.Logger) (persistence.Store, func(), error) {
	switch cfg.Persistence.Driver {
	case "sqlite":
		store, err := sqlite.New(cfg.Persistence.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Init(context.Background()); err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.Persistence.PostgresDSN)
		if err != nil {
			return nil, nil, cerr.Wrap("openStore", cerr.KindFatal, err)
		}
		db, err := sql.Open("pgx", cfg.Persistence.PostgresDSN)
		if err != nil {
			pool.Close()
			return nil, nil, cerr.Wrap("openStore", cerr.KindFatal, err)
		}
		if err := migrations.ApplyPostgres(db, cfg.OccurrenceID); err != nil {
			pool.Close()
			_ = db.Close()
			return nil, nil, err
		}
		if err := db.Close(); err != nil {
			logger.Warn("closing migration db handle failed", logging.Fields{"error": err.Error()})
		}
		store := postgres.New(pool)
		return store, func() { pool.Close() }, nil

	default:
		return nil, nil, cerr.New("openStore", cerr.KindValidation, "unknown persistence driver: "+cfg.Persistence.Driver)
	}
}

// buildLLMBackend constructs the configured bus.LLMBackend. "mock" needs
// no external configuration; "bedrock" loads the default AWS credential
// chain, optionally pinned to a region.
func buildLLMBackend(cfg *config.Config) (bus.LLMBackend, error) {
	switch cfg.LLM.Provider {
	case "bedrock":
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.LLM.BedrockRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.LLM.BedrockRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			return nil, cerr.Wrap("buildLLMBackend", cerr.KindFatal, err)
		}
		return bedrock.NewClient(awsCfg, cfg.LLM.BedrockModel), nil
	default:
		return &mock.Client{}, nil
	}
}

// startPeriodicTick drives the occurrence's Redis presence heartbeat (if
// configured) and mirrors the processor's counters into the Prometheus
// exporter, since nothing else in the pipeline increments them yet.
func startPeriodicTick(ctx context.Context, occurrenceID string, proc *processor.Processor, presence *registry.Presence, exporter *promexport.Exporter, logger logging.Logger) func() {
	ticker := time.NewTicker(10 * time.Second)
	done := make(chan struct{})

	go func() {
		var lastRounds, lastThoughts uint64
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics := proc.Metrics()
				if rounds := metrics.RoundsRun(); rounds > lastRounds {
					exporter.RoundsRun.Add(float64(rounds - lastRounds))
					lastRounds = rounds
				}
				if thoughts := metrics.ThoughtsProcessed(); thoughts > lastThoughts {
					exporter.ThoughtsProcessed.Add(float64(thoughts - lastThoughts))
					lastThoughts = thoughts
				}
				exporter.SecondsPerThought.Set(metrics.MeanSecondsPerThought())

				if presence != nil {
					if err := presence.Heartbeat(ctx, occurrenceID); err != nil {
						logger.Warn("presence heartbeat failed", logging.Fields{"error": err.Error()})
					}
				}
			}
		}
	}()

	return func() {
		ticker.Stop()
		<-done
	}
}
