package ledgerd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"leadfive/config"
	"leadfive/core/events"
	"leadfive/core/ledger"
	"leadfive/core/state"
	"leadfive/core/types"
	"leadfive/native/registry"
	"leadfive/observability"
	"leadfive/observability/logging"
	telemetry "leadfive/observability/otel"
	"leadfive/storage"
)

// Main initialises and runs the ledger daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/ledgerd/config.yaml", "path to ledgerd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("LEADFIVE_ENV"))
	if file := strings.TrimSpace(os.Getenv("LEDGERD_LOG_FILE")); file != "" {
		cfg.Logging.File = file
	}
	logger := logging.SetupWithOptions("ledgerd", env, cfg.Logging)

	telemetryCfg := cfg.Telemetry
	telemetryCfg.Environment = env
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		telemetryCfg.Endpoint = endpoint
		telemetryCfg.Traces = true
		telemetryCfg.Metrics = true
	}
	if headers := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(headers) > 0 {
		telemetryCfg.Headers = headers
	}
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			telemetryCfg.Insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	plan, err := config.LoadPlan(cfg.PlanPath)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	ledgerCfg, err := plan.LedgerConfig()
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/ledger")
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer db.Close()
	l, found, err := state.Load(db)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if !found {
		if err := state.PersistAll(db, l); err != nil {
			return fmt.Errorf("initialise ledger store: %w", err)
		}
	}
	logger.Info("ledger store opened",
		slog.Bool("existing", found),
		slog.Uint64("version", l.Version()),
		slog.Int("participants", l.ParticipantCount()))

	idem, err := OpenIdempotencyStore(cfg.Idempotency.Path, cfg.Idempotency.TTL.Duration)
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	defer idem.Close()
	audit, err := OpenAuditLog(cfg.Audit)
	if err != nil {
		return err
	}
	defer audit.Close()
	logger.Info("audit log opened",
		slog.String("driver", cfg.Audit.Driver),
		logging.MaskField("dsn", cfg.Audit.DSN))

	hub := NewHub()
	fanout := &events.Fanout{}
	fanout.Add(hub)
	fanout.Add(eventLogger{logger: logger})
	engine, err := ledger.New(l, ledgerCfg,
		ledger.WithStore(db),
		ledger.WithEmitter(fanout),
		ledger.WithLogger(logger),
		ledger.WithMetrics(observability.Ledger()),
	)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	seq := ledger.NewSequencer(engine, cfg.QueueDepth)
	seq.Start()
	defer seq.Stop()

	if err := seed(context.Background(), seq, plan, cfg.Bootstrap, logger); err != nil {
		return fmt.Errorf("seed ledger: %w", err)
	}
	if cfg.PauseOnStart {
		if err := seq.Do(context.Background(), func(e *ledger.Engine) error {
			return e.SetPaused(context.Background(), true)
		}); err != nil {
			return fmt.Errorf("pause ledger: %w", err)
		}
	}

	server := NewServer(seq, NewAuthenticator(cfg.Auth, logger),
		WithIdempotency(idem),
		WithAudit(audit),
		WithHub(hub),
		WithRateLimiter(NewRateLimiter(cfg.RateLimit)),
		WithServerLogger(logger),
		WithDecimals(plan.Decimals),
	)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule.Enabled {
		scheduler := NewScheduler(seq, cfg.Schedule, logger, WithSchedulerAudit(audit))
		go scheduler.Run(stopCtx)
	}
	go pruneIdempotency(stopCtx, idem, logger)

	errs := make(chan error, 1)
	go func() {
		logger.Info("ledgerd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// seed installs the plan catalogue and reinvestment table when the ledger has
// no packages, and registers the bootstrap root when the matrix has none.
// Later plan edits reach a running ledger through the governance routes.
func seed(ctx context.Context, seq *ledger.Sequencer, plan *config.Plan, boot BootstrapConfig, logger *slog.Logger) error {
	catalogue, err := plan.Catalogue()
	if err != nil {
		return err
	}
	return seq.Do(ctx, func(e *ledger.Engine) error {
		if len(e.Packages()) == 0 {
			for _, pkg := range catalogue {
				if err := e.SetPackage(ctx, pkg); err != nil {
					return fmt.Errorf("package %d: %w", pkg.Tier, err)
				}
			}
			if err := e.SetReinvestRates(ctx, plan.Reinvest); err != nil {
				return fmt.Errorf("reinvest rates: %w", err)
			}
			logger.Info("package catalogue seeded", slog.Int("packages", len(catalogue)))
		}
		if boot.Root == "" || e.Status().Roots > 0 {
			return nil
		}
		root, err := parseAddress(boot.Root)
		if err != nil {
			return err
		}
		if _, err := e.Register(ctx, registry.Request{ID: root, Tier: types.TierID(boot.Tier)}); err != nil {
			return fmt.Errorf("register root: %w", err)
		}
		logger.Info("bootstrap root registered", slog.String("root", root.Hex()))
		return nil
	})
}

func pruneIdempotency(ctx context.Context, store *IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Prune()
			if err != nil {
				logger.Warn("idempotency prune failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency records pruned", slog.Int("removed", removed))
			}
		}
	}
}

// eventLogger writes every committed event at debug level.
type eventLogger struct {
	logger *slog.Logger
}

func (l eventLogger) Emit(evt events.Event) {
	payload := evt.Event()
	attrs := make([]any, 0, len(payload.Attributes)+1)
	attrs = append(attrs, slog.String("type", payload.Type))
	for k, v := range payload.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	l.logger.Debug("ledger event", attrs...)
}
