package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgererrors "leadfive/core/errors"
	"leadfive/core/events"
	"leadfive/core/state"
	"leadfive/core/types"
	"leadfive/native/capping"
	"leadfive/native/common"
	"leadfive/native/compensation"
	"leadfive/native/matrix"
	"leadfive/native/pools"
	"leadfive/native/registry"
	"leadfive/native/withdrawal"
	"leadfive/observability"
	telemetry "leadfive/observability/otel"
	"leadfive/storage"
)

// Config bundles the parameters of every ledger component.
type Config struct {
	Matrix       matrix.Params
	Compensation compensation.Params
	Pools        pools.Params
	Withdrawal   withdrawal.Params
}

// DefaultConfig returns the published plan parameters.
func DefaultConfig() Config {
	return Config{
		Matrix:       matrix.DefaultParams(),
		Compensation: compensation.DefaultParams(),
		Pools:        pools.DefaultParams(),
		Withdrawal:   withdrawal.DefaultParams(),
	}
}

// Validate checks every component configuration.
func (c Config) Validate() error {
	if err := c.Matrix.Validate(); err != nil {
		return fmt.Errorf("matrix: %w", err)
	}
	if err := c.Compensation.Validate(); err != nil {
		return fmt.Errorf("compensation: %w", err)
	}
	if err := c.Pools.Validate(); err != nil {
		return fmt.Errorf("pools: %w", err)
	}
	if err := c.Withdrawal.Validate(); err != nil {
		return fmt.Errorf("withdrawal: %w", err)
	}
	return nil
}

// Engine is the single-writer ledger state machine. It holds no locks: every
// call must be serialised by the owner, normally through a Sequencer.
type Engine struct {
	ledger   *state.Ledger
	cfg      Config
	registry *registry.Registry
	comp     *compensation.Engine
	dist     *pools.Distributor
	payouts  *withdrawal.Processor

	db      storage.Database
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customises the engine.
type Option func(*Engine)

// WithStore persists every committed changeset to db before it is applied.
func WithStore(db storage.Database) Option {
	return func(e *Engine) { e.db = db }
}

// WithEmitter receives committed events in emission order.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics overrides the metrics registry.
func WithMetrics(m *observability.LedgerMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock sets the function used to stamp registrations.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.now = clock }
}

// New wires the ledger components around l.
func New(l *state.Ledger, cfg Config, opts ...Option) (*Engine, error) {
	if l == nil {
		l = state.NewLedger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enforcer := capping.NewCapEnforcer(cfg.Compensation.CapMultiplier)
	accumulator := pools.NewAccumulator()
	comp := compensation.NewEngine(cfg.Compensation, enforcer, accumulator)
	e := &Engine{
		ledger:   l,
		cfg:      cfg,
		registry: registry.New(matrix.NewPlacer(cfg.Matrix)),
		comp:     comp,
		dist:     pools.NewDistributor(cfg.Pools, enforcer, accumulator, cfg.Compensation.Policy == compensation.ForfeitToHelpPool),
		payouts:  withdrawal.NewProcessor(cfg.Withdrawal, comp),
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		tracer:   telemetry.Tracer(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = e.logger.With(slog.String("component", "ledger"))
	e.refreshGauges()
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Contribution describes a package purchase. Referrer is only consulted when
// the payer is not yet registered, in which case registration and purchase
// commit together.
type Contribution struct {
	Payer    types.Address
	Tier     types.TierID
	Referrer *types.Address
}

// Register admits a participant with zero balances and places it.
func (e *Engine) Register(ctx context.Context, req registry.Request) (*types.Participant, error) {
	var out *types.Participant
	err := e.apply(ctx, "register", func(b *state.Batch) error {
		if req.Timestamp == 0 {
			req.Timestamp = e.now().Unix()
		}
		p, err := e.registry.Register(b, req)
		if err != nil {
			return err
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// Contribute records a package purchase and distributes its price.
func (e *Engine) Contribute(ctx context.Context, req Contribution) (*types.DistributionReport, error) {
	var report *types.DistributionReport
	err := e.apply(ctx, "contribute", func(b *state.Batch) error {
		if !b.HasParticipant(req.Payer) {
			if req.Referrer == nil {
				return ledgererrors.ErrUserNotRegistered.With("payer", "%s", req.Payer.Hex())
			}
			if _, err := e.registry.Register(b, registry.Request{
				ID:        req.Payer,
				Referrer:  req.Referrer,
				Tier:      req.Tier,
				Timestamp: e.now().Unix(),
			}); err != nil {
				return err
			}
		}
		pkg, ok := b.Package(req.Tier)
		if !ok {
			return ledgererrors.ErrInvalidPackage.With("tier", "%d", req.Tier)
		}
		r, err := e.comp.Contribute(b, req.Payer, pkg)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	return report, err
}

// Withdraw splits the participant's withdrawable balance.
func (e *Engine) Withdraw(ctx context.Context, id types.Address) (*types.WithdrawalEvent, error) {
	var out *types.WithdrawalEvent
	err := e.apply(ctx, "withdraw", func(b *state.Batch) error {
		w, err := e.payouts.Withdraw(b, id)
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}

// DistributePool pays out a pool for period.
func (e *Engine) DistributePool(ctx context.Context, name types.PoolName, period uint64) (*types.DistributionReport, error) {
	var report *types.DistributionReport
	err := e.apply(ctx, "distribute_pool", func(b *state.Batch) error {
		r, err := e.dist.Distribute(b, name, period)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	return report, err
}

// SetPackage defines or replaces a package. The rate table must sum to 100%.
func (e *Engine) SetPackage(ctx context.Context, pkg *types.Package) error {
	return e.apply(ctx, "set_package", func(b *state.Batch) error {
		if pkg == nil {
			return ledgererrors.ErrInvalidPackage.With("package", "nil")
		}
		if err := pkg.Rates.Validate(); err != nil {
			return ledgererrors.ErrInvalidRateTable.With("rates", "%v", err)
		}
		if err := pkg.Validate(); err != nil {
			return ledgererrors.ErrInvalidPackage.With("package", "%v", err)
		}
		if err := checkPrice(pkg); err != nil {
			return err
		}
		b.PutPackage(pkg.Clone())
		b.AppendEvent(events.PackageUpdated{Tier: pkg.Tier, Price: types.CopyAmount(pkg.Price), Active: pkg.Active})
		return nil
	})
}

// SetReinvestRates replaces the reinvestment rate table.
func (e *Engine) SetReinvestRates(ctx context.Context, rates types.RateTable) error {
	return e.apply(ctx, "set_reinvest_rates", func(b *state.Batch) error {
		if err := rates.Validate(); err != nil {
			return ledgererrors.ErrInvalidRateTable.With("rates", "%v", err)
		}
		b.SetReinvestRates(rates)
		return nil
	})
}

// SetActive toggles a participant. Inactive participants receive no credits
// and cannot refer or purchase.
func (e *Engine) SetActive(ctx context.Context, id types.Address, active bool) error {
	return e.apply(ctx, "set_active", func(b *state.Batch) error {
		p, ok := b.Participant(id)
		if !ok {
			return ledgererrors.ErrUserNotRegistered.With("participant", "%s", id.Hex())
		}
		if p.Active == active {
			return nil
		}
		p.Active = active
		b.AppendEvent(events.ParticipantStatus{ID: id, Active: active})
		return nil
	})
}

// SetPaused engages or releases the ledger-wide pause switch.
func (e *Engine) SetPaused(ctx context.Context, paused bool) error {
	return e.apply(ctx, "set_paused", func(b *state.Batch) error {
		if b.Paused() == paused {
			return nil
		}
		b.SetPaused(paused)
		b.AppendEvent(events.LedgerPaused{Paused: paused})
		return nil
	})
}

// apply runs fn against a fresh batch and either commits every staged effect
// or discards them all.
func (e *Engine) apply(ctx context.Context, op string, fn func(*state.Batch) error) error {
	_, span := e.tracer.Start(ctx, "ledger."+op)
	defer span.End()
	start := time.Now()

	b := e.ledger.Begin()
	err := func() error {
		if op != "set_paused" {
			if err := common.Guard(b, op); err != nil {
				return err
			}
		}
		if err := fn(b); err != nil {
			return err
		}
		cs := b.Changeset()
		if err := state.Persist(e.db, e.ledger, cs); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		return nil
	}()
	if err != nil {
		b.Discard()
		e.fail(span, op, err, start)
		return err
	}

	staged := b.Events()
	cs := b.Commit()
	for _, evt := range staged {
		e.record(evt)
		e.emitter.Emit(evt)
	}
	e.refreshGauges()
	e.metrics.ObserveOperation(op, "ok", time.Since(start))
	span.SetAttributes(attribute.Int64("ledger.version", int64(cs.Version)), attribute.Int("ledger.events", len(staged)))
	e.logger.Debug("ledger operation committed",
		slog.String("op", op),
		slog.Uint64("version", cs.Version),
		slog.Int("events", len(staged)))
	return nil
}

func (e *Engine) fail(span trace.Span, op string, err error, start time.Time) {
	kind := ledgererrors.KindOf(err).String()
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	e.metrics.ObserveOperation(op, kind, time.Since(start))
	if ledgererrors.IsInvariant(err) {
		e.metrics.RecordInvariantViolation()
		e.logger.Error("ledger invariant violated; operation aborted",
			slog.String("op", op),
			slog.Any("error", err))
		return
	}
	e.logger.Debug("ledger operation rejected",
		slog.String("op", op),
		slog.String("reason", kind),
		slog.Any("error", err))
}

func (e *Engine) record(evt events.Event) {
	observability.Events().RecordEmit(evt.EventType())
	switch ev := evt.(type) {
	case events.CommissionCredited:
		e.metrics.RecordCredit(string(ev.Category), ev.Amount)
	case events.CreditForfeited:
		e.metrics.RecordForfeit(ev.Reason, ev.Amount)
	}
}

func (e *Engine) refreshGauges() {
	if e.metrics == nil {
		return
	}
	for _, pool := range e.ledger.Pools() {
		e.metrics.SetPoolBalance(string(pool.Name), pool.Balance)
	}
	e.metrics.SetParticipants(e.ledger.ParticipantCount())
	e.metrics.SetPaused(e.ledger.Paused())
}

func checkPrice(pkg *types.Package) error {
	if pkg.Price == nil || pkg.Price.Sign() <= 0 {
		return ledgererrors.ErrInvalidAmount.With("price", "must be positive")
	}
	if pkg.Price.BitLen() > 256 {
		return ledgererrors.ErrInvalidAmount.With("price", "exceeds 256 bits")
	}
	return nil
}

// Participant returns a copy of the participant with its rank recomputed
// from current counters.
func (e *Engine) Participant(id types.Address) (*types.Participant, error) {
	p, ok := e.ledger.Participant(id)
	if !ok {
		return nil, ledgererrors.ErrUserNotRegistered.With("participant", "%s", id.Hex())
	}
	p.Rank = e.dist.Params().RankOf(p)
	return p, nil
}

// Genealogy returns the placement neighbourhood of id with levels downline
// levels.
func (e *Engine) Genealogy(id types.Address, levels uint64) (*matrix.Genealogy, error) {
	g, ok := matrix.BuildGenealogy(e.ledger, id, e.cfg.Matrix.MaxDepth, levels)
	if !ok {
		return nil, ledgererrors.ErrUserNotRegistered.With("participant", "%s", id.Hex())
	}
	return g, nil
}

// Pools returns every pool in deterministic order.
func (e *Engine) Pools() []*types.Pool { return e.ledger.Pools() }

// Package returns the definition of tier.
func (e *Engine) Package(tier types.TierID) (*types.Package, error) {
	pkg, ok := e.ledger.Package(tier)
	if !ok {
		return nil, ledgererrors.ErrInvalidPackage.With("tier", "%d", tier)
	}
	return pkg, nil
}

// Packages returns every package ordered by tier.
func (e *Engine) Packages() []*types.Package { return e.ledger.Packages() }

// ReinvestRates returns the active reinvestment table.
func (e *Engine) ReinvestRates() types.RateTable { return e.ledger.ReinvestRates() }

// Status summarises the ledger.
type Status struct {
	Version      uint64 `json:"version"`
	Participants int    `json:"participants"`
	Nodes        uint64 `json:"nodes"`
	Roots        int    `json:"roots"`
	Paused       bool   `json:"paused"`
	Digest       string `json:"digest"`
}

// Status returns the ledger summary including the placement digest.
func (e *Engine) Status() Status {
	digest := e.ledger.GenealogyDigest()
	return Status{
		Version:      e.ledger.Version(),
		Participants: e.ledger.ParticipantCount(),
		Nodes:        e.ledger.NodeCount(),
		Roots:        len(e.ledger.Roots()),
		Paused:       e.ledger.Paused(),
		Digest:       hex.EncodeToString(digest[:]),
	}
}
