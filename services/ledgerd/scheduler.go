package ledgerd

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	ledgererrors "leadfive/core/errors"
	"leadfive/core/ledger"
	"leadfive/core/types"
)

// PeriodID returns the distribution period containing t for interval.
func PeriodID(t time.Time, interval time.Duration) uint64 {
	secs := int64(interval / time.Second)
	if secs <= 0 {
		return 0
	}
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix / secs)
}

// Scheduler distributes each pool once per period. A pool whose eligible set
// is empty keeps its balance and is retried on the next period boundary.
type Scheduler struct {
	seq       *ledger.Sequencer
	intervals map[types.PoolName]time.Duration
	tick      time.Duration
	audit     *AuditLog
	logger    *slog.Logger
	now       func() time.Time

	attempted map[types.PoolName]uint64
}

// SchedulerOption customises the scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithSchedulerAudit records successful pool runs.
func WithSchedulerAudit(audit *AuditLog) SchedulerOption {
	return func(s *Scheduler) { s.audit = audit }
}

// NewScheduler constructs a scheduler over seq.
func NewScheduler(seq *ledger.Sequencer, cfg ScheduleConfig, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		seq:       seq,
		intervals: cfg.Intervals(),
		tick:      cfg.Tick.Duration,
		logger:    logger.With(slog.String("component", "scheduler")),
		now:       time.Now,
		attempted: make(map[types.PoolName]uint64),
	}
	if s.tick <= 0 {
		s.tick = time.Minute
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run evaluates the schedule every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce distributes every pool whose current period has not been attempted
// and returns the reports that committed.
func (s *Scheduler) RunOnce(ctx context.Context) []*types.DistributionReport {
	now := s.now()
	names := make([]types.PoolName, 0, len(s.intervals))
	for name := range s.intervals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	var reports []*types.DistributionReport
	for _, name := range names {
		period := PeriodID(now, s.intervals[name])
		if last, ok := s.attempted[name]; ok && last >= period {
			continue
		}
		var report *types.DistributionReport
		err := s.seq.Do(ctx, func(e *ledger.Engine) error {
			r, err := e.DistributePool(ctx, name, period)
			report = r
			return err
		})
		switch {
		case err == nil:
			s.attempted[name] = period
			reports = append(reports, report)
			s.logger.Info("pool distributed",
				slog.String("pool", string(name)),
				slog.Uint64("period", period),
				slog.String("amount", report.Amount.String()),
				slog.Int("recipients", len(report.Recipients())))
			if err := s.audit.Record(ctx, "", "distribute_pool", "scheduler", report); err != nil {
				s.logger.Warn("audit write failed", slog.String("pool", string(name)), slog.Any("error", err))
			}
		case errors.Is(err, ledgererrors.ErrEmptyEligibleSet):
			s.attempted[name] = period
			s.logger.Info("pool has no eligible participants; balance carried forward",
				slog.String("pool", string(name)),
				slog.Uint64("period", period))
		case errors.Is(err, ledgererrors.ErrAlreadyDistributed):
			s.attempted[name] = period
		case errors.Is(err, ledgererrors.ErrPaused):
			s.logger.Info("pool distribution deferred while paused", slog.String("pool", string(name)))
		default:
			s.logger.Error("pool distribution failed",
				slog.String("pool", string(name)),
				slog.Uint64("period", period),
				slog.Any("error", err))
		}
	}
	return reports
}
