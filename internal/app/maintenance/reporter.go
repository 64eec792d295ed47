package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/proctorrelay/internal/realtime"
	"github.com/charlesng35/proctorrelay/pkg/logger"
	"github.com/charlesng35/proctorrelay/pkg/metrics"
)

const (
	defaultStatsSpec   = "@every 1m"
	defaultPingTimeout = 5 * time.Second
)

// StatsSource reports live room statistics.
type StatsSource interface {
	Stats() realtime.DirectoryStats
}

// RoomCounter reports how many rooms are persisted.
type RoomCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Reporter periodically samples relay and storage state into Prometheus gauges.
// It only reads; rooms are never torn down here.
type Reporter struct {
	directory StatsSource
	rooms     RoomCounter
	ping      func(context.Context) error
	cron      *cron.Cron
	log       *zap.Logger
	schedule  string
	started   bool
}

// Option customises the Reporter.
type Option func(*Reporter)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(r *Reporter) {
		if c != nil {
			r.cron = c
		}
	}
}

// WithSchedule overrides the cron specification for sampling.
func WithSchedule(spec string) Option {
	return func(r *Reporter) {
		if spec != "" {
			r.schedule = spec
		}
	}
}

// WithRoomCounter enables the persisted room gauge.
func WithRoomCounter(rooms RoomCounter) Option {
	return func(r *Reporter) {
		r.rooms = rooms
	}
}

// WithPinger enables the database liveness gauge.
func WithPinger(ping func(context.Context) error) Option {
	return func(r *Reporter) {
		r.ping = ping
	}
}

// NewReporter constructs a Reporter sampling directory on the default schedule.
func NewReporter(directory StatsSource, opts ...Option) *Reporter {
	reporter := &Reporter{
		directory: directory,
		schedule:  defaultStatsSpec,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(reporter)
	}

	if reporter.cron == nil {
		reporter.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return reporter
}

// Start registers the sampling job and launches the scheduler.
func (r *Reporter) Start() error {
	if r.directory == nil && r.rooms == nil && r.ping == nil {
		return nil
	}

	if _, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.RunOnce(context.Background()); err != nil {
			r.log.Warn("stats sampling failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.started = true
	return nil
}

// Stop halts the scheduler. The returned context is done once a running sample has
// completed, immediately when the reporter never started.
func (r *Reporter) Stop() context.Context {
	if r.cron == nil || !r.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return r.cron.Stop()
}

// RunOnce samples every configured source. A failing source does not prevent the
// others from being sampled; all failures are returned together.
func (r *Reporter) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if r.directory != nil {
		stats := r.directory.Stats()
		metrics.Rooms.Set(float64(stats.Rooms))
		metrics.RoomParticipants.WithLabelValues("proctor").Set(float64(stats.Proctors))
		metrics.RoomParticipants.WithLabelValues("member").Set(float64(stats.Members))
		r.log.Debug("relay stats sampled",
			zap.Int("rooms", stats.Rooms),
			zap.Int("proctors", stats.Proctors),
			zap.Int("members", stats.Members),
			zap.Int("empty_rooms", stats.EmptyRooms),
		)
	}

	if r.rooms != nil {
		total, err := r.rooms.Count(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("count persisted rooms: %w", err))
		} else {
			metrics.PersistedRooms.Set(float64(total))
		}
	}

	if r.ping != nil {
		pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
		err := r.ping(pingCtx)
		cancel()
		if err != nil {
			metrics.DatabaseUp.Set(0)
			errs = multierr.Append(errs, fmt.Errorf("ping database: %w", err))
		} else {
			metrics.DatabaseUp.Set(1)
		}
	}

	return errs
}
