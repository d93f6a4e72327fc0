package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/americansport/gymgate/internal/gate/types"
)

// SessionSweeper closes sessions left open after the gym shuts.  It wakes on
// an interval and sweeps at most once per local calendar day, the first
// time it sees the gym closed for the day.
type SessionSweeper struct {
	gate      *GateService
	enabled   bool
	interval  time.Duration
	logger    zerolog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
	lastSwept string
}

type SweeperConfig struct {
	Enabled bool

	// Interval is how often the sweeper checks the clock.  Defaults to 5m.
	Interval time.Duration
}

// NewSessionSweeper creates a sweeper but does not start it.
func NewSessionSweeper(gate *GateService, cfg SweeperConfig, logger zerolog.Logger) *SessionSweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SessionSweeper{
		gate:     gate,
		enabled:  cfg.Enabled,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		done:     make(chan struct{}),
	}
}

// Start checks once immediately, then on every interval, until ctx is
// cancelled or Stop is called.
func (p *SessionSweeper) Start(ctx context.Context) {
	if !p.enabled {
		p.logger.Info().Msg("session sweeper disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info().Dur("interval", p.interval).Msg("session sweeper started")
}

// Stop signals the loop to exit and waits for it.
func (p *SessionSweeper) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// SweepNow closes every open session as of the current instant, whatever
// the time of day.
func (p *SessionSweeper) SweepNow(ctx context.Context) ([]types.AttendanceEvent, error) {
	return p.gate.CloseOpenSessions(ctx, p.gate.Now())
}

func (p *SessionSweeper) loop(ctx context.Context) {
	defer close(p.done)

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *SessionSweeper) tick(ctx context.Context) {
	now := p.gate.Now()
	if p.gate.tokens.hours.StatusAt(now).Reason != ClosedForDay {
		return
	}
	day := now.In(p.gate.Location()).Format(dateLayout)
	if day == p.lastSwept {
		return
	}

	closed, err := p.gate.CloseOpenSessions(ctx, now)
	if err != nil {
		p.logger.Error().Err(err).Msg("session sweep failed")
		return
	}
	p.lastSwept = day
	p.logger.Info().Str("day", day).Int("closed", len(closed)).Msg("session sweep done")
}
