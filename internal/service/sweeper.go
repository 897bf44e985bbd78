package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// TokenPurger removes expired refresh tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper runs the hold-expiry sweep on a fixed interval.  Runs never
// overlap; a sweep still in progress when the next tick fires makes the
// scheduler skip that tick.
type Sweeper struct {
	scheduler gocron.Scheduler
	bookings  *BookingService
	tokens    TokenPurger
	log       *logrus.Entry
}

// NewSweeper schedules SweepExpired every interval and, when tokens is
// non-nil, an hourly purge of expired refresh tokens.
func NewSweeper(bookings *BookingService, tokens TokenPurger, interval time.Duration, log *logrus.Entry) (*Sweeper, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	sw := &Sweeper{scheduler: s, bookings: bookings, tokens: tokens, log: log.WithField("component", "sweeper")}

	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { sw.SweepOnce() }),
		gocron.WithName("hold-expiry"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}
	if tokens != nil {
		if _, err := s.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(sw.purgeTokens),
			gocron.WithName("refresh-token-purge"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, err
		}
	}
	return sw, nil
}

// Start begins scheduling.
func (s *Sweeper) Start() { s.scheduler.Start() }

// Shutdown stops scheduling and waits for running jobs.
func (s *Sweeper) Shutdown() error { return s.scheduler.Shutdown() }

// SweepOnce runs one sweep and returns how many bookings it expired.
func (s *Sweeper) SweepOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.bookings.SweepExpired(ctx)
	if err != nil {
		s.log.WithError(err).Error("hold-expiry sweep failed")
	}
	return n
}

func (s *Sweeper) purgeTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.tokens.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("refresh token purge failed")
		return
	}
	if n > 0 {
		s.log.WithField("purged", n).Info("purged expired refresh tokens")
	}
}
