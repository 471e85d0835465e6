// Package scheduler reloads the station catalog on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSpec = "@every 12h"

// Reloader is the part of the catalog the scheduler drives.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Scheduler struct {
	c        *cron.Cron
	spec     string
	reloader Reloader
	logger   *slog.Logger
	timeout  time.Duration
}

// New parses spec (standard 5-field or a descriptor such as "@every 6h") and
// registers the reload job. Overlapping ticks are skipped.
func New(logger *slog.Logger, spec string, reloader Reloader) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	cl := cronLogger{logger}
	s := &Scheduler{
		c:        cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		spec:     spec,
		reloader: reloader,
		logger:   logger,
		timeout:  5 * time.Minute,
	}
	if _, err := s.c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parsing cron spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info("scheduled catalog reload")
	if err := s.reloader.Reload(ctx); err != nil {
		s.logger.Warn("scheduled catalog reload interrupted", "error", err)
	}
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running reload to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting catalog scheduler", "cron", s.spec)
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
	return nil
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
