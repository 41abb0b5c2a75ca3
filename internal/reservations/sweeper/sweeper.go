// Package sweeper drives the time-based part of the booking lifecycle:
// accepted bookings whose rental period has ended are completed on a
// schedule, releasing their calendar dates.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"wheelshare/internal/reservations/service"
	"wheelshare/pkg/logger"
)

const sweepTimeout = 2 * time.Minute

type Sweeper struct {
	cron    *cron.Cron
	service service.ReservationService
	log     *logger.Logger
}

// New schedules the completion sweep. The schedule accepts standard cron
// specs and descriptors like "@every 10m".
func New(schedule string, svc service.ReservationService, log *logger.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(),
		service: svc,
		log:     log,
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.log.Info("Completion sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Completion sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	completed, err := s.service.SweepExpired(ctx, time.Now())
	if err != nil {
		s.log.Error("Completion sweep failed", "error", err)
		return
	}
	if completed > 0 {
		s.log.Info("Completion sweep finished", "completed", completed)
	}
}
