// Package scheduler runs the periodic stock reconciliation.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"stationpos/backend/internal/domain"
)

type Reconciler interface {
	ReconcileStock(ctx context.Context) (domain.DriftReport, error)
}

type Scheduler struct {
	cron    *gocron.Scheduler
	rec     Reconciler
	timeout time.Duration
	logger  logrus.FieldLogger
}

// New schedules rec every interval. The first run happens right after Start.
func New(rec Reconciler, every time.Duration, logger logrus.FieldLogger) (*Scheduler, error) {
	if rec == nil {
		return nil, errors.New("scheduler: nil reconciler")
	}
	if every <= 0 {
		return nil, errors.New("scheduler: interval must be positive")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		rec:     rec,
		timeout: every,
		logger:  logger.WithField("module", "scheduler"),
	}
	s.cron.SingletonModeAll()
	if _, err := s.cron.Every(every).Tag("reconcile-stock").Do(s.reconcile); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.rec.ReconcileStock(ctx)
	if err != nil {
		s.logger.WithError(err).Error("stock reconciliation failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"checked": report.Checked,
		"drifts":  len(report.Drifts),
	}).Info("stock reconciliation finished")
}
