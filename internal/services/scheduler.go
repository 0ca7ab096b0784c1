package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/declinewatch/declinewatch-go/internal/metrics"
	"github.com/declinewatch/declinewatch-go/internal/models"
)

// portfolioAuditor runs a full-portfolio audit. Satisfied by AuditService.
type portfolioAuditor interface {
	AuditAll(ctx context.Context) ([]models.FiscalSummary, error)
}

// findingsNotifier pushes audit findings to operators. Satisfied by
// NotifierService.
type findingsNotifier interface {
	NotifyAuditFindings(ctx context.Context, summaries []models.FiscalSummary) error
}

// SchedulerService re-audits the whole portfolio on a fixed interval so
// governance flags surface without anyone asking for them. A nil notifier
// runs the audits silently.
type SchedulerService struct {
	auditor  portfolioAuditor
	notifier findingsNotifier
	interval time.Duration
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSchedulerService builds a scheduler. interval <= 0 falls back to 24h,
// matching the monthly-to-daily cadence of PPRS refreshes.
func NewSchedulerService(auditor portfolioAuditor, notifier findingsNotifier, interval time.Duration, logger *logrus.Logger) *SchedulerService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		auditor:  auditor,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the periodic audit loop. The first run fires immediately
// so a fresh deployment reports its findings without waiting a full
// interval.
func (s *SchedulerService) Start() {
	s.logger.WithField("interval", s.interval.String()).Info("Starting audit scheduler")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runScheduled()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.runScheduled()
			}
		}
	}()
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (s *SchedulerService) Stop() {
	s.logger.Info("Stopping audit scheduler")
	s.cancel()
	s.wg.Wait()
}

// RunOnce triggers a portfolio audit outside the schedule, for the manual
// trigger endpoint.
func (s *SchedulerService) RunOnce(ctx context.Context) ([]models.FiscalSummary, error) {
	return s.run(ctx)
}

func (s *SchedulerService) runScheduled() {
	metrics.IncScheduledRun()
	if _, err := s.run(s.ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled portfolio audit failed")
	}
}

func (s *SchedulerService) run(ctx context.Context) ([]models.FiscalSummary, error) {
	start := time.Now()
	summaries, err := s.auditor.AuditAll(ctx)
	if err != nil {
		return nil, err
	}

	flagged := 0
	for _, summary := range summaries {
		if len(summary.Flags) > 0 {
			flagged++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"fields":  len(summaries),
		"flagged": flagged,
		"elapsed": time.Since(start).String(),
	}).Info("Portfolio audit complete")

	if s.notifier != nil {
		if err := s.notifier.NotifyAuditFindings(ctx, summaries); err != nil {
			s.logger.WithError(err).Warn("Audit findings notification failed")
		}
	}
	return summaries, nil
}
