// Package scheduler runs background jobs, currently the nightly health score
// snapshot that feeds the score history endpoint.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/repositories"
	"portfolio-analytics-api/internal/views"
)

const snapshotPageSize = 50

// AnalyzerInterface is the slice of the analytics engine the scheduler needs.
type AnalyzerInterface interface {
	Analyze(ctx context.Context, portfolio *models.Portfolio, period string) (*models.AnalysisResult, error)
}

// Scheduler owns the cron runner and the snapshot job.
type Scheduler struct {
	cron          *cron.Cron
	portfolioRepo repositories.PortfolioRepository
	healthRepo    repositories.HealthScoreRepository
	engine        AnalyzerInterface
	cfg           config.SchedulerConfig
	logger        *logrus.Logger
}

func New(
	portfolioRepo repositories.PortfolioRepository,
	healthRepo repositories.HealthScoreRepository,
	engine AnalyzerInterface,
	cfg config.SchedulerConfig,
	logger *logrus.Logger,
) (*Scheduler, error) {
	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cron:          cron.New(cron.WithLocation(location)),
		portfolioRepo: portfolioRepo,
		healthRepo:    healthRepo,
		engine:        engine,
		cfg:           cfg,
		logger:        logger,
	}, nil
}

// Start registers the snapshot job and begins the cron loop.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduler disabled, skipping health score snapshots")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.HealthScoreInterval, s.snapshotHealthScores); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.HealthScoreInterval).Info("Health score snapshot job scheduled")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// snapshotHealthScores walks every portfolio in pages and records a health
// score for each. Failures are logged per portfolio so one bad portfolio
// cannot starve the rest of the run.
func (s *Scheduler) snapshotHealthScores() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	start := time.Now()
	scored, failed := 0, 0

	for offset := 0; ; offset += snapshotPageSize {
		portfolios, err := s.portfolioRepo.ListAll(ctx, snapshotPageSize, offset)
		if err != nil {
			s.logger.WithError(err).Error("Health score snapshot aborted: failed to list portfolios")
			return
		}
		if len(portfolios) == 0 {
			break
		}

		for _, portfolio := range portfolios {
			if err := s.snapshotOne(ctx, portfolio); err != nil {
				failed++
				s.logger.WithError(err).WithField("portfolio_id", portfolio.ID.Hex()).Warn("Health score snapshot failed")
				continue
			}
			scored++
		}

		if len(portfolios) < snapshotPageSize {
			break
		}
	}

	s.logger.WithFields(logrus.Fields{
		"scored":      scored,
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Health score snapshot run finished")
}

func (s *Scheduler) snapshotOne(ctx context.Context, portfolio *models.Portfolio) error {
	result, err := s.engine.Analyze(ctx, portfolio, "")
	if err != nil {
		return err
	}
	if result.Message != "" {
		// Empty portfolios have no score worth recording.
		return nil
	}

	record := views.ComputeHealthScore(result).Record()
	record.PortfolioID = portfolio.ID
	return s.healthRepo.Create(ctx, record)
}
