package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/models"
)

type fakePortfolioRepo struct {
	portfolios []*models.Portfolio
	listErr    error
}

func (f *fakePortfolioRepo) Create(context.Context, *models.Portfolio) error { return nil }
func (f *fakePortfolioRepo) GetByID(context.Context, primitive.ObjectID) (*models.Portfolio, error) {
	return nil, nil
}
func (f *fakePortfolioRepo) ListByOwner(context.Context, string) ([]*models.Portfolio, error) {
	return nil, nil
}
func (f *fakePortfolioRepo) ListAll(_ context.Context, limit, offset int) ([]*models.Portfolio, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if offset >= len(f.portfolios) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.portfolios) {
		end = len(f.portfolios)
	}
	return f.portfolios[offset:end], nil
}
func (f *fakePortfolioRepo) Update(context.Context, *models.Portfolio) error { return nil }
func (f *fakePortfolioRepo) Delete(context.Context, primitive.ObjectID) error {
	return nil
}
func (f *fakePortfolioRepo) AddHolding(context.Context, primitive.ObjectID, models.Holding) error {
	return nil
}
func (f *fakePortfolioRepo) UpdateHolding(context.Context, primitive.ObjectID, models.Holding) error {
	return nil
}
func (f *fakePortfolioRepo) RemoveHolding(context.Context, primitive.ObjectID, string) error {
	return nil
}
func (f *fakePortfolioRepo) SetTargetAllocations(context.Context, primitive.ObjectID, map[string]models.TargetAllocation) error {
	return nil
}

type fakeHealthRepo struct {
	records []*models.HealthScoreRecord
}

func (f *fakeHealthRepo) Create(_ context.Context, record *models.HealthScoreRecord) error {
	f.records = append(f.records, record)
	return nil
}
func (f *fakeHealthRepo) ListByPortfolio(context.Context, primitive.ObjectID, int) ([]models.HealthScoreRecord, error) {
	return nil, nil
}
func (f *fakeHealthRepo) DeleteByPortfolio(context.Context, primitive.ObjectID) error { return nil }

type fakeAnalyzer struct {
	failFor map[string]bool
	empty   map[string]bool
}

func (f *fakeAnalyzer) Analyze(_ context.Context, portfolio *models.Portfolio, _ string) (*models.AnalysisResult, error) {
	id := portfolio.ID.Hex()
	if f.failFor[id] {
		return nil, errors.New("market data unavailable")
	}
	if f.empty[id] {
		return &models.AnalysisResult{PortfolioID: id, Message: "Portfolio has no holdings to analyze"}, nil
	}
	return &models.AnalysisResult{
		PortfolioID: id,
		TotalValue:  decimal.NewFromInt(1000),
		Metrics:     models.MetricSet{SharpeRatio: 1},
		Holdings: []models.HoldingAnalytics{
			{Symbol: "AAPL", CurrentValue: decimal.NewFromInt(1000), Sector: "Technology"},
		},
	}, nil
}

func newTestScheduler(t *testing.T, repo *fakePortfolioRepo, health *fakeHealthRepo, analyzer *fakeAnalyzer) *Scheduler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := New(repo, health, analyzer, config.SchedulerConfig{
		Enabled:             true,
		HealthScoreInterval: "0 1 * * *",
		TimeZone:            "UTC",
	}, logger)
	require.NoError(t, err)
	return s
}

func somePortfolios(n int) []*models.Portfolio {
	out := make([]*models.Portfolio, n)
	for i := range out {
		out[i] = &models.Portfolio{ID: primitive.NewObjectID(), OwnerID: "user-1"}
	}
	return out
}

func TestSnapshotRecordsEveryPortfolio(t *testing.T) {
	repo := &fakePortfolioRepo{portfolios: somePortfolios(3)}
	health := &fakeHealthRepo{}
	s := newTestScheduler(t, repo, health, &fakeAnalyzer{})

	s.snapshotHealthScores()

	assert.Len(t, health.records, 3)
	for i, record := range health.records {
		assert.Equal(t, repo.portfolios[i].ID, record.PortfolioID)
	}
}

func TestSnapshotSkipsEmptyPortfolios(t *testing.T) {
	repo := &fakePortfolioRepo{portfolios: somePortfolios(2)}
	health := &fakeHealthRepo{}
	analyzer := &fakeAnalyzer{empty: map[string]bool{repo.portfolios[0].ID.Hex(): true}}
	s := newTestScheduler(t, repo, health, analyzer)

	s.snapshotHealthScores()

	require.Len(t, health.records, 1)
	assert.Equal(t, repo.portfolios[1].ID, health.records[0].PortfolioID)
}

func TestSnapshotContinuesPastFailures(t *testing.T) {
	repo := &fakePortfolioRepo{portfolios: somePortfolios(3)}
	health := &fakeHealthRepo{}
	analyzer := &fakeAnalyzer{failFor: map[string]bool{repo.portfolios[1].ID.Hex(): true}}
	s := newTestScheduler(t, repo, health, analyzer)

	s.snapshotHealthScores()

	assert.Len(t, health.records, 2)
}

func TestSchedulerRejectsBadTimezone(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	_, err := New(&fakePortfolioRepo{}, &fakeHealthRepo{}, &fakeAnalyzer{}, config.SchedulerConfig{
		TimeZone: "Mars/Olympus",
	}, logger)

	assert.Error(t, err)
}
