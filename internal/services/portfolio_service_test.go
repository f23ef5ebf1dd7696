package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/repositories"
)

// Mock implementations

type MockPortfolioRepository struct {
	mock.Mock
}

func (m *MockPortfolioRepository) Create(ctx context.Context, portfolio *models.Portfolio) error {
	args := m.Called(ctx, portfolio)
	return args.Error(0)
}

func (m *MockPortfolioRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Portfolio, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Portfolio), args.Error(1)
}

func (m *MockPortfolioRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Portfolio, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Portfolio), args.Error(1)
}

func (m *MockPortfolioRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Portfolio), args.Error(1)
}

func (m *MockPortfolioRepository) Update(ctx context.Context, portfolio *models.Portfolio) error {
	args := m.Called(ctx, portfolio)
	return args.Error(0)
}

func (m *MockPortfolioRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPortfolioRepository) AddHolding(ctx context.Context, portfolioID primitive.ObjectID, holding models.Holding) error {
	args := m.Called(ctx, portfolioID, holding)
	return args.Error(0)
}

func (m *MockPortfolioRepository) UpdateHolding(ctx context.Context, portfolioID primitive.ObjectID, holding models.Holding) error {
	args := m.Called(ctx, portfolioID, holding)
	return args.Error(0)
}

func (m *MockPortfolioRepository) RemoveHolding(ctx context.Context, portfolioID primitive.ObjectID, holdingID string) error {
	args := m.Called(ctx, portfolioID, holdingID)
	return args.Error(0)
}

func (m *MockPortfolioRepository) SetTargetAllocations(ctx context.Context, portfolioID primitive.ObjectID, allocations map[string]models.TargetAllocation) error {
	args := m.Called(ctx, portfolioID, allocations)
	return args.Error(0)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) ListByPortfolio(ctx context.Context, portfolioID primitive.ObjectID, filter models.TransactionFilter, limit int) ([]models.Transaction, error) {
	args := m.Called(ctx, portfolioID, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) DeleteByPortfolio(ctx context.Context, portfolioID primitive.ObjectID) error {
	args := m.Called(ctx, portfolioID)
	return args.Error(0)
}

type MockHealthScoreRepository struct {
	mock.Mock
}

func (m *MockHealthScoreRepository) Create(ctx context.Context, record *models.HealthScoreRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockHealthScoreRepository) ListByPortfolio(ctx context.Context, portfolioID primitive.ObjectID, limit int) ([]models.HealthScoreRecord, error) {
	args := m.Called(ctx, portfolioID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HealthScoreRecord), args.Error(1)
}

func (m *MockHealthScoreRepository) DeleteByPortfolio(ctx context.Context, portfolioID primitive.ObjectID) error {
	args := m.Called(ctx, portfolioID)
	return args.Error(0)
}

type MockMarketClient struct {
	mock.Mock
}

func (m *MockMarketClient) GetQuote(ctx context.Context, symbol string) (*models.InstrumentInfo, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InstrumentInfo), args.Error(1)
}

func (m *MockMarketClient) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	args := m.Called(ctx, symbol, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PricePoint), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(tx *models.Transaction) error {
	args := m.Called(tx)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	args := m.Called(ctx, pattern)
	return args.Error(0)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type serviceMocks struct {
	portfolioRepo   *MockPortfolioRepository
	transactionRepo *MockTransactionRepository
	healthRepo      *MockHealthScoreRepository
	alertRepo       *MockAlertRepository
	quotes          *MockMarketClient
	publisher       *MockPublisher
	cache           *MockCache
}

func newPortfolioService() (*PortfolioService, *serviceMocks) {
	m := &serviceMocks{
		portfolioRepo:   new(MockPortfolioRepository),
		transactionRepo: new(MockTransactionRepository),
		healthRepo:      new(MockHealthScoreRepository),
		alertRepo:       new(MockAlertRepository),
		quotes:          new(MockMarketClient),
		publisher:       new(MockPublisher),
		cache:           new(MockCache),
	}
	svc := NewPortfolioService(m.portfolioRepo, m.transactionRepo, m.healthRepo, m.alertRepo, m.quotes, m.publisher, m.cache, testLogger())
	return svc, m
}

func storedPortfolio(ownerID string, holdings ...models.Holding) *models.Portfolio {
	return &models.Portfolio{
		ID:       primitive.NewObjectID(),
		OwnerID:  ownerID,
		Name:     "Growth",
		Holdings: holdings,
	}
}

func TestCreatePortfolio(t *testing.T) {
	svc, m := newPortfolioService()
	m.portfolioRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Portfolio")).Return(nil)

	portfolio, err := svc.Create(context.Background(), "user-1", CreatePortfolioRequest{Name: "Growth"})

	require.NoError(t, err)
	assert.Equal(t, "user-1", portfolio.OwnerID)
	assert.NotNil(t, portfolio.Holdings)
	m.portfolioRepo.AssertExpectations(t)
}

func TestGetPortfolioRejectsForeignOwner(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)

	_, err := svc.Get(context.Background(), "user-2", stored.ID.Hex())

	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestGetPortfolioInvalidID(t *testing.T) {
	svc, _ := newPortfolioService()

	_, err := svc.Get(context.Background(), "user-1", "not-an-object-id")

	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestGetPortfolioNotFound(t *testing.T) {
	svc, m := newPortfolioService()
	id := primitive.NewObjectID()
	m.portfolioRepo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	_, err := svc.Get(context.Background(), "user-1", id.Hex())

	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestAddHoldingWithExplicitPrice(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	price := decimal.NewFromFloat(150.25)

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.portfolioRepo.On("AddHolding", mock.Anything, stored.ID, mock.AnythingOfType("models.Holding")).Return(nil)
	m.transactionRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.cache.On("DeleteByPattern", mock.Anything, "analysis:"+stored.ID.Hex()+":*").Return(nil)

	holding, err := svc.AddHolding(context.Background(), "user-1", stored.ID.Hex(), AddHoldingRequest{
		Symbol:        "AAPL",
		Shares:        decimal.NewFromInt(10),
		PurchasePrice: &price,
	})

	require.NoError(t, err)
	assert.Equal(t, "AAPL", holding.Symbol)
	assert.True(t, holding.PurchasePrice.Equal(price))
	assert.NotEmpty(t, holding.ID)
	m.quotes.AssertNotCalled(t, "GetQuote")
	m.transactionRepo.AssertExpectations(t)
	m.cache.AssertExpectations(t)
}

func TestAddHoldingResolvesQuotePrice(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.quotes.On("GetQuote", mock.Anything, "MSFT").Return(&models.InstrumentInfo{
		Symbol: "MSFT",
		Price:  decimal.NewFromInt(300),
	}, nil)
	m.portfolioRepo.On("AddHolding", mock.Anything, stored.ID, mock.AnythingOfType("models.Holding")).Return(nil)
	m.transactionRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.cache.On("DeleteByPattern", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	holding, err := svc.AddHolding(context.Background(), "user-1", stored.ID.Hex(), AddHoldingRequest{
		Symbol: "MSFT",
		Shares: decimal.NewFromInt(5),
	})

	require.NoError(t, err)
	assert.True(t, holding.PurchasePrice.Equal(decimal.NewFromInt(300)))
	m.quotes.AssertExpectations(t)
}

func TestAddHoldingResolvesHistoricalClose(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	purchaseDate := time.Now().UTC().AddDate(0, -2, 0)

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.quotes.On("GetHistory", mock.Anything, "AAPL", mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).
		Return([]models.PricePoint{
			{Date: purchaseDate.AddDate(0, 0, -2), Close: decimal.NewFromInt(140)},
			{Date: purchaseDate, Close: decimal.NewFromInt(142)},
		}, nil)
	m.portfolioRepo.On("AddHolding", mock.Anything, stored.ID, mock.AnythingOfType("models.Holding")).Return(nil)
	m.transactionRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.cache.On("DeleteByPattern", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	holding, err := svc.AddHolding(context.Background(), "user-1", stored.ID.Hex(), AddHoldingRequest{
		Symbol:       "AAPL",
		Shares:       decimal.NewFromInt(4),
		PurchaseDate: &purchaseDate,
	})

	require.NoError(t, err)
	assert.True(t, holding.PurchasePrice.Equal(decimal.NewFromInt(142)))
	m.quotes.AssertNotCalled(t, "GetQuote")
}

func TestAddHoldingUnknownSymbol(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.quotes.On("GetQuote", mock.Anything, "NOPE").Return(nil, nil)

	_, err := svc.AddHolding(context.Background(), "user-1", stored.ID.Hex(), AddHoldingRequest{
		Symbol: "NOPE",
		Shares: decimal.NewFromInt(1),
	})

	assert.ErrorIs(t, err, ErrSymbolNotFound)
	m.portfolioRepo.AssertNotCalled(t, "AddHolding")
}

func TestAddHoldingRejectsNonPositiveShares(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)

	_, err := svc.AddHolding(context.Background(), "user-1", stored.ID.Hex(), AddHoldingRequest{
		Symbol: "AAPL",
		Shares: decimal.Zero,
	})

	assert.ErrorIs(t, err, ErrInvalidHolding)
}

func TestAddHoldingSurvivesTransactionLogFailure(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	price := decimal.NewFromInt(100)

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.portfolioRepo.On("AddHolding", mock.Anything, stored.ID, mock.AnythingOfType("models.Holding")).Return(nil)
	m.transactionRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).Return(errors.New("mongo down"))
	m.cache.On("DeleteByPattern", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	_, err := svc.AddHolding(context.Background(), "user-1", stored.ID.Hex(), AddHoldingRequest{
		Symbol:        "AAPL",
		Shares:        decimal.NewFromInt(1),
		PurchasePrice: &price,
	})

	require.NoError(t, err)
	m.publisher.AssertNotCalled(t, "Publish")
}

func TestUpdateHoldingRecordsPreviousValues(t *testing.T) {
	svc, m := newPortfolioService()
	existing := models.Holding{
		ID:            "h-1",
		Symbol:        "AAPL",
		Shares:        decimal.NewFromInt(10),
		PurchasePrice: decimal.NewFromInt(100),
		PurchaseDate:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	stored := storedPortfolio("user-1", existing)

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.portfolioRepo.On("UpdateHolding", mock.Anything, stored.ID, mock.AnythingOfType("models.Holding")).Return(nil)
	var logged *models.Transaction
	m.transactionRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).
		Run(func(args mock.Arguments) { logged = args.Get(1).(*models.Transaction) }).
		Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.cache.On("DeleteByPattern", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	newShares := decimal.NewFromInt(15)
	holding, err := svc.UpdateHolding(context.Background(), "user-1", stored.ID.Hex(), "h-1", UpdateHoldingRequest{
		Shares: &newShares,
	})

	require.NoError(t, err)
	assert.True(t, holding.Shares.Equal(newShares))
	require.NotNil(t, logged)
	assert.Equal(t, models.TransactionEdit, logged.Type)
	require.NotNil(t, logged.PreviousShares)
	assert.True(t, logged.PreviousShares.Equal(decimal.NewFromInt(10)))
}

func TestUpdateHoldingNotFound(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)

	_, err := svc.UpdateHolding(context.Background(), "user-1", stored.ID.Hex(), "missing", UpdateHoldingRequest{})

	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRemoveHoldingLogsDeleteTransaction(t *testing.T) {
	svc, m := newPortfolioService()
	existing := models.Holding{ID: "h-1", Symbol: "AAPL", Shares: decimal.NewFromInt(10), PurchasePrice: decimal.NewFromInt(100)}
	stored := storedPortfolio("user-1", existing)

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.portfolioRepo.On("RemoveHolding", mock.Anything, stored.ID, "h-1").Return(nil)
	var logged *models.Transaction
	m.transactionRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Transaction")).
		Run(func(args mock.Arguments) { logged = args.Get(1).(*models.Transaction) }).
		Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.cache.On("DeleteByPattern", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	err := svc.RemoveHolding(context.Background(), "user-1", stored.ID.Hex(), "h-1")

	require.NoError(t, err)
	require.NotNil(t, logged)
	assert.Equal(t, models.TransactionDelete, logged.Type)
	assert.Equal(t, "AAPL", logged.Symbol)
}

func TestDeletePortfolioCleansUpHistory(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.portfolioRepo.On("Delete", mock.Anything, stored.ID).Return(nil)
	m.transactionRepo.On("DeleteByPortfolio", mock.Anything, stored.ID).Return(nil)
	m.healthRepo.On("DeleteByPortfolio", mock.Anything, stored.ID).Return(nil)
	m.alertRepo.On("DeleteByPortfolio", mock.Anything, stored.ID).Return(nil)
	m.cache.On("DeleteByPattern", mock.Anything, "analysis:"+stored.ID.Hex()+":*").Return(nil)

	err := svc.Delete(context.Background(), "user-1", stored.ID.Hex())

	require.NoError(t, err)
	m.transactionRepo.AssertExpectations(t)
	m.healthRepo.AssertExpectations(t)
}

func TestSetTargetAllocations(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	targets := map[string]models.TargetAllocation{
		"AAPL": {TargetPercent: 60, Tolerance: 5},
		"MSFT": {TargetPercent: 40, Tolerance: 5},
	}

	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)
	m.portfolioRepo.On("SetTargetAllocations", mock.Anything, stored.ID, targets).Return(nil)

	_, err := svc.SetTargetAllocations(context.Background(), "user-1", stored.ID.Hex(), TargetAllocationsRequest{Allocations: targets})

	require.NoError(t, err)
	m.portfolioRepo.AssertExpectations(t)
}

func TestSetTargetAllocationsRejectsOverhundred(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)

	_, err := svc.SetTargetAllocations(context.Background(), "user-1", stored.ID.Hex(), TargetAllocationsRequest{
		Allocations: map[string]models.TargetAllocation{
			"AAPL": {TargetPercent: 70},
			"MSFT": {TargetPercent: 50},
		},
	})

	assert.ErrorIs(t, err, ErrInvalidAllocation)
	m.portfolioRepo.AssertNotCalled(t, "SetTargetAllocations")
}

func TestSetTargetAllocationsRejectsNonPositive(t *testing.T) {
	svc, m := newPortfolioService()
	stored := storedPortfolio("user-1")
	m.portfolioRepo.On("GetByID", mock.Anything, stored.ID).Return(stored, nil)

	_, err := svc.SetTargetAllocations(context.Background(), "user-1", stored.ID.Hex(), TargetAllocationsRequest{
		Allocations: map[string]models.TargetAllocation{
			"AAPL": {TargetPercent: -10},
		},
	})

	assert.ErrorIs(t, err, ErrInvalidAllocation)
}
