package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/middleware"
	"portfolio-analytics-api/internal/services"
	"portfolio-analytics-api/internal/views"
)

// AnalyticsController exposes the analysis pipeline: metrics, health score,
// rebalancing, scenarios, tax optimization, backtesting and correlation.
type AnalyticsController struct {
	service *services.AnalyticsService
	logger  *logrus.Logger
}

func NewAnalyticsController(service *services.AnalyticsService, logger *logrus.Logger) *AnalyticsController {
	return &AnalyticsController{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts per-portfolio analytics under the portfolio group
// and the scenario catalogue at the API root.
func (c *AnalyticsController) RegisterRoutes(portfolios, api *gin.RouterGroup) {
	portfolios.GET("/:id/analysis", c.Analyze)
	portfolios.GET("/:id/health-score", c.HealthScore)
	portfolios.GET("/:id/health-score/history", c.HealthScoreHistory)
	portfolios.GET("/:id/rebalance", c.Rebalance)
	portfolios.POST("/:id/scenario", c.Scenario)
	portfolios.GET("/:id/tax-report", c.TaxReport)
	portfolios.POST("/:id/backtest", c.Backtest)
	portfolios.GET("/:id/correlation", c.Correlation)
	portfolios.GET("/:id/risk-report", c.RiskReport)

	api.GET("/scenarios", c.Scenarios)
}

func (c *AnalyticsController) Analyze(ctx *gin.Context) {
	result, err := c.service.Analyze(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), ctx.Query("period"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *AnalyticsController) HealthScore(ctx *gin.Context) {
	score, err := c.service.HealthScore(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), ctx.Query("period"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, score)
}

func (c *AnalyticsController) HealthScoreHistory(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "30"))

	history, err := c.service.HealthScoreHistory(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), limit)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"history": history,
		"count":   len(history),
	})
}

func (c *AnalyticsController) Rebalance(ctx *gin.Context) {
	considerTolerance := ctx.DefaultQuery("consider_tolerance", "true") != "false"

	plan, err := c.service.Rebalance(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), considerTolerance)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, plan)
}

func (c *AnalyticsController) Scenario(ctx *gin.Context) {
	var req views.ScenarioRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := c.service.Scenario(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *AnalyticsController) Scenarios(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"scenarios": c.service.Scenarios()})
}

func (c *AnalyticsController) TaxReport(ctx *gin.Context) {
	report, err := c.service.TaxReport(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, report)
}

func (c *AnalyticsController) Backtest(ctx *gin.Context) {
	var req services.BacktestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := c.service.Backtest(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *AnalyticsController) Correlation(ctx *gin.Context) {
	report, err := c.service.Correlation(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), ctx.Query("period"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, report)
}

func (c *AnalyticsController) RiskReport(ctx *gin.Context) {
	narrative, err := c.service.RiskReport(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), ctx.Query("period"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, narrative)
}
