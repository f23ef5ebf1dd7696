package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/middleware"
	"portfolio-analytics-api/internal/models"
	"portfolio-analytics-api/internal/services"
)

// PortfolioController exposes portfolio and holding CRUD plus the
// transaction log over HTTP.
type PortfolioController struct {
	service *services.PortfolioService
	logger  *logrus.Logger
}

func NewPortfolioController(service *services.PortfolioService, logger *logrus.Logger) *PortfolioController {
	return &PortfolioController{
		service: service,
		logger:  logger,
	}
}

func (c *PortfolioController) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", c.Create)
	r.GET("", c.List)
	r.GET("/:id", c.Get)
	r.PUT("/:id", c.Update)
	r.DELETE("/:id", c.Delete)

	r.POST("/:id/holdings", c.AddHolding)
	r.PUT("/:id/holdings/:holdingId", c.UpdateHolding)
	r.DELETE("/:id/holdings/:holdingId", c.RemoveHolding)

	r.PUT("/:id/targets", c.SetTargetAllocations)
	r.GET("/:id/transactions", c.ListTransactions)
}

func (c *PortfolioController) Create(ctx *gin.Context) {
	var req services.CreatePortfolioRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	portfolio, err := c.service.Create(ctx.Request.Context(), middleware.UserID(ctx), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusCreated, portfolio)
}

func (c *PortfolioController) List(ctx *gin.Context) {
	portfolios, err := c.service.List(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"portfolios": portfolios,
		"count":      len(portfolios),
	})
}

func (c *PortfolioController) Get(ctx *gin.Context) {
	portfolio, err := c.service.Get(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, portfolio)
}

func (c *PortfolioController) Update(ctx *gin.Context) {
	var req services.UpdatePortfolioRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	portfolio, err := c.service.Update(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, portfolio)
}

func (c *PortfolioController) Delete(ctx *gin.Context) {
	if err := c.service.Delete(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id")); err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "portfolio deleted"})
}

func (c *PortfolioController) AddHolding(ctx *gin.Context) {
	var req services.AddHoldingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	holding, err := c.service.AddHolding(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusCreated, holding)
}

func (c *PortfolioController) UpdateHolding(ctx *gin.Context) {
	var req services.UpdateHoldingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	holding, err := c.service.UpdateHolding(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), ctx.Param("holdingId"), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, holding)
}

func (c *PortfolioController) RemoveHolding(ctx *gin.Context) {
	err := c.service.RemoveHolding(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), ctx.Param("holdingId"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "holding removed"})
}

func (c *PortfolioController) SetTargetAllocations(ctx *gin.Context) {
	var req services.TargetAllocationsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	portfolio, err := c.service.SetTargetAllocations(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, portfolio)
}

func (c *PortfolioController) ListTransactions(ctx *gin.Context) {
	filter := models.TransactionFilter{
		Symbol: ctx.Query("symbol"),
		Type:   ctx.Query("type"),
	}
	if start, err := time.Parse("2006-01-02", ctx.Query("start_date")); err == nil {
		filter.StartDate = &start
	}
	if end, err := time.Parse("2006-01-02", ctx.Query("end_date")); err == nil {
		filter.EndDate = &end
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "100"))

	transactions, err := c.service.ListTransactions(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), filter, limit)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"count":        len(transactions),
	})
}
