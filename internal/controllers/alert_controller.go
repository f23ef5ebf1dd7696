package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/middleware"
	"portfolio-analytics-api/internal/services"
)

// AlertController exposes portfolio alert CRUD and on-demand checking.
type AlertController struct {
	service *services.AlertService
	logger  *logrus.Logger
}

func NewAlertController(service *services.AlertService, logger *logrus.Logger) *AlertController {
	return &AlertController{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the alert endpoints under the API root.
func (c *AlertController) RegisterRoutes(api *gin.RouterGroup) {
	alerts := api.Group("/alerts")
	alerts.POST("", c.Create)
	alerts.GET("/portfolio/:id", c.ListByPortfolio)
	alerts.GET("/user/active", c.Active)
	alerts.PUT("/:alert_id", c.Update)
	alerts.DELETE("/:alert_id", c.Delete)
	alerts.POST("/check/:id", c.Check)
}

func (c *AlertController) Create(ctx *gin.Context) {
	var req services.CreateAlertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := c.service.Create(ctx.Request.Context(), middleware.UserID(ctx), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusCreated, alert)
}

func (c *AlertController) ListByPortfolio(ctx *gin.Context) {
	enabledOnly := ctx.Query("enabled_only") == "true"

	alerts, err := c.service.ListByPortfolio(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"), enabledOnly)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (c *AlertController) Active(ctx *gin.Context) {
	alerts, err := c.service.ActiveAlerts(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (c *AlertController) Update(ctx *gin.Context) {
	var req services.UpdateAlertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := c.service.Update(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("alert_id"), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, alert)
}

func (c *AlertController) Delete(ctx *gin.Context) {
	if err := c.service.Delete(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("alert_id")); err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "alert deleted"})
}

func (c *AlertController) Check(ctx *gin.Context) {
	summary, err := c.service.Check(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, summary)
}
