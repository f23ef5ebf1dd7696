package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-analytics-api/internal/analytics"
	"portfolio-analytics-api/internal/repositories"
	"portfolio-analytics-api/internal/services"
	"portfolio-analytics-api/internal/views"
)

// respondError maps service-layer errors onto HTTP status codes. Anything
// unrecognized is a 500 and gets logged with its request id.
func respondError(ctx *gin.Context, logger *logrus.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidID),
		errors.Is(err, services.ErrInvalidHolding),
		errors.Is(err, services.ErrInvalidAllocation),
		errors.Is(err, services.ErrSymbolNotFound),
		errors.Is(err, services.ErrInvalidAlert),
		errors.Is(err, services.ErrInvalidPeriod),
		errors.Is(err, services.ErrInvalidDateRange),
		errors.Is(err, analytics.ErrNoHoldings),
		errors.Is(err, analytics.ErrNoValidData),
		errors.Is(err, analytics.ErrZeroPortfolioValue),
		errors.Is(err, analytics.ErrInsufficientHistory),
		errors.Is(err, views.ErrNoTargetAllocations),
		errors.Is(err, views.ErrUnknownScenario):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, services.ErrAccessDenied):
		ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	case errors.Is(err, repositories.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})

	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": ctx.GetString("request_id"),
			"path":       ctx.FullPath(),
		}).Error("Request failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
