package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/leonguyen52/sprout-track-sub003/internal/model"
	"github.com/leonguyen52/sprout-track-sub003/pkg/database"
	"github.com/leonguyen52/sprout-track-sub003/pkg/logger"
	"github.com/leonguyen52/sprout-track-sub003/prometheus"
)

// ListFamilies returns all active families; the family-select page is built
// from this list
func ListFamilies(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var families []model.Family
	result := database.GetDB().Where("active = ?", true).Order("name asc").Find(&families)
	if result.Error != nil {
		log.Error("Failed to list families", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list families"})
	}

	prometheus.ActiveFamiliesGauge.Set(float64(len(families)))

	return c.JSON(http.StatusOK, echo.Map{"families": families})
}

// GetFamily retrieves one active family by slug
func GetFamily(c echo.Context) error {
	log := logger.FromContext(c)

	slug := c.Param("slug")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var family model.Family
	result := database.GetDB().Where("slug = ? AND active = ?", slug, true).First(&family)
	if result.Error != nil {
		log.Warn("Family not found", zap.String("slug", slug))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "family not found"})
	}

	var settings model.FamilySettings
	if result := database.GetDB().Where("family_id = ?", family.ID).First(&settings); result.Error == nil {
		return c.JSON(http.StatusOK, echo.Map{"family": family, "settings": settings})
	}

	return c.JSON(http.StatusOK, echo.Map{"family": family})
}
