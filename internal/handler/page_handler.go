package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leonguyen52/sprout-track-sub003/internal/model"
	"github.com/leonguyen52/sprout-track-sub003/pkg/database"
	"github.com/leonguyen52/sprout-track-sub003/prometheus"
)

// AppShell answers page requests after tenant resolution. The web client
// renders the UI; this endpoint only reports the resolved family context or,
// with no families yet, that first-run setup is required.
func AppShell(c echo.Context) error {
	if slug, ok := c.Get("family_slug").(string); ok && slug != "" {
		return c.JSON(http.StatusOK, echo.Map{
			"family": map[string]interface{}{
				"id":   c.Get("family_id"),
				"slug": slug,
				"name": c.Get("family_name"),
			},
		})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var count int64
	if err := database.GetDB().Model(&model.Family{}).Where("active = ?", true).Count(&count).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "family lookup failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"setup_required": count == 0})
}
