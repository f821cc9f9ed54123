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

// CreateActivity logs a care event (sleep, feed, diaper, medicine) for a
// baby in the session's family
func CreateActivity(c echo.Context) error {
	log := logger.FromContext(c)

	familyID, ok := familyIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "family context required"})
	}
	if ok, err := authorizeFamilyWrite(c, defaultMembers, familyID, scopeFamilyData); !ok {
		return err
	}

	var req struct {
		BabyID    uint   `json:"baby_id"`
		Type      string `json:"type"`
		StartedAt string `json:"started_at"`
		EndedAt   string `json:"ended_at,omitempty"`
		Notes     string `json:"notes,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.BabyID == 0 || !model.ValidActivityType(req.Type) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "baby_id and a valid type are required"})
	}

	// The baby must belong to the same family; claims are not trusted here
	defer prometheus.TrackDBOperation("query")(time.Now())
	var baby model.Baby
	if result := database.GetDB().Where("id = ? AND family_id = ?", req.BabyID, familyID).First(&baby); result.Error != nil {
		log.Warn("Activity for unknown baby", zap.Uint("baby_id", req.BabyID), zap.Uint("family_id", familyID))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "baby not found"})
	}

	activity := model.Activity{
		FamilyID: familyID,
		BabyID:   req.BabyID,
		Type:     req.Type,
		Notes:    req.Notes,
	}

	startedAt, err := time.Parse(time.RFC3339, req.StartedAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "started_at must be RFC3339"})
	}
	activity.StartedAt = startedAt

	if req.EndedAt != "" {
		endedAt, err := time.Parse(time.RFC3339, req.EndedAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "ended_at must be RFC3339"})
		}
		if endedAt.Before(startedAt) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "ended_at must not precede started_at"})
		}
		activity.EndedAt = &endedAt
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&activity); result.Error != nil {
		log.Error("Failed to create activity", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "activity creation failed"})
	}

	prometheus.ActivityCounter.With(map[string]string{"type": activity.Type}).Inc()
	log.Info("Activity logged",
		zap.Uint("family_id", familyID),
		zap.Uint("baby_id", activity.BabyID),
		zap.String("type", activity.Type))

	return c.JSON(http.StatusCreated, echo.Map{"activity": activity})
}

// ListActivities returns the family's activities, optionally filtered by
// baby, type and a from/to time range
func ListActivities(c echo.Context) error {
	log := logger.FromContext(c)

	familyID, ok := familyIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "family context required"})
	}

	query := database.GetDB().Where("family_id = ?", familyID)

	if babyID := c.QueryParam("baby_id"); babyID != "" {
		query = query.Where("baby_id = ?", babyID)
	}
	if activityType := c.QueryParam("type"); activityType != "" {
		if !model.ValidActivityType(activityType) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown activity type"})
		}
		query = query.Where("type = ?", activityType)
	}
	if from := c.QueryParam("from"); from != "" {
		fromTime, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "from must be RFC3339"})
		}
		query = query.Where("started_at >= ?", fromTime)
	}
	if to := c.QueryParam("to"); to != "" {
		toTime, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "to must be RFC3339"})
		}
		query = query.Where("started_at <= ?", toTime)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var activities []model.Activity
	if result := query.Order("started_at desc").Limit(500).Find(&activities); result.Error != nil {
		log.Error("Failed to list activities", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list activities"})
	}

	return c.JSON(http.StatusOK, echo.Map{"activities": activities})
}
