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

// CreateBaby adds a tracked baby to the session's family
func CreateBaby(c echo.Context) error {
	log := logger.FromContext(c)

	familyID, ok := familyIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "family context required"})
	}
	if ok, err := authorizeFamilyWrite(c, defaultMembers, familyID, scopeFamilyData); !ok {
		return err
	}

	var req struct {
		Name      string `json:"name"`
		BirthDate string `json:"birth_date,omitempty"`
		Gender    string `json:"gender,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	baby := model.Baby{
		FamilyID: familyID,
		Name:     req.Name,
		Gender:   req.Gender,
	}
	if req.BirthDate != "" {
		birthDate, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "birth_date must be YYYY-MM-DD"})
		}
		baby.BirthDate = birthDate
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&baby); result.Error != nil {
		log.Error("Failed to create baby", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "baby creation failed"})
	}

	log.Info("Baby created", zap.Uint("family_id", familyID), zap.Uint("baby_id", baby.ID))
	return c.JSON(http.StatusCreated, echo.Map{"baby": baby})
}

// ListBabies returns the session family's babies
func ListBabies(c echo.Context) error {
	log := logger.FromContext(c)

	familyID, ok := familyIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "family context required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var babies []model.Baby
	result := database.GetDB().Where("family_id = ?", familyID).Order("name asc").Find(&babies)
	if result.Error != nil {
		log.Error("Failed to list babies", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list babies"})
	}

	return c.JSON(http.StatusOK, echo.Map{"babies": babies})
}
