package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/leonguyen52/sprout-track-sub003/internal/middleware"
	"github.com/leonguyen52/sprout-track-sub003/internal/model"
	"github.com/leonguyen52/sprout-track-sub003/pkg/database"
	"github.com/leonguyen52/sprout-track-sub003/pkg/jwtutil"
	"github.com/leonguyen52/sprout-track-sub003/pkg/logger"
	"github.com/leonguyen52/sprout-track-sub003/prometheus"
)

// MembershipStore answers the authoritative membership questions behind
// authorizeFamilyWrite. Claims carry the same data as a convenience view;
// privileged mutations always re-verify here.
type MembershipStore interface {
	// CaretakerRole returns the role of the caretaker if it is an active
	// member of the family
	CaretakerRole(ctx context.Context, caretakerID, familyID uint) (role string, member bool, err error)
	// CaretakerCount returns how many caretakers the family has
	CaretakerCount(ctx context.Context, familyID uint) (int64, error)
}

type gormMembers struct{}

// NewGormMembers creates a membership store over the shared gorm connection
func NewGormMembers() MembershipStore {
	return gormMembers{}
}

func (gormMembers) CaretakerRole(ctx context.Context, caretakerID, familyID uint) (string, bool, error) {
	var caretaker model.Caretaker
	result := database.GetDB().WithContext(ctx).
		Where("id = ? AND family_id = ? AND active = ?", caretakerID, familyID, true).
		First(&caretaker)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, result.Error
	}
	return caretaker.Role, true, nil
}

func (gormMembers) CaretakerCount(ctx context.Context, familyID uint) (int64, error) {
	var count int64
	err := database.GetDB().WithContext(ctx).Model(&model.Caretaker{}).
		Where("family_id = ?", familyID).Count(&count).Error
	return count, err
}

// defaultMembers backs the package-level handlers that use the global DB
var defaultMembers MembershipStore = gormMembers{}

// writeScope selects how strictly each session kind is authorized for a
// family mutation
type writeScope int

const (
	// scopeFamilyData covers babies, activities and the wizard's resource
	// stage; any active member may write
	scopeFamilyData writeScope = iota
	// scopeCredentials covers caretaker creation; caretaker sessions must
	// hold the admin role, and setup sessions lose it once any caretaker
	// exists
	scopeCredentials
	// scopeCompletion covers finishing the wizard. A setup session may always
	// complete its own family: the call revokes the session itself, so the
	// zero-caretaker rule would deadlock the final step after the security
	// stage ran.
	scopeCompletion
)

// authorizeFamilyWrite re-verifies family membership server-side before a
// privileged mutation. On denial the response is already written and the
// caller must stop.
//
// Setup sessions keep data and credential access only while the family has
// no caretakers: creating credential principals recomputes membership and
// revokes the session's own access, which is why the wizard orders resource
// creation before security under token authorization.
func authorizeFamilyWrite(c echo.Context, members MembershipStore, familyID uint, scope writeScope) (bool, error) {
	log := logger.FromContext(c)

	claims, ok := middleware.SessionClaims(c)
	if !ok {
		return false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	switch claims.Kind {
	case jwtutil.KindSysAdmin:
		return true, nil

	case jwtutil.KindCaretaker:
		defer prometheus.TrackDBOperation("query")(time.Now())
		role, member, err := members.CaretakerRole(c.Request().Context(), claims.SubjectID, familyID)
		if err != nil {
			log.Error("Membership check failed", zap.Error(err))
			return false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "authorization check failed"})
		}
		if !member {
			prometheus.RecordAuthError("membership_denied")
			return false, c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of this family"})
		}
		if scope == scopeCredentials && role != "admin" {
			prometheus.RecordAuthError("admin_role_required")
			return false, c.JSON(http.StatusForbidden, echo.Map{"error": "admin role required to manage caretakers"})
		}
		return true, nil

	case jwtutil.KindSetup:
		if claims.FamilyID == nil || *claims.FamilyID != familyID {
			prometheus.RecordAuthError("membership_denied")
			return false, c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of this family"})
		}
		if scope == scopeCompletion {
			return true, nil
		}
		defer prometheus.TrackDBOperation("query")(time.Now())
		count, err := members.CaretakerCount(c.Request().Context(), familyID)
		if err != nil {
			log.Error("Membership check failed", zap.Error(err))
			return false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "authorization check failed"})
		}
		if count > 0 {
			prometheus.RecordAuthError("setup_session_superseded")
			return false, c.JSON(http.StatusForbidden, echo.Map{"error": "setup session no longer authorized, please log in"})
		}
		return true, nil

	default:
		prometheus.RecordAuthError("membership_denied")
		return false, c.JSON(http.StatusForbidden, echo.Map{"error": "this session cannot modify family data"})
	}
}

// familyIDFromContext reads the family binding set by the auth middleware
func familyIDFromContext(c echo.Context) (uint, bool) {
	familyID, ok := c.Get("family_id").(uint)
	return familyID, ok && familyID != 0
}
