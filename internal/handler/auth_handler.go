package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/leonguyen52/sprout-track-sub003/internal/auth"
	"github.com/leonguyen52/sprout-track-sub003/internal/middleware"
	"github.com/leonguyen52/sprout-track-sub003/internal/model"
	"github.com/leonguyen52/sprout-track-sub003/pkg/config"
	"github.com/leonguyen52/sprout-track-sub003/pkg/database"
	"github.com/leonguyen52/sprout-track-sub003/pkg/jwtutil"
	"github.com/leonguyen52/sprout-track-sub003/pkg/logger"
	"github.com/leonguyen52/sprout-track-sub003/prometheus"
)

// AuthHandler serves login, logout and lockout status
type AuthHandler struct {
	cfg       *config.AuthConfig
	lockout   *auth.Lockout
	blacklist *auth.Blacklist
}

// NewAuthHandler wires the auth endpoints
func NewAuthHandler(cfg *config.AuthConfig, lockout *auth.Lockout, blacklist *auth.Blacklist) *AuthHandler {
	return &AuthHandler{cfg: cfg, lockout: lockout, blacklist: blacklist}
}

// Login authenticates the system administrator (admin_password), a family
// caretaker (family_slug + login_id + pin) or an account holder
// (email + password) and issues a session token with an idle-timeout marker
// for the client.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		AdminPassword string `json:"admin_password,omitempty"`
		FamilySlug    string `json:"family_slug,omitempty"`
		LoginID       string `json:"login_id,omitempty"`
		PIN           string `json:"pin,omitempty"`
		Email         string `json:"email,omitempty"`
		Password      string `json:"password,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.AdminPassword != "" {
		return h.adminLogin(c, req.AdminPassword)
	}
	if req.FamilySlug != "" && req.LoginID != "" {
		return h.caretakerLogin(c, req.FamilySlug, req.LoginID, req.PIN)
	}
	if req.Email != "" && req.Password != "" {
		return h.accountLogin(c, req.Email, req.Password)
	}

	prometheus.RecordAuthError("incomplete_login")
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "admin_password, family_slug with login_id, or email with password required"})
}

// adminLogin verifies the system administrator password with lockout
// enforcement. The lockout check runs before password verification so an
// active lockout rejects even a correct password.
func (h *AuthHandler) adminLogin(c echo.Context, password string) error {
	log := logger.FromContext(c)
	origin := c.RealIP()

	if remaining := h.lockout.Remaining(origin); remaining > 0 {
		log.Warn("Login attempt during active lockout", zap.String("origin", origin))
		prometheus.RecordAuthError("lockout_active")
		return c.JSON(http.StatusForbidden, echo.Map{
			"error":               "too many failed attempts",
			"retry_after_seconds": int(remaining.Seconds()),
		})
	}

	if h.cfg.AdminPassword == "" ||
		bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPassword), []byte(password)) != nil {
		log.Warn("Invalid admin password", zap.String("origin", origin))
		prometheus.RecordAuthError("invalid_admin_password")
		if locked := h.lockout.RecordFailure(origin); locked > 0 {
			prometheus.LockoutCounter.Inc()
			return c.JSON(http.StatusForbidden, echo.Map{
				"error":               "too many failed attempts",
				"retry_after_seconds": int(locked.Seconds()),
			})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	h.lockout.RecordSuccess(origin)

	token, err := jwtutil.GenerateToken(jwtutil.KindSysAdmin, 0, "sysadmin")
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()
	log.Info("System administrator logged in", zap.String("origin", origin))

	return c.JSON(http.StatusOK, echo.Map{
		"token":                token,
		"kind":                 jwtutil.KindSysAdmin,
		"idle_timeout_seconds": int(h.cfg.IdleTimeout.Seconds()),
	})
}

// caretakerLogin verifies a caretaker PIN within an active family
func (h *AuthHandler) caretakerLogin(c echo.Context, familySlug, loginID, pin string) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var family model.Family
	result := database.GetDB().Where("slug = ? AND active = ?", familySlug, true).First(&family)
	if result.Error != nil {
		log.Warn("Login against unknown family", zap.String("slug", familySlug))
		prometheus.RecordAuthError("family_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	var caretaker model.Caretaker
	result = database.GetDB().
		Where("family_id = ? AND login_id = ? AND active = ?", family.ID, loginID, true).
		First(&caretaker)
	if result.Error != nil {
		log.Warn("Caretaker not found", zap.String("login_id", loginID), zap.Uint("family_id", family.ID))
		prometheus.RecordAuthError("caretaker_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if bcrypt.CompareHashAndPassword([]byte(caretaker.PINHash), []byte(pin)) != nil {
		log.Warn("Invalid PIN", zap.String("login_id", loginID), zap.Uint("family_id", family.ID))
		prometheus.RecordAuthError("invalid_pin")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	token, err := jwtutil.GenerateTokenWithFamily(
		jwtutil.KindCaretaker, caretaker.ID, caretaker.LoginID,
		&family.ID, family.Slug, family.Name, caretaker.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()
	log.Info("Caretaker logged in",
		zap.String("login_id", caretaker.LoginID),
		zap.Uint("family_id", family.ID),
		zap.String("role", caretaker.Role))

	return c.JSON(http.StatusOK, echo.Map{
		"token":                token,
		"kind":                 jwtutil.KindCaretaker,
		"idle_timeout_seconds": int(h.cfg.IdleTimeout.Seconds()),
		"caretaker": map[string]interface{}{
			"id":       caretaker.ID,
			"login_id": caretaker.LoginID,
			"name":     caretaker.Name,
			"role":     caretaker.Role,
		},
		"family": map[string]interface{}{
			"id":   family.ID,
			"slug": family.Slug,
			"name": family.Name,
		},
	})
}

// accountLogin verifies a verified account holder's email and password.
// Account sessions carry no family binding; they exist for account-level
// flows such as registering new families.
func (h *AuthHandler) accountLogin(c echo.Context, email, password string) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var account model.Account
	result := database.GetDB().Where("email = ? AND verified = ?", email, true).First(&account)
	if result.Error != nil {
		log.Warn("Login against unknown account", zap.String("email", email))
		prometheus.RecordAuthError("account_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		log.Warn("Invalid account password", zap.String("email", email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	token, err := jwtutil.GenerateToken(jwtutil.KindAccount, account.ID, account.Email)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()
	log.Info("Account holder logged in", zap.Uint("account_id", account.ID))

	return c.JSON(http.StatusOK, echo.Map{
		"token":                token,
		"kind":                 jwtutil.KindAccount,
		"idle_timeout_seconds": int(h.cfg.IdleTimeout.Seconds()),
		"account": map[string]interface{}{
			"id":    account.ID,
			"email": account.Email,
		},
	})
}

// Logout revokes the current session token server-side
func (h *AuthHandler) Logout(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := middleware.SessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	h.blacklist.Revoke(claims.ID, claims.ExpiresAt.Time)
	prometheus.DecreaseActiveTokens()
	log.Info("Session revoked", zap.String("jti", claims.ID), zap.String("kind", claims.Kind))

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// LockoutStatus reports the remaining lockout time for the caller's origin
func (h *AuthHandler) LockoutStatus(c echo.Context) error {
	remaining := h.lockout.Remaining(c.RealIP())
	return c.JSON(http.StatusOK, echo.Map{
		"locked":              remaining > 0,
		"retry_after_seconds": int(remaining.Seconds()),
	})
}
