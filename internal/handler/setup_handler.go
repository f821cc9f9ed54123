package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/leonguyen52/sprout-track-sub003/internal/auth"
	"github.com/leonguyen52/sprout-track-sub003/internal/middleware"
	"github.com/leonguyen52/sprout-track-sub003/internal/model"
	"github.com/leonguyen52/sprout-track-sub003/internal/setup"
	"github.com/leonguyen52/sprout-track-sub003/pkg/config"
	"github.com/leonguyen52/sprout-track-sub003/pkg/jwtutil"
	"github.com/leonguyen52/sprout-track-sub003/pkg/logger"
	"github.com/leonguyen52/sprout-track-sub003/pkg/mailer"
	"github.com/leonguyen52/sprout-track-sub003/prometheus"
)

// Role claim marking a setup session created by redeeming an invitation
// token, the only context where stage order is enforced
const inviteSessionRole = "invite"

// SetupHandler serves the family setup wizard endpoints
type SetupHandler struct {
	protocol  *setup.Protocol
	members   MembershipStore
	blacklist *auth.Blacklist
	mail      mailer.Mailer
	cfg       *config.Config
}

// NewSetupHandler wires the setup endpoints
func NewSetupHandler(protocol *setup.Protocol, members MembershipStore, blacklist *auth.Blacklist, mail mailer.Mailer, cfg *config.Config) *SetupHandler {
	return &SetupHandler{protocol: protocol, members: members, blacklist: blacklist, mail: mail, cfg: cfg}
}

// CreateToken mints a single-use invitation token (system administrator
// only). When an email address is supplied the invite is mailed
// fire-and-forget; delivery failure never fails the request.
func (h *SetupHandler) CreateToken(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordSetupOperation("token_create")

	claims, ok := middleware.SessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Email string `json:"email,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	token, err := h.protocol.IssueToken(c.Request().Context(), claims.LoginID, h.cfg.Setup.TokenTTL)
	if err != nil {
		log.Error("Failed to create setup token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token creation failed"})
	}

	log.Info("Setup token created",
		zap.Uint("id", token.ID),
		zap.Time("expires_at", token.ExpiresAt))

	if req.Email != "" {
		msg := mailer.Message{
			To:      req.Email,
			Subject: "You're invited to set up your family",
			Body: fmt.Sprintf("Open /setup?token=%s to create your family. The invitation expires on %s.",
				token.Token, token.ExpiresAt.Format(time.RFC1123)),
		}
		if err := h.mail.Send(c.Request().Context(), msg); err != nil {
			log.Warn("Invite mail delivery failed", zap.String("to", req.Email), zap.Error(err))
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"token":      token.Token,
		"expires_at": token.ExpiresAt,
	})
}

// ValidateToken classifies an invitation token. Outcomes keep distinct
// statuses: valid 200, used 409, expired 410, not found 404.
func (h *SetupHandler) ValidateToken(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordSetupOperation("token_validate")

	token := strings.TrimSpace(c.QueryParam("token"))
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	status, _, err := h.protocol.ClassifyToken(c.Request().Context(), token)
	if err != nil {
		log.Error("Token classification failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token validation failed"})
	}

	switch status {
	case setup.TokenValid:
		return c.JSON(http.StatusOK, echo.Map{"status": string(status)})
	case setup.TokenUsed:
		return c.JSON(http.StatusConflict, echo.Map{"status": string(status), "error": "token already used"})
	case setup.TokenExpired:
		return c.JSON(http.StatusGone, echo.Map{"status": string(status), "error": "token expired"})
	default:
		return c.JSON(http.StatusNotFound, echo.Map{"status": string(status), "error": "token not found"})
	}
}

// Start creates a family under one of the three setup contexts: fresh
// install (no credentials), admin-initiated (sysadmin bearer token), or
// token redemption. On success it issues a setup session bound to the new
// family for the remaining wizard stages.
func (h *SetupHandler) Start(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordSetupOperation("start")

	var req struct {
		Name  string `json:"name"`
		Slug  string `json:"slug"`
		Token string `json:"token,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	// A sysadmin bearer token switches to the admin-initiated context; the
	// route itself stays public for fresh installs and invitations
	adminInitiated := false
	if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" && req.Token == "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			if claims, err := jwtutil.ValidateToken(parts[1]); err == nil &&
				claims.Kind == jwtutil.KindSysAdmin && !h.blacklist.Revoked(claims.ID) {
				adminInitiated = true
			}
		}
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	family, err := h.protocol.Start(c.Request().Context(), setup.StartRequest{
		Name:           req.Name,
		Slug:           req.Slug,
		Token:          req.Token,
		AdminInitiated: adminInitiated,
	})
	if err != nil {
		return h.setupError(c, "setup start failed", err)
	}

	// Issue a setup session for the remaining wizard stages; invite-based
	// sessions are marked so stage ordering applies to them
	role := ""
	if req.Token != "" {
		role = inviteSessionRole
	}
	sessionToken, err := jwtutil.GenerateTokenWithFamily(
		jwtutil.KindSetup, 0, "setup", &family.ID, family.Slug, family.Name, role)
	if err != nil {
		log.Error("Failed to generate setup session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}
	prometheus.IncreaseActiveTokens()

	log.Info("Family created",
		zap.Uint("id", family.ID),
		zap.String("slug", family.Slug),
		zap.Bool("admin_initiated", adminInitiated),
		zap.Bool("via_token", req.Token != ""))

	return c.JSON(http.StatusCreated, echo.Map{
		"family": map[string]interface{}{
			"id":   family.ID,
			"name": family.Name,
			"slug": family.Slug,
		},
		"token":                sessionToken,
		"idle_timeout_seconds": int(h.cfg.Auth.IdleTimeout.Seconds()),
	})
}

// Resources creates the family's first tracked baby (wizard stage 2). For
// invite sessions this must run before the security stage.
func (h *SetupHandler) Resources(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordSetupOperation("resources")

	claims, ok := middleware.SessionClaims(c)
	if !ok || claims.FamilyID == nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "family context required"})
	}
	if ok, err := authorizeFamilyWrite(c, h.members, *claims.FamilyID, scopeFamilyData); !ok {
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

	baby := model.Baby{Name: req.Name, Gender: req.Gender}
	if req.BirthDate != "" {
		birthDate, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "birth_date must be YYYY-MM-DD"})
		}
		baby.BirthDate = birthDate
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.protocol.CreateFirstBaby(c.Request().Context(), *claims.FamilyID, &baby, h.inviteSession(claims)); err != nil {
		return h.setupError(c, "resource creation failed", err)
	}

	log.Info("First baby created", zap.Uint("family_id", *claims.FamilyID), zap.Uint("baby_id", baby.ID))
	return c.JSON(http.StatusCreated, echo.Map{"baby": baby})
}

// Security creates the family's caretakers (wizard stage 3). PINs are
// hashed here; the protocol enforces that invite sessions ran the resource
// stage first.
func (h *SetupHandler) Security(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordSetupOperation("security")

	claims, ok := middleware.SessionClaims(c)
	if !ok || claims.FamilyID == nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "family context required"})
	}
	if ok, err := authorizeFamilyWrite(c, h.members, *claims.FamilyID, scopeCredentials); !ok {
		return err
	}

	var req struct {
		Caretakers []struct {
			LoginID string `json:"login_id"`
			Name    string `json:"name"`
			Role    string `json:"role,omitempty"`
			PIN     string `json:"pin"`
		} `json:"caretakers"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	caretakers := make([]*model.Caretaker, 0, len(req.Caretakers))
	for _, entry := range req.Caretakers {
		if len(entry.PIN) < 4 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "pin must be at least 4 digits"})
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(entry.PIN), bcrypt.DefaultCost)
		if err != nil {
			log.Error("Failed to hash PIN", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "security setup failed"})
		}
		caretakers = append(caretakers, &model.Caretaker{
			LoginID: entry.LoginID,
			Name:    entry.Name,
			Role:    entry.Role,
			PINHash: string(hash),
		})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.protocol.CreateCaretakers(c.Request().Context(), *claims.FamilyID, caretakers, h.inviteSession(claims)); err != nil {
		return h.setupError(c, "security setup failed", err)
	}

	log.Info("Caretakers created",
		zap.Uint("family_id", *claims.FamilyID),
		zap.Int("count", len(caretakers)))
	return c.JSON(http.StatusCreated, echo.Map{"message": "caretakers created", "count": len(caretakers)})
}

// Complete finishes the wizard and revokes the acting session so the newly
// created caretaker credentials govern all subsequent access
func (h *SetupHandler) Complete(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordSetupOperation("complete")

	claims, ok := middleware.SessionClaims(c)
	if !ok || claims.FamilyID == nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "family context required"})
	}
	if ok, err := authorizeFamilyWrite(c, h.members, *claims.FamilyID, scopeCompletion); !ok {
		return err
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.protocol.Complete(c.Request().Context(), *claims.FamilyID); err != nil {
		return h.setupError(c, "setup completion failed", err)
	}

	h.blacklist.Revoke(claims.ID, claims.ExpiresAt.Time)
	prometheus.DecreaseActiveTokens()

	log.Info("Setup completed, session revoked",
		zap.Uint("family_id", *claims.FamilyID),
		zap.String("jti", claims.ID))

	return c.JSON(http.StatusOK, echo.Map{
		"message":         "setup complete",
		"reauth_required": true,
	})
}

// inviteSession reports whether the session came from token redemption
func (h *SetupHandler) inviteSession(claims *jwtutil.SessionClaims) bool {
	return claims.Kind == jwtutil.KindSetup && claims.Role == inviteSessionRole
}

// setupError maps protocol errors to the response taxonomy. Unexpected
// failures surface as a generic 500 without internal detail.
func (h *SetupHandler) setupError(c echo.Context, msg string, err error) error {
	log := logger.FromContext(c)

	switch {
	case errors.Is(err, setup.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and a lowercase hyphenated slug are required"})
	case errors.Is(err, setup.ErrSlugTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slug already taken"})
	case errors.Is(err, setup.ErrTokenNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "token not found"})
	case errors.Is(err, setup.ErrTokenUsed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "token already used"})
	case errors.Is(err, setup.ErrTokenExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "token expired"})
	case errors.Is(err, setup.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "setup is not permitted once families exist"})
	case errors.Is(err, setup.ErrStageOrder):
		return c.JSON(http.StatusConflict, echo.Map{"error": "create the first baby before configuring security"})
	case errors.Is(err, setup.ErrFamilyMissing):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "family not found"})
	default:
		log.Error(msg, zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
	}
}
