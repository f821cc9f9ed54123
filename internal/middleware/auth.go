package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/leonguyen52/sprout-track-sub003/internal/auth"
	"github.com/leonguyen52/sprout-track-sub003/pkg/jwtutil"
	"github.com/leonguyen52/sprout-track-sub003/pkg/logger"
	"github.com/leonguyen52/sprout-track-sub003/prometheus"
)

// Context keys populated by AuthMiddleware
const (
	ContextClaims = "claims"
	ContextKind   = "session_kind"
)

// AuthMiddleware validates the JWT bearer token and rejects revoked sessions
func AuthMiddleware(blacklist *auth.Blacklist) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			// Get the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			// Check if it's a Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			// Validate the token
			claims, err := jwtutil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			// Reject sessions revoked by logout or setup completion
			if blacklist.Revoked(claims.ID) {
				log.Warn("Revoked session token used", zap.String("jti", claims.ID))
				prometheus.RecordAuthError("revoked_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session has been invalidated"})
			}

			// Store session info in context for later use
			c.Set(ContextClaims, claims)
			c.Set(ContextKind, claims.Kind)

			if claims.FamilyID != nil {
				c.Set("family_id", *claims.FamilyID)
				c.Set("family_slug", claims.FamilySlug)
				c.Set("family_name", claims.FamilyName)

				log.Debug("Request authenticated with family context",
					zap.Uint("family_id", *claims.FamilyID),
					zap.String("family_slug", claims.FamilySlug),
					zap.String("kind", claims.Kind))
			}

			return next(c)
		}
	}
}

// RequireFamilyContext ensures the session carries a family binding
func RequireFamilyContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		familyID, ok := c.Get("family_id").(uint)
		if !ok || familyID == 0 {
			log.Warn("Missing family context")
			prometheus.RecordAuthError("family_context_missing")
			return c.JSON(http.StatusForbidden, echo.Map{
				"error":   "family context required",
				"message": "Please select a family before accessing this resource",
			})
		}

		return next(c)
	}
}

// RequireSysAdmin restricts a route to system administrator sessions
func RequireSysAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		kind, _ := c.Get(ContextKind).(string)
		if kind != jwtutil.KindSysAdmin {
			log.Warn("Admin-only route accessed without admin session", zap.String("kind", kind))
			prometheus.RecordAuthError("admin_required")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "administrator access required"})
		}

		return next(c)
	}
}

// SessionClaims extracts the validated claims from the context
func SessionClaims(c echo.Context) (*jwtutil.SessionClaims, bool) {
	claims, ok := c.Get(ContextClaims).(*jwtutil.SessionClaims)
	return claims, ok
}
