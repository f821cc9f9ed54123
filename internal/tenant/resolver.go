package tenant

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/leonguyen52/sprout-track-sub003/pkg/logger"
	"github.com/leonguyen52/sprout-track-sub003/prometheus"
)

// Context keys set by the resolver for downstream handlers
const (
	ContextFamilyID   = "family_id"
	ContextFamilySlug = "family_slug"
	ContextFamilyName = "family_name"
)

// Path for the family picker shown when several active families exist
const familySelectPath = "/family-select"

// reservedSegments are first path segments that are never treated as family
// slugs
var reservedSegments = map[string]bool{
	"setup":         true,
	"family-select": true,
	"api":           true,
	"auth":          true,
	"health":        true,
	"metrics":       true,
	"static":        true,
}

// canonicalRoutes are app views reachable without a leading slug; accessing
// them slugless triggers the single/multi/zero-family redirect branch
var canonicalRoutes = map[string]bool{
	"log":      true,
	"history":  true,
	"calendar": true,
}

// Resolver maps the leading path segment of page requests to a family before
// any route handler runs. It is stateless per request; the family store is
// the only state.
type Resolver struct {
	store FamilyStore
}

// NewResolver creates a resolver over the given store
func NewResolver(store FamilyStore) *Resolver {
	return &Resolver{store: store}
}

// Middleware returns the echo middleware performing slug resolution
func (r *Resolver) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			// API, static assets and file requests pass through untouched
			if bypassPath(path) {
				prometheus.RecordTenantResolution("passthrough")
				return next(c)
			}

			seg, _ := splitPath(path)

			// Bare root and canonical app routes: branch on how many active
			// families exist
			if seg == "" || canonicalRoutes[seg] {
				return r.resolveDefault(c, next, path)
			}

			if reservedSegments[seg] {
				prometheus.RecordTenantResolution("passthrough")
				return next(c)
			}

			// Anything else is a candidate slug
			family, err := r.store.FindBySlug(c.Request().Context(), seg)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					prometheus.RecordTenantResolution("redirect_root")
					return c.Redirect(http.StatusFound, "/")
				}
				// A store failure must never be treated as tenant-less
				logger.FromContext(c).Error("Family lookup failed", zap.String("slug", seg), zap.Error(err))
				prometheus.RecordTenantResolution("error")
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "family lookup failed"})
			}

			c.Set(ContextFamilyID, family.ID)
			c.Set(ContextFamilySlug, family.Slug)
			c.Set(ContextFamilyName, family.Name)

			// Expose the resolved family to downstream services as headers,
			// same shape handlers already read
			c.Request().Header.Set("X-Family-Slug", family.Slug)
			c.Request().Header.Set("X-Family-Name", family.Name)

			prometheus.RecordTenantResolution("resolved")
			return next(c)
		}
	}
}

// resolveDefault handles slugless access to the root or a canonical route
func (r *Resolver) resolveDefault(c echo.Context, next echo.HandlerFunc, path string) error {
	families, err := r.store.ActiveFamilies(c.Request().Context())
	if err != nil {
		logger.FromContext(c).Error("Active family lookup failed", zap.Error(err))
		prometheus.RecordTenantResolution("error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "family lookup failed"})
	}

	switch len(families) {
	case 0:
		// Fresh install: let the landing logic trigger first-run setup
		prometheus.RecordTenantResolution("passthrough")
		return next(c)
	case 1:
		target := "/" + families[0].Slug
		if path != "/" {
			target += path
		}
		prometheus.RecordTenantResolution("redirect_slug")
		return c.Redirect(http.StatusFound, target)
	default:
		prometheus.RecordTenantResolution("redirect_select")
		return c.Redirect(http.StatusFound, familySelectPath)
	}
}

// bypassPath reports whether the resolver should ignore the path entirely
func bypassPath(path string) bool {
	if strings.HasPrefix(path, "/api/") || path == "/api" {
		return true
	}
	if strings.HasPrefix(path, "/static/") {
		return true
	}
	// Requests for files (anything with an extension) are asset fetches
	last := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		last = path[idx+1:]
	}
	return strings.Contains(last, ".")
}

// splitPath returns the first path segment and the remainder
func splitPath(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", ""
	}
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[:idx], trimmed[idx:]
	}
	return trimmed, ""
}
