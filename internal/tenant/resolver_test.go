package tenant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonguyen52/sprout-track-sub003/internal/model"
)

type fakeStore struct {
	families []model.Family
	err      error
}

func (s *fakeStore) FindBySlug(ctx context.Context, slug string) (*model.Family, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.families {
		if s.families[i].Slug == slug && s.families[i].Active {
			return &s.families[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) ActiveFamilies(ctx context.Context) ([]model.Family, error) {
	if s.err != nil {
		return nil, s.err
	}
	var active []model.Family
	for _, f := range s.families {
		if f.Active {
			active = append(active, f)
		}
	}
	return active, nil
}

// serve runs one request through the resolver middleware into a recording
// handler and returns the recorder plus whether the handler ran
func serve(t *testing.T, store FamilyStore, path string) (*httptest.ResponseRecorder, bool, echo.Context) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handlerRan := false
	next := func(c echo.Context) error {
		handlerRan = true
		return c.NoContent(http.StatusOK)
	}

	err := NewResolver(store).Middleware()(next)(c)
	require.NoError(t, err)
	return rec, handlerRan, c
}

func TestResolverDefaultRouteBranches(t *testing.T) {
	smith := model.Family{ID: 1, Name: "Smith Family", Slug: "smith-family", Active: true}
	jones := model.Family{ID: 2, Name: "Jones Family", Slug: "jones-family", Active: true}

	tests := []struct {
		name         string
		families     []model.Family
		path         string
		wantRedirect string
		wantPass     bool
	}{
		{
			name:         "single family root redirects to slug",
			families:     []model.Family{smith},
			path:         "/",
			wantRedirect: "/smith-family",
		},
		{
			name:         "single family canonical route keeps path",
			families:     []model.Family{smith},
			path:         "/log",
			wantRedirect: "/smith-family/log",
		},
		{
			name:         "multiple families redirect to family select",
			families:     []model.Family{smith, jones},
			path:         "/calendar",
			wantRedirect: "/family-select",
		},
		{
			name:     "zero families fall through",
			families: nil,
			path:     "/",
			wantPass: true,
		},
		{
			name:         "inactive families do not count",
			families:     []model.Family{smith, {ID: 3, Slug: "old", Active: false}},
			path:         "/history",
			wantRedirect: "/smith-family/history",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ran, _ := serve(t, &fakeStore{families: tt.families}, tt.path)
			if tt.wantPass {
				assert.True(t, ran, "request should pass through")
				return
			}
			assert.False(t, ran)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.wantRedirect, rec.Header().Get(echo.HeaderLocation))
		})
	}
}

func TestResolverSlugLookup(t *testing.T) {
	store := &fakeStore{families: []model.Family{
		{ID: 7, Name: "Smith Family", Slug: "smith-family", Active: true},
	}}

	t.Run("known slug attaches family context", func(t *testing.T) {
		rec, ran, c := serve(t, store, "/smith-family/log")
		assert.True(t, ran)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, uint(7), c.Get(ContextFamilyID))
		assert.Equal(t, "smith-family", c.Get(ContextFamilySlug))
		assert.Equal(t, "Smith Family", c.Get(ContextFamilyName))
		assert.Equal(t, "smith-family", c.Request().Header.Get("X-Family-Slug"))
	})

	t.Run("unknown slug redirects to root", func(t *testing.T) {
		rec, ran, _ := serve(t, store, "/no-such-family/log")
		assert.False(t, ran)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
	})
}

func TestResolverBypassRules(t *testing.T) {
	// A failing store proves bypassed paths never hit it
	store := &fakeStore{err: errors.New("store must not be called")}

	for _, path := range []string{
		"/api/families",
		"/api",
		"/static/app.css",
		"/favicon.ico",
		"/smith-family/logo.png",
		"/setup",
		"/family-select",
		"/auth/login",
		"/health",
		"/metrics",
	} {
		t.Run(path, func(t *testing.T) {
			_, ran, _ := serve(t, store, path)
			assert.True(t, ran, "path should pass through untouched")
		})
	}
}

func TestResolverStoreFailureIsServerError(t *testing.T) {
	// A lookup failure must never silently treat the request as tenant-less
	store := &fakeStore{err: errors.New("connection refused")}

	rec, ran, _ := serve(t, store, "/smith-family")
	assert.False(t, ran)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, ran, _ = serve(t, store, "/")
	assert.False(t, ran)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
