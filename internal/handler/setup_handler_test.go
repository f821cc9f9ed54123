package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leonguyen52/sprout-track-sub003/internal/auth"
	"github.com/leonguyen52/sprout-track-sub003/internal/middleware"
	"github.com/leonguyen52/sprout-track-sub003/internal/model"
	"github.com/leonguyen52/sprout-track-sub003/internal/setup"
	"github.com/leonguyen52/sprout-track-sub003/pkg/config"
	"github.com/leonguyen52/sprout-track-sub003/pkg/jwtutil"
	"github.com/leonguyen52/sprout-track-sub003/pkg/mailer"
)

// stubStore implements setup.Store and MembershipStore in memory for handler
// tests
type stubStore struct {
	mu         sync.Mutex
	nextID     uint
	families   map[string]*model.Family
	stages     map[uint]string
	tokens     map[string]*model.SetupToken
	caretakers []*model.Caretaker
}

func newStubStore() *stubStore {
	return &stubStore{
		nextID:   1,
		families: make(map[string]*model.Family),
		stages:   make(map[uint]string),
		tokens:   make(map[string]*model.SetupToken),
	}
}

func (s *stubStore) FamilyCensus(ctx context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total, nonDefault int64
	for _, f := range s.families {
		total++
		if !f.IsDefault {
			nonDefault++
		}
	}
	return total, total > 0 && nonDefault == 0, nil
}

func (s *stubStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.families[slug]
	return ok, nil
}

func (s *stubStore) FindToken(ctx context.Context, token string) (*model.SetupToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.tokens[token]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (s *stubStore) CreateToken(ctx context.Context, token *model.SetupToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.ID = s.nextID
	s.nextID++
	s.tokens[token.Token] = token
	return nil
}

func (s *stubStore) CreateFamily(ctx context.Context, params setup.CreateFamilyParams) (*model.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.families[params.Slug]; ok {
		return nil, setup.ErrSlugTaken
	}
	if params.TokenID != nil {
		var row *model.SetupToken
		for _, t := range s.tokens {
			if t.ID == *params.TokenID {
				row = t
				break
			}
		}
		if row == nil || row.FamilyID != nil {
			return nil, setup.ErrTokenUsed
		}
		bound := s.nextID
		row.FamilyID = &bound
	}
	family := &model.Family{ID: s.nextID, Name: params.Name, Slug: params.Slug, Active: true}
	s.nextID++
	s.families[family.Slug] = family
	s.stages[family.ID] = model.StageFamily
	return family, nil
}

func (s *stubStore) SetupStage(ctx context.Context, familyID uint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.stages[familyID]
	if !ok {
		return "", setup.ErrFamilyMissing
	}
	return stage, nil
}

func (s *stubStore) SaveStage(ctx context.Context, familyID uint, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[familyID] = stage
	return nil
}

func (s *stubStore) CreateBaby(ctx context.Context, baby *model.Baby) error { return nil }

func (s *stubStore) CreateCaretaker(ctx context.Context, caretaker *model.Caretaker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	caretaker.ID = s.nextID
	s.nextID++
	s.caretakers = append(s.caretakers, caretaker)
	return nil
}

func (s *stubStore) CaretakerRole(ctx context.Context, caretakerID, familyID uint) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, caretaker := range s.caretakers {
		if caretaker.ID == caretakerID && caretaker.FamilyID == familyID && caretaker.Active {
			return caretaker.Role, true, nil
		}
	}
	return "", false, nil
}

func (s *stubStore) CaretakerCount(ctx context.Context, familyID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, caretaker := range s.caretakers {
		if caretaker.FamilyID == familyID {
			count++
		}
	}
	return count, nil
}

func (s *stubStore) addCaretaker(familyID uint, loginID, role string) *model.Caretaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	caretaker := &model.Caretaker{ID: s.nextID, FamilyID: familyID, LoginID: loginID, Name: loginID, Role: role, Active: true}
	s.nextID++
	s.caretakers = append(s.caretakers, caretaker)
	return caretaker
}

func (s *stubStore) addToken(token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = &model.SetupToken{ID: s.nextID, Token: token, ExpiresAt: expiresAt}
	s.nextID++
}

func newTestSetupHandler(store *stubStore) (*SetupHandler, *auth.Blacklist) {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "handler-test-key", ExpirationHours: 1})
	cfg := &config.Config{}
	cfg.Setup.TokenTTL = 48 * time.Hour
	cfg.Auth.IdleTimeout = 30 * time.Minute
	blacklist := auth.NewBlacklist()
	h := NewSetupHandler(setup.NewProtocol(store), store, blacklist, mailer.NewLogMailer(zap.NewNop()), cfg)
	return h, blacklist
}

func postJSON(t *testing.T, h echo.HandlerFunc, path, body string, setupCtx func(echo.Context)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setupCtx != nil {
		setupCtx(c)
	}
	require.NoError(t, h(c))
	return rec
}

func TestStartFreshInstall(t *testing.T) {
	store := newStubStore()
	h, _ := newTestSetupHandler(store)

	rec := postJSON(t, h.Start, "/setup/start", `{"name":"Smith Family","slug":"smith-family"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Family struct {
			ID   uint   `json:"id"`
			Slug string `json:"slug"`
		} `json:"family"`
		Token              string `json:"token"`
		IdleTimeoutSeconds int    `json:"idle_timeout_seconds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "smith-family", resp.Family.Slug)
	assert.NotZero(t, resp.Family.ID)
	assert.Equal(t, 1800, resp.IdleTimeoutSeconds)

	// The issued session is a setup session bound to the new family
	claims, err := jwtutil.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, jwtutil.KindSetup, claims.Kind)
	require.NotNil(t, claims.FamilyID)
	assert.Equal(t, resp.Family.ID, *claims.FamilyID)
	assert.Empty(t, claims.Role, "fresh-install sessions are not invite sessions")
}

func TestStartStatusMapping(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		prepare  func(*stubStore)
		body     string
		wantCode int
	}{
		{
			name:     "missing slug",
			body:     `{"name":"Smith Family"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name: "duplicate slug conflicts",
			prepare: func(s *stubStore) {
				s.families["taken"] = &model.Family{ID: 1, Slug: "taken", Active: true}
			},
			body:     `{"name":"Other","slug":"taken","token":"x"}`,
			wantCode: http.StatusConflict,
		},
		{
			name: "forbidden once a real family exists",
			prepare: func(s *stubStore) {
				s.families["existing"] = &model.Family{ID: 1, Slug: "existing", Active: true}
			},
			body:     `{"name":"Jones","slug":"jones"}`,
			wantCode: http.StatusForbidden,
		},
		{
			name: "expired token is gone",
			prepare: func(s *stubStore) {
				s.families["existing"] = &model.Family{ID: 1, Slug: "existing", Active: true}
				s.addToken("stale", now.Add(-time.Hour))
			},
			body:     `{"name":"Jones","slug":"jones","token":"stale"}`,
			wantCode: http.StatusGone,
		},
		{
			name: "unknown token is not found",
			prepare: func(s *stubStore) {
				s.families["existing"] = &model.Family{ID: 1, Slug: "existing", Active: true}
			},
			body:     `{"name":"Jones","slug":"jones","token":"missing"}`,
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStubStore()
			if tt.prepare != nil {
				tt.prepare(store)
			}
			h, _ := newTestSetupHandler(store)
			rec := postJSON(t, h.Start, "/setup/start", tt.body, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestStartWithTokenIssuesInviteSession(t *testing.T) {
	store := newStubStore()
	store.families["existing"] = &model.Family{ID: 50, Slug: "existing", Active: true}
	store.addToken("invite", time.Now().Add(time.Hour))
	h, _ := newTestSetupHandler(store)

	rec := postJSON(t, h.Start, "/setup/start", `{"name":"Invited","slug":"invited","token":"invite"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := jwtutil.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, jwtutil.KindSetup, claims.Kind)
	assert.Equal(t, "invite", claims.Role)

	// The token is spent: a second redemption conflicts
	rec = postJSON(t, h.Start, "/setup/start", `{"name":"Again","slug":"again","token":"invite"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestValidateTokenStatuses(t *testing.T) {
	store := newStubStore()
	store.addToken("fresh", time.Now().Add(time.Hour))
	store.addToken("stale", time.Now().Add(-time.Hour))
	spent := &model.SetupToken{ID: 98, Token: "spent", ExpiresAt: time.Now().Add(time.Hour)}
	bound := uint(3)
	spent.FamilyID = &bound
	store.tokens["spent"] = spent

	h, _ := newTestSetupHandler(store)

	tests := []struct {
		token    string
		wantCode int
	}{
		{"fresh", http.StatusOK},
		{"spent", http.StatusConflict},
		{"stale", http.StatusGone},
		{"missing", http.StatusNotFound},
		{"", http.StatusBadRequest},
	}

	for _, tt := range tests {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/setup/token/validate?token="+tt.token, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, h.ValidateToken(c))
		assert.Equal(t, tt.wantCode, rec.Code, "token %q", tt.token)
	}
}

func TestSecurityRejectedBeforeResourcesForInviteSessions(t *testing.T) {
	store := newStubStore()
	family, err := store.CreateFamily(context.Background(), setup.CreateFamilyParams{Name: "Invited", Slug: "invited"})
	require.NoError(t, err)
	h, _ := newTestSetupHandler(store)

	familyID := family.ID
	claims := &jwtutil.SessionClaims{Kind: jwtutil.KindSetup, FamilyID: &familyID, Role: "invite"}

	body := `{"caretakers":[{"login_id":"mom","name":"Mom","pin":"1234"}]}`
	rec := postJSON(t, h.Security, "/api/setup/security", body, func(c echo.Context) {
		c.Set(middleware.ContextClaims, claims)
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSecurityForbiddenOnceFamilyHasCaretakers(t *testing.T) {
	store := newStubStore()
	family, err := store.CreateFamily(context.Background(), setup.CreateFamilyParams{Name: "Invited", Slug: "invited"})
	require.NoError(t, err)
	require.NoError(t, store.SaveStage(context.Background(), family.ID, model.StageSecurity))
	store.addCaretaker(family.ID, "mom", "admin")
	h, _ := newTestSetupHandler(store)

	// The setup session's write access ended when the first caretaker was
	// created; it may not mint further credentials
	familyID := family.ID
	claims := &jwtutil.SessionClaims{Kind: jwtutil.KindSetup, FamilyID: &familyID, Role: "invite"}

	body := `{"caretakers":[{"login_id":"intruder","name":"Intruder","pin":"9999"}]}`
	rec := postJSON(t, h.Security, "/api/setup/security", body, func(c echo.Context) {
		c.Set(middleware.ContextClaims, claims)
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	count, err := store.CaretakerCount(context.Background(), family.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "no caretaker may be written by a superseded setup session")
}

func TestSecurityRequiresAdminRoleForCaretakerSessions(t *testing.T) {
	store := newStubStore()
	family, err := store.CreateFamily(context.Background(), setup.CreateFamilyParams{Name: "Smith", Slug: "smith"})
	require.NoError(t, err)
	admin := store.addCaretaker(family.ID, "mom", "admin")
	member := store.addCaretaker(family.ID, "dad", "member")
	h, _ := newTestSetupHandler(store)

	familyID := family.ID
	body := `{"caretakers":[{"login_id":"sneaky","name":"Sneaky","role":"admin","pin":"1234"}]}`

	// A member-role caretaker may not mint caretakers, admin role or not
	memberClaims := &jwtutil.SessionClaims{
		Kind: jwtutil.KindCaretaker, SubjectID: member.ID, FamilyID: &familyID, Role: "member",
	}
	rec := postJSON(t, h.Security, "/api/setup/security", body, func(c echo.Context) {
		c.Set(middleware.ContextClaims, memberClaims)
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	count, _ := store.CaretakerCount(context.Background(), family.ID)
	assert.Equal(t, int64(2), count)

	// The membership store decides, not the claims: a forged admin claim on
	// a member row is still rejected
	forgedClaims := &jwtutil.SessionClaims{
		Kind: jwtutil.KindCaretaker, SubjectID: member.ID, FamilyID: &familyID, Role: "admin",
	}
	rec = postJSON(t, h.Security, "/api/setup/security", body, func(c echo.Context) {
		c.Set(middleware.ContextClaims, forgedClaims)
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// An actual admin caretaker passes
	adminClaims := &jwtutil.SessionClaims{
		Kind: jwtutil.KindCaretaker, SubjectID: admin.ID, FamilyID: &familyID, Role: "admin",
	}
	rec = postJSON(t, h.Security, "/api/setup/security", body, func(c echo.Context) {
		c.Set(middleware.ContextClaims, adminClaims)
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	count, _ = store.CaretakerCount(context.Background(), family.ID)
	assert.Equal(t, int64(3), count)
}

func TestCompleteRevokesSession(t *testing.T) {
	store := newStubStore()
	family, err := store.CreateFamily(context.Background(), setup.CreateFamilyParams{Name: "Done", Slug: "done"})
	require.NoError(t, err)
	h, blacklist := newTestSetupHandler(store)

	token, err := jwtutil.GenerateTokenWithFamily(jwtutil.KindSetup, 0, "setup", &family.ID, family.Slug, family.Name, "invite")
	require.NoError(t, err)
	claims, err := jwtutil.ValidateToken(token)
	require.NoError(t, err)

	rec := postJSON(t, h.Complete, "/api/setup/complete", `{}`, func(c echo.Context) {
		c.Set(middleware.ContextClaims, claims)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, blacklist.Revoked(claims.ID))

	// Reusing the old bearer token for a privileged call now fails auth
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/setup/security", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)

	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	require.NoError(t, middleware.AuthMiddleware(blacklist)(next)(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stage, err := store.SetupStage(context.Background(), family.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageComplete, stage)
}
