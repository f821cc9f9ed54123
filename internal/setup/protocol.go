package setup

import (
	"context"
	"regexp"
	"time"

	"github.com/leonguyen52/sprout-track-sub003/internal/model"
)

// TokenStatus classifies an invitation token
type TokenStatus string

const (
	TokenValid    TokenStatus = "valid"
	TokenUsed     TokenStatus = "used"
	TokenExpired  TokenStatus = "expired"
	TokenNotFound TokenStatus = "not_found"
)

// Stage ordering for the wizard. Under token authorization the resource
// stage must run before the security stage: creating caretakers recomputes
// the session's family membership and would revoke the setup session's own
// access before it can create the first baby. Write order is therefore
// family -> resources -> security, fixed, for the token variant.
var stageRank = map[string]int{
	model.StageFamily:    0,
	model.StageResources: 1,
	model.StageSecurity:  2,
	model.StageComplete:  3,
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// StartRequest carries the inputs of the setup-start operation
type StartRequest struct {
	Name string
	Slug string
	// Token, when non-empty, selects the token-redemption context
	Token string
	// AdminInitiated marks an explicit "new family" created by the system
	// administrator; it never touches the pre-seeded default
	AdminInitiated bool
}

// Protocol implements the three-context family setup workflow over a Store
type Protocol struct {
	store Store
	now   func() time.Time
}

// NewProtocol creates a protocol over the given store
func NewProtocol(store Store) *Protocol {
	return &Protocol{store: store, now: time.Now}
}

// WithClock overrides the clock, for tests
func (p *Protocol) WithClock(now func() time.Time) *Protocol {
	p.now = now
	return p
}

// ClassifyToken returns the status of an invitation token. A bound token
// reports "used" even when it is also expired: spent is the permanent
// terminal state and the user-facing remediation differs from expiry.
func (p *Protocol) ClassifyToken(ctx context.Context, token string) (TokenStatus, *model.SetupToken, error) {
	row, err := p.store.FindToken(ctx, token)
	if err != nil {
		return "", nil, err
	}
	if row == nil {
		return TokenNotFound, nil, nil
	}
	if row.FamilyID != nil {
		return TokenUsed, row, nil
	}
	if p.now().After(row.ExpiresAt) {
		return TokenExpired, row, nil
	}
	return TokenValid, row, nil
}

// IssueToken creates a new single-use invitation token
func (p *Protocol) IssueToken(ctx context.Context, createdBy string, ttl time.Duration) (*model.SetupToken, error) {
	token := &model.SetupToken{
		ExpiresAt: p.now().Add(ttl),
		CreatedBy: createdBy,
	}
	if err := p.store.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Start creates a family under one of the three authorization contexts.
// The whole creation (default deactivation, family, settings, token binding)
// is a single transaction in the store; no partial state is ever observable.
func (p *Protocol) Start(ctx context.Context, req StartRequest) (*model.Family, error) {
	if req.Name == "" || req.Slug == "" || !slugPattern.MatchString(req.Slug) {
		return nil, ErrValidation
	}

	// Slug collision over ALL families is a user-facing conflict, never a
	// silent rename. The unique constraint backs this check under races.
	taken, err := p.store.SlugExists(ctx, req.Slug)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlugTaken
	}

	params := CreateFamilyParams{Name: req.Name, Slug: req.Slug}

	switch {
	case req.Token != "":
		status, row, err := p.ClassifyToken(ctx, req.Token)
		if err != nil {
			return nil, err
		}
		switch status {
		case TokenNotFound:
			return nil, ErrTokenNotFound
		case TokenUsed:
			return nil, ErrTokenUsed
		case TokenExpired:
			return nil, ErrTokenExpired
		}
		params.TokenID = &row.ID

	case req.AdminInitiated:
		// Always allowed; leaves the default family alone

	default:
		// Fresh install: only permitted while nothing beyond the pre-seeded
		// default exists
		total, defaultOnly, err := p.store.FamilyCensus(ctx)
		if err != nil {
			return nil, err
		}
		if total > 0 && !defaultOnly {
			return nil, ErrForbidden
		}
		params.DeactivateDefault = total > 0
	}

	return p.store.CreateFamily(ctx, params)
}

// AdvanceStage moves the family's recorded setup stage forward. For
// token-authorized sessions the security stage is rejected until the
// resource stage has run; the other contexts are order-independent because
// their principal's authorization does not depend on family membership.
func (p *Protocol) AdvanceStage(ctx context.Context, familyID uint, target string, tokenSession bool) error {
	targetRank, ok := stageRank[target]
	if !ok {
		return ErrValidation
	}

	current, err := p.store.SetupStage(ctx, familyID)
	if err != nil {
		return err
	}
	currentRank := stageRank[current]

	if tokenSession && target == model.StageSecurity && currentRank < stageRank[model.StageResources] {
		return ErrStageOrder
	}

	if targetRank <= currentRank {
		// Re-running a stage is allowed and leaves the record unchanged
		return nil
	}
	return p.store.SaveStage(ctx, familyID, target)
}

// CreateFirstBaby records the family's first tracked resource (stage 2)
func (p *Protocol) CreateFirstBaby(ctx context.Context, familyID uint, baby *model.Baby, tokenSession bool) error {
	if baby.Name == "" {
		return ErrValidation
	}
	baby.FamilyID = familyID
	if err := p.store.CreateBaby(ctx, baby); err != nil {
		return err
	}
	return p.AdvanceStage(ctx, familyID, model.StageResources, tokenSession)
}

// CreateCaretakers records the family's credential principals (stage 3)
func (p *Protocol) CreateCaretakers(ctx context.Context, familyID uint, caretakers []*model.Caretaker, tokenSession bool) error {
	if len(caretakers) == 0 {
		return ErrValidation
	}
	// The whole batch is validated up front; a malformed entry must not
	// leave earlier entries persisted
	for _, caretaker := range caretakers {
		if caretaker.LoginID == "" || caretaker.Name == "" {
			return ErrValidation
		}
	}
	// Ordering is enforced before any principal is written; a partially
	// applied stage would otherwise still revoke the session's access
	if err := p.AdvanceStage(ctx, familyID, model.StageSecurity, tokenSession); err != nil {
		return err
	}
	for _, caretaker := range caretakers {
		if caretaker.Role == "" {
			caretaker.Role = "member"
		}
		caretaker.FamilyID = familyID
		caretaker.Active = true
		if err := p.store.CreateCaretaker(ctx, caretaker); err != nil {
			return err
		}
	}
	return nil
}

// Complete marks the wizard finished
func (p *Protocol) Complete(ctx context.Context, familyID uint) error {
	return p.store.SaveStage(ctx, familyID, model.StageComplete)
}
