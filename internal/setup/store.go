package setup

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/leonguyen52/sprout-track-sub003/internal/model"
)

// CreateFamilyParams drives the transactional family-creation unit
type CreateFamilyParams struct {
	Name string
	Slug string
	// DeactivateDefault retires the pre-seeded default family in the same
	// transaction (fresh-install path only)
	DeactivateDefault bool
	// TokenID, when set, is bound to the new family in the same transaction,
	// spending the token
	TokenID *uint
}

// Store is the persistence boundary of the setup protocol
type Store interface {
	// FamilyCensus returns how many family rows exist (including inactive and
	// soft-deleted ones) and whether the only ones present are the pre-seeded
	// default
	FamilyCensus(ctx context.Context) (total int64, defaultOnly bool, err error)
	// SlugExists checks slug uniqueness among ALL families, active or not
	SlugExists(ctx context.Context, slug string) (bool, error)
	// FindToken returns the token row for the opaque string, or nil
	FindToken(ctx context.Context, token string) (*model.SetupToken, error)
	// CreateToken persists a new invitation token
	CreateToken(ctx context.Context, token *model.SetupToken) error
	// CreateFamily atomically creates the family and its settings record,
	// optionally deactivating the default family and spending the token.
	// Returns ErrSlugTaken on a slug collision and ErrTokenUsed when the
	// token was bound concurrently.
	CreateFamily(ctx context.Context, params CreateFamilyParams) (*model.Family, error)
	// SetupStage returns the recorded stage for the family
	SetupStage(ctx context.Context, familyID uint) (string, error)
	// SaveStage records the stage for the family
	SaveStage(ctx context.Context, familyID uint, stage string) error
	// CreateBaby persists the family's first tracked resource
	CreateBaby(ctx context.Context, baby *model.Baby) error
	// CreateCaretaker persists a credential principal for the family
	CreateCaretaker(ctx context.Context, caretaker *model.Caretaker) error
}

// GormStore implements Store over the shared gorm connection
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store bound to db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FamilyCensus(ctx context.Context) (int64, bool, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&model.Family{}).Unscoped().Count(&total).Error; err != nil {
		return 0, false, err
	}

	var nonDefault int64
	if err := db.Model(&model.Family{}).Unscoped().Where("is_default = ?", false).Count(&nonDefault).Error; err != nil {
		return 0, false, err
	}

	return total, total > 0 && nonDefault == 0, nil
}

func (s *GormStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	// Unscoped so soft-deleted families still reserve their slug
	err := s.db.WithContext(ctx).Model(&model.Family{}).Unscoped().Where("slug = ?", slug).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) FindToken(ctx context.Context, token string) (*model.SetupToken, error) {
	var row model.SetupToken
	result := s.db.WithContext(ctx).Where("token = ?", token).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &row, nil
}

func (s *GormStore) CreateToken(ctx context.Context, token *model.SetupToken) error {
	return s.db.WithContext(ctx).Create(token).Error
}

func (s *GormStore) CreateFamily(ctx context.Context, params CreateFamilyParams) (*model.Family, error) {
	family := &model.Family{
		Name:   params.Name,
		Slug:   params.Slug,
		Active: true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if params.DeactivateDefault {
			// The default family is retired, never deleted
			if err := tx.Model(&model.Family{}).
				Where("is_default = ? AND active = ?", true, true).
				Update("active", false).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(family).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSlugTaken
			}
			return err
		}

		settings := model.FamilySettings{
			FamilyID:   family.ID,
			SetupStage: model.StageFamily,
		}
		if err := tx.Create(&settings).Error; err != nil {
			return err
		}

		if params.TokenID != nil {
			// Conditional bind: only an unbound token can be spent, so two
			// concurrent redemptions admit exactly one winner
			result := tx.Model(&model.SetupToken{}).
				Where("id = ? AND family_id IS NULL", *params.TokenID).
				Updates(map[string]interface{}{"family_id": family.ID, "updated_at": time.Now()})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrTokenUsed
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return family, nil
}

func (s *GormStore) SetupStage(ctx context.Context, familyID uint) (string, error) {
	var settings model.FamilySettings
	result := s.db.WithContext(ctx).Where("family_id = ?", familyID).First(&settings)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", ErrFamilyMissing
		}
		return "", result.Error
	}
	return settings.SetupStage, nil
}

func (s *GormStore) SaveStage(ctx context.Context, familyID uint, stage string) error {
	return s.db.WithContext(ctx).Model(&model.FamilySettings{}).
		Where("family_id = ?", familyID).
		Update("setup_stage", stage).Error
}

func (s *GormStore) CreateBaby(ctx context.Context, baby *model.Baby) error {
	return s.db.WithContext(ctx).Create(baby).Error
}

func (s *GormStore) CreateCaretaker(ctx context.Context, caretaker *model.Caretaker) error {
	return s.db.WithContext(ctx).Create(caretaker).Error
}
