package tenant

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/leonguyen52/sprout-track-sub003/internal/model"
)

// ErrNotFound is returned when no active family matches a slug
var ErrNotFound = errors.New("family not found")

// FamilyStore is the read boundary the resolver depends on. The gorm
// implementation below is the production store; tests substitute a fake.
type FamilyStore interface {
	// FindBySlug returns the active family with the given slug, or ErrNotFound
	FindBySlug(ctx context.Context, slug string) (*model.Family, error)
	// ActiveFamilies returns all active families
	ActiveFamilies(ctx context.Context) ([]model.Family, error)
}

// GormStore implements FamilyStore over the shared gorm connection
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store bound to db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindBySlug(ctx context.Context, slug string) (*model.Family, error) {
	var family model.Family
	result := s.db.WithContext(ctx).Where("slug = ? AND active = ?", slug, true).First(&family)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &family, nil
}

func (s *GormStore) ActiveFamilies(ctx context.Context) ([]model.Family, error) {
	var families []model.Family
	result := s.db.WithContext(ctx).Where("active = ?", true).Order("name asc").Find(&families)
	if result.Error != nil {
		return nil, result.Error
	}
	return families, nil
}
