package model

import (
	"time"

	"gorm.io/gorm"
)

// Family represents the tenant model stored in the database
// This is the core of our multi-tenant architecture
type Family struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	Slug      string         `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Active    bool           `json:"active" gorm:"default:true"`
	IsDefault bool           `json:"is_default" gorm:"default:false"` // Pre-seeded placeholder family on fresh installs
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// FamilySettings is the companion settings record created with every family
type FamilySettings struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	FamilyID   uint           `json:"family_id" gorm:"uniqueIndex;not null"`
	Timezone   string         `json:"timezone" gorm:"type:varchar(64);default:'UTC'"`
	Units      string         `json:"units" gorm:"type:varchar(16);default:'metric'"` // 'metric' or 'imperial'
	SetupStage string         `json:"setup_stage" gorm:"type:varchar(16);default:'family'"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// Setup stages recorded in FamilySettings.SetupStage. The order matters for
// token-authorized setup: the resource stage must run before the security
// stage or the session revokes its own access (see internal/setup).
const (
	StageFamily    = "family"
	StageResources = "resources"
	StageSecurity  = "security"
	StageComplete  = "complete"
)
