package model

import (
	"time"

	"gorm.io/gorm"
)

// Caretaker represents a credential principal belonging to one family.
// Caretakers authenticate with a login id and a PIN; the system administrator
// is family-independent and configured outside this table.
type Caretaker struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	FamilyID  uint           `json:"family_id" gorm:"index;not null"`
	LoginID   string         `json:"login_id" gorm:"type:varchar(100);not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	Role      string         `json:"role" gorm:"type:varchar(50);not null;default:'member'"` // 'admin' or 'member'
	PINHash   string         `json:"-" gorm:"type:varchar(255)"`
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Account represents a SaaS account holder who may register families online.
// Registration UI flows live outside this service; the record backs the
// account session kind.
type Account struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Email        string         `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	PasswordHash string         `json:"-" gorm:"type:varchar(255)"`
	Verified     bool           `json:"verified" gorm:"default:false"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
