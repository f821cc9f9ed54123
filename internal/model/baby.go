package model

import (
	"time"

	"gorm.io/gorm"
)

// Baby is the first tracked resource created during setup
type Baby struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	FamilyID  uint           `json:"family_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	BirthDate time.Time      `json:"birth_date"`
	Gender    string         `json:"gender,omitempty" gorm:"type:varchar(16)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Activity is a logged care event (sleep, feed, diaper, medicine) scoped to a
// family and a baby
type Activity struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	FamilyID  uint           `json:"family_id" gorm:"index;not null"`
	BabyID    uint           `json:"baby_id" gorm:"index;not null"`
	Type      string         `json:"type" gorm:"type:varchar(16);not null"` // 'sleep', 'feed', 'diaper', 'medicine'
	StartedAt time.Time      `json:"started_at" gorm:"index;not null"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Notes     string         `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Activity types accepted by the API
const (
	ActivitySleep    = "sleep"
	ActivityFeed     = "feed"
	ActivityDiaper   = "diaper"
	ActivityMedicine = "medicine"
)

// ValidActivityType reports whether t is one of the known activity types
func ValidActivityType(t string) bool {
	switch t {
	case ActivitySleep, ActivityFeed, ActivityDiaper, ActivityMedicine:
		return true
	}
	return false
}
