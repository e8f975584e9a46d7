package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq" // pq.StringArray
	"gorm.io/gorm"
)

// User is the profile row owned by the profile collaborator.
// Matchmaking only reads it to derive Traits and an optional Telegram chat for notifications.
type User struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	TelegramID int64          `gorm:"index"` // 0 when the user never linked Telegram
	Age        int
	Gender     string
	Interests  pq.StringArray `gorm:"type:text[]"`
	Language   string         `gorm:"type:text;default:'en'"`
}

// BeforeCreate generates a UUID for the user when ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Traits derives the matchmaking traits from the profile.
// Unrecognized genders are treated as unknown rather than rejected.
func (u *User) Traits() Traits {
	g := Gender(u.Gender)
	if !g.valid() {
		g = GenderUnknown
	}
	return Traits{Gender: g, AgeBand: AgeBandFor(u.Age)}
}
