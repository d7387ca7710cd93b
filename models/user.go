package models

import "time"

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	FirstName    string    `json:"firstName" gorm:"size:100"`
	LastName     string    `json:"lastName" gorm:"size:100"`
	Username     string    `json:"username" gorm:"uniqueIndex;size:100;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	TokenVersion uint      `json:"-" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	RefreshTokens []RefreshToken `json:"refreshTokens,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (User) TableName() string {
	return "users"
}

// FindToken returns the index of token in the user's collection, or -1.
func (u *User) FindToken(token string) int {
	for i := range u.RefreshTokens {
		if u.RefreshTokens[i].Token == token {
			return i
		}
	}
	return -1
}
