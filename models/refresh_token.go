package models

import "time"

const (
	ReasonReplaced      = "replaced"
	ReasonManual        = "manual"
	ReasonReuseDetected = "reuse of revoked ancestor token"
)

type RefreshToken struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	UserID          uint       `json:"-" gorm:"not null;index"`
	Token           string     `json:"token" gorm:"uniqueIndex;size:255;not null"`
	Created         time.Time  `json:"created" gorm:"not null"`
	Expires         time.Time  `json:"expires" gorm:"not null;index"`
	CreatedByIP     string     `json:"createdByIp" gorm:"size:255"`
	CreatedByDevice string     `json:"createdByDevice,omitempty" gorm:"size:255"`
	Revoked         *time.Time `json:"revoked,omitempty"`
	RevokedByIP     *string    `json:"revokedByIp,omitempty" gorm:"size:255"`
	ReasonRevoked   *string    `json:"reasonRevoked,omitempty" gorm:"size:255"`
	ReplacedByToken *string    `json:"replacedByToken,omitempty" gorm:"size:255"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.Expires)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.Revoked != nil
}

func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

func (t *RefreshToken) Successor() (string, bool) {
	if t.ReplacedByToken == nil || *t.ReplacedByToken == "" {
		return "", false
	}
	return *t.ReplacedByToken, true
}

// Origin is the provenance recorded on tokens created or revoked by a request.
type Origin struct {
	IP     string
	Device string
}
