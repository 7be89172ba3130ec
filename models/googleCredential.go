package models

import "time"

// GoogleCredential holds one tenant's OAuth tokens for the Business Profile API.
// Token columns are sealed at rest (utils.SealSecret); the gbp credential store is the
// only reader/writer.
type GoogleCredential struct {
	ID              int        `gorm:"primary_key" json:"id"`
	BusinessId      string     `gorm:"uniqueIndex;not null" json:"business_id"`
	AccessTokenEnc  string     `gorm:"type:text" json:"-"`
	RefreshTokenEnc string     `gorm:"type:text;not null" json:"-"`
	TokenExpiry     *time.Time `json:"token_expiry"`
	Scope           string     `gorm:"size:512" json:"scope"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
