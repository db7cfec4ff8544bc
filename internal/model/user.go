package model

import "time"

const (
	// RoleUser is the default role assigned on registration.
	RoleUser = "user"
	// RoleAdmin may read and edit any account.
	RoleAdmin = "admin"
)

// User represents one account and its credential state.
type User struct {
	ID                       uint       `json:"id" gorm:"primaryKey"`
	Username                 string     `json:"username" gorm:"uniqueIndex;size:32;not null"`
	Name                     string     `json:"name" gorm:"size:255;not null"`
	Email                    string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash             string     `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role                     string     `json:"role" gorm:"size:50;default:'user'"`
	IsEmailVerified          bool       `json:"isEmailVerified" gorm:"default:false"`
	EmailVerificationDigest  string     `json:"-" gorm:"size:64;index"`
	EmailVerificationExpires *time.Time `json:"-"`
	PasswordResetDigest      string     `json:"-" gorm:"size:64;index"`
	PasswordResetExpires     *time.Time `json:"-"`
	CreatedAt                time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
