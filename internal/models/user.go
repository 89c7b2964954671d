package models

import (
	"time"
)

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	Email            string     `gorm:"type:varchar(254);uniqueIndex;not null" json:"email"`
	PasswordHash     string     `gorm:"type:varchar(255);not null" json:"-"` // Never expose password hash in JSON
	ProfilePicture   *string    `gorm:"type:varchar(255)" json:"profile_picture"`
	ShortDescription *string    `gorm:"type:varchar(255)" json:"short_description"`
	IsValid          bool       `gorm:"not null;default:false;index" json:"is_valid"`
	IsStaff          bool       `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser      bool       `gorm:"not null;default:false" json:"is_superuser"`
	DateJoined       time.Time  `gorm:"autoCreateTime;index" json:"date_joined"`
	LastLogin        *time.Time `json:"last_login"`
}

// IsAdmin reports whether the account may use the administrative surface.
func (u *User) IsAdmin() bool {
	return u.IsStaff || u.IsSuperuser
}

// UserStats holds the per-user counters shown next to a profile.
type UserStats struct {
	TotalPosts int64 `json:"total_posts"`
	TotalLikes int64 `json:"total_likes"`
}
