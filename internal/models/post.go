package models

import (
	"time"
)

// PostLikesTable is the join table behind Post.LikedBy.
const PostLikesTable = "post_likes"

type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AuthorID  uint      `gorm:"not null;index" json:"-"`
	Author    User      `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
	LikedBy   []User    `gorm:"many2many:post_likes;constraint:OnDelete:CASCADE" json:"liked_by"`

	// Soft delete flag, rows stay until the retention sweep
	IsDeleted bool `gorm:"not null;default:false;index" json:"is_deleted"`
}
