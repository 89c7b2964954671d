package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/utils"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every fixture account.
const DefaultPassword = "Test123456"

// fastHashParams keeps fixture creation cheap; VerifyPassword reads params from the hash.
var fastHashParams = utils.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type UserOption func(u *models.User)

// Valid marks the fixture account as approved.
func Valid() UserOption { return func(u *models.User) { u.IsValid = true } }

func Staff() UserOption { return func(u *models.User) { u.IsStaff = true } }

// Superuser also approves the account.
func Superuser() UserOption {
	return func(u *models.User) {
		u.IsSuperuser = true
		u.IsStaff = true
		u.IsValid = true
	}
}

// CreateUser inserts an account with DefaultPassword and <username>@example.com.
func CreateUser(t *testing.T, db *gorm.DB, username string, opts ...UserOption) *models.User {
	t.Helper()

	hash, err := utils.HashPasswordWithParams(DefaultPassword, fastHashParams)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@example.com", username),
		PasswordHash: hash,
	}
	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	// gorm skips zero-value bools carrying a default tag, reload to read what was stored
	if err := db.First(user, user.ID).Error; err != nil {
		t.Fatalf("Failed to reload user %s: %v", username, err)
	}
	return user
}

// CreatePost inserts a live post with the given creation time (now when zero).
func CreatePost(t *testing.T, db *gorm.DB, author *models.User, content string, createdAt time.Time) *models.Post {
	t.Helper()

	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	post := &models.Post{
		AuthorID:  author.ID,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := db.Omit("Author", "LikedBy").Create(post).Error; err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}
	return post
}

// MarkDeleted soft-deletes a post as of updatedAt, bypassing gorm's auto timestamps.
func MarkDeleted(t *testing.T, db *gorm.DB, post *models.Post, updatedAt time.Time) {
	t.Helper()

	err := db.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumns(map[string]interface{}{
		"is_deleted": true,
		"updated_at": updatedAt,
	}).Error
	if err != nil {
		t.Fatalf("Failed to soft delete post %d: %v", post.ID, err)
	}
}

// AddLike inserts a like row directly.
func AddLike(t *testing.T, db *gorm.DB, post *models.Post, user *models.User) {
	t.Helper()

	err := db.Exec("INSERT INTO "+models.PostLikesTable+" (post_id, user_id) VALUES (?, ?)", post.ID, user.ID).Error
	if err != nil {
		t.Fatalf("Failed to like post %d as %d: %v", post.ID, user.ID, err)
	}
}

// CountLikes returns how many like rows exist for the post.
func CountLikes(t *testing.T, db *gorm.DB, postID uint) int64 {
	t.Helper()

	var count int64
	if err := db.Table(models.PostLikesTable).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		t.Fatalf("Failed to count likes: %v", err)
	}
	return count
}
