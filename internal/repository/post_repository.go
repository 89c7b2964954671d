package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Baaaki/postboard/internal/models"
	"gorm.io/gorm"
)

// PostFilter narrows an administrative post listing. Unlike the public listing it can
// include soft-deleted rows.
type PostFilter struct {
	IsDeleted *bool
	AuthorID  *uint
	Search    string // matched against content and author username
	Limit     int
	Offset    int
}

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) withDetails(ctx context.Context) *gorm.DB {
	return preloadDetails(r.db.WithContext(ctx))
}

// preloadDetails loads the author and the likers ordered by id.
func preloadDetails(query *gorm.DB) *gorm.DB {
	return query.
		Preload("Author").
		Preload("LikedBy", func(db *gorm.DB) *gorm.DB {
			return db.Order("users.id ASC")
		})
}

func (r *PostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Omit("Author", "LikedBy").Create(post).Error
}

// GetPostByID returns a live post with author and likers loaded, or nil when the post
// does not exist or has been soft-deleted.
func (r *PostRepository) GetPostByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.withDetails(ctx).Where("is_deleted = ?", false).First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// GetAnyPostByID ignores the soft delete flag.
func (r *PostRepository) GetAnyPostByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.withDetails(ctx).First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// ListPosts returns live posts, newest first.
func (r *PostRepository) ListPosts(ctx context.Context, limit, offset int) ([]*models.Post, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("is_deleted = ?", false).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []*models.Post
	err := r.withDetails(ctx).
		Where("is_deleted = ?", false).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// GetRecentPosts returns at most limit live posts ordered by creation time, newest first.
func (r *PostRepository) GetRecentPosts(ctx context.Context, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.withDetails(ctx).
		Where("is_deleted = ?", false).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// ListAllPosts is the administrative listing and includes soft-deleted posts.
func (r *PostRepository) ListAllPosts(ctx context.Context, filter PostFilter) ([]*models.Post, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Post{})
	if filter.IsDeleted != nil {
		query = query.Where("posts.is_deleted = ?", *filter.IsDeleted)
	}
	if filter.AuthorID != nil {
		query = query.Where("posts.author_id = ?", *filter.AuthorID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		authors := r.db.Model(&models.User{}).Select("id").Where("username LIKE ?", like)
		query = query.Where("posts.content LIKE ? OR posts.author_id IN (?)", like, authors)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []*models.Post
	query = preloadDetails(query).Order("posts.created_at DESC").Order("posts.id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}
	if err := query.Find(&posts).Error; err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// UpdatePost writes the given columns and stamps updated_at with at.
func (r *PostRepository) UpdatePost(ctx context.Context, id uint, values map[string]interface{}, at time.Time) error {
	values["updated_at"] = at
	return r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Updates(values).Error
}

// SoftDeletePost hides the post from every default listing without erasing it.
func (r *PostRepository) SoftDeletePost(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"updated_at": at,
		}).Error
}

// RestorePosts clears the soft delete flag on the listed posts that are currently deleted.
func (r *PostRepository) RestorePosts(ctx context.Context, ids []uint, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id IN ? AND is_deleted = ?", ids, true).
		Updates(map[string]interface{}{
			"is_deleted": false,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

// AddLike records that userID likes postID. Liking twice leaves a single row.
func (r *PostRepository) AddLike(ctx context.Context, postID, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			"INSERT INTO "+models.PostLikesTable+" (post_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			postID, userID,
		).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("updated_at", at).Error
	})
}

// RemoveLike drops the like if present. Removing a missing like is not an error.
func (r *PostRepository) RemoveLike(ctx context.Context, postID, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			"DELETE FROM "+models.PostLikesTable+" WHERE post_id = ? AND user_id = ?",
			postID, userID,
		).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("updated_at", at).Error
	})
}

// SweepSoftDeleted hard-deletes every soft-deleted post last touched before cutoff, along
// with its likes, inside one transaction. It returns the number of posts removed.
//
// A post restored between the like cleanup and the post delete is not re-checked; the
// restore simply loses to the sweep.
func (r *PostRepository) SweepSoftDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&models.Post{}).Select("id").Where("is_deleted = ? AND updated_at < ?", true, cutoff)
		if err := tx.Exec("DELETE FROM "+models.PostLikesTable+" WHERE post_id IN (?)", expired).Error; err != nil {
			return err
		}
		result := tx.Where("is_deleted = ? AND updated_at < ?", true, cutoff).Delete(&models.Post{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
