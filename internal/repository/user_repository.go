package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Baaaki/postboard/internal/models"
	"gorm.io/gorm"
)

// UserFilter narrows an administrative user listing.
type UserFilter struct {
	IsValid *bool
	IsStaff *bool
	Search  string // matched against username and email
	OnlyIDs []uint
	Limit   int
	Offset  int
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ListUsers returns one page of users, newest accounts first, plus the total match count.
func (r *UserRepository) ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if filter.IsValid != nil {
		query = query.Where("is_valid = ?", *filter.IsValid)
	}
	if filter.IsStaff != nil {
		query = query.Where("is_staff = ?", *filter.IsStaff)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("username LIKE ? OR email LIKE ?", like, like)
	}
	if filter.OnlyIDs != nil {
		query = query.Where("id IN ?", filter.OnlyIDs)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []*models.User
	query = query.Order("date_joined DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateUser applies the given column values to a single user.
func (r *UserRepository) UpdateUser(ctx context.Context, id uint, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(values).Error
}

// MarkValid flips is_valid on every listed account that is not valid yet.
// It returns how many rows actually changed.
func (r *UserRepository) MarkValid(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND is_valid = ?", ids, false).
		Update("is_valid", true)
	return result.RowsAffected, result.Error
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error
}

// DeleteUser removes the account together with its posts and every like pointing at
// either of them.
func (r *UserRepository) DeleteUser(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ownPosts := tx.Model(&models.Post{}).Select("id").Where("author_id = ?", id)
		if err := tx.Exec("DELETE FROM "+models.PostLikesTable+" WHERE user_id = ? OR post_id IN (?)", id, ownPosts).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, id).Error
	})
}

type statRow struct {
	UserID uint
	Total  int64
}

// GetStats returns posts written and posts liked for every requested user.
// Users without activity are present with zero counters.
func (r *UserRepository) GetStats(ctx context.Context, ids []uint) (map[uint]models.UserStats, error) {
	stats := make(map[uint]models.UserStats, len(ids))
	if len(ids) == 0 {
		return stats, nil
	}
	for _, id := range ids {
		stats[id] = models.UserStats{}
	}

	var posts []statRow
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Select("author_id AS user_id, COUNT(*) AS total").
		Where("author_id IN ?", ids).
		Group("author_id").
		Scan(&posts).Error
	if err != nil {
		return nil, err
	}
	for _, row := range posts {
		s := stats[row.UserID]
		s.TotalPosts = row.Total
		stats[row.UserID] = s
	}

	var likes []statRow
	err = r.db.WithContext(ctx).Table(models.PostLikesTable).
		Select("user_id, COUNT(*) AS total").
		Where("user_id IN ?", ids).
		Group("user_id").
		Scan(&likes).Error
	if err != nil {
		return nil, err
	}
	for _, row := range likes {
		s := stats[row.UserID]
		s.TotalLikes = row.Total
		stats[row.UserID] = s
	}

	return stats, nil
}
