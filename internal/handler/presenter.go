package handler

import (
	"context"
	"net/url"
	"time"

	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/pagination"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/gin-gonic/gin"
)

// UserSummary is how an account appears to everybody, including nested in posts.
type UserSummary struct {
	ID               uint    `json:"id"`
	Username         string  `json:"username"`
	ProfilePicture   *string `json:"profile_picture"`
	ShortDescription *string `json:"short_description"`
	TotalLikes       int64   `json:"total_likes"`
	TotalPosts       int64   `json:"total_posts"`
}

// UserDetail is the account as seen by its owner or an administrator.
type UserDetail struct {
	UserSummary
	Email       string     `json:"email"`
	IsValid     bool       `json:"is_valid"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	DateJoined  time.Time  `json:"date_joined"`
	LastLogin   *time.Time `json:"last_login"`
}

type PostResponse struct {
	ID         uint          `json:"id"`
	Author     UserSummary   `json:"author"`
	Content    string        `json:"content"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	LikedBy    []UserSummary `json:"liked_by"`
	LikesCount int           `json:"likes_count"`
	IsDeleted  bool          `json:"is_deleted"`
}

// presenter turns models into response bodies, loading per-user counters in one batch.
type presenter struct {
	userService *service.UserService
}

func (p presenter) stats(ctx context.Context, users []*models.User) (map[uint]models.UserStats, error) {
	return p.userService.Stats(ctx, users...)
}

func summarize(u *models.User, stats map[uint]models.UserStats) UserSummary {
	s := stats[u.ID]
	return UserSummary{
		ID:               u.ID,
		Username:         u.Username,
		ProfilePicture:   u.ProfilePicture,
		ShortDescription: u.ShortDescription,
		TotalLikes:       s.TotalLikes,
		TotalPosts:       s.TotalPosts,
	}
}

func detail(u *models.User, stats map[uint]models.UserStats) UserDetail {
	return UserDetail{
		UserSummary: summarize(u, stats),
		Email:       u.Email,
		IsValid:     u.IsValid,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		DateJoined:  u.DateJoined,
		LastLogin:   u.LastLogin,
	}
}

func (p presenter) user(ctx context.Context, u *models.User) (UserDetail, error) {
	stats, err := p.stats(ctx, []*models.User{u})
	if err != nil {
		return UserDetail{}, err
	}
	return detail(u, stats), nil
}

func (p presenter) users(c *gin.Context, page *pagination.PageResult[*models.User]) (*pagination.PageResult[UserDetail], error) {
	stats, err := p.stats(c.Request.Context(), page.Results)
	if err != nil {
		return nil, err
	}
	out := pagination.Map(page, func(u *models.User) UserDetail { return detail(u, stats) })
	return withLinks(c, out), nil
}

func postUsers(posts []*models.Post) []*models.User {
	seen := make(map[uint]bool)
	var users []*models.User
	add := func(u *models.User) {
		if !seen[u.ID] {
			seen[u.ID] = true
			users = append(users, u)
		}
	}
	for _, post := range posts {
		add(&post.Author)
		for i := range post.LikedBy {
			add(&post.LikedBy[i])
		}
	}
	return users
}

func renderPost(post *models.Post, stats map[uint]models.UserStats) PostResponse {
	likers := make([]UserSummary, 0, len(post.LikedBy))
	for i := range post.LikedBy {
		likers = append(likers, summarize(&post.LikedBy[i], stats))
	}
	return PostResponse{
		ID:         post.ID,
		Author:     summarize(&post.Author, stats),
		Content:    post.Content,
		CreatedAt:  post.CreatedAt,
		UpdatedAt:  post.UpdatedAt,
		LikedBy:    likers,
		LikesCount: len(likers),
		IsDeleted:  post.IsDeleted,
	}
}

func (p presenter) post(ctx context.Context, post *models.Post) (PostResponse, error) {
	stats, err := p.stats(ctx, postUsers([]*models.Post{post}))
	if err != nil {
		return PostResponse{}, err
	}
	return renderPost(post, stats), nil
}

func (p presenter) posts(c *gin.Context, page *pagination.PageResult[*models.Post]) (*pagination.PageResult[PostResponse], error) {
	stats, err := p.stats(c.Request.Context(), postUsers(page.Results))
	if err != nil {
		return nil, err
	}
	out := pagination.Map(page, func(post *models.Post) PostResponse { return renderPost(post, stats) })
	return withLinks(c, out), nil
}

func withLinks[T any](c *gin.Context, page *pagination.PageResult[T]) *pagination.PageResult[T] {
	base, err := url.Parse(requestURL(c))
	if err != nil {
		return page
	}
	return page.WithLinks(base)
}
