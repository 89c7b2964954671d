// Package seed creates the initial superuser and optional demo content for development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/utils"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"
)

// DemoPassword is the password of every generated demo account.
const DemoPassword = "demo-password-123"

type Seeder struct {
	userRepo *repository.UserRepository
	postRepo *repository.PostRepository
	faker    *gofakeit.Faker
	rng      *rand.Rand

	// hashPassword is swapped for a cheaper hash in tests
	hashPassword func(string) (string, error)
}

func New(userRepo *repository.UserRepository, postRepo *repository.PostRepository, seed int64) *Seeder {
	return &Seeder{
		userRepo:     userRepo,
		postRepo:     postRepo,
		faker:        gofakeit.New(seed),
		rng:          rand.New(rand.NewSource(seed)),
		hashPassword: utils.HashPassword,
	}
}

// EnsureSuperuser creates a valid staff superuser unless the username or email is
// already taken. created is false when an account already existed.
func (s *Seeder) EnsureSuperuser(ctx context.Context, username, email, password string) (user *models.User, created bool, err error) {
	if username == "" || email == "" || password == "" {
		return nil, false, errors.New("username, email and password are required")
	}

	existing, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		if existing, err = s.userRepo.GetUserByEmail(ctx, email); err != nil {
			return nil, false, err
		}
	}
	if existing != nil {
		return existing, false, nil
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}

	user = &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsValid:      true,
		IsStaff:      true,
		IsSuperuser:  true,
	}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create superuser: %w", err)
	}

	logger.Log.Info("Superuser created", zap.Uint("user_id", user.ID), zap.String("username", username))
	return user, true, nil
}

// DemoResult counts what Demo inserted.
type DemoResult struct {
	Users int
	Posts int
	Likes int
}

// Demo creates n valid accounts with DemoPassword, up to three posts each spread over the
// last week, and a random set of likes between them.
func (s *Seeder) Demo(ctx context.Context, n int) (*DemoResult, error) {
	result := &DemoResult{}
	if n <= 0 {
		return result, nil
	}

	hash, err := s.hashPassword(DemoPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		bio := s.faker.Sentence(8)
		picture := fmt.Sprintf("https://i.pravatar.cc/150?u=%s", s.faker.UUID())
		user := &models.User{
			Username:         fmt.Sprintf("%s%d", sanitizeUsername(s.faker.Username()), s.faker.Number(100, 999)),
			Email:            fmt.Sprintf("demo%d.%s", i, s.faker.Email()),
			PasswordHash:     hash,
			ProfilePicture:   &picture,
			ShortDescription: &bio,
			IsValid:          true,
		}
		if err := s.userRepo.CreateUser(ctx, user); err != nil {
			return result, fmt.Errorf("create demo user: %w", err)
		}
		users = append(users, user)
		result.Users++
	}

	now := time.Now()
	var posts []*models.Post
	for _, user := range users {
		for j := 0; j < 1+s.rng.Intn(3); j++ {
			createdAt := now.Add(-time.Duration(s.rng.Intn(7*24*60)) * time.Minute)
			post := &models.Post{
				AuthorID:  user.ID,
				Content:   s.faker.Paragraph(1, 2, 12, " "),
				CreatedAt: createdAt,
				UpdatedAt: createdAt,
			}
			if err := s.postRepo.CreatePost(ctx, post); err != nil {
				return result, fmt.Errorf("create demo post: %w", err)
			}
			posts = append(posts, post)
			result.Posts++
		}
	}

	for _, post := range posts {
		for _, user := range users {
			if user.ID == post.AuthorID || s.rng.Intn(3) != 0 {
				continue
			}
			if err := s.postRepo.AddLike(ctx, post.ID, user.ID, post.UpdatedAt); err != nil {
				return result, fmt.Errorf("create demo like: %w", err)
			}
			result.Likes++
		}
	}

	logger.Log.Info("Demo data created",
		zap.Int("users", result.Users),
		zap.Int("posts", result.Posts),
		zap.Int("likes", result.Likes),
	)
	return result, nil
}

func sanitizeUsername(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			return r
		}
		return -1
	}, name)
	if name == "" {
		return "user"
	}
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}
