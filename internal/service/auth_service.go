package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Baaaki/postboard/internal/metrics"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/utils"
	"github.com/Baaaki/postboard/pkg/logger"
	"go.uber.org/zap"
)

const (
	maxUsernameLength    = 150
	maxEmailLength       = 254
	minPasswordLength    = 8
	maxPasswordLength    = 128
	maxDescriptionLength = 255
	maxPictureRefLength  = 255
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[\w.@+-]+$`)
)

// RegisterInput is everything a visitor may supply when signing up. Validity and
// privilege flags are deliberately absent.
type RegisterInput struct {
	Username         string
	Email            string
	Password         string
	ProfilePicture   *string
	ShortDescription *string
}

type AuthService struct {
	userRepo      *repository.UserRepository
	jwtSecret     string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, accessExpiry, refreshExpiry time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           time.Now,
	}
}

// Register creates a self-service account. The account always starts invalid and
// cannot obtain tokens until an administrator approves it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	start := time.Now()
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	logger.Log.Debug("Processing user registration",
		zap.String("username", in.Username),
		zap.String("email", in.Email),
	)

	if err := validateRegisterInput(in); err != nil {
		logger.Log.Warn("Registration validation failed",
			zap.String("username", in.Username),
			zap.Error(err),
		)
		return nil, err
	}

	existing, err := s.userRepo.GetUserByUsername(ctx, in.Username)
	if err != nil {
		logger.Log.Error("Failed to check username existence", zap.String("username", in.Username), zap.Error(err))
		return nil, NewInternalError(err)
	}
	if existing != nil {
		logger.Log.Warn("Username already exists", zap.String("username", in.Username))
		return nil, sentinelError(CodeValidation, ErrUsernameAlreadyExists, "A user with that username already exists.")
	}

	existing, err = s.userRepo.GetUserByEmail(ctx, in.Email)
	if err != nil {
		logger.Log.Error("Failed to check email existence", zap.String("email", in.Email), zap.Error(err))
		return nil, NewInternalError(err)
	}
	if existing != nil {
		logger.Log.Warn("Email already exists", zap.String("email", in.Email))
		return nil, sentinelError(CodeValidation, ErrEmailAlreadyExists, "A user with that email already exists.")
	}

	hashStart := time.Now()
	hashedPassword, err := utils.HashPassword(in.Password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, NewInternalError(err)
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		Username:         in.Username,
		Email:            in.Email,
		PasswordHash:     hashedPassword,
		ProfilePicture:   in.ProfilePicture,
		ShortDescription: in.ShortDescription,
		IsValid:          false,
	}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		logger.Log.Error("Failed to create user in database",
			zap.String("username", in.Username),
			zap.Error(err),
		)
		return nil, NewInternalError(err)
	}

	metrics.Registrations.Inc()
	logger.Log.Info("User registered, awaiting approval",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, nil
}

// Login verifies credentials and issues an access/refresh pair. The validity gate runs
// only after the password matched, so an unapproved account with the right password
// gets its own rejection message.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, *utils.TokenPair, error) {
	start := time.Now()

	logger.Log.Debug("Processing user login", zap.String("username", username))

	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		logger.Log.Error("Failed to get user by username", zap.String("username", username), zap.Error(err))
		return nil, nil, NewInternalError(err)
	}
	if user == nil {
		metrics.LoginAttempts.WithLabelValues("bad_credentials").Inc()
		logger.Log.Warn("Login failed: user not found", zap.String("username", username))
		return nil, nil, NewAuthenticationError("No active account found with the given credentials", ErrInvalidCredentials)
	}

	verifyStart := time.Now()
	match, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logger.Log.Error("Failed to verify password", zap.Uint("user_id", user.ID), zap.Error(err))
		return nil, nil, NewInternalError(err)
	}
	verifyDuration := time.Since(verifyStart)

	if !match {
		metrics.LoginAttempts.WithLabelValues("bad_credentials").Inc()
		logger.Log.Warn("Login failed: invalid password", zap.Uint("user_id", user.ID))
		return nil, nil, NewAuthenticationError("No active account found with the given credentials", ErrInvalidCredentials)
	}

	if !user.IsValid {
		metrics.LoginAttempts.WithLabelValues("not_valid").Inc()
		logger.Log.Warn("Login rejected: account not approved", zap.Uint("user_id", user.ID))
		return nil, nil, NewAuthenticationError("User account is not valid.", ErrAccountNotValid)
	}

	pair, err := utils.GenerateTokenPair(user, s.jwtSecret, s.accessExpiry, s.refreshExpiry)
	if err != nil {
		logger.Log.Error("Failed to generate JWT tokens", zap.Uint("user_id", user.ID), zap.Error(err))
		return nil, nil, NewInternalError(err)
	}

	now := s.now()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		// Tokens are already minted, a stale last_login is not worth failing the login
		logger.Log.Warn("Failed to record last login", zap.Uint("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	logger.Log.Info("User logged in successfully",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Duration("password_verify_duration", verifyDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, pair, nil
}

// Refresh exchanges a refresh token for a new access token. The account must still
// exist and still be valid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := utils.ValidateToken(refreshToken, s.jwtSecret, utils.RefreshToken)
	if err != nil {
		logger.Log.Warn("Refresh rejected", zap.Error(err))
		return "", NewAuthenticationError("Token is invalid or expired", err)
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return "", NewInternalError(err)
	}
	if user == nil {
		return "", NewAuthenticationError("User not found", ErrInvalidCredentials)
	}
	if !user.IsValid {
		return "", NewAuthenticationError("User account is not valid.", ErrAccountNotValid)
	}

	access, err := utils.GenerateToken(user, utils.AccessToken, s.jwtSecret, s.accessExpiry)
	if err != nil {
		return "", NewInternalError(err)
	}
	return access, nil
}

// Authenticate resolves a bearer access token to the stored account. The account is
// read fresh so validity changes apply to tokens already issued.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := utils.ValidateToken(accessToken, s.jwtSecret, utils.AccessToken)
	if err != nil {
		return nil, NewAuthenticationError("Given token not valid for any token type", err)
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, NewInternalError(err)
	}
	if user == nil {
		return nil, NewAuthenticationError("User not found", ErrInvalidCredentials)
	}
	return user, nil
}

func validateRegisterInput(in RegisterInput) error {
	if in.Username == "" {
		return NewValidationError("username is required")
	}
	if len(in.Username) > maxUsernameLength {
		return NewValidationError("username must be at most 150 characters")
	}
	if !usernameRegex.MatchString(in.Username) {
		return NewValidationError("username may contain only letters, digits and @/./+/-/_")
	}

	if in.Email == "" {
		return NewValidationError("email is required")
	}
	if len(in.Email) > maxEmailLength || !emailRegex.MatchString(in.Email) {
		return NewValidationError("invalid email format")
	}

	if in.Password == "" {
		return NewValidationError("password is required")
	}
	if len(in.Password) < minPasswordLength {
		return NewValidationError("password must be at least 8 characters")
	}
	if len(in.Password) > maxPasswordLength {
		return NewValidationError("password too long")
	}

	return validateProfileFields(in.ProfilePicture, in.ShortDescription)
}

func validateProfileFields(picture, description *string) error {
	if picture != nil && len(*picture) > maxPictureRefLength {
		return NewValidationError("profile_picture reference too long")
	}
	if description != nil && len(*description) > maxDescriptionLength {
		return NewValidationError("short_description must be at most 255 characters")
	}
	return nil
}

// Logout acknowledges a logout. Tokens are stateless and simply expire.
func (s *AuthService) Logout(ctx context.Context, actor *models.User) {
	logger.Log.Info("User logged out", zap.Uint("user_id", actor.ID))
}
