package service

import (
	"context"
	"strings"
	"time"

	"github.com/Baaaki/postboard/internal/audit"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/pagination"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/utils"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/Baaaki/postboard/pkg/optional"
	"go.uber.org/zap"
)

// ProfileUpdate is a partial update of an account. Only fields marked Set are written.
// Email and Password exist so that an attempt to change them can be detected and refused.
type ProfileUpdate struct {
	Username         optional.Value[string]
	Email            optional.Value[string]
	Password         optional.Value[string]
	ProfilePicture   optional.Value[*string]
	ShortDescription optional.Value[*string]
	IsValid          optional.Value[bool]
	IsStaff          optional.Value[bool]
	IsSuperuser      optional.Value[bool]
}

func (u ProfileUpdate) touchesCredentials() bool {
	return u.Email.Set || u.Password.Set
}

func (u ProfileUpdate) touchesPrivileges() bool {
	return u.IsValid.Set || u.IsStaff.Set || u.IsSuperuser.Set
}

// AdminCreateInput is an account created directly by an administrator.
type AdminCreateInput struct {
	RegisterInput
	IsValid     bool
	IsStaff     bool
	IsSuperuser bool
}

type UserService struct {
	userRepo *repository.UserRepository
	audit    audit.Recorder
	pageSize int
}

func NewUserService(userRepo *repository.UserRepository, recorder audit.Recorder, pageSize int) *UserService {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &UserService{userRepo: userRepo, audit: recorder, pageSize: pageSize}
}

// List returns the accounts visible to actor. Superusers see everyone, anybody else,
// staff included, only sees their own account.
func (s *UserService) List(ctx context.Context, actor *models.User, page pagination.PageRequest) (*pagination.PageResult[*models.User], error) {
	page = page.Normalize(s.pageSize)

	filter := repository.UserFilter{Limit: page.Limit(), Offset: page.Offset()}
	if !actor.IsSuperuser {
		filter.OnlyIDs = []uint{actor.ID}
	}

	users, total, err := s.userRepo.ListUsers(ctx, filter)
	if err != nil {
		logger.Log.Error("Failed to list users", zap.Uint("actor_id", actor.ID), zap.Error(err))
		return nil, NewInternalError(err)
	}

	result, err := pagination.NewPageResult(page, users, total)
	if err != nil {
		return nil, NewNotFoundError("Page", page.Page)
	}
	return result, nil
}

// Get resolves id within the accounts visible to actor, so an ordinary user asking for
// someone else gets NotFound rather than Forbidden.
func (s *UserService) Get(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	if !actor.IsSuperuser && actor.ID != id {
		return nil, NewNotFoundError("User", id)
	}

	user, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		logger.Log.Error("Failed to get user", zap.Uint("user_id", id), zap.Error(err))
		return nil, NewInternalError(err)
	}
	if user == nil {
		return nil, NewNotFoundError("User", id)
	}
	return user, nil
}

// Profile reloads the requesting account.
func (s *UserService) Profile(ctx context.Context, actor *models.User) (*models.User, error) {
	return s.Get(ctx, actor, actor.ID)
}

func (s *UserService) UpdateProfile(ctx context.Context, actor *models.User, update ProfileUpdate) (*models.User, error) {
	return s.Update(ctx, actor, actor.ID, update)
}

// Update applies a partial update. Touching email or password rejects the whole request
// without writing anything, whoever asks. Status and privilege flags are superuser-only.
func (s *UserService) Update(ctx context.Context, actor *models.User, id uint, update ProfileUpdate) (*models.User, error) {
	target, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if update.touchesCredentials() {
		logger.Log.Warn("Rejected credential change through profile update",
			zap.Uint("actor_id", actor.ID),
			zap.Uint("user_id", id),
		)
		return nil, sentinelError(CodeValidation, ErrProtectedFields, "Cannot update email or password.")
	}

	if update.touchesPrivileges() && !actor.IsSuperuser {
		logger.Log.Warn("Rejected privilege change by non-superuser",
			zap.Uint("actor_id", actor.ID),
			zap.Uint("user_id", id),
		)
		return nil, NewForbiddenError("You do not have permission to perform this action.")
	}

	values := make(map[string]interface{})

	if update.Username.Set {
		username := strings.TrimSpace(update.Username.Value)
		if err := s.checkUsername(ctx, username, target.ID); err != nil {
			return nil, err
		}
		values["username"] = username
	}

	var picture, description *string
	if update.ProfilePicture.Set {
		picture = update.ProfilePicture.Value
		values["profile_picture"] = picture
	}
	if update.ShortDescription.Set {
		description = update.ShortDescription.Value
		values["short_description"] = description
	}
	if err := validateProfileFields(picture, description); err != nil {
		return nil, err
	}

	if update.IsValid.Set {
		values["is_valid"] = update.IsValid.Value
	}
	if update.IsStaff.Set {
		values["is_staff"] = update.IsStaff.Value
	}
	if update.IsSuperuser.Set {
		values["is_superuser"] = update.IsSuperuser.Value
	}

	if err := s.userRepo.UpdateUser(ctx, target.ID, values); err != nil {
		logger.Log.Error("Failed to update user", zap.Uint("user_id", target.ID), zap.Error(err))
		return nil, NewInternalError(err)
	}

	logger.Log.Info("User updated",
		zap.Uint("actor_id", actor.ID),
		zap.Uint("user_id", target.ID),
		zap.Int("fields", len(values)),
	)

	return s.Get(ctx, actor, target.ID)
}

// Create adds an account on behalf of an administrator. Granting staff or superuser
// requires the actor to be a superuser.
func (s *UserService) Create(ctx context.Context, actor *models.User, in AdminCreateInput) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("You do not have permission to perform this action.")
	}
	if (in.IsStaff || in.IsSuperuser) && !actor.IsSuperuser {
		return nil, NewForbiddenError("Only superusers can create staff accounts.")
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateRegisterInput(in.RegisterInput); err != nil {
		return nil, err
	}
	if err := s.checkUsername(ctx, in.Username, 0); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return nil, NewInternalError(err)
	}
	if existing != nil {
		return nil, sentinelError(CodeValidation, ErrEmailAlreadyExists, "A user with that email already exists.")
	}

	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, NewInternalError(err)
	}

	user := &models.User{
		Username:         in.Username,
		Email:            in.Email,
		PasswordHash:     hashed,
		ProfilePicture:   in.ProfilePicture,
		ShortDescription: in.ShortDescription,
		IsValid:          in.IsValid || in.IsSuperuser,
		IsStaff:          in.IsStaff || in.IsSuperuser,
		IsSuperuser:      in.IsSuperuser,
	}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		logger.Log.Error("Failed to create user", zap.String("username", in.Username), zap.Error(err))
		return nil, NewInternalError(err)
	}

	logger.Log.Info("User created by administrator",
		zap.Uint("actor_id", actor.ID),
		zap.Uint("user_id", user.ID),
		zap.Bool("is_staff", user.IsStaff),
	)
	return user, nil
}

// Delete removes an account with its posts and likes.
func (s *UserService) Delete(ctx context.Context, actor *models.User, id uint) error {
	target, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.userRepo.DeleteUser(ctx, target.ID); err != nil {
		logger.Log.Error("Failed to delete user", zap.Uint("user_id", target.ID), zap.Error(err))
		return NewInternalError(err)
	}

	if err := s.audit.Record(audit.Entry{
		Action:    audit.ActionDeleteUser,
		ActorID:   actor.ID,
		TargetIDs: []uint{target.ID},
		Affected:  1,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		logger.Log.Warn("Failed to record audit entry", zap.Error(err))
	}

	logger.Log.Info("User deleted", zap.Uint("actor_id", actor.ID), zap.Uint("user_id", target.ID))
	return nil
}

// Stats returns post and like totals for the given users, for nested representations.
func (s *UserService) Stats(ctx context.Context, users ...*models.User) (map[uint]models.UserStats, error) {
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		if u != nil {
			ids = append(ids, u.ID)
		}
	}
	stats, err := s.userRepo.GetStats(ctx, ids)
	if err != nil {
		return nil, NewInternalError(err)
	}
	return stats, nil
}

// checkUsername validates the format and uniqueness of username. selfID is the account
// being renamed, zero for a new one.
func (s *UserService) checkUsername(ctx context.Context, username string, selfID uint) error {
	if username == "" {
		return NewValidationError("username is required")
	}
	if len(username) > maxUsernameLength {
		return NewValidationError("username must be at most 150 characters")
	}
	if !usernameRegex.MatchString(username) {
		return NewValidationError("username may contain only letters, digits and @/./+/-/_")
	}

	existing, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		return NewInternalError(err)
	}
	if existing != nil && existing.ID != selfID {
		return sentinelError(CodeValidation, ErrUsernameAlreadyExists, "A user with that username already exists.")
	}
	return nil
}
