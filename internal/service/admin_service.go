package service

import (
	"context"
	"time"

	"github.com/Baaaki/postboard/internal/audit"
	"github.com/Baaaki/postboard/internal/metrics"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/pagination"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/pkg/logger"
	"go.uber.org/zap"
)

// UserQuery filters the administrative user listing.
type UserQuery struct {
	IsValid *bool
	Search  string
	Page    pagination.PageRequest
}

// PostQuery filters the administrative post listing, which includes soft-deleted posts.
type PostQuery struct {
	IsDeleted *bool
	AuthorID  *uint
	Search    string
	Page      pagination.PageRequest
}

// ApproveResult tells whether an approval changed anything.
type ApproveResult struct {
	User            *models.User
	AlreadyApproved bool
}

type AdminService struct {
	userRepo *repository.UserRepository
	postRepo *repository.PostRepository
	audit    audit.Recorder
	pageSize int
	now      func() time.Time
}

func NewAdminService(userRepo *repository.UserRepository, postRepo *repository.PostRepository, recorder audit.Recorder, pageSize int) *AdminService {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &AdminService{
		userRepo: userRepo,
		postRepo: postRepo,
		audit:    recorder,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// ListUsers lists accounts for the admin surface. Staff members who are not superusers
// only ever see valid accounts.
func (s *AdminService) ListUsers(ctx context.Context, actor *models.User, q UserQuery) (*pagination.PageResult[*models.User], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	page := q.Page.Normalize(s.pageSize)

	filter := repository.UserFilter{
		IsValid: q.IsValid,
		Search:  q.Search,
		Limit:   page.Limit(),
		Offset:  page.Offset(),
	}
	if !actor.IsSuperuser {
		if q.IsValid != nil && !*q.IsValid {
			return pagination.NewPageResult[*models.User](page, nil, 0)
		}
		valid := true
		filter.IsValid = &valid
	}

	users, total, err := s.userRepo.ListUsers(ctx, filter)
	if err != nil {
		logger.Log.Error("Admin: failed to list users", zap.Uint("actor_id", actor.ID), zap.Error(err))
		return nil, NewInternalError(err)
	}

	result, err := pagination.NewPageResult(page, users, total)
	if err != nil {
		return nil, NewNotFoundError("Page", page.Page)
	}
	return result, nil
}

// Approve marks one account valid. Approving an already valid account changes nothing
// and says so.
func (s *AdminService) Approve(ctx context.Context, actor *models.User, id uint) (*ApproveResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		logger.Log.Error("Admin: failed to load user", zap.Uint("user_id", id), zap.Error(err))
		return nil, NewInternalError(err)
	}
	if user == nil {
		return nil, NewNotFoundError("User", id)
	}

	if user.IsValid {
		logger.Log.Info("Admin: user already approved", zap.Uint("actor_id", actor.ID), zap.Uint("user_id", id))
		return &ApproveResult{User: user, AlreadyApproved: true}, nil
	}

	changed, err := s.userRepo.MarkValid(ctx, []uint{id})
	if err != nil {
		logger.Log.Error("Admin: failed to approve user", zap.Uint("user_id", id), zap.Error(err))
		return nil, NewInternalError(err)
	}
	user.IsValid = true

	metrics.Approvals.Add(float64(changed))
	s.record(audit.Entry{
		Action:    audit.ActionApprove,
		ActorID:   actor.ID,
		TargetIDs: []uint{id},
		Affected:  changed,
	})

	logger.Log.Info("Admin: user approved", zap.Uint("actor_id", actor.ID), zap.Uint("user_id", id))
	return &ApproveResult{User: user, AlreadyApproved: changed == 0}, nil
}

// ApproveBulk marks every listed account valid and returns how many actually changed.
func (s *AdminService) ApproveBulk(ctx context.Context, actor *models.User, ids []uint) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, NewValidationError("ids must not be empty")
	}

	changed, err := s.userRepo.MarkValid(ctx, ids)
	if err != nil {
		logger.Log.Error("Admin: bulk approve failed", zap.Int("requested", len(ids)), zap.Error(err))
		return 0, NewInternalError(err)
	}

	metrics.Approvals.Add(float64(changed))
	s.record(audit.Entry{
		Action:    audit.ActionApproveBulk,
		ActorID:   actor.ID,
		TargetIDs: ids,
		Affected:  changed,
	})

	logger.Log.Info("Admin: bulk approve completed",
		zap.Uint("actor_id", actor.ID),
		zap.Int("requested", len(ids)),
		zap.Int64("approved", changed),
	)
	return changed, nil
}

// ListPosts lists posts including soft-deleted ones.
func (s *AdminService) ListPosts(ctx context.Context, actor *models.User, q PostQuery) (*pagination.PageResult[*models.Post], error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	page := q.Page.Normalize(s.pageSize)

	posts, total, err := s.postRepo.ListAllPosts(ctx, repository.PostFilter{
		IsDeleted: q.IsDeleted,
		AuthorID:  q.AuthorID,
		Search:    q.Search,
		Limit:     page.Limit(),
		Offset:    page.Offset(),
	})
	if err != nil {
		logger.Log.Error("Admin: failed to list posts", zap.Uint("actor_id", actor.ID), zap.Error(err))
		return nil, NewInternalError(err)
	}

	result, err := pagination.NewPageResult(page, posts, total)
	if err != nil {
		return nil, NewNotFoundError("Page", page.Page)
	}
	return result, nil
}

// RestoreBulk clears the soft delete flag on the listed posts and returns how many were
// restored. A post already removed by the retention sweep cannot come back.
func (s *AdminService) RestoreBulk(ctx context.Context, actor *models.User, ids []uint) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, NewValidationError("ids must not be empty")
	}

	restored, err := s.postRepo.RestorePosts(ctx, ids, s.now())
	if err != nil {
		logger.Log.Error("Admin: restore failed", zap.Int("requested", len(ids)), zap.Error(err))
		return 0, NewInternalError(err)
	}

	metrics.PostActions.WithLabelValues("restore").Add(float64(restored))
	s.record(audit.Entry{
		Action:    audit.ActionRestore,
		ActorID:   actor.ID,
		TargetIDs: ids,
		Affected:  restored,
	})

	logger.Log.Info("Admin: posts restored",
		zap.Uint("actor_id", actor.ID),
		zap.Int("requested", len(ids)),
		zap.Int64("restored", restored),
	)
	return restored, nil
}

func (s *AdminService) record(entry audit.Entry) {
	entry.Timestamp = s.now().UTC()
	if err := s.audit.Record(entry); err != nil {
		logger.Log.Warn("Failed to record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}

func requireAdmin(actor *models.User) error {
	if actor == nil || !actor.IsAdmin() {
		return NewForbiddenError("You do not have permission to perform this action.")
	}
	return nil
}
