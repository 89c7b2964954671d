package service

import (
	"context"
	"strings"
	"time"

	"github.com/Baaaki/postboard/internal/audit"
	"github.com/Baaaki/postboard/internal/broker"
	"github.com/Baaaki/postboard/internal/metrics"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/pagination"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/Baaaki/postboard/pkg/optional"
	"go.uber.org/zap"
)

const (
	// FeedSize is how many recent posts the feed is cut to before pagination.
	FeedSize = 20
	// DefaultRetention is how long a soft-deleted post survives before the sweep removes it.
	DefaultRetention = 10 * 24 * time.Hour
)

// PostUpdate is a partial update of a post.
type PostUpdate struct {
	Content optional.Value[string]
}

type PostService struct {
	postRepo  *repository.PostRepository
	broker    broker.Broker
	audit     audit.Recorder
	pageSize  int
	retention time.Duration
	now       func() time.Time
}

func NewPostService(postRepo *repository.PostRepository, b broker.Broker, recorder audit.Recorder, pageSize int, retention time.Duration) *PostService {
	if recorder == nil {
		recorder = audit.Discard
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PostService{
		postRepo:  postRepo,
		broker:    b,
		audit:     recorder,
		pageSize:  pageSize,
		retention: retention,
		now:       time.Now,
	}
}

// List returns live posts, newest first.
func (s *PostService) List(ctx context.Context, actor *models.User, page pagination.PageRequest) (*pagination.PageResult[*models.Post], error) {
	page = page.Normalize(s.pageSize)

	posts, total, err := s.postRepo.ListPosts(ctx, page.Limit(), page.Offset())
	if err != nil {
		logger.Log.Error("Failed to list posts", zap.Uint("actor_id", actor.ID), zap.Error(err))
		return nil, NewInternalError(err)
	}

	result, err := pagination.NewPageResult(page, posts, total)
	if err != nil {
		return nil, NewNotFoundError("Page", page.Page)
	}
	return result, nil
}

// Get returns a live post. Soft-deleted posts are NotFound.
func (s *PostService) Get(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	post, err := s.postRepo.GetPostByID(ctx, id)
	if err != nil {
		logger.Log.Error("Failed to get post", zap.Uint("post_id", id), zap.Error(err))
		return nil, NewInternalError(err)
	}
	if post == nil {
		logger.Log.Debug("Post not found", zap.Uint("post_id", id), zap.Uint("actor_id", actor.ID))
		return nil, NewNotFoundError("Post", id)
	}
	return post, nil
}

// Create stores a new post. The author is always the actor.
func (s *PostService) Create(ctx context.Context, actor *models.User, content string) (*models.Post, error) {
	start := time.Now()

	if strings.TrimSpace(content) == "" {
		return nil, NewValidationError("content may not be blank")
	}

	post := &models.Post{
		AuthorID: actor.ID,
		Content:  content,
	}
	if err := s.postRepo.CreatePost(ctx, post); err != nil {
		logger.Log.Error("Failed to create post", zap.Uint("author_id", actor.ID), zap.Error(err))
		return nil, NewInternalError(err)
	}

	metrics.PostActions.WithLabelValues("create").Inc()
	s.publish(ctx, broker.PostCreated, post.ID, actor.ID)

	logger.Log.Info("Post created",
		zap.Uint("post_id", post.ID),
		zap.Uint("author_id", actor.ID),
		zap.Int("content_length", len(content)),
		zap.Duration("duration", time.Since(start)),
	)

	return s.Get(ctx, actor, post.ID)
}

// Update changes a post's content. Only the author or a superuser may edit.
func (s *PostService) Update(ctx context.Context, actor *models.User, id uint, update PostUpdate) (*models.Post, error) {
	post, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, post); err != nil {
		return nil, err
	}

	values := make(map[string]interface{})
	if update.Content.Set {
		if strings.TrimSpace(update.Content.Value) == "" {
			return nil, NewValidationError("content may not be blank")
		}
		values["content"] = update.Content.Value
	}

	if err := s.postRepo.UpdatePost(ctx, post.ID, values, s.now()); err != nil {
		logger.Log.Error("Failed to update post", zap.Uint("post_id", id), zap.Error(err))
		return nil, NewInternalError(err)
	}

	metrics.PostActions.WithLabelValues("update").Inc()
	s.publish(ctx, broker.PostUpdated, post.ID, actor.ID)
	logger.Log.Info("Post updated", zap.Uint("post_id", id), zap.Uint("actor_id", actor.ID))

	return s.Get(ctx, actor, post.ID)
}

// SoftDelete hides a post. The row and its likes stay until the retention sweep.
func (s *PostService) SoftDelete(ctx context.Context, actor *models.User, id uint) error {
	post, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := checkOwner(actor, post); err != nil {
		return err
	}

	if err := s.postRepo.SoftDeletePost(ctx, post.ID, s.now()); err != nil {
		logger.Log.Error("Failed to soft delete post", zap.Uint("post_id", id), zap.Error(err))
		return NewInternalError(err)
	}

	metrics.PostActions.WithLabelValues("delete").Inc()
	s.publish(ctx, broker.PostDeleted, post.ID, actor.ID)
	logger.Log.Info("Post soft deleted", zap.Uint("post_id", id), zap.Uint("actor_id", actor.ID))
	return nil
}

// Like adds the actor to the post's likers. Liking twice is a no-op apart from updated_at.
func (s *PostService) Like(ctx context.Context, actor *models.User, id uint) error {
	post, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.postRepo.AddLike(ctx, post.ID, actor.ID, s.now()); err != nil {
		logger.Log.Error("Failed to like post", zap.Uint("post_id", id), zap.Uint("user_id", actor.ID), zap.Error(err))
		return NewInternalError(err)
	}

	metrics.PostActions.WithLabelValues("like").Inc()
	s.publish(ctx, broker.PostLiked, post.ID, actor.ID)
	logger.Log.Debug("Post liked", zap.Uint("post_id", id), zap.Uint("user_id", actor.ID))
	return nil
}

// Unlike removes the actor from the post's likers. Unliking a post that was never
// liked succeeds.
func (s *PostService) Unlike(ctx context.Context, actor *models.User, id uint) error {
	post, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.postRepo.RemoveLike(ctx, post.ID, actor.ID, s.now()); err != nil {
		logger.Log.Error("Failed to unlike post", zap.Uint("post_id", id), zap.Uint("user_id", actor.ID), zap.Error(err))
		return NewInternalError(err)
	}

	metrics.PostActions.WithLabelValues("unlike").Inc()
	s.publish(ctx, broker.PostUnliked, post.ID, actor.ID)
	logger.Log.Debug("Post unliked", zap.Uint("post_id", id), zap.Uint("user_id", actor.ID))
	return nil
}

// Feed is the FeedSize most recent live posts, paginated.
func (s *PostService) Feed(ctx context.Context, actor *models.User, page pagination.PageRequest) (*pagination.PageResult[*models.Post], error) {
	page = page.Normalize(s.pageSize)

	recent, err := s.postRepo.GetRecentPosts(ctx, FeedSize)
	if err != nil {
		logger.Log.Error("Failed to load feed", zap.Uint("actor_id", actor.ID), zap.Error(err))
		return nil, NewInternalError(err)
	}

	total := int64(len(recent))
	start := page.Offset()
	if start > len(recent) {
		start = len(recent)
	}
	end := start + page.Limit()
	if end > len(recent) {
		end = len(recent)
	}

	result, err := pagination.NewPageResult(page, recent[start:end], total)
	if err != nil {
		return nil, NewNotFoundError("Page", page.Page)
	}
	return result, nil
}

// FeedItem returns a post only while it is part of the feed.
func (s *PostService) FeedItem(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	recent, err := s.postRepo.GetRecentPosts(ctx, FeedSize)
	if err != nil {
		return nil, NewInternalError(err)
	}
	for _, post := range recent {
		if post.ID == id {
			return post, nil
		}
	}
	return nil, NewNotFoundError("Post", id)
}

// Sweep hard-deletes soft-deleted posts whose last update is older than the retention
// window relative to now, and returns how many were removed. It is all-or-nothing: a
// storage failure leaves every row in place and is returned to the caller.
func (s *PostService) Sweep(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	cutoff := now.Add(-s.retention)

	logger.Log.Debug("Starting retention sweep", zap.Time("cutoff", cutoff))

	deleted, err := s.postRepo.SweepSoftDeleted(ctx, cutoff)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		logger.Log.Error("Retention sweep failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}

	metrics.SweepRuns.WithLabelValues("ok").Inc()
	metrics.SweptPosts.Add(float64(deleted))

	if deleted > 0 {
		if err := s.audit.Record(audit.Entry{
			Action:    audit.ActionSweep,
			Affected:  deleted,
			Detail:    "cutoff " + cutoff.UTC().Format(time.RFC3339),
			Timestamp: now.UTC(),
		}); err != nil {
			logger.Log.Warn("Failed to record audit entry", zap.Error(err))
		}
	}

	logger.Log.Info("Retention sweep completed",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff),
		zap.Duration("duration", time.Since(start)),
	)
	return deleted, nil
}

// RunSweeper runs Sweep every interval until ctx is cancelled. A failed run is logged
// and retried on the next tick.
func (s *PostService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Log.Info("Retention sweeper started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Retention sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.Sweep(ctx, s.now())
		}
	}
}

func (s *PostService) publish(ctx context.Context, eventType string, postID, actorID uint) {
	if s.broker == nil {
		return
	}
	event := broker.Event{
		Type:      eventType,
		PostID:    postID,
		ActorID:   actorID,
		Timestamp: s.now().UTC(),
	}
	if err := s.broker.Publish(ctx, event); err != nil {
		logger.Log.Warn("Failed to publish post event",
			zap.String("type", eventType),
			zap.Uint("post_id", postID),
			zap.Error(err),
		)
	}
}

func checkOwner(actor *models.User, post *models.Post) error {
	if post.AuthorID == actor.ID || actor.IsSuperuser {
		return nil
	}
	logger.Log.Warn("Rejected post mutation by non-owner",
		zap.Uint("post_id", post.ID),
		zap.Uint("actor_id", actor.ID),
	)
	return NewForbiddenError("You do not have permission to perform this action.")
}
