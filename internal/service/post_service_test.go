package service_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Baaaki/postboard/internal/audit"
	"github.com/Baaaki/postboard/internal/broker"
	"github.com/Baaaki/postboard/internal/metrics"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/pagination"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/internal/testutil"
	"github.com/Baaaki/postboard/pkg/optional"
	"github.com/DATA-DOG/go-sqlmock"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type recordingJournal struct {
	entries []audit.Entry
}

func (r *recordingJournal) Record(entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type PostServiceTestSuite struct {
	suite.Suite
	testDB      *testutil.TestDatabase
	postRepo    *repository.PostRepository
	broker      *broker.LocalBroker
	journal     *recordingJournal
	postService *service.PostService
	ctx         context.Context

	alice *models.User
	bob   *models.User
	root  *models.User
}

func (s *PostServiceTestSuite) SetupTest() {
	s.testDB = testutil.SetupTestDatabase(s.T())
	s.postRepo = repository.NewPostRepository(s.testDB.DB)
	s.broker = broker.NewLocalBroker()
	s.journal = &recordingJournal{}
	s.postService = service.NewPostService(s.postRepo, s.broker, s.journal, 10, service.DefaultRetention)
	s.ctx = context.Background()

	s.alice = testutil.CreateUser(s.T(), s.testDB.DB, "alice", testutil.Valid())
	s.bob = testutil.CreateUser(s.T(), s.testDB.DB, "bob", testutil.Valid())
	s.root = testutil.CreateUser(s.T(), s.testDB.DB, "root", testutil.Superuser())
}

func (s *PostServiceTestSuite) TearDownTest() {
	s.testDB.Teardown(s.T())
}

func (s *PostServiceTestSuite) reload(id uint) *models.Post {
	post, err := s.postRepo.GetAnyPostByID(s.ctx, id)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), post)
	return post
}

func (s *PostServiceTestSuite) TestCreate_AuthorIsActor() {
	post, err := s.postService.Create(s.ctx, s.alice, "hello world")
	require.NoError(s.T(), err)

	assert.Equal(s.T(), s.alice.ID, post.AuthorID)
	assert.Equal(s.T(), "alice", post.Author.Username)
	assert.False(s.T(), post.IsDeleted)
	assert.Empty(s.T(), post.LikedBy)
}

func (s *PostServiceTestSuite) TestCreate_BlankContent() {
	_, err := s.postService.Create(s.ctx, s.alice, "   ")
	assert.Equal(s.T(), service.CodeValidation, service.CodeOf(err))
}

func (s *PostServiceTestSuite) TestCreate_PublishesEvent() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	events, err := s.broker.Subscribe(ctx)
	require.NoError(s.T(), err)

	post, err := s.postService.Create(s.ctx, s.alice, "live")
	require.NoError(s.T(), err)

	select {
	case event := <-events:
		assert.Equal(s.T(), broker.PostCreated, event.Type)
		assert.Equal(s.T(), post.ID, event.PostID)
		assert.Equal(s.T(), s.alice.ID, event.ActorID)
	case <-time.After(time.Second):
		s.T().Fatal("no event published")
	}
}

func (s *PostServiceTestSuite) TestUpdate_Ownership() {
	created := time.Now().Add(-time.Hour)
	post := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "original", created)

	_, err := s.postService.Update(s.ctx, s.bob, post.ID, service.PostUpdate{Content: optional.Of("hijacked")})
	assert.Equal(s.T(), service.CodeForbidden, service.CodeOf(err))
	assert.Equal(s.T(), "original", s.reload(post.ID).Content)

	updated, err := s.postService.Update(s.ctx, s.alice, post.ID, service.PostUpdate{Content: optional.Of("edited")})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "edited", updated.Content)
	assert.True(s.T(), updated.UpdatedAt.After(created))
	assert.WithinDuration(s.T(), created, updated.CreatedAt, time.Second)

	updated, err = s.postService.Update(s.ctx, s.root, post.ID, service.PostUpdate{Content: optional.Of("moderated")})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "moderated", updated.Content)
}

func (s *PostServiceTestSuite) TestSoftDelete() {
	created := time.Now().Add(-time.Hour)
	post := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "to delete", created)
	testutil.AddLike(s.T(), s.testDB.DB, post, s.bob)

	err := s.postService.SoftDelete(s.ctx, s.bob, post.ID)
	assert.Equal(s.T(), service.CodeForbidden, service.CodeOf(err))

	require.NoError(s.T(), s.postService.SoftDelete(s.ctx, s.alice, post.ID))

	stored := s.reload(post.ID)
	assert.True(s.T(), stored.IsDeleted)
	assert.True(s.T(), stored.UpdatedAt.After(created))
	assert.Equal(s.T(), int64(1), testutil.CountLikes(s.T(), s.testDB.DB, post.ID), "likes survive a soft delete")

	_, err = s.postService.Get(s.ctx, s.alice, post.ID)
	assert.Equal(s.T(), service.CodeNotFound, service.CodeOf(err))

	page, err := s.postService.List(s.ctx, s.alice, pagination.PageRequest{})
	require.NoError(s.T(), err)
	assert.Zero(s.T(), page.Count)
}

func (s *PostServiceTestSuite) TestLike_Idempotent() {
	created := time.Now().Add(-time.Hour)
	post := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "likeable", created)

	require.NoError(s.T(), s.postService.Like(s.ctx, s.bob, post.ID))
	first := s.reload(post.ID)
	require.NoError(s.T(), s.postService.Like(s.ctx, s.bob, post.ID))
	second := s.reload(post.ID)

	assert.Equal(s.T(), int64(1), testutil.CountLikes(s.T(), s.testDB.DB, post.ID))
	require.Len(s.T(), second.LikedBy, 1)
	assert.Equal(s.T(), s.bob.ID, second.LikedBy[0].ID)
	assert.True(s.T(), first.UpdatedAt.After(created))
	assert.False(s.T(), second.UpdatedAt.Before(first.UpdatedAt))
}

func (s *PostServiceTestSuite) TestUnlike() {
	created := time.Now().Add(-time.Hour)
	post := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "likeable", created)
	testutil.AddLike(s.T(), s.testDB.DB, post, s.bob)
	testutil.AddLike(s.T(), s.testDB.DB, post, s.alice)

	require.NoError(s.T(), s.postService.Unlike(s.ctx, s.bob, post.ID))
	require.NoError(s.T(), s.postService.Unlike(s.ctx, s.bob, post.ID), "unliking twice is fine")

	stored := s.reload(post.ID)
	require.Len(s.T(), stored.LikedBy, 1)
	assert.Equal(s.T(), s.alice.ID, stored.LikedBy[0].ID)
	assert.True(s.T(), stored.UpdatedAt.After(created))
}

func (s *PostServiceTestSuite) TestLike_DeletedPostIsNotFound() {
	post := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "gone", time.Time{})
	testutil.MarkDeleted(s.T(), s.testDB.DB, post, time.Now())

	err := s.postService.Like(s.ctx, s.bob, post.ID)
	assert.Equal(s.T(), service.CodeNotFound, service.CodeOf(err))
	assert.Zero(s.T(), testutil.CountLikes(s.T(), s.testDB.DB, post.ID))
}

func (s *PostServiceTestSuite) TestFeed_TruncatedAndOrdered() {
	base := time.Now().Add(-48 * time.Hour)
	var ids []uint
	for i := 0; i < 25; i++ {
		post := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "post", base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, post.ID)
	}
	deleted := testutil.CreatePost(s.T(), s.testDB.DB, s.bob, "newest but deleted", time.Now())
	testutil.MarkDeleted(s.T(), s.testDB.DB, deleted, time.Now())

	first, err := s.postService.Feed(s.ctx, s.bob, pagination.PageRequest{Page: 1})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(service.FeedSize), first.Count)
	require.Len(s.T(), first.Results, 10)
	assert.Equal(s.T(), ids[24], first.Results[0].ID)

	second, err := s.postService.Feed(s.ctx, s.bob, pagination.PageRequest{Page: 2})
	require.NoError(s.T(), err)
	require.Len(s.T(), second.Results, 10)
	assert.Equal(s.T(), ids[5], second.Results[9].ID)
	assert.False(s.T(), second.HasNext())

	for i := 1; i < len(second.Results); i++ {
		assert.False(s.T(), second.Results[i].CreatedAt.After(second.Results[i-1].CreatedAt))
	}

	_, err = s.postService.Feed(s.ctx, s.bob, pagination.PageRequest{Page: 3})
	assert.Equal(s.T(), service.CodeNotFound, service.CodeOf(err))

	_, err = s.postService.FeedItem(s.ctx, s.bob, ids[0])
	assert.Equal(s.T(), service.CodeNotFound, service.CodeOf(err), "post outside the feed window")
	item, err := s.postService.FeedItem(s.ctx, s.bob, ids[24])
	require.NoError(s.T(), err)
	assert.Equal(s.T(), ids[24], item.ID)
}

func (s *PostServiceTestSuite) TestSweep() {
	now := time.Now().UTC()
	created := now.Add(-30 * 24 * time.Hour)

	expired := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "expired", created)
	testutil.MarkDeleted(s.T(), s.testDB.DB, expired, now.Add(-11*24*time.Hour))
	testutil.AddLike(s.T(), s.testDB.DB, expired, s.bob)

	recent := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "recently deleted", created)
	testutil.MarkDeleted(s.T(), s.testDB.DB, recent, now.Add(-9*24*time.Hour))

	live := testutil.CreatePost(s.T(), s.testDB.DB, s.alice, "old but live", created)
	testutil.AddLike(s.T(), s.testDB.DB, live, s.bob)

	sweptBefore := promtestutil.ToFloat64(metrics.SweptPosts)

	deleted, err := s.postService.Sweep(s.ctx, now)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), deleted)
	assert.Equal(s.T(), 1.0, promtestutil.ToFloat64(metrics.SweptPosts)-sweptBefore)

	gone, err := s.postRepo.GetAnyPostByID(s.ctx, expired.ID)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), gone)
	assert.Zero(s.T(), testutil.CountLikes(s.T(), s.testDB.DB, expired.ID))

	assert.True(s.T(), s.reload(recent.ID).IsDeleted)
	assert.Equal(s.T(), int64(1), testutil.CountLikes(s.T(), s.testDB.DB, live.ID))

	require.Len(s.T(), s.journal.entries, 1)
	assert.Equal(s.T(), audit.ActionSweep, s.journal.entries[0].Action)
	assert.Equal(s.T(), int64(1), s.journal.entries[0].Affected)

	again, err := s.postService.Sweep(s.ctx, now)
	require.NoError(s.T(), err)
	assert.Zero(s.T(), again)
}

func (s *PostServiceTestSuite) TestRunSweeper_StopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.postService.RunSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.T().Fatal("sweeper did not stop")
	}
}

func TestPostServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PostServiceTestSuite))
}

func TestSweep_StorageFailurePropagates(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM post_likes WHERE post_id IN`)).WillReturnError(boom)
	mock.ExpectRollback()

	journal := &recordingJournal{}
	svc := service.NewPostService(repository.NewPostRepository(db), nil, journal, 10, service.DefaultRetention)
	failedBefore := promtestutil.ToFloat64(metrics.SweepRuns.WithLabelValues("error"))

	deleted, err := svc.Sweep(context.Background(), time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.SweepRuns.WithLabelValues("error"))-failedBefore)
	assert.Zero(t, deleted)
	assert.Empty(t, journal.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}
