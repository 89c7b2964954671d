package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/testutil"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestUserRepository_GetMissingReturnsNil(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)
	repo := repository.NewUserRepository(testDB.DB)
	ctx := context.Background()

	user, err := repo.GetUserByID(ctx, 42)
	assert.NoError(t, err)
	assert.Nil(t, user)

	user, err = repo.GetUserByUsername(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserRepository_ListUsersFilters(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)
	repo := repository.NewUserRepository(testDB.DB)
	ctx := context.Background()

	alice := testutil.CreateUser(t, testDB.DB, "alice", testutil.Valid())
	testutil.CreateUser(t, testDB.DB, "bob")
	testutil.CreateUser(t, testDB.DB, "carol", testutil.Valid())

	users, total, err := repo.ListUsers(ctx, repository.UserFilter{OnlyIDs: []uint{alice.ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	valid := true
	users, total, err = repo.ListUsers(ctx, repository.UserFilter{IsValid: &valid, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "count ignores the page limit")
	assert.Len(t, users, 1)
}

func TestUserRepository_MarkValid(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)
	repo := repository.NewUserRepository(testDB.DB)
	ctx := context.Background()

	pending := testutil.CreateUser(t, testDB.DB, "pending")
	valid := testutil.CreateUser(t, testDB.DB, "valid", testutil.Valid())

	changed, err := repo.MarkValid(ctx, []uint{pending.ID, valid.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	changed, err = repo.MarkValid(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestPostRepository_AddLikeTwiceKeepsOneRow(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)
	repo := repository.NewPostRepository(testDB.DB)
	ctx := context.Background()

	author := testutil.CreateUser(t, testDB.DB, "author", testutil.Valid())
	fan := testutil.CreateUser(t, testDB.DB, "fan", testutil.Valid())
	post := testutil.CreatePost(t, testDB.DB, author, "content", time.Now().Add(-time.Hour))

	require.NoError(t, repo.AddLike(ctx, post.ID, fan.ID, time.Now()))
	require.NoError(t, repo.AddLike(ctx, post.ID, fan.ID, time.Now()))

	assert.Equal(t, int64(1), testutil.CountLikes(t, testDB.DB, post.ID))

	require.NoError(t, repo.RemoveLike(ctx, post.ID, fan.ID, time.Now()))
	require.NoError(t, repo.RemoveLike(ctx, post.ID, fan.ID, time.Now()))

	assert.Zero(t, testutil.CountLikes(t, testDB.DB, post.ID))
}

func TestPostRepository_DeletedHiddenFromDefaultQueries(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)
	repo := repository.NewPostRepository(testDB.DB)
	ctx := context.Background()

	author := testutil.CreateUser(t, testDB.DB, "author", testutil.Valid())
	live := testutil.CreatePost(t, testDB.DB, author, "live", time.Now().Add(-time.Hour))
	hidden := testutil.CreatePost(t, testDB.DB, author, "hidden", time.Now())
	testutil.MarkDeleted(t, testDB.DB, hidden, time.Now())

	post, err := repo.GetPostByID(ctx, hidden.ID)
	require.NoError(t, err)
	assert.Nil(t, post)

	post, err = repo.GetAnyPostByID(ctx, hidden.ID)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.True(t, post.IsDeleted)

	posts, total, err := repo.ListPosts(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, posts, 1)
	assert.Equal(t, live.ID, posts[0].ID)
	assert.Equal(t, "author", posts[0].Author.Username)

	recent, err := repo.GetRecentPosts(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestPostRepository_SweepBoundary(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)
	repo := repository.NewPostRepository(testDB.DB)
	ctx := context.Background()

	cutoff := time.Now().UTC().Add(-10 * 24 * time.Hour)
	author := testutil.CreateUser(t, testDB.DB, "author", testutil.Valid())

	older := testutil.CreatePost(t, testDB.DB, author, "older", cutoff.Add(-48*time.Hour))
	testutil.MarkDeleted(t, testDB.DB, older, cutoff.Add(-time.Minute))
	atCutoff := testutil.CreatePost(t, testDB.DB, author, "at cutoff", cutoff.Add(-48*time.Hour))
	testutil.MarkDeleted(t, testDB.DB, atCutoff, cutoff)

	deleted, err := repo.SweepSoftDeleted(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.GetAnyPostByID(ctx, atCutoff.ID)
	require.NoError(t, err)
	assert.NotNil(t, remaining, "updated_at equal to the cutoff is kept")
}

func TestPostRepository_SweepRollsBackOnFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := repository.NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM post_likes WHERE post_id IN`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "posts"`)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	deleted, err := repo.SweepSoftDeleted(context.Background(), time.Now())
	assert.EqualError(t, err, "deadlock detected")
	assert.Zero(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_ListAllPostsSearch(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)
	repo := repository.NewPostRepository(testDB.DB)
	ctx := context.Background()

	writer := testutil.CreateUser(t, testDB.DB, "writer", testutil.Valid())
	other := testutil.CreateUser(t, testDB.DB, "other", testutil.Valid())
	testutil.CreatePost(t, testDB.DB, writer, "golang tips", time.Now())
	testutil.CreatePost(t, testDB.DB, other, "gardening", time.Now())

	posts, total, err := repo.ListAllPosts(ctx, repository.PostFilter{Search: "golang"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, posts, 1)

	posts, _, err = repo.ListAllPosts(ctx, repository.PostFilter{Search: "writer"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "golang tips", posts[0].Content)

	_, total, err = repo.ListAllPosts(ctx, repository.PostFilter{AuthorID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestUserRepository_GetStatsZeroFilled(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)
	repo := repository.NewUserRepository(testDB.DB)

	idle := testutil.CreateUser(t, testDB.DB, "idle")
	stats, err := repo.GetStats(context.Background(), []uint{idle.ID})
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{}, stats[idle.ID])
}
