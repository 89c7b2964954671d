package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/internal/testutil"
	"github.com/Baaaki/postboard/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testSecret = "test-secret-key-that-is-long-enough-32"

type AuthServiceTestSuite struct {
	suite.Suite
	testDB      *testutil.TestDatabase
	userRepo    *repository.UserRepository
	authService *service.AuthService
	ctx         context.Context
}

func (s *AuthServiceTestSuite) SetupTest() {
	s.testDB = testutil.SetupTestDatabase(s.T())
	s.userRepo = repository.NewUserRepository(s.testDB.DB)
	s.authService = service.NewAuthService(s.userRepo, testSecret, 15*time.Minute, 24*time.Hour)
	s.ctx = context.Background()
}

func (s *AuthServiceTestSuite) TearDownTest() {
	s.testDB.Teardown(s.T())
}

func (s *AuthServiceTestSuite) TestRegister_StartsInvalid() {
	user, err := s.authService.Register(s.ctx, service.RegisterInput{
		Username: "newcomer",
		Email:    "newcomer@example.com",
		Password: "Secret12345",
	})
	require.NoError(s.T(), err)

	assert.NotZero(s.T(), user.ID)
	assert.False(s.T(), user.IsValid)
	assert.False(s.T(), user.IsStaff)
	assert.NotEqual(s.T(), "Secret12345", user.PasswordHash)

	stored, err := s.userRepo.GetUserByID(s.ctx, user.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), stored.IsValid)
}

func (s *AuthServiceTestSuite) TestRegister_Validation() {
	tests := []struct {
		name  string
		input service.RegisterInput
	}{
		{"missing username", service.RegisterInput{Email: "a@example.com", Password: "Secret12345"}},
		{"bad username", service.RegisterInput{Username: "has space", Email: "a@example.com", Password: "Secret12345"}},
		{"missing email", service.RegisterInput{Username: "alice", Password: "Secret12345"}},
		{"bad email", service.RegisterInput{Username: "alice", Email: "not-an-email", Password: "Secret12345"}},
		{"missing password", service.RegisterInput{Username: "alice", Email: "a@example.com"}},
		{"short password", service.RegisterInput{Username: "alice", Email: "a@example.com", Password: "short"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.authService.Register(s.ctx, tt.input)
			assert.Equal(s.T(), service.CodeValidation, service.CodeOf(err))
		})
	}
}

func (s *AuthServiceTestSuite) TestRegister_Duplicates() {
	testutil.CreateUser(s.T(), s.testDB.DB, "taken")

	_, err := s.authService.Register(s.ctx, service.RegisterInput{
		Username: "taken",
		Email:    "other@example.com",
		Password: "Secret12345",
	})
	assert.True(s.T(), errors.Is(err, service.ErrUsernameAlreadyExists))
	assert.Equal(s.T(), service.CodeValidation, service.CodeOf(err))

	_, err = s.authService.Register(s.ctx, service.RegisterInput{
		Username: "fresh",
		Email:    "taken@example.com",
		Password: "Secret12345",
	})
	assert.True(s.T(), errors.Is(err, service.ErrEmailAlreadyExists))
}

func (s *AuthServiceTestSuite) TestLogin_ValidAccount() {
	created := testutil.CreateUser(s.T(), s.testDB.DB, "valid", testutil.Valid())

	user, pair, err := s.authService.Login(s.ctx, "valid", testutil.DefaultPassword)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), pair)
	assert.Equal(s.T(), created.ID, user.ID)

	claims, err := utils.ValidateToken(pair.Access, testSecret, utils.AccessToken)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), created.ID, claims.UserID)

	_, err = utils.ValidateToken(pair.Refresh, testSecret, utils.RefreshToken)
	assert.NoError(s.T(), err)

	stored, err := s.userRepo.GetUserByID(s.ctx, created.ID)
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), stored.LastLogin)
}

func (s *AuthServiceTestSuite) TestLogin_InvalidAccountRejectedAfterPassword() {
	testutil.CreateUser(s.T(), s.testDB.DB, "pending")

	_, pair, err := s.authService.Login(s.ctx, "pending", testutil.DefaultPassword)
	assert.Nil(s.T(), pair)
	assert.True(s.T(), errors.Is(err, service.ErrAccountNotValid))

	var appErr *service.AppError
	require.True(s.T(), errors.As(err, &appErr))
	assert.Equal(s.T(), service.CodeAuthentication, appErr.Code)
	assert.Equal(s.T(), "User account is not valid.", appErr.Message)
}

func (s *AuthServiceTestSuite) TestLogin_WrongCredentialsMessageDiffers() {
	testutil.CreateUser(s.T(), s.testDB.DB, "pending")
	testutil.CreateUser(s.T(), s.testDB.DB, "valid", testutil.Valid())

	for _, username := range []string{"pending", "valid", "ghost"} {
		_, _, err := s.authService.Login(s.ctx, username, "WrongPassword1")

		var appErr *service.AppError
		require.True(s.T(), errors.As(err, &appErr), username)
		assert.Equal(s.T(), service.CodeAuthentication, appErr.Code, username)
		assert.True(s.T(), errors.Is(err, service.ErrInvalidCredentials), username)
		assert.NotEqual(s.T(), "User account is not valid.", appErr.Message, username)
	}
}

func (s *AuthServiceTestSuite) TestRefresh() {
	testutil.CreateUser(s.T(), s.testDB.DB, "valid", testutil.Valid())
	_, pair, err := s.authService.Login(s.ctx, "valid", testutil.DefaultPassword)
	require.NoError(s.T(), err)

	access, err := s.authService.Refresh(s.ctx, pair.Refresh)
	require.NoError(s.T(), err)
	_, err = utils.ValidateToken(access, testSecret, utils.AccessToken)
	assert.NoError(s.T(), err)

	_, err = s.authService.Refresh(s.ctx, pair.Access)
	assert.Equal(s.T(), service.CodeAuthentication, service.CodeOf(err), "access token must not refresh")
}

func (s *AuthServiceTestSuite) TestRefresh_RevokedValidity() {
	user := testutil.CreateUser(s.T(), s.testDB.DB, "valid", testutil.Valid())
	_, pair, err := s.authService.Login(s.ctx, "valid", testutil.DefaultPassword)
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.userRepo.UpdateUser(s.ctx, user.ID, map[string]interface{}{"is_valid": false}))

	_, err = s.authService.Refresh(s.ctx, pair.Refresh)
	assert.True(s.T(), errors.Is(err, service.ErrAccountNotValid))
}

func (s *AuthServiceTestSuite) TestAuthenticate() {
	user := testutil.CreateUser(s.T(), s.testDB.DB, "valid", testutil.Valid())
	_, pair, err := s.authService.Login(s.ctx, "valid", testutil.DefaultPassword)
	require.NoError(s.T(), err)

	got, err := s.authService.Authenticate(s.ctx, pair.Access)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), user.ID, got.ID)

	_, err = s.authService.Authenticate(s.ctx, pair.Refresh)
	assert.Equal(s.T(), service.CodeAuthentication, service.CodeOf(err))

	_, err = s.authService.Authenticate(s.ctx, "garbage")
	assert.Equal(s.T(), service.CodeAuthentication, service.CodeOf(err))
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
