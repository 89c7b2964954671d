package handler

import (
	"net/http"

	"github.com/Baaaki/postboard/internal/middleware"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *service.AuthService
	presenter   presenter
}

func NewAuthHandler(authService *service.AuthService, userService *service.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		presenter:   presenter{userService: userService},
	}
}

// RegisterRequest has no validity or privilege fields, whatever the client sends for
// them is dropped while decoding.
type RegisterRequest struct {
	Username         string  `json:"username"`
	Email            string  `json:"email"`
	Password         string  `json:"password"`
	ProfilePicture   *string `json:"profile_picture"`
	ShortDescription *string `json:"short_description"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// Register creates an account that waits for approval.
// POST /register/
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Registration request parsing failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		respondBadRequest(c, "Invalid request body")
		return
	}

	user, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Username:         req.Username,
		Email:            req.Email,
		Password:         req.Password,
		ProfilePicture:   req.ProfilePicture,
		ShortDescription: req.ShortDescription,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := h.presenter.user(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, body)
}

// Login exchanges credentials for an access/refresh pair.
// POST /login/ and POST /api/token/
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Login request parsing failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		respondBadRequest(c, "username and password are required")
		return
	}

	_, pair, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access":  pair.Access,
		"refresh": pair.Refresh,
	})
}

// Refresh issues a new access token.
// POST /api/token/refresh/
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "refresh is required")
		return
	}

	access, err := h.authService.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"access": access})
}

// Logout only acknowledges; issued tokens stay valid until they expire.
// POST /logout/
func (h *AuthHandler) Logout(c *gin.Context) {
	h.authService.Logout(c.Request.Context(), middleware.CurrentUser(c))
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out."})
}
