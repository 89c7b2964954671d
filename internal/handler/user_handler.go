package handler

import (
	"net/http"

	"github.com/Baaaki/postboard/internal/middleware"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/optional"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService *service.UserService
	presenter   presenter
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
		presenter:   presenter{userService: userService},
	}
}

// UpdateUserRequest is a partial update. Email and password are decoded only so that
// their presence can be refused.
type UpdateUserRequest struct {
	Username         optional.Value[string]  `json:"username"`
	Email            optional.Value[string]  `json:"email"`
	Password         optional.Value[string]  `json:"password"`
	ProfilePicture   optional.Value[*string] `json:"profile_picture"`
	ShortDescription optional.Value[*string] `json:"short_description"`
	IsValid          optional.Value[bool]    `json:"is_valid"`
	IsStaff          optional.Value[bool]    `json:"is_staff"`
	IsSuperuser      optional.Value[bool]    `json:"is_superuser"`
}

func (r UpdateUserRequest) toUpdate() service.ProfileUpdate {
	return service.ProfileUpdate{
		Username:         r.Username,
		Email:            r.Email,
		Password:         r.Password,
		ProfilePicture:   r.ProfilePicture,
		ShortDescription: r.ShortDescription,
		IsValid:          r.IsValid,
		IsStaff:          r.IsStaff,
		IsSuperuser:      r.IsSuperuser,
	}
}

type CreateUserRequest struct {
	RegisterRequest
	IsValid     bool `json:"is_valid"`
	IsStaff     bool `json:"is_staff"`
	IsSuperuser bool `json:"is_superuser"`
}

// GetProfile returns the requester's own account.
// GET /profile/
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.Profile(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.writeUser(c, http.StatusOK, user)
}

// UpdateProfile applies a partial update to the requester's own account.
// PATCH|PUT /profile/
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.CurrentUser(c), req.toUpdate())
	if err != nil {
		respondError(c, err)
		return
	}
	h.writeUser(c, http.StatusOK, user)
}

// List returns the visible accounts: everyone for administrators, only the requester
// for anybody else.
// GET /users/
func (h *UserHandler) List(c *gin.Context) {
	page, err := h.userService.List(c.Request.Context(), middleware.CurrentUser(c), pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := h.presenter.users(c, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Create adds an account directly. Administrators only.
// POST /users/
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	user, err := h.userService.Create(c.Request.Context(), middleware.CurrentUser(c), service.AdminCreateInput{
		RegisterInput: service.RegisterInput{
			Username:         req.Username,
			Email:            req.Email,
			Password:         req.Password,
			ProfilePicture:   req.ProfilePicture,
			ShortDescription: req.ShortDescription,
		},
		IsValid:     req.IsValid,
		IsStaff:     req.IsStaff,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.writeUser(c, http.StatusCreated, user)
}

// Get returns one account.
// GET /users/:id/
func (h *UserHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	user, err := h.userService.Get(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.writeUser(c, http.StatusOK, user)
}

// Update applies a partial update to one account.
// PATCH|PUT /users/:id/
func (h *UserHandler) Update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	user, err := h.userService.Update(c.Request.Context(), middleware.CurrentUser(c), id, req.toUpdate())
	if err != nil {
		respondError(c, err)
		return
	}
	h.writeUser(c, http.StatusOK, user)
}

// Delete removes an account with its posts.
// DELETE /users/:id/
func (h *UserHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.userService.Delete(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) writeUser(c *gin.Context, status int, user *models.User) {
	body, err := h.presenter.user(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, body)
}
