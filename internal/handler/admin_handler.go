package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Baaaki/postboard/internal/middleware"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminUsersPath = "/admin/users/"

type AdminHandler struct {
	adminService *service.AdminService
	presenter    presenter
}

func NewAdminHandler(adminService *service.AdminService, userService *service.UserService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		presenter:    presenter{userService: userService},
	}
}

// BulkIDsRequest names the rows a bulk action applies to.
type BulkIDsRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

// ListUsers returns accounts with optional is_valid and search filters.
// GET /admin/users/
func (h *AdminHandler) ListUsers(c *gin.Context) {
	isValid, err := parseBoolQuery(c, "is_valid")
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.adminService.ListUsers(c.Request.Context(), middleware.CurrentUser(c), service.UserQuery{
		IsValid: isValid,
		Search:  c.Query("search"),
		Page:    pageRequest(c),
	})
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

// Approve marks one account valid.
// POST /admin/users/:id/approve/
func (h *AdminHandler) Approve(c *gin.Context) {
	result, ok := h.approve(c)
	if !ok {
		return
	}

	message := fmt.Sprintf("User %s approved.", result.User.Username)
	if result.AlreadyApproved {
		message = fmt.Sprintf("User %s is already approved.", result.User.Username)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          message,
		"already_approved": result.AlreadyApproved,
	})
}

// ApproveAndRedirect is the link form of Approve: it approves and sends the browser back
// to the user list.
// GET /admin/users/:id/approve/
func (h *AdminHandler) ApproveAndRedirect(c *gin.Context) {
	if _, ok := h.approve(c); !ok {
		return
	}
	c.Redirect(http.StatusFound, adminUsersPath)
}

func (h *AdminHandler) approve(c *gin.Context) (*service.ApproveResult, bool) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return nil, false
	}

	admin := middleware.CurrentUser(c)
	logger.Log.Info("Admin approving user",
		zap.Uint("admin_id", admin.ID),
		zap.Uint("target_user_id", id),
	)

	result, err := h.adminService.Approve(c.Request.Context(), admin, id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return result, true
}

// ApproveBulk marks every listed account valid.
// POST /admin/users/approve/
func (h *AdminHandler) ApproveBulk(c *gin.Context) {
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Bulk approve request parsing failed", zap.Error(err))
		respondBadRequest(c, "ids is required")
		return
	}

	count, err := h.adminService.ApproveBulk(c.Request.Context(), middleware.CurrentUser(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d user(s) marked as valid.", count),
		"approved": count,
	})
}

// ListPosts lists every post including soft-deleted ones.
// GET /admin/posts/
func (h *AdminHandler) ListPosts(c *gin.Context) {
	isDeleted, err := parseBoolQuery(c, "is_deleted")
	if err != nil {
		respondError(c, err)
		return
	}

	query := service.PostQuery{
		IsDeleted: isDeleted,
		Search:    c.Query("search"),
		Page:      pageRequest(c),
	}
	if raw := c.Query("author"); raw != "" {
		authorID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondBadRequest(c, "author must be a user id")
			return
		}
		id := uint(authorID)
		query.AuthorID = &id
	}

	page, err := h.adminService.ListPosts(c.Request.Context(), middleware.CurrentUser(c), query)
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := h.presenter.posts(c, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// RestorePosts brings soft-deleted posts back.
// POST /admin/posts/restore/
func (h *AdminHandler) RestorePosts(c *gin.Context) {
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Restore request parsing failed", zap.Error(err))
		respondBadRequest(c, "ids is required")
		return
	}

	count, err := h.adminService.RestoreBulk(c.Request.Context(), middleware.CurrentUser(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d post(s) restored.", count),
		"restored": count,
	})
}
