package handler

import (
	"net/http"

	"github.com/Baaaki/postboard/internal/middleware"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/internal/pagination"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/optional"
	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	postService *service.PostService
	presenter   presenter
}

func NewPostHandler(postService *service.PostService, userService *service.UserService) *PostHandler {
	return &PostHandler{
		postService: postService,
		presenter:   presenter{userService: userService},
	}
}

// CreatePostRequest carries only content; the author is always the requester.
type CreatePostRequest struct {
	Content string `json:"content"`
}

type UpdatePostRequest struct {
	Content optional.Value[string] `json:"content"`
}

// List returns live posts, newest first.
// GET /posts/
func (h *PostHandler) List(c *gin.Context) {
	page, err := h.postService.List(c.Request.Context(), middleware.CurrentUser(c), pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.writePage(c, page)
}

// Create publishes a post as the requester.
// POST /posts/
func (h *PostHandler) Create(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	post, err := h.postService.Create(c.Request.Context(), middleware.CurrentUser(c), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	h.writePost(c, http.StatusCreated, post)
}

// Get returns a live post.
// GET /posts/:id/
func (h *PostHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	post, err := h.postService.Get(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.writePost(c, http.StatusOK, post)
}

// Update edits a post's content.
// PATCH|PUT /posts/:id/
func (h *PostHandler) Update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	post, err := h.postService.Update(c.Request.Context(), middleware.CurrentUser(c), id, service.PostUpdate{Content: req.Content})
	if err != nil {
		respondError(c, err)
		return
	}
	h.writePost(c, http.StatusOK, post)
}

// Delete soft-deletes a post.
// DELETE /posts/:id/
func (h *PostHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.postService.SoftDelete(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Like adds the requester to the post's likers.
// POST /posts/:id/like_post/
func (h *PostHandler) Like(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.postService.Like(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "post liked"})
}

// Unlike removes the requester from the post's likers.
// POST /posts/:id/unlike_post/
func (h *PostHandler) Unlike(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.postService.Unlike(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "post unliked"})
}

// Feed returns the most recent posts, paginated.
// GET /feed/
func (h *PostHandler) Feed(c *gin.Context) {
	page, err := h.postService.Feed(c.Request.Context(), middleware.CurrentUser(c), pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.writePage(c, page)
}

// FeedItem returns one post from the feed.
// GET /feed/:id/
func (h *PostHandler) FeedItem(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	post, err := h.postService.FeedItem(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.writePost(c, http.StatusOK, post)
}

func (h *PostHandler) writePost(c *gin.Context, status int, post *models.Post) {
	body, err := h.presenter.post(c.Request.Context(), post)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, body)
}

func (h *PostHandler) writePage(c *gin.Context, page *pagination.PageResult[*models.Post]) {
	body, err := h.presenter.posts(c, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}
