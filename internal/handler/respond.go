package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Baaaki/postboard/internal/pagination"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	service.CodeValidation:     http.StatusBadRequest,
	service.CodeAuthentication: http.StatusUnauthorized,
	service.CodeForbidden:      http.StatusForbidden,
	service.CodeNotFound:       http.StatusNotFound,
}

// respondError writes err as {"error", "code"}. Anything that is not an AppError is
// treated as an internal failure and its details stay in the log.
func respondError(c *gin.Context, err error) {
	var appErr *service.AppError
	if !errors.As(err, &appErr) {
		appErr = service.NewInternalError(err)
	}

	status, ok := statusByCode[appErr.Code]
	if !ok {
		status = http.StatusInternalServerError
		logger.Log.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Error(appErr),
		)
	}

	c.JSON(status, gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, service.NewValidationError(message))
}

// parseID reads a positive numeric path parameter. Non-numeric ids cannot match any
// row, so they are NotFound.
func parseID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, service.NewNotFoundError("Resource", raw)
	}
	return uint(id), nil
}

func pageRequest(c *gin.Context) pagination.PageRequest {
	return pagination.PageRequest{
		Page:     pagination.ParseInt(c.Query("page")),
		PageSize: pagination.ParseInt(c.Query("page_size")),
	}
}

// requestURL rebuilds the absolute URL of the current request for pagination links.
func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func parseBoolQuery(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, service.NewValidationError(name + " must be true or false")
	}
	return &value, nil
}
