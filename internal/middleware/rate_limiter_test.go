package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRateLimiter creates a rate limiter with miniredis for testing
func setupTestRateLimiter(t *testing.T, maxRequests int, window, block time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl := NewRateLimiter(client, "login", RateLimiterConfig{
		MaxRequests: maxRequests,
		Window:      window,
		BlockTime:   block,
	})
	return rl, mr
}

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Middleware())
	router.POST("/login/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func send(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login/", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsRequestsUnderLimit(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 5, time.Minute, time.Minute)
	router := limitedRouter(rl)

	for i := 0; i < 5; i++ {
		w := send(router, "192.168.1.1")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}
}

func TestRateLimiter_BlocksRequestsOverLimit(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 5, time.Minute, time.Minute)
	router := limitedRouter(rl)

	for i := 0; i < 5; i++ {
		send(router, "192.168.1.1")
	}

	w := send(router, "192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimiter_DifferentIPsIndependent(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 2, time.Minute, time.Minute)
	router := limitedRouter(rl)

	send(router, "10.0.0.1")
	send(router, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, send(router, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send(router, "10.0.0.2").Code)
}

func TestRateLimiter_ScopesIndependent(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 1, time.Minute, time.Minute)
	register := NewRateLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "register", rl.config)
	ctx := context.Background()

	allowed, _, err := rl.CheckLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = register.CheckLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 1, time.Minute, time.Minute)
	ctx := context.Background()

	allowed, _, err := rl.CheckLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = rl.CheckLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(61 * time.Second)

	allowed, _, err = rl.CheckLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_BlockTimeExtendsWindow(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 1, time.Minute, 10*time.Minute)
	ctx := context.Background()

	_, _, _ = rl.CheckLimit(ctx, "10.0.0.1")
	allowed, retryAfter, err := rl.CheckLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Minute)

	mr.FastForward(2 * time.Minute)
	allowed, _, err = rl.CheckLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed, "still blocked after the normal window")
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	rl, mr := setupTestRateLimiter(t, 1, time.Minute, time.Minute)
	router := limitedRouter(rl)

	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send(router, "10.0.0.1").Code)
	}
}

func TestRateLimiter_ConcurrentRequests(t *testing.T) {
	rl, _ := setupTestRateLimiter(t, 10, time.Minute, time.Minute)
	router := limitedRouter(rl)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		limited int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if send(router, "10.0.0.9").Code == http.StatusTooManyRequests {
				mu.Lock()
				limited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, limited)
}
