package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/callwatch/backend/internal/v1/auth"
	"github.com/callwatch/backend/internal/v1/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(global, debug string) *config.Config {
	return &config.Config{
		RateLimitAdminGlobal: global,
		RateLimitAdminDebug:  debug,
	}
}

func newMockValidator() *MockValidator {
	return &MockValidator{
		ValidateTokenFunc: func(tokenString string) (*auth.CustomClaims, error) {
			token, _, err := jwt.NewParser().ParseUnverified(tokenString, &auth.CustomClaims{})
			if err != nil {
				return nil, err
			}
			claims, ok := token.Claims.(*auth.CustomClaims)
			if !ok {
				return nil, err
			}
			return claims, nil
		},
	}
}

func TestNewRateLimiter(t *testing.T) {
	rl, err := NewRateLimiter(newTestConfig("10-M", "5-M"), newMockValidator())
	require.NoError(t, err)
	assert.NotNil(t, rl)
}

func TestGlobalMiddleware_IP(t *testing.T) {
	rl, err := NewRateLimiter(newTestConfig("5-M", "5-M"), newMockValidator())
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.GlobalMiddleware())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("GET", "/test", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "5", resp.Header().Get("X-RateLimit-Limit"))
	}

	req, _ := http.NewRequest("GET", "/test", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestGlobalMiddleware_User(t *testing.T) {
	rl, err := NewRateLimiter(newTestConfig("10-M", "5-M"), newMockValidator())
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tokenString, _ := token.SignedString([]byte("test-secret"))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.GlobalMiddleware())
	r.GET("/test-user", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 10; i++ {
		req, _ := http.NewRequest("GET", "/test-user", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "10", resp.Header().Get("X-RateLimit-Limit"))
	}

	req, _ := http.NewRequest("GET", "/test-user", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestDebugMiddleware(t *testing.T) {
	rl, err := NewRateLimiter(newTestConfig("100-M", "5-M"), newMockValidator())
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/debug/vars", rl.DebugMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("GET", "/debug/vars", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	req, _ := http.NewRequest("GET", "/debug/vars", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestAllowAvatarFetch(t *testing.T) {
	rl, err := NewRateLimiter(newTestConfig("100-M", "5-M"), newMockValidator())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 300; i++ {
		assert.NoError(t, rl.AllowAvatarFetch(ctx))
	}

	assert.Error(t, rl.AllowAvatarFetch(ctx))
}
