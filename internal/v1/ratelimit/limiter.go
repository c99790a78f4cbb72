// Package ratelimit implements in-memory rate limiting for the admin HTTP
// surface and for outbound avatar-fetch traffic.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/callwatch/backend/internal/v1/auth"
	"github.com/callwatch/backend/internal/v1/config"
	"github.com/callwatch/backend/internal/v1/logging"
	"github.com/callwatch/backend/internal/v1/metrics"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// TokenValidator validates a bearer token and extracts its claims. Satisfied
// by *auth.Validator and, in development, *auth.MockValidator.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// RateLimiter holds the admin-API and avatar-fetch limiter instances. There
// is no cross-process coordination: each replica enforces its own local
// budget against an in-memory store (see DESIGN.md for why a shared store
// was dropped along with the rest of the Redis stack).
type RateLimiter struct {
	adminGlobal *limiter.Limiter
	adminDebug  *limiter.Limiter
	avatarFetch *limiter.Limiter
	store       limiter.Store
	validator   TokenValidator
}

// NewRateLimiter creates a new RateLimiter instance backed by a memory store.
func NewRateLimiter(cfg *config.Config, validator TokenValidator) (*RateLimiter, error) {
	globalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAdminGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid admin global rate: %w", err)
	}

	debugRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAdminDebug)
	if err != nil {
		return nil, fmt.Errorf("invalid admin debug rate: %w", err)
	}

	// Avatar fetches are throttled at a fixed, generous rate independent of config:
	// this protects the outbound HTTP client from a pathological burst of new
	// joiners, not from abuse by an authenticated caller.
	avatarRate, err := limiter.NewRateFromFormatted("300-M")
	if err != nil {
		return nil, fmt.Errorf("invalid avatar fetch rate: %w", err)
	}

	store := memory.NewStore()

	return &RateLimiter{
		adminGlobal: limiter.New(store, globalRate),
		adminDebug:  limiter.New(store, debugRate),
		avatarFetch: limiter.New(store, avatarRate),
		store:       store,
		validator:   validator,
	}, nil
}

// GlobalMiddleware returns a Gin middleware that enforces the admin API's
// global rate limit, keyed by authenticated subject when a bearer token is
// present and by client IP otherwise.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, limitType := rl.identify(c)

		ctx := c.Request.Context()
		lctx, err := rl.adminGlobal.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// DebugMiddleware returns a Gin middleware enforcing the stricter rate limit
// applied to debug/introspection endpoints.
func (rl *RateLimiter) DebugMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, _ := rl.identify(c)

		ctx := c.Request.Context()
		lctx, err := rl.adminDebug.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), "debug").Inc()
			c.Header("X-RateLimit-Retry-After", strconv.FormatInt(lctx.Reset, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// identify extracts a rate-limit key and type ("user" or "ip") for the request.
func (rl *RateLimiter) identify(c *gin.Context) (key, limitType string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" && rl.validator != nil {
		const prefix = "Bearer "
		if len(authHeader) > len(prefix) {
			if claims, err := rl.validator.ValidateToken(authHeader[len(prefix):]); err == nil {
				return claims.Subject, "user"
			}
		}
	}
	return c.ClientIP(), "ip"
}

// AllowAvatarFetch checks the global avatar-fetch throttle. Returns an error
// if the budget for this window has been exhausted.
func (rl *RateLimiter) AllowAvatarFetch(ctx context.Context) error {
	lctx, err := rl.avatarFetch.Get(ctx, "avatar-fetch")
	if err != nil {
		logging.Error(ctx, "avatar fetch rate limiter store failed", zap.Error(err))
		return nil // fail open: availability of reports matters more than strict throttling
	}
	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("avatar_fetch", "throttle").Inc()
		return fmt.Errorf("avatar fetch throttled")
	}
	metrics.RateLimitRequests.WithLabelValues("avatar_fetch").Inc()
	return nil
}
