// Package adminapi wires the admin HTTP surface: health checks,
// Prometheus metrics, and a small authenticated room/thumbnail
// introspection API, the way cmd/v1/session assembled its gin router.
package adminapi

import (
	"net/http"
	"time"

	"github.com/callwatch/backend/internal/v1/auth"
	"github.com/callwatch/backend/internal/v1/health"
	"github.com/callwatch/backend/internal/v1/middleware"
	"github.com/callwatch/backend/internal/v1/ratelimit"
	"github.com/callwatch/backend/internal/v1/roomstate"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// TokenValidator validates the bearer token on authenticated admin
// routes.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// ThumbnailStore exposes the most recently rendered PNG for a channel.
type ThumbnailStore interface {
	LastRenderedPNG(channelID string) ([]byte, bool)
}

// Dependencies bundles everything the admin router needs to wire its
// routes.
type Dependencies struct {
	Gateway        health.GatewayChecker
	Rooms          *roomstate.Manager
	Thumbnails     ThumbnailStore
	RateLimiter    *ratelimit.RateLimiter
	Validator      TokenValidator
	AllowedOrigins []string
	SkipAuth       bool
}

// roomSummary is the JSON shape returned by the room-listing endpoint.
type roomSummary struct {
	ChannelID        string `json:"channel_id"`
	GuildID          string `json:"guild_id"`
	ParticipantCount int    `json:"participant_count"`
	CreatedTimestamp string `json:"created_timestamp"`
}

// NewRouter assembles the admin gin.Engine: recovery, tracing,
// correlation id, CORS and the global rate limit, then
// health/metrics/debug routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("callwatch-admin"))
	router.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	if len(deps.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = deps.AllowedOrigins
	} else {
		corsCfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(corsCfg))

	if deps.RateLimiter != nil {
		router.Use(deps.RateLimiter.GlobalMiddleware())
	}

	h := health.NewHandler(deps.Gateway)
	healthGroup := router.Group("/health")
	healthGroup.GET("/live", h.Liveness)
	healthGroup.GET("/ready", h.Readiness)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	debug := router.Group("/debug")
	if !deps.SkipAuth {
		debug.Use(authMiddleware(deps.Validator))
	}
	if deps.RateLimiter != nil {
		debug.Use(deps.RateLimiter.DebugMiddleware())
	}
	debug.GET("/rooms", listRooms(deps.Rooms))
	debug.GET("/rooms/:channelId/thumbnail.png", thumbnail(deps.Thumbnails))

	return router
}

func authMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if validator == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if _, err := validator.ValidateToken(header[len(prefix):]); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func listRooms(rooms *roomstate.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rooms == nil {
			c.JSON(http.StatusOK, []roomSummary{})
			return
		}
		all := rooms.SnapshotAll()
		out := make([]roomSummary, 0, len(all))
		for _, room := range all {
			snap := room.Snapshot()
			out = append(out, roomSummary{
				ChannelID:        snap.ChannelID,
				GuildID:          snap.GuildID,
				ParticipantCount: len(snap.Participants),
				CreatedTimestamp: snap.CreatedTimestamp.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

func thumbnail(store ThumbnailStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.Status(http.StatusNotFound)
			return
		}
		channelID := c.Param("channelId")
		png, ok := store.LastRenderedPNG(channelID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no rendered report for this channel yet"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	}
}
