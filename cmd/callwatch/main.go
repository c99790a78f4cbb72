package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/callwatch/backend/internal/v1/adminapi"
	"github.com/callwatch/backend/internal/v1/asset"
	"github.com/callwatch/backend/internal/v1/auth"
	"github.com/callwatch/backend/internal/v1/config"
	"github.com/callwatch/backend/internal/v1/gateway"
	"github.com/callwatch/backend/internal/v1/layout"
	"github.com/callwatch/backend/internal/v1/logging"
	"github.com/callwatch/backend/internal/v1/ratelimit"
	"github.com/callwatch/backend/internal/v1/render"
	"github.com/callwatch/backend/internal/v1/report"
	"github.com/callwatch/backend/internal/v1/roomstate"
	"github.com/callwatch/backend/internal/v1/tracker"
	"github.com/callwatch/backend/internal/v1/tracing"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	envPaths := []string{".env", "../../.env", "../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			envLoaded = true
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		println("configuration error:", err.Error())
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		println("failed to initialize logging:", err.Error())
		os.Exit(1)
	}
	ctx := context.Background()

	if !envLoaded {
		logging.Warn(ctx, "no .env file found in any expected location, relying on environment variables")
	}
	if cfg.DevelopmentMode {
		logging.Warn(ctx, "running in DEVELOPMENT MODE - auth validation may be relaxed")
	}

	if collectorAddr := os.Getenv("OTEL_COLLECTOR_ADDR"); collectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "callwatch", collectorAddr)
		if err != nil {
			logging.Warn(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logging.Warn(ctx, "tracer provider shutdown failed", zap.Error(err))
				}
			}()
		}
	}

	var tokenValidator ratelimit.TokenValidator
	if cfg.AdminSkipAuth {
		logging.Warn(ctx, "admin API authentication DISABLED - do not use in production")
		tokenValidator = &auth.MockValidator{}
	} else {
		if cfg.AdminJWTIssuerDomain == "" || cfg.AdminJWTAudience == "" {
			logging.Fatal(ctx, "ADMIN_JWT_ISSUER_DOMAIN and ADMIN_JWT_AUDIENCE must be set when ADMIN_SKIP_AUTH=false")
		}
		validator, err := auth.NewValidator(ctx, cfg.AdminJWTIssuerDomain, cfg.AdminJWTAudience)
		if err != nil {
			logging.Fatal(ctx, "failed to construct admin auth validator", zap.Error(err))
		}
		tokenValidator = validator
	}

	limiter, err := ratelimit.NewRateLimiter(cfg, tokenValidator)
	if err != nil {
		logging.Fatal(ctx, "failed to construct rate limiter", zap.Error(err))
	}

	rooms := roomstate.NewManager(cfg.ShardCount, time.Duration(cfg.IdleTimeoutSec)*time.Second)
	assets := asset.NewService(cfg.AssetCacheCapacity, cfg.AvatarPixelSize, limiter)
	trk := tracker.New()

	pool := render.NewPool(renderWorkerCount())
	pool.Start()
	defer pool.Stop()

	publisher := gateway.NewHTTPPublisher(cfg.OutboundBaseURL, cfg.GatewayToken)
	reportSvc := report.NewService(assets, publisher, pool, trk, layout.DefaultConfig(),
		cfg.ReportChannelID, time.Duration(cfg.TerminalRateLimitSec)*time.Second, report.DefaultEmbedBuilder)

	source := gateway.NewWebSocketGatewaySource(cfg.GatewayURL, cfg.GatewayToken)
	adapter := gateway.NewEventAdapter(rooms, reportSvc, time.Now)

	runCtx, cancelRun := context.WithCancel(ctx)
	go runGatewaySupervisor(runCtx, source, adapter)

	router := adminapi.NewRouter(adminapi.Dependencies{
		Gateway:        source,
		Rooms:          rooms,
		Thumbnails:     reportSvc,
		RateLimiter:    limiter,
		Validator:      tokenValidator,
		AllowedOrigins: auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		SkipAuth:       cfg.AdminSkipAuth,
	})
	srv := &http.Server{Addr: cfg.AdminAddr, Handler: router}

	go func() {
		logging.Info(ctx, "admin API starting", zap.String("addr", cfg.AdminAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "admin API server failed", zap.Error(err))
		}
	}()

	refreshTicker := time.NewTicker(time.Duration(cfg.RefreshIntervalSec) * time.Second)
	defer refreshTicker.Stop()
	reapTicker := time.NewTicker(time.Duration(cfg.IdleTimeoutSec) * time.Second)
	defer reapTicker.Stop()

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case now := <-refreshTicker.C:
				reportSvc.RefreshAll(runCtx, now, rooms.SnapshotAll())
			case now := <-reapTicker.C:
				n := rooms.Cleanup(now)
				if n > 0 {
					logging.Info(runCtx, "reaped idle rooms", zap.Int("count", n))
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "admin API forced to shutdown", zap.Error(err))
	}
	logging.Info(ctx, "exited")
}

// runGatewaySupervisor keeps the upstream gateway connection alive,
// reconnecting with a fixed backoff after any read or dial error.
// Connect itself never reconnects - that is this loop's job.
func runGatewaySupervisor(ctx context.Context, source *gateway.WebSocketGatewaySource, adapter *gateway.EventAdapter) {
	const backoff = 5 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := source.Connect(ctx, adapter.HandleCacheReady, adapter.HandleVoiceStateUpdate)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logging.Warn(ctx, "gateway connection dropped, reconnecting", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func renderWorkerCount() int {
	if n, err := strconv.Atoi(os.Getenv("RENDER_WORKERS")); err == nil && n > 0 {
		return n
	}
	return 4
}
