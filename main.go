package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/friendhub/api/rest"
	"github.com/kasuganosora/friendhub/api/sse"
	apows "github.com/kasuganosora/friendhub/api/ws"
	"github.com/kasuganosora/friendhub/audit"
	"github.com/kasuganosora/friendhub/auth"
	"github.com/kasuganosora/friendhub/cache"
	"github.com/kasuganosora/friendhub/config"
	dbadapter "github.com/kasuganosora/friendhub/db"
	mw "github.com/kasuganosora/friendhub/middleware"
	"github.com/kasuganosora/friendhub/model"
	"github.com/kasuganosora/friendhub/scheduler"
	"github.com/kasuganosora/friendhub/social"
	"github.com/kasuganosora/friendhub/user"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	backend := "local"
	if cfg.Cache.RedisAddr != "" {
		backend = "redis"
	}
	logger.Info("Cache initialized", zap.String("backend", backend))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	purge := func(ctx context.Context) {
		n, err := auditSvc.Purge(ctx, cfg.Audit.Retention)
		if err != nil {
			logger.Warn("audit purge failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("audit entries purged", zap.Int64("count", n))
		}
	}
	sched.AddDelay("audit_purge_startup", time.Minute, purge)
	if err := sched.AddTicker("audit_purge", cfg.Audit.PurgeInterval, purge); err != nil {
		log.Fatalf("scheduler: audit_purge: %v", err)
	}

	// ---- Services ----
	tokens := auth.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.JWTTTL)
	authSvc := auth.NewService(db, tokens, auditSvc, logger)
	authSvc.SetHashParams(auth.HashParams{
		Memory:      cfg.Security.ArgonMemoryKiB,
		Iterations:  cfg.Security.ArgonIterations,
		Parallelism: cfg.Security.ArgonParallelism,
		SaltLength:  auth.DefaultHashParams.SaltLength,
		KeyLength:   auth.DefaultHashParams.KeyLength,
	})
	userSvc := user.NewService(db, c, cfg.Cache.ProfileTTL, auditSvc, logger)
	socialSvc := social.NewService(db, social.NewEvents(pubsub), auditSvc, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := gin.New()
	if err := mw.TrustProxies(r, cfg.Server.TrustedProxies); err != nil {
		log.Fatalf("server: %v", err)
	}
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apirest.Routes{
		Auth:     apirest.NewAuthHandler(authSvc, logger),
		Users:    apirest.NewUserHandler(userSvc, logger),
		Social:   apirest.NewSocialHandler(socialSvc, logger),
		Admin:    apirest.NewAdminHandler(db, auditSvc, sched, logger),
		Tokens:   tokens,
		AdminKey: cfg.Server.AdminKey,
		AdminIPs: cfg.Server.AdminIPs,
	}.Register(r)

	sseH := sse.NewHandler(pubsub, sse.DefaultKeepalive, logger)
	r.GET("/events", mw.AuthQuery(tokens), sseH.ServeSSE)

	wsH := apows.NewHandler(pubsub, cfg.Server.AllowedOrigins, logger)
	r.GET("/ws", mw.AuthQuery(tokens), wsH.ServeWS)

	// Request contexts derive from baseCtx so open event streams end on shutdown.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	sched.Stop()
	auditSvc.Stop(shutdownCtx)
	if err := c.Close(); err != nil {
		logger.Warn("cache close", zap.Error(err))
	}
	if err := pubsub.Close(); err != nil {
		logger.Warn("pubsub close", zap.Error(err))
	}
	if err := dbadapter.Close(db); err != nil {
		logger.Warn("db close", zap.Error(err))
	}
}
