package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/socialgraph/api/rest"
	"github.com/kasuganosora/socialgraph/api/sse"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/command"
	"github.com/kasuganosora/socialgraph/config"
	dbadapter "github.com/kasuganosora/socialgraph/db"
	"github.com/kasuganosora/socialgraph/game/social"
	"github.com/kasuganosora/socialgraph/identity"
	"github.com/kasuganosora/socialgraph/message"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/notify"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/session"
	"github.com/kasuganosora/socialgraph/store"
	"go.uber.org/zap"
)

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
	db, err := dbadapter.Open(cfg.Database, logger)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache ----
	c, err := cache.NewCache(cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		RedisPrefix:     cfg.Cache.RedisPrefix,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalMaxEntries: cfg.Cache.LocalMaxEntries,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	logger.Info("Cache initialized")

	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Messages ----
	msgs, err := message.Load(cfg.Messages, cfg.Social.DisabledMessages)
	if err != nil {
		log.Fatalf("messages: %v", err)
	}

	// ---- Social graph ----
	sm := session.NewManager(logger)
	st := store.New(db)

	hooks := hook.NewCenter()
	if cfg.Social.MaxFriends > 0 {
		hooks.Register(100, "friend_limit", social.NewFriendLimit(st, msgs, cfg.Social.MaxFriends))
		logger.Info("Friend limit enabled", zap.Int("max", cfg.Social.MaxFriends))
	}

	mojang := identity.NewMojangClient(cfg.Identity.NameURL, cfg.Identity.IDURL, cfg.Identity.Timeout)
	resolver := identity.NewResolver(sm, mojang, c, cfg.Identity.CacheTTL, logger)
	delivery := notify.New(st, sm, cfg.Social.NewsExpiration, logger)
	engine := social.New(st, hooks, msgs, delivery, resolver, auditSvc, cfg.Social, logger)
	dispatcher := command.New(engine, resolver, sm, delivery, msgs, cfg.Social.CommandName, logger)

	if cfg.Social.NewsPurgeInterval > 0 {
		sched.AddTicker("news_purge", cfg.Social.NewsPurgeInterval, func(ctx context.Context) error {
			_, err := delivery.PurgeExpired(ctx)
			return err
		})
	}

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger, "/health"), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	friendsH := apirest.NewFriendsHandler(dispatcher, engine, logger)
	adminH := apirest.NewAdminHandler(apirest.AdminDeps{
		Sessions:  sm,
		Hooks:     hooks,
		Delivery:  delivery,
		Scheduler: sched,
		Audit:     auditSvc,
		Engine:    engine,
	}, logger)

	api := r.Group("/api")
	{
		friendsG := api.Group("/friends")
		friendsG.Use(mw.Auth(cfg.Security))
		friendsG.GET("", friendsH.Info)
		friendsG.POST("/command", friendsH.Command)
		friendsG.GET("/suggest", friendsH.Suggest)

		adminH.Register(api.Group("/admin",
			mw.IPWhitelist(cfg.Server.AdminIPs),
			apirest.AdminAuth(cfg.Server.AdminKey)))
	}

	// ---- SSE ----
	sseH := sse.NewHandler(sm, engine, cfg.Security.AllowedOrigins, logger)
	r.GET("/sse", mw.Auth(cfg.Security), sseH.ServeSSE)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-done
	logger.Info("Shutting down")

	// Close streams first so SSE handlers return before Shutdown waits on them.
	sm.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
