package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/farmlean/agkaizen/config"
	"github.com/farmlean/agkaizen/db"
	"github.com/farmlean/agkaizen/handlers"
	"github.com/farmlean/agkaizen/internal/auth"
	"github.com/farmlean/agkaizen/internal/utils"
	"github.com/farmlean/agkaizen/services"
	"github.com/farmlean/agkaizen/taxonomy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx := context.Background()

	tax, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		sugar.Fatalf("taxonomy: failed to load: %v", err)
	}

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		sugar.Fatalf("postgres: failed to connect: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		sugar.Fatalf("postgres: ensure schema: %v", err)
	}

	opts := services.ConsultServiceOptions{
		Rules:          services.NewRulesEngine(tax),
		Consultant:     services.NewConsultant(cfg.LLM, tax, sugar),
		Chunks:         db.NewSOPRepository(pool),
		Taxonomy:       tax,
		Logger:         sugar,
		CacheTTL:       cfg.CacheTTL,
		RetrievalLimit: cfg.RetrievalLimit,
	}

	if cfg.Redis.Addr != "" {
		cache, err := db.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			sugar.Warnf("redis unavailable, analysis cache disabled: %v", err)
		} else {
			defer func() { _ = cache.Close() }()
			opts.Cache = cache
		}
	}

	if cfg.Mongo.URI != "" {
		mongoClient, err := db.NewMongoClient(ctx, cfg.Mongo)
		if err != nil {
			sugar.Warnf("mongo unavailable, consultation archive disabled: %v", err)
		} else {
			defer func() {
				if err := mongoClient.Disconnect(context.Background()); err != nil {
					sugar.Warnf("mongo: close error: %v", err)
				}
			}()
			opts.Archive = db.NewArchiveStore(mongoClient, cfg.Mongo.Database)
		}
	}

	consultService := services.NewConsultService(opts)

	var authService *auth.Service
	if cfg.JWTSecret != "" {
		authService, err = auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			sugar.Fatalf("failed to initialise auth service: %v", err)
		}
	} else {
		sugar.Warn("JWT_SECRET not set, consult endpoints are open")
	}

	router := setupRouter(tax, consultService, authService, sugar)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("server crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("graceful shutdown failed: %v", err)
	}

	sugar.Info("server stopped cleanly")
}

func setupRouter(tax *taxonomy.Taxonomy, consultService *services.ConsultService, authService *auth.Service, sugar *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "agkaizen advisory server is running"})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	consultHandler := handlers.NewConsultHandler(consultService, sugar)
	streamHandler := handlers.NewConsultStreamHandler(consultService, sugar)
	taxonomyHandler := handlers.NewTaxonomyHandler(tax)

	apiGroup := router.Group("/api")
	apiGroup.GET("/taxonomy", taxonomyHandler.HandleGet)

	var guard gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if authService != nil {
		authHandler := handlers.NewAuthHandler(authService, sugar)
		authGroup := apiGroup.Group("/auth")
		authGroup.POST("/register", authHandler.HandleRegister)
		authGroup.POST("/login", authHandler.HandleLogin)

		guard = auth.RequireAuth(authService)
	}

	apiGroup.POST("/consult", guard, consultHandler.HandleConsult)

	// legacy alias kept for older clients
	router.POST("/chat", guard, consultHandler.HandleConsult)

	router.GET("/ws/consult", guard, streamHandler.HandleConsultStream)

	return router
}
