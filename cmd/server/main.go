package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/switter/internal/cache"
	"github.com/switter/internal/config"
	"github.com/switter/internal/db"
	"github.com/switter/internal/handler"
	"github.com/switter/internal/router"
	"github.com/switter/internal/service"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("skipping .env: %v", err)
	}

	cfg := config.Load()

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// Redis 仅用于热门信息流的响应缓存，连不上时降级运行
	var popularCache *cache.PopularFeedCache
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if _, err := rdb.Ping(pingCtx).Result(); err != nil {
			log.Printf("redis unavailable, popular feed cache disabled: %v", err)
		} else {
			popularCache = cache.NewPopularFeedCache(rdb, cfg.PopularCacheTTL)
		}
		cancel()
	}

	viewCache := service.NewViewCache()
	viewStore := service.NewGormViewStore(db.DB)

	flusher := service.NewViewFlusher(viewCache, viewStore, cfg.FlushInterval, cfg.FlushRetryCap)
	flusher.Start()

	postService := service.NewPostService(db.DB)
	feedService := service.NewFeedService(
		db.DB,
		postService,
		viewCache,
		viewStore,
		viewStore,
		service.ParseRankingPolicy(cfg.FeedRanking),
		cfg.FeedWindowDays,
		popularCache,
	)

	api := handler.NewAPI(handler.Deps{
		DB:        db.DB,
		Posts:     postService,
		Users:     service.NewUserService(db.DB),
		Media:     service.NewMediaService(db.DB),
		Feed:      feedService,
		Views:     viewCache,
		UploadDir: cfg.UploadDir,
		UploadURL: cfg.UploadURLPath,
	})

	gin.SetMode(cfg.GinMode)
	engine := router.SetupRouter(api, cfg.SessionSecret, cfg.UploadDir, cfg.UploadURLPath)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	go func() {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to run server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	// 退出前把缓存里未落库的浏览记录做最后一次有界同步刷盘
	if err := flusher.Stop(shutdownCtx); err != nil {
		log.Printf("final view flush failed: %v", err)
	}
}
