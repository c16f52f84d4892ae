package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"partyserver/database"        //PostgreSQL/SQLiteとRedisの初期化、ストア
	"partyserver/handlers"        //HTTPハンドラー
	"partyserver/internal/notify" //ルーム通知の非同期配信
	"partyserver/internal/pubsub"
	"partyserver/internal/room"
	"partyserver/internal/signaling"
	"partyserver/internal/websocket"
	"partyserver/middlewares"
	"partyserver/models"
	"partyserver/utils" //ロガーの初期化とCronジョブ(期限切れルームの掃除)
)

func main() {
	configPath := flag.String("config", "config.json", "path to an optional JSON config file")
	flag.Parse()

	config, err := database.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := utils.InitLogger(config.Env, config.LogLevel) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	if err := run(config, logger); err != nil {
		logger.Fatal("サーバーが異常終了しました", zap.Error(err))
	}
}

func run(config models.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, rdb, err := openResources(config, logger)
	if err != nil {
		return err
	}
	defer closeResources(db, rdb, logger)

	if err := database.Migrate(db, logger); err != nil {
		return err
	}

	store := database.NewGormStore(db)
	bus := pubsub.NewRedisBus(rdb, logger)
	broadcaster := notify.NewBroadcaster(bus, config.NotifyQueueSize, logger)
	defer broadcaster.Close()

	roomOpts := []room.Option{
		room.WithLogger(logger),
		room.WithMaxCodeAttempts(config.CodeMaxAttempts),
		room.WithDefaultCapacity(config.DefaultMaxParticipants),
	}
	registry := room.NewRegistry(store, roomOpts...)
	service := room.NewService(store, broadcaster, roomOpts...)
	reaper := room.NewReaper(registry, service, config.RoomExpiry.Duration, roomOpts...)

	// クーロンスケジューラのセットアップと呼び出し
	scheduler, err := utils.StartCronJobs(ctx, reaper, config.ReaperSchedule, logger)
	if err != nil {
		return err
	}
	defer utils.StopCronJobs(scheduler, 30*time.Second, logger)

	if config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	auth := middlewares.AuthMiddleware([]byte(config.JWTSecret), logger)
	limit := middlewares.RateLimit(rdb, config.RateLimitMax, config.RateLimitWindow.Duration, logger)

	//各HTTPリクエストのルーティング
	handlers.NewRoomHandler(registry, service, config.ShareBaseURL, logger).Register(router, auth, limit)
	router.GET("/health", handlers.HealthHandler(map[string]handlers.Pinger{
		"database": store,
		"redis":    handlers.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}, logger))

	gateway := websocket.NewGateway(
		service,
		bus,
		signaling.NewRouter(bus, registry, logger),
		signaling.NewChatRelay(bus, logger),
		config.AllowedOrigins,
		logger,
	)
	router.GET("/ws/rooms/:code", auth, gateway.HandleConnections)

	srv := &http.Server{Addr: config.HTTPAddr, Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTPサーバーを起動します", zap.String("addr", config.HTTPAddr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("シャットダウンを開始します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openResources はデータベースとRedisへ並行して接続します。
// If either fails, the one that did open is closed before returning.
func openResources(config models.Config, logger *zap.Logger) (*gorm.DB, *redis.Client, error) {
	var db *gorm.DB
	var rdb *redis.Client
	var g errgroup.Group
	g.Go(func() (err error) {
		db, err = database.Open(config, logger)
		return err
	})
	g.Go(func() (err error) {
		rdb, err = database.InitRedis(config, logger)
		return err
	})
	if err := g.Wait(); err != nil {
		// 片方だけ接続に成功した場合はそちらを閉じる
		closeResources(db, rdb, logger)
		return nil, nil, err
	}
	return db, rdb, nil
}

// closeResources closes whichever of the database and Redis connections were opened.
func closeResources(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) {
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Warn("Failed to close database", zap.Error(err))
			}
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
}
