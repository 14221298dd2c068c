package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-canvas/internal/handler/http"
	wsHandler "collaborative-canvas/internal/handler/websocket"
	"collaborative-canvas/internal/history"
	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/infra/blob"
	"collaborative-canvas/internal/infra/discovery"
	gormpersistence "collaborative-canvas/internal/infra/persistence/gorm"
	"collaborative-canvas/internal/infra/setup"
	redisstate "collaborative-canvas/internal/infra/state/redis"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/presence"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
	"collaborative-canvas/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config         *Config
	Log            *logrus.Logger
	DB             *gorm.DB
	RedisClient    *redis.Client        // 未配置 Redis 时为 nil
	AsynqClient    *asynq.Client        // 同上
	AsynqServer    *worker.WorkerServer // 同上
	Hub            *hub.Hub
	HttpServer     *http.Server
	redisClientOpt asynq.RedisClientOpt
	archiveService *service.ArchiveService
	scheduler      *asynq.Scheduler
	advertiser     *discovery.Advertiser
	stopAutosave   chan struct{}
	stopOnce       sync.Once
}

// NewLogger 按环境创建 logrus Logger
func NewLogger(appEnv, level string) *logrus.Logger {
	log := logrus.New()
	if appEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger，包级 logrus 与 App 使用相同的格式和级别
	log := NewLogger(cfg.AppEnv, cfg.LogLevel)
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(log.Level)
	log.Infof("Logger initialized (Level: %s)", log.Level.String())

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.WithField("driver", cfg.DBDriver).Info("Database initialized and migrated")

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init blob store: %w", err)
	}
	log.WithField("storage", cfg.BlobStorage).Info("Blob store initialized")

	app := &App{Config: cfg, Log: log, DB: db, stopAutosave: make(chan struct{})}

	var activityRepo repository.ActivityRepository
	var enqueuer httpHandler.ArchiveEnqueuer
	if cfg.RedisEnabled() {
		app.RedisClient, err = setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		activityRepo = redisstate.NewRedisActivityRepository(app.RedisClient, cfg.KeyPrefix)

		app.redisClientOpt = asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		app.AsynqClient = asynq.NewClient(app.redisClientOpt)
		enqueuer = tasks.NewEnqueuer(app.AsynqClient)
		log.Info("Redis and Asynq client initialized")
	} else {
		log.Warn("REDIS_ADDR not set: rate limiting and task queue disabled, archives run inline")
	}

	// 4. 初始化核心组件和 Services
	histories := history.NewRegistry(nil)
	directory := presence.NewDirectory()
	archiveRepo := gormpersistence.NewGormArchiveRepository(db)

	collabService := service.NewCollaborationService(histories, directory)
	roomService := service.NewRoomService(histories, directory)
	app.archiveService = service.NewArchiveService(archiveRepo, blobs, activityRepo, histories)
	app.Hub = hub.NewHub(collabService)
	log.Info("Services and hub initialized")

	if cfg.RedisEnabled() {
		app.AsynqServer = worker.NewWorkerServer(app.redisClientOpt, app.archiveService, log)
	}

	// 5. 初始化 Handlers 和路由
	roomHandler := httpHandler.NewRoomHandler(roomService)
	archiveHandler := httpHandler.NewArchiveHandler(app.archiveService, roomService, enqueuer)
	websocketHandler := wsHandler.NewWebSocketHandler(app.Hub, cfg.DefaultRoom, cfg.CORSAllowedOrigin)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/ws", websocketHandler.HandleConnection)
	router.GET("/ws/room/:roomId", websocketHandler.HandleConnection)

	api := router.Group("/api")
	if app.RedisClient != nil {
		api.Use(middleware.RateLimit(app.RedisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	{
		api.GET("/rooms", roomHandler.ListRooms)
		api.GET("/rooms/:roomId/state", roomHandler.GetState)
		api.GET("/rooms/:roomId/export.png", roomHandler.ExportPNG)
		api.GET("/rooms/:roomId/export.pdf", roomHandler.ExportPDF)
		api.POST("/rooms/:roomId/archives", archiveHandler.CreateArchive)
		api.GET("/rooms/:roomId/archives", archiveHandler.ListArchives)
		api.GET("/archives/:archiveId", archiveHandler.GetArchive)
		api.GET("/archives/:archiveId/thumbnail.png", archiveHandler.GetThumbnail)
	}
	log.Info("Router setup complete")

	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

func newBlobStore(cfg *Config) (repository.BlobStore, error) {
	if cfg.BlobStorage == BlobS3 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return blob.NewS3Store(ctx, cfg.S3BucketName)
	}
	return blob.NewFilesystemStore(cfg.BlobPath)
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
		a.Log.Info("Asynq worker server routine started")
		a.registerPeriodicTasks()
	} else {
		a.startLocalAutosave()
	}

	if a.Config.MDNSEnabled {
		port, _ := strconv.Atoi(a.Config.ServerPort)
		adv, err := discovery.Advertise(port, a.Config.DefaultRoom)
		if err != nil {
			a.Log.WithError(err).Warn("mDNS advertisement failed, continuing without LAN discovery")
		} else {
			a.advertiser = adv
		}
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{
		Logger: a.Log.WithField("component", "scheduler"),
	})

	schedule := a.Config.AutosaveSchedule
	entryID, err := a.scheduler.Register(schedule, tasks.NewAutosaveCheckTask(), asynq.Queue("low"))
	if err != nil {
		a.Log.Errorf("Could not register periodic autosave task: %v", err)
		return
	}
	a.Log.Infof("Periodic autosave task registered with schedule '%s' (EntryID: %s)", schedule, entryID)

	// Start 不阻塞，关闭由 Shutdown 负责
	if err := a.scheduler.Start(); err != nil {
		a.Log.Errorf("Asynq scheduler failed to start: %v", err)
		a.scheduler = nil
		return
	}
	a.Log.Info("Asynq scheduler started")
}

// startLocalAutosave 在没有 Redis 时用进程内定时器执行自动存档，只支持 "@every" 计划
func (a *App) startLocalAutosave() {
	interval, ok := a.Config.AutosaveInterval()
	if !ok {
		a.Log.Warnf("Autosave schedule '%s' needs Redis, local autosave disabled", a.Config.AutosaveSchedule)
		return
	}
	handler := worker.NewAutosaveCheckHandler(a.archiveService)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = handler.ProcessTask(context.Background(), tasks.NewAutosaveCheckTask())
			case <-a.stopAutosave:
				return
			}
		}
	}()
	a.Log.Infof("Local autosave running every %s", interval)
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if err := a.advertiser.Shutdown(); err != nil {
		a.Log.Errorf("Error stopping mDNS advertisement: %v", err)
	}

	// 1. 先停止 HTTP 服务，不再接受新连接
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 停止 Hub，关闭所有 WebSocket 连接
	a.Hub.Stop()

	// 3. 停止定时任务和 Worker
	a.stopOnce.Do(func() { close(a.stopAutosave) })
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 关闭 Asynq Client 和 Redis 连接
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	// 5. 关闭数据库连接
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}
