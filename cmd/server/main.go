package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/internal/api"
	"github.com/Veenoway/on-chain-chess-sub001/internal/config"
	"github.com/Veenoway/on-chain-chess-sub001/internal/repository"
	"github.com/Veenoway/on-chain-chess-sub001/internal/service"
	"github.com/Veenoway/on-chain-chess-sub001/internal/websocket"
	"github.com/Veenoway/on-chain-chess-sub001/pkg/database"
	"github.com/Veenoway/on-chain-chess-sub001/pkg/distributed"
	jwtutil "github.com/Veenoway/on-chain-chess-sub001/pkg/jwt"
	"github.com/Veenoway/on-chain-chess-sub001/pkg/logger"
	"github.com/Veenoway/on-chain-chess-sub001/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting chess matchmaking server",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tolerance, err := service.ParseTolerance(cfg.GameTimeTolerance, cfg.BetAmountTolerance)
	if err != nil {
		logger.Fatal("Invalid match tolerance", "error", err)
	}

	zl := logger.L()
	store := service.NewQueueStore(
		service.WithCapacity(cfg.QueueCapacity),
		service.WithEntryTTL(cfg.EntryTTL),
		service.WithMatchTTL(cfg.MatchTTL),
		service.WithMatchCleanupDelay(cfg.MatchCleanupDelay),
		service.WithTolerance(tolerance),
		service.WithStoreLogger(zl.Named("queue")),
	)

	sweeper := service.NewExpirationSweeper(store, cfg.SweepInterval, zl.Named("sweeper"))
	sweeper.Start()

	var notifiers []service.MatchNotifier
	deps := api.Dependencies{Config: cfg}

	// WebSocket Hub
	hub := websocket.NewHub(zl.Named("ws"))
	go hub.Run(ctx)
	notifiers = append(notifiers, hub)
	deps.Hub = hub

	// Redis (선택): 매치 이벤트 발행 + 분산 Rate Limit
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisClient.Close()

		publisher := distributed.NewMatchPublisher(redisClient, cfg.MatchEventsChannel, zl.Named("events"))
		notifiers = append(notifiers, service.NewPublisherNotifier(publisher))
		go subscribeRemoteMatches(ctx, publisher)
		defer publisher.Stop()

		deps.Limiter = ratelimit.NewRedisRateLimiter(redisClient, ratelimit.RedisRateLimiterConfig{
			KeyPrefix: "matchmaking:ratelimit:",
			Limit:     int(cfg.RateLimitCapacity),
			Window:    refillWindow(cfg.RateLimitCapacity, cfg.RateLimitRefill),
		})
		logger.Info("Redis enabled", "channel", cfg.MatchEventsChannel)
	} else {
		limiter := ratelimit.NewRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill)
		defer limiter.Stop()
		deps.Limiter = limiter
	}

	// 데이터베이스 (선택): 매치 기록
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		history := repository.NewMatchHistoryRepository(db.DB)
		if err := prepareHistory(ctx, history, redisClient); err != nil {
			logger.Fatal("Failed to prepare match history", "error", err)
		}
		notifiers = append(notifiers, history)
		deps.History = history
	}

	if cfg.AdminJWTSecret != "" {
		deps.AdminJWT = jwtutil.NewJWTManager(cfg.AdminJWTSecret, time.Hour)
	}

	matchmaking := service.NewMatchmakingService(store, zl.Named("matchmaking"), notifiers...)
	deps.Matchmaking = matchmaking

	router := api.SetupRouter(deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	sweeper.Stop()
	matchmaking.Close()
	stop()

	logger.Info("Server exited")
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// prepareHistory creates the history table; with Redis, replicas starting
// together take turns
func prepareHistory(ctx context.Context, history *repository.MatchHistoryRepository, redisClient *redis.Client) error {
	if redisClient == nil {
		return history.EnsureSchema(ctx)
	}

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	locker := distributed.NewLocker(redisClient, "matchmaking:lock:")
	return locker.WithLock(lockCtx, "match-history-schema", 15*time.Second, history.EnsureSchema)
}

// subscribeRemoteMatches logs matches created by other instances
func subscribeRemoteMatches(ctx context.Context, publisher *distributed.MatchPublisher) {
	l := logger.L().Named("events")
	err := publisher.Subscribe(ctx, func(e distributed.MatchEvent) {
		l.Info("Remote match created",
			zap.String("instanceId", e.InstanceID),
			zap.String("matchId", e.MatchID),
			zap.String("white", e.WhiteAddress),
			zap.String("black", e.BlackAddress))
	})
	if err != nil {
		l.Warn("Match event subscription ended", zap.Error(err))
	}
}

// refillWindow time to refill a full bucket, at least one second
func refillWindow(capacity, refill int64) time.Duration {
	if capacity <= 0 || refill <= 0 {
		return time.Minute
	}
	window := time.Duration(capacity/refill) * time.Second
	if window < time.Second {
		window = time.Second
	}
	return window
}
