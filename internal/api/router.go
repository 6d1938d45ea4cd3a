package api

import (
	"github.com/Veenoway/on-chain-chess-sub001/internal/api/handlers"
	"github.com/Veenoway/on-chain-chess-sub001/internal/api/middleware"
	"github.com/Veenoway/on-chain-chess-sub001/internal/config"
	"github.com/Veenoway/on-chain-chess-sub001/internal/service"
	"github.com/Veenoway/on-chain-chess-sub001/internal/websocket"
	jwtutil "github.com/Veenoway/on-chain-chess-sub001/pkg/jwt"
	"github.com/Veenoway/on-chain-chess-sub001/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// Dependencies everything the router wires; optional parts may be nil
type Dependencies struct {
	Config      *config.Config
	Matchmaking *service.MatchmakingService
	Hub         *websocket.Hub
	History     handlers.MatchHistory
	Limiter     ratelimit.Limiter
	AdminJWT    *jwtutil.JWTManager
}

// SetupRouter API 라우터 설정
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(deps.Config.CORSAllowedOrigins))

	queueHandler := handlers.NewQueueHandler(deps.Matchmaking, deps.History)

	router.GET("/health", handlers.HealthCheck)

	mm := router.Group("/api/matchmaking")
	{
		mm.GET("/stats", queueHandler.Stats)
		mm.GET("/history", queueHandler.History)

		limited := mm.Group("")
		limited.Use(middleware.RateLimit(deps.Limiter, middleware.IPKeyFunc))
		{
			limited.POST("/join", queueHandler.Join)
			limited.POST("/leave", queueHandler.Leave)
			limited.POST("/status", queueHandler.Status)
		}

		mm.POST("/debug", middleware.AdminAuth(deps.AdminJWT), queueHandler.Debug)

		if deps.Hub != nil {
			wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Config.CORSAllowedOrigins)
			mm.GET("/ws", wsHandler.HandleWebSocket)
		}
	}

	return router
}
