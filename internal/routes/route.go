package routes

import (
	"github.com/gin-gonic/gin"

	"ai_voice_bot/internal/config"
	"ai_voice_bot/internal/handlers"
	"ai_voice_bot/internal/middleware"
	"ai_voice_bot/internal/services/session"
)

// SetupRouter 创建路由并注册中间件和全部处理器
func SetupRouter(cfg *config.Config, registry *session.Registry) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	middleware.Setup(r)

	handlers.RegisterRoutes(r,
		registry,
		handlers.NewStreamHandler(registry, cfg.WebSocket, cfg.Debug),
		handlers.NewVoiceHandler(cfg),
	)
	return r
}
