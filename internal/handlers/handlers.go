package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ai_voice_bot/internal/services/session"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, registry *session.Registry, stream *StreamHandler, voice *VoiceHandler) {
	// 根路由
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "AI Voice Bot is running",
		})
	})

	// 健康检查路由
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"service":  "ai_voice_bot",
			"sessions": registry.Len(),
			"time":     time.Now().Format(time.RFC3339),
		})
	})

	r.POST("/voice", voice.HandleVoice)
	r.POST("/status", voice.HandleStatus)
	r.GET("/ws/audio-stream/:callSid", stream.HandleStream)
}
