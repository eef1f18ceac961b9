package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"ai_voice_bot/internal/config"
	"ai_voice_bot/internal/services/session"
)

func TestSetupRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Debug: true}
	registry := session.NewRegistry(session.NewFactory(session.Deps{}, session.Options{}))
	r := SetupRouter(cfg, registry)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "根路由", method: http.MethodGet, path: "/", want: http.StatusOK},
		{name: "健康检查", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "状态回调", method: http.MethodPost, path: "/status", want: http.StatusOK},
		{name: "未知路由", method: http.MethodGet, path: "/missing", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}
