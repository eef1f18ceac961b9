package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ai_voice_bot/internal/config"
	"ai_voice_bot/internal/models"
	"ai_voice_bot/internal/services/session"
)

// StreamHandler 媒体流网关：终结WebSocket，解析帧并分发给会话
type StreamHandler struct {
	registry     *session.Registry
	upgrader     websocket.Upgrader
	readLimit    int64
	writeTimeout time.Duration
	debug        bool
}

// NewStreamHandler 创建媒体流网关
func NewStreamHandler(registry *session.Registry, cfg config.WebSocketConfig, debug bool) *StreamHandler {
	return &StreamHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		readLimit:    cfg.ReadLimit,
		writeTimeout: cfg.WriteTimeout,
		debug:        debug,
	}
}

// HandleStream 处理 /ws/audio-stream/:callSid
func (h *StreamHandler) HandleStream(c *gin.Context) {
	callSid := c.Param("callSid")
	if callSid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少callSid"})
		return
	}

	// 同一通话只接受一条媒体流
	if _, ok := h.registry.Get(callSid); ok {
		log.Printf("[%s] 通话已有媒体流连接，拒绝新的连接", callSid)
		c.JSON(http.StatusConflict, gin.H{"error": "通话已有媒体流连接"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[%s] 升级 WebSocket 连接失败: %v", callSid, err)
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	transport := newWSTransport(conn, h.writeTimeout)
	sess, err := h.registry.Create(callSid, transport)
	if err != nil {
		log.Printf("[%s] 创建会话失败，关闭新连接: %v", callSid, err)
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		conn.Close()
		return
	}
	log.Printf("[%s] 媒体流连接建立: %s", callSid, c.Request.RemoteAddr)

	h.serve(sess, conn)
}

// serve 读循环，任何退出路径都只清理一次会话
func (h *StreamHandler) serve(sess *session.Session, conn *websocket.Conn) {
	defer sess.Cleanup()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[%s] 读取媒体流失败: %v", sess.CallID(), err)
			}
			return
		}

		stop, err := h.dispatch(sess, data)
		if err != nil {
			log.Printf("[%s] 处理媒体流帧失败，结束会话: %v", sess.CallID(), err)
			return
		}
		if stop {
			return
		}
	}
}

// dispatch 按事件类型分发一帧，返回是否应结束读循环
func (h *StreamHandler) dispatch(sess *session.Session, data []byte) (stop bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("处理帧时发生panic: %v", p)
		}
	}()

	var frame models.StreamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return false, fmt.Errorf("解析帧失败: %v", err)
	}

	switch frame.Event {
	case models.EventConnected:
		sess.OnConnected()

	case models.EventStart:
		start := frame.Start
		if start == nil {
			start = &models.StartPayload{}
		}
		if start.StreamSid == "" {
			start.StreamSid = frame.StreamSid
		}
		sess.OnStart(start)

	case models.EventMedia:
		if frame.Media == nil || frame.Media.Payload == "" {
			return false, nil
		}
		audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
		if err != nil {
			return false, fmt.Errorf("解码音频失败: %v", err)
		}
		if h.debug {
			log.Printf("[%s] 收到音频 %d 字节", sess.CallID(), len(audio))
		}
		sess.OnAudio(audio)

	case models.EventStop:
		sess.OnStop()
		return true, nil

	default:
		log.Printf("[%s] 忽略未知事件: %s", sess.CallID(), frame.Event)
	}

	return false, nil
}
