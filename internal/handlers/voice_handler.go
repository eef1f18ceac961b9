package handlers

import (
	"encoding/xml"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ai_voice_bot/internal/config"
)

// twimlResponse 来电应答的TwiML
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     string        `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// VoiceHandler 电话平台回调
type VoiceHandler struct {
	cfg *config.Config
}

// NewVoiceHandler 创建回调处理器
func NewVoiceHandler(cfg *config.Config) *VoiceHandler {
	return &VoiceHandler{cfg: cfg}
}

// HandleVoice 来电回调，返回把通话接入媒体流的TwiML
func (h *VoiceHandler) HandleVoice(c *gin.Context) {
	callSid := c.PostForm("CallSid")
	if callSid == "" {
		callSid = uuid.NewString()
		log.Printf("来电回调缺少CallSid，使用生成的ID: %s", callSid)
	}

	streamURL := h.cfg.StreamURL(callSid)
	log.Printf("[%s] 来电 %s -> %s，媒体流地址: %s", callSid, c.PostForm("From"), c.PostForm("To"), streamURL)

	c.XML(http.StatusOK, twimlResponse{
		Say:     h.cfg.Twilio.HoldMessage,
		Connect: &twimlConnect{Stream: twimlStream{URL: streamURL}},
	})
}

// HandleStatus 通话状态回调
func (h *VoiceHandler) HandleStatus(c *gin.Context) {
	log.Printf("[%s] 通话状态: %s", c.PostForm("CallSid"), c.PostForm("CallStatus"))
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
