package models

import "time"

// LatencyRecord 单轮对话的耗时统计（毫秒）
type LatencyRecord struct {
	CallID            string
	STTMs             *int64 // 语音识别耗时，未测量时为nil
	LLMMs             *int64 // 首次生成 + 工具轮次生成
	TTSMs             *int64 // 语音合成耗时
	TotalMs           *int64 // 整轮耗时
	FirstGenerationMs int64
	ToolRoundsMs      int64
	ToolRounds        int
	CreatedAt         time.Time
}

// Millis 把时长转换为毫秒指针
func Millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}
