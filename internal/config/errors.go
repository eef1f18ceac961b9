package config

import "errors"

// 配置相关错误
var (
	ErrInvalidPort       = errors.New("服务器端口必须大于0")
	ErrUnknownProvider   = errors.New("不支持的文本生成服务")
	ErrInvalidChunkSize  = errors.New("音频分片大小必须大于0")
	ErrInvalidMaxTurns   = errors.New("上下文轮数必须大于0")
	ErrInvalidToolRounds = errors.New("工具调度轮数必须大于0")
)
