package models

// Role 发言角色
type Role string

const (
	RoleCaller    Role = "caller"    // 来电者
	RoleAssistant Role = "assistant" // 语音助手
)

// Message 对话消息
type Message struct {
	Role Role   `json:"role"` // 消息角色：caller/assistant
	Text string `json:"text"` // 消息内容
}
