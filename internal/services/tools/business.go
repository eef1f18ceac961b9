package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai_voice_bot/internal/models"
)

// 工具名称
const (
	ToolCheckOrderStatus = "check_order_status"
	ToolBookAppointment  = "book_appointment"
	ToolGetFAQAnswer     = "get_faq_answer"
)

// faqEntry 常见问题关键字与回答
type faqEntry struct {
	keyword string
	answer  string
}

// BusinessHandlers 业务处理实现（示例数据，接入真实系统时替换）
type BusinessHandlers struct {
	faqs     []faqEntry
	fallback string
}

// NewBusinessHandlers 创建业务处理实例
func NewBusinessHandlers() *BusinessHandlers {
	return &BusinessHandlers{
		faqs: []faqEntry{
			{keyword: "hours", answer: "We're open 9 AM to 5 PM Monday to Friday."},
			{keyword: "returns", answer: "Returns are accepted within 30 days with receipt."},
			{keyword: "shipping", answer: "Free shipping on orders over fifty dollars."},
		},
		fallback: "I can help with that. Let me transfer you to a teammate.",
	}
}

// CheckOrderStatus 查询订单状态
func (h *BusinessHandlers) CheckOrderStatus(ctx context.Context, orderNumber string) (map[string]any, error) {
	if orderNumber == "" {
		return nil, fmt.Errorf("订单号为空")
	}
	return map[string]any{
		"order_number": orderNumber,
		"status":       "shipped",
		"tracking":     "1Z999AA10123456784",
		"message":      fmt.Sprintf("Order %s has shipped and is on the way.", orderNumber),
	}, nil
}

// BookAppointment 预约
func (h *BusinessHandlers) BookAppointment(ctx context.Context, date, clock string) (map[string]any, error) {
	return map[string]any{
		"confirmed": true,
		"date":      date,
		"time":      clock,
		"message":   fmt.Sprintf("Appointment booked for %s at %s.", date, clock),
	}, nil
}

// GetFAQAnswer 常见问题解答
func (h *BusinessHandlers) GetFAQAnswer(ctx context.Context, question string) (string, error) {
	q := strings.ToLower(question)
	for _, faq := range h.faqs {
		if strings.Contains(q, faq.keyword) {
			return faq.answer, nil
		}
	}
	return h.fallback, nil
}

// Definitions 业务工具定义
func (h *BusinessHandlers) Definitions() []Definition {
	return []Definition{
		{
			Spec: models.ToolSpec{
				Name:        ToolCheckOrderStatus,
				Description: "Check the status of a customer order",
				Parameters: []models.ToolParameter{
					{Name: "order_number", Type: "string", Description: "The order number the customer provided", Required: true},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return h.CheckOrderStatus(ctx, StringArg(args, "order_number"))
			},
		},
		{
			Spec: models.ToolSpec{
				Name:        ToolBookAppointment,
				Description: "Book an appointment for a customer",
				Parameters: []models.ToolParameter{
					{Name: "date", Type: "string", Description: "Requested appointment date", Required: true},
					{Name: "time", Type: "string", Description: "Requested appointment time", Required: true},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return h.BookAppointment(ctx, StringArg(args, "date"), StringArg(args, "time"))
			},
		},
		{
			Spec: models.ToolSpec{
				Name:        ToolGetFAQAnswer,
				Description: "Answer a frequently asked question about hours, returns or shipping",
				Parameters: []models.ToolParameter{
					{Name: "question", Type: "string", Description: "The customer's question", Required: true},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				answer, err := h.GetFAQAnswer(ctx, StringArg(args, "question"))
				if err != nil {
					return nil, err
				}
				return map[string]any{"answer": answer}, nil
			},
		},
	}
}

// NewDefaultRegistry 创建注册了全部业务工具的注册表
func NewDefaultRegistry(timeout time.Duration) *Registry {
	r := NewRegistry(timeout)
	for _, def := range NewBusinessHandlers().Definitions() {
		// 名称固定且唯一，注册不会失败
		_ = r.Register(def)
	}
	return r
}
