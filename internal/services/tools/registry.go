// Package tools 提供生成引擎可调用的工具集合及调度
package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ai_voice_bot/internal/models"
)

// Handler 工具处理函数
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition 工具定义：名称、参数声明与处理函数
type Definition struct {
	Spec    models.ToolSpec
	Handler Handler
}

// Registry 工具注册表，名称到处理函数的封闭映射
type Registry struct {
	defs    map[string]Definition
	order   []string
	timeout time.Duration
}

// NewRegistry 创建工具注册表，timeout<=0 表示不限制单次调用时长
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		defs:    make(map[string]Definition),
		timeout: timeout,
	}
}

// Register 注册工具
func (r *Registry) Register(def Definition) error {
	name := def.Spec.Name
	if name == "" {
		return errors.New("工具名称不能为空")
	}
	if def.Handler == nil {
		return fmt.Errorf("工具 %s 缺少处理函数", name)
	}
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("工具已注册: %s", name)
	}
	r.defs[name] = def
	r.order = append(r.order, name)
	return nil
}

// Specs 按注册顺序返回工具声明
func (r *Registry) Specs() []models.ToolSpec {
	specs := make([]models.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.defs[name].Spec)
	}
	return specs
}

// Lookup 查找工具
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Execute 执行一次工具调用，任何失败都转换为错误结果
func (r *Registry) Execute(ctx context.Context, inv models.ToolInvocation) models.ToolResult {
	def, ok := r.defs[inv.Name]
	if !ok {
		log.Printf("未知工具: %s", inv.Name)
		return models.ToolError(fmt.Sprintf("%v %s", models.ErrUnknownTool, inv.Name))
	}

	args := inv.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := checkRequired(def.Spec, args); err != nil {
		log.Printf("工具 %s 参数错误: %v", inv.Name, err)
		return models.ToolError(err.Error())
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		payload, err := def.Handler(ctx, args)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil {
			log.Printf("工具 %s 执行超时: %v", inv.Name, ctx.Err())
			return models.ToolError(fmt.Sprintf("tool %s timed out: %v", inv.Name, ctx.Err()))
		}
		if out.err != nil {
			log.Printf("工具 %s 执行失败: %v", inv.Name, out.err)
			return models.ToolError(fmt.Sprintf("tool execution failed: %v", out.err))
		}
		return models.ToolSuccess(out.payload)
	case <-ctx.Done():
		log.Printf("工具 %s 执行超时: %v", inv.Name, ctx.Err())
		return models.ToolError(fmt.Sprintf("tool %s timed out: %v", inv.Name, ctx.Err()))
	}
}

// checkRequired 检查必填参数
func checkRequired(spec models.ToolSpec, args map[string]any) error {
	for _, p := range spec.Parameters {
		if !p.Required {
			continue
		}
		if v, ok := args[p.Name]; !ok || v == nil {
			return fmt.Errorf("missing argument %s", p.Name)
		}
	}
	return nil
}

// StringArg 读取字符串参数，数字参数会被格式化为字符串
func StringArg(args map[string]any, name string) string {
	switch v := args[name].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
