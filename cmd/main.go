package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai_voice_bot/internal/clients/cartesia"
	"ai_voice_bot/internal/clients/gemini"
	"ai_voice_bot/internal/clients/ollama"
	"ai_voice_bot/internal/config"
	"ai_voice_bot/internal/models"
	"ai_voice_bot/internal/routes"
	"ai_voice_bot/internal/services/conversation"
	"ai_voice_bot/internal/services/metrics"
	"ai_voice_bot/internal/services/recognition"
	"ai_voice_bot/internal/services/session"
	"ai_voice_bot/internal/services/synthesis"
	"ai_voice_bot/internal/services/tools"
	"ai_voice_bot/internal/store"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("AI 语音机器人启动中...")

	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registryTools := tools.NewDefaultRegistry(cfg.Conversation.ToolTimeout)

	generator, err := newGenerator(ctx, cfg, registryTools.Specs())
	if err != nil {
		log.Fatalf("创建生成引擎失败: %v", err)
	}

	callStore, closeStore := openStore(ctx, cfg)
	defer closeStore()

	reporter := metrics.NewReporter(callStore, cfg.Metrics.QueueSize, cfg.Database.WriteTimeout)
	reporterCtx, stopReporter := context.WithCancel(context.Background())
	go reporter.Run(reporterCtx)

	deps := session.Deps{
		Generator: generator,
		Tools:     registryTools,
		Metrics:   reporter,
		Store:     callStore,
	}
	if cfg.Cartesia.APIKey != "" {
		deps.Recognizer = cartesia.NewRecognizer(cartesia.RecognizerConfig{
			APIKey:     cfg.Cartesia.APIKey,
			URL:        cfg.Cartesia.STTURL,
			Model:      cfg.Cartesia.STTModel,
			Language:   cfg.Cartesia.Language,
			Encoding:   cfg.Recognition.Encoding,
			SampleRate: cfg.Recognition.SampleRate,
		})
		deps.Synthesizer = cartesia.NewSynthesizer(cartesia.SynthesizerConfig{
			APIKey:     cfg.Cartesia.APIKey,
			BaseURL:    cfg.Cartesia.BaseURL,
			Model:      cfg.Cartesia.TTSModel,
			VoiceID:    cfg.Cartesia.VoiceID,
			Language:   cfg.Cartesia.Language,
			Encoding:   cfg.Synthesis.Encoding,
			SampleRate: cfg.Synthesis.SampleRate,
		})
	} else {
		log.Printf("未配置CARTESIA_API_KEY，语音识别和语音合成不可用")
	}

	registry := session.NewRegistry(session.NewFactory(deps, sessionOptions(cfg)))

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: routes.SetupRouter(cfg, registry),
	}

	go func() {
		log.Printf("HTTP 服务监听 %s，媒体流地址: %s", cfg.Addr(), cfg.StreamURL(""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务启动失败: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭HTTP服务失败: %v", err)
	}

	registry.CloseAll()
	stopReporter()
	select {
	case <-reporter.Done():
	case <-shutdownCtx.Done():
		log.Printf("等待指标写入超时")
	}
	log.Println("服务已退出")
}

// newGenerator 按配置选择生成引擎
func newGenerator(ctx context.Context, cfg *config.Config, specs []models.ToolSpec) (models.Generator, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		log.Printf("使用Ollama生成引擎: %s %s", cfg.Ollama.Host, cfg.Ollama.Model)
		return ollama.NewClient(ollama.Config{
			Host:         cfg.Ollama.Host,
			Model:        cfg.Ollama.Model,
			SystemPrompt: config.SystemPrompt,
			Options: ollama.Options{
				Temperature: cfg.LLM.Temperature,
				TopP:        cfg.LLM.TopP,
				TopK:        int(cfg.LLM.TopK),
				NumPredict:  cfg.Ollama.MaxTokens,
			},
		}, specs), nil
	default:
		log.Printf("使用Gemini生成引擎: %s", cfg.LLM.Model)
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:          cfg.LLM.APIKey,
			Model:           cfg.LLM.Model,
			SystemPrompt:    config.SystemPrompt,
			Temperature:     cfg.LLM.Temperature,
			TopP:            cfg.LLM.TopP,
			TopK:            cfg.LLM.TopK,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		}, specs)
	}
}

// openStore 连接数据库，未配置或连接失败时不落库
func openStore(ctx context.Context, cfg *config.Config) (models.CallStore, func()) {
	if cfg.Database.URL == "" {
		log.Printf("未配置DATABASE_URL，通话记录不落库")
		return store.Nop{}, func() {}
	}

	pg, err := store.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Printf("连接数据库失败，通话记录不落库: %v", err)
		return store.Nop{}, func() {}
	}
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			log.Printf("数据库迁移失败: %v", err)
		}
	}
	return pg, pg.Close
}

func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		Greeting: cfg.Conversation.Greeting,
		Conversation: conversation.Options{
			MaxTurns:      cfg.Conversation.MaxTurns,
			MaxToolRounds: cfg.Conversation.MaxToolRounds,
		},
		Recognition: recognition.Options{
			QueueSize:         cfg.Recognition.QueueSize,
			PollInterval:      cfg.Recognition.PollInterval,
			JoinTimeout:       cfg.Recognition.JoinTimeout,
			RestartBackoff:    cfg.Recognition.RestartBackoff,
			MaxStreamDuration: cfg.Recognition.MaxStreamDuration,
		},
		Synthesis: synthesis.Options{
			ChunkSize: cfg.Synthesis.ChunkSize,
			Timeout:   cfg.Synthesis.Timeout,
		},
		PollInterval: cfg.Recognition.PollInterval,
		JoinTimeout:  cfg.Recognition.JoinTimeout,
		StoreTimeout: cfg.Database.WriteTimeout,
	}
}
