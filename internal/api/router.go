// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/config"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/di"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 确保上传目录存在
	ensureDir(cfg.UploadDir)

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	analyzerService, ok := container.Get("analyzer").(*services.AnalyzerService)
	if !ok {
		return nil, fmt.Errorf("解析服务未正确初始化")
	}

	scriptService, ok := container.Get("script").(*services.ScriptService)
	if !ok {
		return nil, fmt.Errorf("台本服务未正确初始化")
	}

	workflowService, ok := container.Get("workflow").(*services.WorkflowService)
	if !ok {
		return nil, fmt.Errorf("工作流服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	syncService, ok := container.Get("sync").(*services.SyncService)
	if !ok {
		return nil, fmt.Errorf("同步服务未正确初始化")
	}

	handler := NewHandler(
		analyzerService,
		scriptService,
		workflowService,
		llmService,
		syncService,
		cfg.UploadDir,
		cfg.StaticDir,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// 启用CORS和会话cookie
	r.Use(corsMiddleware())
	r.Use(sessionMiddleware())

	// 静态文件服务
	r.Static("/static", cfg.StaticDir)

	// ===============================
	// 页面路由
	// ===============================
	r.GET("/", handler.IndexPage)

	// WebSocket 支持
	r.GET("/ws/analysis", handler.AnalysisWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(defaultRateLimit())
	{
		// 映像解析（帧抽取+LLM调用，单独限流）
		api.POST("/analyze", analysisRateLimit(), handler.AnalyzeVideo)
		api.POST("/analyze/chapters", analysisRateLimit(), handler.AnalyzeVideoChapters)

		// ===============================
		// 台本工作流路由
		// ===============================
		scriptsGroup := api.Group("/scripts")
		{
			scriptsGroup.GET("", handler.GetScripts)
			scriptsGroup.POST("/analyze-chapters", handler.AnalyzeChapters)
			scriptsGroup.POST("/generate", handler.GenerateScript)
			scriptsGroup.POST("/analyze", handler.AnalyzeScript)
			scriptsGroup.POST("/feedback", handler.SubmitFeedback)
			scriptsGroup.POST("/apply-improvement", handler.ApplyImprovement)
			scriptsGroup.POST("/sync", handler.SyncScript)
		}

		// 服务状态
		api.GET("/status", handler.GetStatus)
	}

	return r, nil
}
