// internal/app/app.go
package app

import (
	"context"
	"fmt"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/awsauth"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/config"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/di"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/services"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/storage"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/video"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器。
// 顺序：存储 → LLM → 解析/台本 → 远程同步 → 工作流。
func InitServices() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	container := di.GetContainer()
	logger := utils.GetLogger()

	// 重复调用时从干净的容器重新注册
	container.Clear()

	// 1. 文件存储与会话存储
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("文件存储初始化失败: %w", err)
	}
	container.Register("storage", fileStorage)

	sessionStore := storage.NewSessionStore(fileStorage)
	container.Register("session_store", sessionStore)

	// 2. LLM服务（凭证缺失时降级为not ready，不阻止启动）
	llmService := services.NewLLMService(cfg)
	container.Register("llm", llmService)
	if llmService.IsReady() {
		logger.Infof("LLM服务就绪: provider=%s model=%s", llmService.ProviderName(), llmService.DefaultModel())
	} else {
		logger.Warnf("LLM服务未就绪: %s", llmService.ReadyState())
	}

	// 3. 映像解析服务
	extractor := video.NewFrameExtractor()
	analyzerService := services.NewAnalyzerService(llmService, extractor, cfg.MaxImages)
	container.Register("analyzer", analyzerService)

	// 4. 台本生成服务
	scriptService := services.NewScriptService(llmService)
	container.Register("script", scriptService)

	// 5. 远程同步（未启用或凭证失败时退化为no-op）
	var dynamoClient *storage.DynamoClient
	if cfg.DynamoDBEnabled {
		credentials, credErr := awsauth.NewCredentialManager(context.Background(), cfg.AWSRegion)
		if credErr != nil {
			// 同步是可选能力，初始化失败只降级
			logger.Warnf("AWS凭证初始化失败，远程同步已禁用: %v", credErr)
			dynamoClient = storage.NewDynamoClient(false, "", nil)
		} else {
			dynamoClient = storage.NewDynamoClient(true, cfg.DynamoDBScriptsTable, credentials)
		}
	} else {
		dynamoClient = storage.NewDynamoClient(false, "", nil)
	}
	syncService := services.NewSyncService(dynamoClient)
	container.Register("sync", syncService)
	if syncService.Enabled() {
		logger.Infof("远程同步已启用: table=%s", cfg.DynamoDBScriptsTable)
	}

	// 6. 台本工作流控制器
	workflowService := services.NewWorkflowService(scriptService, syncService, sessionStore)
	container.Register("workflow", workflowService)

	return nil
}
