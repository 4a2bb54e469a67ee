// internal/services/llm_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/config"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/llm"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"

	// 注册可用的LLM提供者
	_ "github.com/tetuya-iyell/claude3-video-analyzer/internal/llm/providers/anthropic"
	_ "github.com/tetuya-iyell/claude3-video-analyzer/internal/llm/providers/bedrock"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// LLMService 提供统一的大语言模型调用接口
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	defaultModel  string
	isReady       bool
	readyState    string
}

// NewLLMService 根据配置创建LLM服务
func NewLLMService(cfg *config.Config) *LLMService {
	s := &LLMService{
		providerName: cfg.Mode,
		defaultModel: cfg.ModelID,
		readyState:   "未初始化",
	}

	providerConfig := map[string]string{
		"default_model": cfg.ModelID,
	}
	switch cfg.Mode {
	case config.ModeAnthropic:
		providerConfig["api_key"] = cfg.AnthropicAPIKey
	case config.ModeBedrock:
		providerConfig["region"] = cfg.AWSRegion
	}

	provider, err := llm.GetProvider(cfg.Mode, providerConfig)
	if err != nil {
		s.readyState = fmt.Sprintf("提供者初始化失败: %v", err)
		utils.GetLogger().Errorf("LLM提供者初始化失败: %v", err)
		return s
	}

	s.provider = provider
	s.isReady = true
	s.readyState = "就绪"
	utils.GetLogger().Infof("LLM服务初始化完成: provider=%s model=%s", cfg.Mode, cfg.ModelID)

	return s
}

// IsReady 服务是否可用
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady
}

// ReadyState 返回可读的就绪状态描述
func (s *LLMService) ReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

// ProviderName 当前提供者名称
func (s *LLMService) ProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// DefaultModel 当前默认模型
func (s *LLMService) DefaultModel() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.defaultModel
}

// CompleteText 同步文本生成
func (s *LLMService) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.providerMutex.RLock()
	provider := s.provider
	ready := s.isReady
	s.providerMutex.RUnlock()

	if !ready {
		return nil, ErrLLMNotReady
	}

	return provider.CompleteText(ctx, req)
}

// StreamCompletion 流式文本生成
func (s *LLMService) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	s.providerMutex.RLock()
	provider := s.provider
	ready := s.isReady
	s.providerMutex.RUnlock()

	if !ready {
		return nil, ErrLLMNotReady
	}

	return provider.StreamCompletion(ctx, req)
}
