// internal/services/analyzer_service.go
package services

import (
	"context"
	"fmt"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/llm"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/video"
)

// 默认解析提示词
const (
	DefaultPrompt = "これは動画のフレーム画像です。動画の最初から最後の流れ、動作を微分して日本語で解説してください。"

	DefaultChaptersPrompt = "これは動画のフレーム画像です。動画の内容を分析し、内容のまとまりごとに章立てして日本語で解説してください。" +
		"各章は「## 章タイトル」で始まるMarkdown形式とし、見出しの下にその章の概要を記述してください。"
)

// AnalysisChunk 解析结果的增量片段。
// Done或Err出现后通道即告耗尽。
type AnalysisChunk struct {
	Text string
	Done bool
	Err  error
}

// AnalyzerService 负责视频解析：抽帧后将帧与提示词送入多模态模型，
// 以增量文本流返回解析结果
type AnalyzerService struct {
	LLMService *LLMService
	Extractor  *video.FrameExtractor
	MaxImages  int
}

// NewAnalyzerService 创建解析服务
func NewAnalyzerService(llmService *LLMService, extractor *video.FrameExtractor, maxImages int) *AnalyzerService {
	if maxImages <= 0 {
		maxImages = 20
	}
	return &AnalyzerService{
		LLMService: llmService,
		Extractor:  extractor,
		MaxImages:  maxImages,
	}
}

// AnalyzeVideo 解析视频并返回文本流。
// prompt为空时使用默认提示词；maxTokens控制输出上限。
func (s *AnalyzerService) AnalyzeVideo(ctx context.Context, videoPath, prompt string, maxTokens int) (<-chan AnalysisChunk, error) {
	logger := utils.GetLogger()

	if prompt == "" {
		prompt = DefaultPrompt
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	// 抽帧
	frames, err := s.Extractor.ExtractFrames(ctx, videoPath, s.MaxImages)
	if err != nil {
		return nil, fmt.Errorf("フレーム抽出に失敗しました: %w", err)
	}
	logger.Infof("视频帧抽取完成: %d帧", len(frames))

	stream, err := s.LLMService.StreamCompletion(ctx, llm.CompletionRequest{
		Prompt:    prompt,
		Images:    frames,
		MaxTokens: maxTokens,
		Stream:    true,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan AnalysisChunk)

	go func() {
		defer close(out)

		// 消费方随时可能放弃读取，所有发送都以ctx兜底，避免goroutine滞留
		send := func(chunk AnalysisChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for resp := range stream {
			if resp.Err != nil {
				send(AnalysisChunk{Err: resp.Err})
				return
			}
			if resp.Text != "" && !resp.Done {
				if !send(AnalysisChunk{Text: resp.Text}) {
					return
				}
			}
			if resp.Done {
				send(AnalysisChunk{Done: true})
				return
			}
		}

		// 流被提前关闭也视为完成
		send(AnalysisChunk{Done: true})
	}()

	return out, nil
}
