// internal/llm/providers/bedrock/bedrock.go
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/awsauth"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/llm"
)

const anthropicVersion = "bedrock-2023-05-31"

func init() {
	llm.Register("bedrock", func() llm.Provider {
		return &Provider{}
	})
}

// Provider 通过AWS Bedrock调用Anthropic托管模型
type Provider struct {
	region       string
	defaultModel string
	credentials  *awsauth.CredentialManager
}

func (p *Provider) Initialize(config map[string]string) error {
	p.region = config["region"]
	if p.region == "" {
		p.region = "us-east-1"
	}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	}

	// 凭证管理器负责初始凭证加载与失效后的刷新
	mgr, err := awsauth.NewCredentialManager(context.Background(), p.region)
	if err != nil {
		return fmt.Errorf("bedrock凭证初始化失败: %w", err)
	}
	p.credentials = mgr

	return nil
}

func (p *Provider) GetName() string {
	return "AWS Bedrock Claude"
}

func (p *Provider) client() *bedrockruntime.Client {
	return bedrockruntime.NewFromConfig(p.credentials.Config())
}

// anthropicMessage Bedrock上Anthropic模型的消息体
type anthropicMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

type anthropicImageBlock struct {
	Type   string `json:"type"`
	Source struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func buildBody(req llm.CompletionRequest) ([]byte, error) {
	content := make([]interface{}, 0, len(req.Images)+1)
	for _, frame := range req.Images {
		block := anthropicImageBlock{Type: "image"}
		block.Source.Type = "base64"
		block.Source.MediaType = "image/jpeg"
		block.Source.Data = frame
		content = append(content, block)
	}
	content = append(content, anthropicTextBlock{Type: "text", Text: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body := map[string]interface{}{
		"anthropic_version": anthropicVersion,
		"max_tokens":        maxTokens,
		"messages": []anthropicMessage{
			{Role: "user", Content: content},
		},
	}

	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}

	return json.Marshal(body)
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body, err := buildBody(req)
	if err != nil {
		return nil, err
	}

	var output *bedrockruntime.InvokeModelOutput
	// 凭证过期时刷新并重试一次
	err = p.credentials.CallWithRefresh(ctx, func(ctx context.Context) error {
		var callErr error
		output, callErr = p.client().InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(model),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock api错误: %w", err)
	}

	var response struct {
		StopReason string `json:"stop_reason"`
		Content    []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, err
	}

	var textContent string
	for _, content := range response.Content {
		if content.Type == "text" {
			textContent = content.Text
			break
		}
	}

	if textContent == "" {
		return nil, errors.New("Bedrock未返回文本内容")
	}

	return &llm.CompletionResponse{
		Text:         textContent,
		FinishReason: response.StopReason,
		TokensUsed:   response.Usage.InputTokens + response.Usage.OutputTokens,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

// StreamCompletion 通过InvokeModelWithResponseStream实现流式响应
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body, err := buildBody(req)
	if err != nil {
		return nil, err
	}

	var output *bedrockruntime.InvokeModelWithResponseStreamOutput
	err = p.credentials.CallWithRefresh(ctx, func(ctx context.Context) error {
		var callErr error
		output, callErr = p.client().InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(model),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock api错误: %w", err)
	}

	respChan := make(chan llm.StreamResponse)

	go func() {
		stream := output.GetStream()
		defer stream.Close()
		defer close(respChan)

		// 接收方放弃消费时以ctx解除阻塞，防止goroutine与事件流滞留
		send := func(resp llm.StreamResponse) bool {
			select {
			case respChan <- resp:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for event := range stream.Events() {
			select {
			case <-ctx.Done():
				send(llm.StreamResponse{Err: ctx.Err()})
				return
			default:
			}

			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}

			var streamResp struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}

			if err := json.Unmarshal(chunk.Value.Bytes, &streamResp); err != nil {
				continue
			}

			if streamResp.Type == "content_block_delta" && streamResp.Delta.Type == "text_delta" {
				if streamResp.Delta.Text != "" {
					if !send(llm.StreamResponse{Text: streamResp.Delta.Text}) {
						return
					}
				}
			}

			if streamResp.Type == "message_stop" {
				send(llm.StreamResponse{FinishReason: "stop", Done: true})
				return
			}
		}

		if err := stream.Err(); err != nil {
			send(llm.StreamResponse{Err: err})
			return
		}

		send(llm.StreamResponse{FinishReason: "stop", Done: true})
	}()

	return respChan, nil
}
