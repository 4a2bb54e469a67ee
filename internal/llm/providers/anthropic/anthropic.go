// internal/llm/providers/anthropic/anthropic.go
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/llm"
)

func init() {
	llm.Register("anthropic", func() llm.Provider {
		return &Provider{
			baseURL:    "https://api.anthropic.com",
			apiVersion: "2023-06-01",
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	apiVersion   string
	client       *http.Client
	defaultModel string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("anthropic api密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 180 * time.Second}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "claude-3-5-sonnet-20240620"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	if apiVersion, exists := config["api_version"]; exists && apiVersion != "" {
		p.apiVersion = apiVersion
	}

	return nil
}

func (p *Provider) GetName() string {
	return "Anthropic Claude"
}

// buildUserContent 构建用户消息内容：图像块在前，文本提示在后
func buildUserContent(req llm.CompletionRequest) []map[string]interface{} {
	content := make([]map[string]interface{}, 0, len(req.Images)+1)
	for _, frame := range req.Images {
		content = append(content, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": "image/jpeg",
				"data":       frame,
			},
		})
	}
	content = append(content, map[string]interface{}{
		"type": "text",
		"text": req.Prompt,
	})
	return content
}

func (p *Provider) buildRequestBody(req llm.CompletionRequest, stream bool) map[string]interface{} {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	requestBody := map[string]interface{}{
		"model": model,
		"messages": []map[string]interface{}{
			{"role": "user", "content": buildUserContent(req)},
		},
		"max_tokens": maxTokens,
	}

	if req.Temperature > 0 {
		requestBody["temperature"] = req.Temperature
	}

	if stream {
		requestBody["stream"] = true
	}

	return requestBody
}

func (p *Provider) newHTTPRequest(ctx context.Context, body map[string]interface{}) (*http.Request, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		p.baseURL+"/v1/messages",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)
	httpReq.Header.Set("Anthropic-Version", p.apiVersion)

	return httpReq, nil
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	requestBody := p.buildRequestBody(req, false)

	httpReq, err := p.newHTTPRequest(ctx, requestBody)
	if err != nil {
		return nil, err
	}

	// 发送请求
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	// 检查错误
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("anthropic api错误(%d): %s", httpResp.StatusCode, string(body))
	}

	// 解析响应
	var response struct {
		ID         string `json:"id"`
		Model      string `json:"model"`
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

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	// 提取文本内容
	var textContent string
	for _, content := range response.Content {
		if content.Type == "text" {
			textContent = content.Text
			break
		}
	}

	if textContent == "" {
		return nil, errors.New("Anthropic未返回文本内容")
	}

	return &llm.CompletionResponse{
		Text:         textContent,
		FinishReason: response.StopReason,
		TokensUsed:   response.Usage.InputTokens + response.Usage.OutputTokens,
		ModelName:    response.Model,
		ProviderName: p.GetName(),
	}, nil
}

// StreamCompletion 实现流式响应
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	requestBody := p.buildRequestBody(req, true)

	httpReq, err := p.newHTTPRequest(ctx, requestBody)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// 发送请求
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	// 检查错误
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		return nil, fmt.Errorf("anthropic api错误(%d): %s", httpResp.StatusCode, string(body))
	}

	// 创建响应通道
	respChan := make(chan llm.StreamResponse)

	// 启动goroutine处理流式响应
	go func() {
		defer httpResp.Body.Close()
		defer close(respChan)

		// 接收方放弃消费时以ctx解除阻塞，防止goroutine与响应体滞留
		send := func(resp llm.StreamResponse) bool {
			select {
			case respChan <- resp:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := bufio.NewReader(httpResp.Body)

		for {
			select {
			case <-ctx.Done():
				send(llm.StreamResponse{Err: ctx.Err()})
				return
			default:
				line, err := reader.ReadString('\n')
				if err != nil {
					if err == io.EOF {
						send(llm.StreamResponse{FinishReason: "stop", Done: true})
					} else {
						send(llm.StreamResponse{Err: err})
					}
					return
				}

				line = strings.TrimSpace(line)

				// 空行或注释
				if line == "" || !strings.HasPrefix(line, "data: ") {
					continue
				}

				// 移除 "data: " 前缀
				line = line[6:]

				// 检查流结束
				if line == "[DONE]" {
					send(llm.StreamResponse{FinishReason: "stop", Done: true})
					return
				}

				// 解析JSON数据
				var streamResp struct {
					Type  string `json:"type"`
					Delta struct {
						Type       string `json:"type"`
						Text       string `json:"text"`
						StopReason string `json:"stop_reason"`
					} `json:"delta"`
				}

				if err := json.Unmarshal([]byte(line), &streamResp); err != nil {
					continue
				}

				// 处理内容块
				if streamResp.Type == "content_block_delta" && streamResp.Delta.Type == "text_delta" {
					if streamResp.Delta.Text != "" {
						if !send(llm.StreamResponse{Text: streamResp.Delta.Text}) {
							return
						}
					}
				}

				// 检查是否已完成
				if streamResp.Type == "message_stop" {
					send(llm.StreamResponse{FinishReason: "stop", Done: true})
					return
				}
			}
		}
	}()

	return respChan, nil
}
