// internal/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/llm"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/models"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/services"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	AnalyzerService  *services.AnalyzerService // 映像解析服务
	ScriptService    *services.ScriptService   // 台本生成服务
	WorkflowService  *services.WorkflowService // 台本工作流控制器
	LLMService       *services.LLMService      // LLM访问服务
	SyncService      *services.SyncService     // 远程同步服务
	WebSocketHandler *WebSocketHandler         // WebSocket 处理器
	Response         *ResponseHelper           // 响应助手
	UploadDir        string
	StaticDir        string
}

// NewHandler 创建API处理器
func NewHandler(
	analyzerService *services.AnalyzerService,
	scriptService *services.ScriptService,
	workflowService *services.WorkflowService,
	llmService *services.LLMService,
	syncService *services.SyncService,
	uploadDir string,
	staticDir string,
) *Handler {
	return &Handler{
		AnalyzerService:  analyzerService,
		ScriptService:    scriptService,
		WorkflowService:  workflowService,
		LLMService:       llmService,
		SyncService:      syncService,
		WebSocketHandler: NewWebSocketHandler(analyzerService, uploadDir),
		Response:         NewResponseHelper(),
		UploadDir:        uploadDir,
		StaticDir:        staticDir,
	}
}

// AnalyzeChaptersRequest 章结构抽取的请求结构
type AnalyzeChaptersRequest struct {
	AnalysisText string `json:"analysis_text"`
}

// GenerateScriptRequest 台本生成的请求结构
type GenerateScriptRequest struct {
	ChapterIndex    *int             `json:"chapter_index"`
	Chapters        []models.Chapter `json:"chapters"`
	DurationMinutes int              `json:"duration_minutes"`
}

// AnalyzeScriptRequest 台本品质分析的请求结构
type AnalyzeScriptRequest struct {
	ChapterIndex    *int   `json:"chapter_index"`
	ScriptContent   string `json:"script_content"`
	DurationMinutes int    `json:"duration_minutes"`
}

// FeedbackRequest 审核反馈的请求结构
type FeedbackRequest struct {
	ChapterIndex    *int   `json:"chapter_index"`
	Feedback        string `json:"feedback"`
	IsApproved      bool   `json:"is_approved"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ApplyImprovementRequest 应用改善稿的请求结构
type ApplyImprovementRequest struct {
	ChapterIndex    *int `json:"chapter_index"`
	DurationMinutes int  `json:"duration_minutes"`
}

// SyncScriptRequest 远程同步的请求结构
type SyncScriptRequest struct {
	ChapterIndex *int `json:"chapter_index"`
}

// sessionID 取得会话ID（由sessionMiddleware注入）
func (h *Handler) sessionID(c *gin.Context) string {
	return c.GetString("session_id")
}

// ------------------------------------------------
// 页面路由
// ------------------------------------------------

// IndexPage 首页
func (h *Handler) IndexPage(c *gin.Context) {
	c.File(filepath.Join(h.StaticDir, "index.html"))
}

// ------------------------------------------------
// 映像解析
// ------------------------------------------------

// AnalysisWebSocket 处理映像解析的WebSocket连接
func (h *Handler) AnalysisWebSocket(c *gin.Context) {
	h.WebSocketHandler.AnalysisWebSocket(c)
}

// AnalyzeVideo 接收上传的映像并以SSE流式返回解析结果
func (h *Handler) AnalyzeVideo(c *gin.Context) {
	h.streamAnalysis(c, services.DefaultPrompt)
}

// AnalyzeVideoChapters 章节化解析：要求模型以「## 」标题输出章结构
func (h *Handler) AnalyzeVideoChapters(c *gin.Context) {
	h.streamAnalysis(c, services.DefaultChaptersPrompt)
}

func (h *Handler) streamAnalysis(c *gin.Context, defaultPrompt string) {
	if !h.LLMService.IsReady() {
		h.Response.ServiceUnavailable(c, "LLMサービスが利用できません", h.LLMService.ReadyState())
		return
	}

	file, err := c.FormFile("video")
	if err != nil {
		h.Response.BadRequest(c, "動画ファイルが指定されていません", err.Error())
		return
	}

	// 上传文件名不可信，保存为UUID文件名
	filename := uuid.NewString() + filepath.Ext(file.Filename)
	videoPath := filepath.Join(h.UploadDir, filename)
	if err := c.SaveUploadedFile(file, videoPath); err != nil {
		h.Response.InternalError(c, "動画ファイルの保存に失敗しました", err.Error())
		return
	}

	prompt := c.PostForm("prompt")
	if prompt == "" {
		prompt = defaultPrompt
	}

	maxTokens := 0
	if raw := c.PostForm("max_tokens"); raw != "" {
		fmt.Sscanf(raw, "%d", &maxTokens)
	}

	chunks, err := h.AnalyzerService.AnalyzeVideo(c.Request.Context(), videoPath, prompt, maxTokens)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	// SSE响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"filename\":%q}\n\n", filename)
	c.Writer.Flush()

	for {
		select {
		case <-clientGone:
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if chunk.Err != nil {
				data, _ := json.Marshal(gin.H{"error": chunk.Err.Error()})
				fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n", data)
				c.Writer.Flush()
				return
			}
			if chunk.Done {
				fmt.Fprint(c.Writer, "event: done\ndata: {\"complete\":true}\n\n")
				c.Writer.Flush()
				return
			}

			data, _ := json.Marshal(gin.H{"text": chunk.Text})
			fmt.Fprintf(c.Writer, "event: chunk\ndata: %s\n\n", data)
			c.Writer.Flush()
		}
	}
}

// ------------------------------------------------
// 台本工作流
// ------------------------------------------------

// AnalyzeChapters 从解析文本抽取章结构并重置会话台本
func (h *Handler) AnalyzeChapters(c *gin.Context) {
	var req AnalyzeChaptersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "リクエストの形式が不正です", err.Error())
		return
	}

	if req.AnalysisText == "" {
		h.Response.BadRequest(c, "解析テキストが指定されていません")
		return
	}

	chapters, err := h.ScriptService.ExtractChapters(req.AnalysisText)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.WorkflowService.SetChapters(h.sessionID(c), chapters)

	h.Response.Success(c, gin.H{"chapters": chapters})
}

// GenerateScript 选择章节并按需生成台本
func (h *Handler) GenerateScript(c *gin.Context) {
	var req GenerateScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "リクエストの形式が不正です", err.Error())
		return
	}
	if req.ChapterIndex == nil {
		h.Response.BadRequest(c, "章番号が指定されていません")
		return
	}

	if !h.LLMService.IsReady() {
		h.Response.ServiceUnavailable(c, "LLMサービスが利用できません", h.LLMService.ReadyState())
		return
	}

	record, err := h.WorkflowService.SelectChapter(
		c.Request.Context(), h.sessionID(c), *req.ChapterIndex, req.Chapters, req.DurationMinutes)
	if err != nil {
		utils.GetLogger().Warnf("台本生成失败: %v", err)
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"script": record})
}

// AnalyzeScript 对指定章的台本执行品质分析
func (h *Handler) AnalyzeScript(c *gin.Context) {
	var req AnalyzeScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "リクエストの形式が不正です", err.Error())
		return
	}
	if req.ChapterIndex == nil {
		h.Response.BadRequest(c, "章番号が指定されていません")
		return
	}

	passed, analysis, err := h.WorkflowService.AnalyzeScript(
		c.Request.Context(), h.sessionID(c), *req.ChapterIndex, req.ScriptContent, req.DurationMinutes)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"passed":   passed,
		"analysis": analysis,
	})
}

// SubmitFeedback 提交批准或拒绝反馈
func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "リクエストの形式が不正です", err.Error())
		return
	}
	if req.ChapterIndex == nil {
		h.Response.BadRequest(c, "章番号が指定されていません")
		return
	}

	record, err := h.WorkflowService.SubmitFeedback(
		c.Request.Context(), h.sessionID(c), *req.ChapterIndex, req.Feedback, req.IsApproved, req.DurationMinutes)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"script": record})
}

// ApplyImprovement 将改善稿提升为正式台本
func (h *Handler) ApplyImprovement(c *gin.Context) {
	var req ApplyImprovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "リクエストの形式が不正です", err.Error())
		return
	}
	if req.ChapterIndex == nil {
		h.Response.BadRequest(c, "章番号が指定されていません")
		return
	}

	record, err := h.WorkflowService.ApplyImprovement(
		c.Request.Context(), h.sessionID(c), *req.ChapterIndex, req.DurationMinutes)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"script": record})
}

// SyncScript 显式拉取远程台本记录
func (h *Handler) SyncScript(c *gin.Context) {
	var req SyncScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "リクエストの形式が不正です", err.Error())
		return
	}
	if req.ChapterIndex == nil {
		h.Response.BadRequest(c, "章番号が指定されていません")
		return
	}

	record := h.WorkflowService.SyncChapter(c.Request.Context(), h.sessionID(c), *req.ChapterIndex)
	if record == nil {
		h.Response.Success(c, gin.H{"script": nil, "synced": false})
		return
	}

	h.Response.Success(c, gin.H{"script": record, "synced": true})
}

// GetScripts 返回会话的全部台本记录
func (h *Handler) GetScripts(c *gin.Context) {
	scripts := h.WorkflowService.AllScripts(h.sessionID(c))
	h.Response.Success(c, gin.H{"scripts": scripts})
}

// GetStatus 返回服务状态
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"provider":     h.LLMService.ProviderName(),
		"model":        h.LLMService.DefaultModel(),
		"providers":    llm.ListProviders(),
		"ready":        h.LLMService.IsReady(),
		"ready_state":  h.LLMService.ReadyState(),
		"sync_enabled": h.SyncService.Enabled(),
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

// ensureDir 确保目录存在
func ensureDir(path string) {
	if err := os.MkdirAll(path, 0755); err != nil {
		utils.GetLogger().Warnf("目录创建失败 %s: %v", path, err)
	}
}
