// internal/api/websocket.go
package api

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/services"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// WebSocketHandler 通过WebSocket推送映像解析结果
type WebSocketHandler struct {
	Analyzer  *services.AnalyzerService
	UploadDir string
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(analyzer *services.AnalyzerService, uploadDir string) *WebSocketHandler {
	return &WebSocketHandler{
		Analyzer:  analyzer,
		UploadDir: uploadDir,
	}
}

// analysisRequest WebSocket解析请求。filename指向已上传的映像文件
type analysisRequest struct {
	Filename  string `json:"filename"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Chapters  bool   `json:"chapters"`
}

// AnalysisWebSocket 处理映像解析的WebSocket连接。
// 客户端发送一条解析请求，服务端以chunk/done/error消息流式返回。
func (h *WebSocketHandler) AnalysisWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warnf("WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	var req analysisRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeError(conn, "解析リクエストの形式が不正です")
		return
	}

	if req.Filename == "" {
		h.writeError(conn, "動画ファイル名が指定されていません")
		return
	}
	// 防止路径穿越，只接受上传目录内的文件名
	videoPath := filepath.Join(h.UploadDir, filepath.Base(req.Filename))

	prompt := req.Prompt
	if prompt == "" {
		if req.Chapters {
			prompt = services.DefaultChaptersPrompt
		} else {
			prompt = services.DefaultPrompt
		}
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 客户端提前断开时取消解析
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}()

	chunks, err := h.Analyzer.AnalyzeVideo(ctx, videoPath, prompt, req.MaxTokens)
	if err != nil {
		h.writeError(conn, err.Error())
		return
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			h.writeError(conn, chunk.Err.Error())
			return
		}
		if chunk.Done {
			break
		}

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(gin.H{"type": "chunk", "text": chunk.Text}); err != nil {
			cancel()
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	conn.WriteJSON(gin.H{"type": "done", "timestamp": time.Now().Format(time.RFC3339)})
}

// writeError 发送错误消息到客户端
func (h *WebSocketHandler) writeError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	conn.WriteJSON(gin.H{
		"type":      "error",
		"error":     message,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
