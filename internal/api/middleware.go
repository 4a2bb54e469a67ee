// internal/api/middleware.go
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionCookieName = "session_id"

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// sessionMiddleware 确保每个客户端持有会话ID。
// 没有cookie时发放新的UUID，处理器通过c.GetString("session_id")读取。
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(sessionCookieName)
		if err != nil || sessionID == "" {
			sessionID = uuid.NewString()
			c.SetCookie(sessionCookieName, sessionID, 86400*7, "/", "", false, true)
		}
		c.Set("session_id", sessionID)
		c.Next()
	}
}

// RateLimiter 基于固定窗口的简易限流器
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
}

type visitor struct {
	remaining int
	reset     time.Time
}

// NewRateLimiter 创建限流器并启动过期清理
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{visitors: make(map[string]*visitor)}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, v := range rl.visitors {
			if now.After(v.reset) {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow 判断指定key在当前窗口内是否还允许请求
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, exists := rl.visitors[key]
	if !exists || now.After(v.reset) {
		rl.visitors[key] = &visitor{remaining: limit - 1, reset: now.Add(window)}
		return true
	}

	if v.remaining <= 0 {
		return false
	}
	v.remaining--
	return true
}

var rateLimiter = NewRateLimiter()

// rateLimitMiddleware 按客户端IP限流
func rateLimitMiddleware(limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rateLimiter.Allow(c.ClientIP(), limit, window) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":   false,
				"error":     "リクエストが多すぎます。しばらくしてから再試行してください",
				"code":      "RATE_LIMIT_EXCEEDED",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// analysisRateLimit 映像解析端点的限流（帧抽取和LLM调用开销大）
func analysisRateLimit() gin.HandlerFunc {
	return rateLimitMiddleware(10, time.Hour)
}

// defaultRateLimit 一般API端点的限流
func defaultRateLimit() gin.HandlerFunc {
	return rateLimitMiddleware(100, time.Minute)
}
