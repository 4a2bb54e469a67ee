// internal/services/sync_service.go
package services

import (
	"context"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/models"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/storage"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
)

// RemoteSync 远程同步适配器的最小契约。
// Pull返回nil表示「远程无记录/同步未启用/同步失败」，调用方对这三种
// 情况采取同样的控制流：本地记录保持权威。
type RemoteSync interface {
	Pull(ctx context.Context, sessionID string, chapterIndex int) *models.ScriptRecord
	Push(ctx context.Context, sessionID string, chapterIndex int, record *models.ScriptRecord) bool
}

// SyncService 基于DynamoDB实现RemoteSync。
// 所有失败只记录日志，绝不影响用户操作。
type SyncService struct {
	dynamo *storage.DynamoClient
}

// NewSyncService 创建远程同步服务
func NewSyncService(dynamo *storage.DynamoClient) *SyncService {
	return &SyncService{dynamo: dynamo}
}

// Enabled 远程同步是否可用
func (s *SyncService) Enabled() bool {
	return s.dynamo != nil && s.dynamo.Enabled()
}

// Pull 读取远程台本记录。
// 会话标识缺失、同步未启用、远程无记录、调用失败时均返回nil。
func (s *SyncService) Pull(ctx context.Context, sessionID string, chapterIndex int) *models.ScriptRecord {
	if sessionID == "" || !s.Enabled() {
		return nil
	}

	record, err := s.dynamo.GetScript(ctx, sessionID, chapterIndex)
	if err != nil {
		// 同步失败只记录，不上抛
		utils.GetLogger().Warnf("远程台本读取失败（沿用本地状态）: session=%s chapter=%d err=%v",
			sessionID, chapterIndex, err)
		return nil
	}

	return record
}

// Push 写入远程台本记录，返回是否成功。
// 失败只记录日志，不影响调用方。
func (s *SyncService) Push(ctx context.Context, sessionID string, chapterIndex int, record *models.ScriptRecord) bool {
	if sessionID == "" || !s.Enabled() {
		return false
	}

	if _, err := s.dynamo.SaveScript(ctx, sessionID, chapterIndex, record); err != nil {
		utils.GetLogger().Warnf("远程台本写入失败（已忽略）: session=%s chapter=%d err=%v",
			sessionID, chapterIndex, err)
		return false
	}

	return true
}
