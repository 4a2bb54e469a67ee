// internal/services/workflow_service.go
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/tetuya-iyell/claude3-video-analyzer/internal/errors"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/models"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/storage"
	"github.com/tetuya-iyell/claude3-video-analyzer/internal/utils"
)

// ScriptGenerating 台本工作流依赖的LLM调用契约
type ScriptGenerating interface {
	GenerateForChapter(ctx context.Context, chapter models.Chapter, durationMinutes int) (*models.ScriptRecord, error)
	AnalyzeQuality(ctx context.Context, record *models.ScriptRecord) (bool, string, error)
	Improve(ctx context.Context, record *models.ScriptRecord, feedback string) (string, error)
}

// 无实质内容的默认确认语，批准时不计入反馈历史
var trivialFeedback = map[string]bool{
	"ok":       true,
	"OK":       true,
	"了解":       true,
	"問題ありません": true,
	"問題なし":     true,
}

// sessionState 单个会话的工作状态。
// scripts以章节索引为键，每个索引至多一条记录。
type sessionState struct {
	chapters []models.Chapter
	scripts  map[int]*models.ScriptRecord
}

// WorkflowService 台本工作流控制器。
// 驱动每章的状态机（draft→review→approved/rejected→improved→completed），
// 独占持有会话内的权威台本集合，并在每次批准/拒绝/应用后
// 尽力写入远程存储。
type WorkflowService struct {
	mu        sync.Mutex
	generator ScriptGenerating
	remote    RemoteSync
	store     *storage.SessionStore // 可为nil（不落盘）
	sessions  map[string]*sessionState
}

// NewWorkflowService 创建工作流控制器
func NewWorkflowService(generator ScriptGenerating, remote RemoteSync, store *storage.SessionStore) *WorkflowService {
	return &WorkflowService{
		generator: generator,
		remote:    remote,
		store:     store,
		sessions:  make(map[string]*sessionState),
	}
}

// session 获取会话状态，必要时从磁盘恢复
func (s *WorkflowService) session(sessionID string) *sessionState {
	if state, exists := s.sessions[sessionID]; exists {
		return state
	}

	state := &sessionState{scripts: make(map[int]*models.ScriptRecord)}

	if s.store != nil && sessionID != "" {
		if chapters, err := s.store.LoadChapters(sessionID); err == nil && chapters != nil {
			state.chapters = chapters
		}
		if scripts, err := s.store.LoadScripts(sessionID); err == nil {
			for _, record := range scripts {
				if record != nil {
					state.scripts[record.ChapterIndex] = record
				}
			}
		}
	}

	s.sessions[sessionID] = state
	return state
}

// persist 将会话状态落盘，失败只记录日志
func (s *WorkflowService) persist(sessionID string, state *sessionState) {
	if s.store == nil || sessionID == "" {
		return
	}

	if state.chapters != nil {
		if err := s.store.SaveChapters(sessionID, state.chapters); err != nil {
			utils.GetLogger().Warnf("章节列表落盘失败: %v", err)
		}
	}

	maxIndex := -1
	for idx := range state.scripts {
		if idx > maxIndex {
			maxIndex = idx
		}
	}
	scripts := make([]*models.ScriptRecord, maxIndex+1)
	for idx, record := range state.scripts {
		scripts[idx] = record
	}

	if err := s.store.SaveScripts(sessionID, scripts); err != nil {
		utils.GetLogger().Warnf("台本快照落盘失败: %v", err)
	}
}

// SetChapters 开始新的解析：替换章节列表并清空全部台本记录
func (s *WorkflowService) SetChapters(sessionID string, chapters []models.Chapter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.session(sessionID)
	state.chapters = chapters
	state.scripts = make(map[int]*models.ScriptRecord)

	if s.store != nil && sessionID != "" {
		if err := s.store.Reset(sessionID); err != nil {
			utils.GetLogger().Warnf("会话重置失败: %v", err)
		}
	}
	s.persist(sessionID, state)
}

// Chapters 返回会话当前的章节列表
func (s *WorkflowService) Chapters(sessionID string) []models.Chapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.session(sessionID)
	chapters := make([]models.Chapter, len(state.chapters))
	copy(chapters, state.chapters)
	return chapters
}

// SelectChapter 选择章节并按需生成台本。
// 已有记录时尝试远程对账（失败回退本地记录）；没有记录时触发生成，
// 生成失败不留下任何部分写入。
func (s *WorkflowService) SelectChapter(ctx context.Context, sessionID string, chapterIndex int, chapters []models.Chapter, durationMinutes int) (*models.ScriptRecord, error) {
	if durationMinutes < 1 {
		durationMinutes = 3
	}

	s.mu.Lock()
	state := s.session(sessionID)

	// 客户端同时提交章节列表时更新（不清空已有台本）
	if len(chapters) > 0 {
		state.chapters = chapters
	}

	if record, exists := state.scripts[chapterIndex]; exists {
		s.mu.Unlock()

		// 远程对账：成功拉到记录时整体替换本地，其余情况本地保持权威
		if remote := s.remote.Pull(ctx, sessionID, chapterIndex); remote != nil {
			s.mu.Lock()
			state.scripts[chapterIndex] = remote
			s.persist(sessionID, state)
			record = remote
			s.mu.Unlock()
		}

		return record.Clone(), nil
	}

	if chapterIndex < 0 || chapterIndex >= len(state.chapters) {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("指定された章が見つかりません", nil)
	}
	chapter := state.chapters[chapterIndex]
	s.mu.Unlock()

	// 生成调用不持锁
	record, err := s.generator.GenerateForChapter(ctx, chapter, durationMinutes)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record.ScriptID = uuid.NewString()
	record.SessionID = sessionID
	record.ChapterIndex = chapterIndex
	record.CreatedAt = now
	record.UpdatedAt = now

	s.mu.Lock()
	// 生成期间若已有并发写入，保留先到的记录
	if existing, exists := state.scripts[chapterIndex]; exists {
		s.mu.Unlock()
		return existing.Clone(), nil
	}
	state.scripts[chapterIndex] = record
	s.persist(sessionID, state)
	s.mu.Unlock()

	s.remote.Push(ctx, sessionID, chapterIndex, record)

	return record.Clone(), nil
}

// AnalyzeScript 对指定章的台本执行品质分析。
// 分析失败时不覆盖已有的passed/analysis。
func (s *WorkflowService) AnalyzeScript(ctx context.Context, sessionID string, chapterIndex int, scriptContent string, durationMinutes int) (bool, string, error) {
	s.mu.Lock()
	state := s.session(sessionID)
	record, exists := state.scripts[chapterIndex]
	if !exists {
		s.mu.Unlock()
		return false, "", apperrors.NewNotFoundError("指定された章の台本が見つかりません", nil)
	}

	// 编辑后的台本内容随请求到达时先更新并落盘，
	// 即使后续分析失败，内存与快照也保持一致
	if scriptContent != "" && scriptContent != record.ScriptContent {
		record.ScriptContent = scriptContent
		record.UpdatedAt = time.Now()
		s.persist(sessionID, state)
	}
	snapshot := record.Clone()
	s.mu.Unlock()

	passed, analysis, err := s.generator.AnalyzeQuality(ctx, snapshot)
	if err != nil {
		return false, "", err
	}

	s.mu.Lock()
	record.Analysis = analysis
	record.Passed = &passed
	if durationMinutes >= 1 {
		record.DurationMinutes = durationMinutes
	}
	record.UpdatedAt = time.Now()
	s.persist(sessionID, state)
	s.mu.Unlock()

	return passed, analysis, nil
}

// SubmitFeedback 提交批准或拒绝。
// 批准：非平凡反馈计入历史，状态转为approved。
// 拒绝：要求非空反馈，追加后触发一次改善调用；成功时状态转为improved
// 并暂存改善稿，失败时状态回到rejected且不留改善稿。
// 两条路径都会在本地变更后尽力推送远程。
func (s *WorkflowService) SubmitFeedback(ctx context.Context, sessionID string, chapterIndex int, feedbackText string, isApproved bool, durationMinutes int) (*models.ScriptRecord, error) {
	if durationMinutes < 1 {
		durationMinutes = 3
	}

	if !isApproved && strings.TrimSpace(feedbackText) == "" {
		// 空反馈的拒绝在任何LLM调用之前挡下
		return nil, apperrors.NewValidationError("フィードバックを入力してください", nil)
	}

	s.mu.Lock()
	state := s.session(sessionID)
	record, exists := state.scripts[chapterIndex]
	if !exists {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("指定された章の台本が見つかりません", nil)
	}

	record.DurationMinutes = durationMinutes

	if isApproved {
		if trimmed := strings.TrimSpace(feedbackText); trimmed != "" && !trivialFeedback[trimmed] {
			record.Feedback = append(record.Feedback, feedbackText)
		}
		record.Status = models.StatusApproved
		record.UpdatedAt = time.Now()
		s.persist(sessionID, state)
		result := record.Clone()
		s.mu.Unlock()

		s.remote.Push(ctx, sessionID, chapterIndex, result)
		return result, nil
	}

	// 拒绝路径：记录反馈，改善前先清掉旧的改善稿
	record.Feedback = append(record.Feedback, feedbackText)
	record.PriorStatus = record.Status
	record.ImprovedScript = ""
	record.Status = models.StatusRejected
	snapshot := record.Clone()
	s.mu.Unlock()

	improved, err := s.generator.Improve(ctx, snapshot, feedbackText)

	s.mu.Lock()
	if err != nil {
		// 改善失败：反馈保留，状态停在rejected，原台本仍为权威文本
		record.UpdatedAt = time.Now()
		s.persist(sessionID, state)
		failed := record.Clone()
		s.mu.Unlock()

		s.remote.Push(ctx, sessionID, chapterIndex, failed)
		return nil, err
	}

	record.ImprovedScript = improved
	record.Status = models.StatusImproved
	record.UpdatedAt = time.Now()
	s.persist(sessionID, state)
	result := record.Clone()
	s.mu.Unlock()

	s.remote.Push(ctx, sessionID, chapterIndex, result)
	return result, nil
}

// ApplyImprovement 将暂存的改善稿提升为正式台本。
// 没有待应用的改善稿时返回ApplyError，台本内容保持不变。
// 应用后状态：拒绝前为approved的记录转为completed，其余回到draft
// 重新走审核流程。
func (s *WorkflowService) ApplyImprovement(ctx context.Context, sessionID string, chapterIndex int, durationMinutes int) (*models.ScriptRecord, error) {
	s.mu.Lock()
	state := s.session(sessionID)
	record, exists := state.scripts[chapterIndex]
	if !exists {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("指定された章の台本が見つかりません", nil)
	}

	if !record.HasImprovement() {
		s.mu.Unlock()
		return nil, apperrors.NewApplyError("改善された台本がありません", nil)
	}

	record.ScriptContent = record.ImprovedScript
	record.ImprovedScript = ""

	if record.PriorStatus == models.StatusApproved {
		record.Status = models.StatusCompleted
	} else {
		record.Status = models.StatusDraft
	}
	record.PriorStatus = ""

	if durationMinutes >= 1 {
		record.DurationMinutes = durationMinutes
	}
	record.UpdatedAt = time.Now()
	s.persist(sessionID, state)
	result := record.Clone()
	s.mu.Unlock()

	s.remote.Push(ctx, sessionID, chapterIndex, result)
	return result, nil
}

// SyncChapter 显式远程同步：拉到远程记录时整体替换本地并返回，
// 否则返回nil（远程无记录/同步未启用/同步失败不作区分）。
func (s *WorkflowService) SyncChapter(ctx context.Context, sessionID string, chapterIndex int) *models.ScriptRecord {
	remote := s.remote.Pull(ctx, sessionID, chapterIndex)
	if remote == nil {
		return nil
	}

	s.mu.Lock()
	state := s.session(sessionID)
	state.scripts[chapterIndex] = remote
	s.persist(sessionID, state)
	s.mu.Unlock()

	return remote.Clone()
}

// AllScripts 返回会话的全部台本，按章节索引排列（未生成的位置为nil）
func (s *WorkflowService) AllScripts(sessionID string) []*models.ScriptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.session(sessionID)

	maxIndex := -1
	for idx := range state.scripts {
		if idx > maxIndex {
			maxIndex = idx
		}
	}

	scripts := make([]*models.ScriptRecord, maxIndex+1)
	for idx, record := range state.scripts {
		scripts[idx] = record.Clone()
	}
	return scripts
}

// GetScript 返回指定章的台本记录副本，不存在时为nil
func (s *WorkflowService) GetScript(sessionID string, chapterIndex int) *models.ScriptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, exists := s.session(sessionID).scripts[chapterIndex]; exists {
		return record.Clone()
	}
	return nil
}
