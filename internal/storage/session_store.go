// internal/storage/session_store.go
package storage

import (
	"path/filepath"

	"github.com/tetuya-iyell/claude3-video-analyzer/internal/models"
)

const (
	chaptersFile = "chapters.json"
	scriptsFile  = "scripts.json"
)

// SessionStore 将每个会话的章节列表与台本快照落盘，
// 进程重启后同一会话可以恢复工作状态。
type SessionStore struct {
	fs *FileStorage
}

// NewSessionStore 创建会话存储
func NewSessionStore(fs *FileStorage) *SessionStore {
	return &SessionStore{fs: fs}
}

func sessionDir(sessionID string) string {
	return filepath.Join("sessions", sessionID)
}

// SaveChapters 保存会话的章节列表
func (s *SessionStore) SaveChapters(sessionID string, chapters []models.Chapter) error {
	return s.fs.SaveJSONFile(sessionDir(sessionID), chaptersFile, chapters)
}

// LoadChapters 读取会话的章节列表，不存在时返回nil
func (s *SessionStore) LoadChapters(sessionID string) ([]models.Chapter, error) {
	if !s.fs.FileExists(sessionDir(sessionID), chaptersFile) {
		return nil, nil
	}
	var chapters []models.Chapter
	if err := s.fs.LoadJSONFile(sessionDir(sessionID), chaptersFile, &chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}

// SaveScripts 保存会话的台本快照（按章节索引排列，允许空洞）
func (s *SessionStore) SaveScripts(sessionID string, scripts []*models.ScriptRecord) error {
	return s.fs.SaveJSONFile(sessionDir(sessionID), scriptsFile, scripts)
}

// LoadScripts 读取会话的台本快照，不存在时返回nil
func (s *SessionStore) LoadScripts(sessionID string) ([]*models.ScriptRecord, error) {
	if !s.fs.FileExists(sessionDir(sessionID), scriptsFile) {
		return nil, nil
	}
	var scripts []*models.ScriptRecord
	if err := s.fs.LoadJSONFile(sessionDir(sessionID), scriptsFile, &scripts); err != nil {
		return nil, err
	}
	return scripts, nil
}

// Reset 清空会话数据（开始新的解析时调用）
func (s *SessionStore) Reset(sessionID string) error {
	return s.fs.DeleteDir(sessionDir(sessionID))
}
