// internal/models/chapter.go
package models

// Chapter is one titled segment of a video's chaptered analysis.
// Chapters are immutable once extracted; a new analysis replaces the
// whole list for the session.
type Chapter struct {
	ChapterNum     int    `json:"chapter_num"`     // 1-based, unique within a session
	ChapterTitle   string `json:"chapter_title"`   // never empty
	ChapterSummary string `json:"chapter_summary"` // may be empty
}
