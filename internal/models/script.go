// internal/models/script.go
package models

import "time"

// ScriptStatus is the review state of a chapter's script.
type ScriptStatus string

const (
	StatusDraft     ScriptStatus = "draft"     // generated, unreviewed
	StatusReview    ScriptStatus = "review"    // quality analysis requested
	StatusApproved  ScriptStatus = "approved"  // accepted as-is
	StatusRejected  ScriptStatus = "rejected"  // feedback given, revision failed or pending
	StatusImproved  ScriptStatus = "improved"  // revision produced, awaiting apply
	StatusCompleted ScriptStatus = "completed" // improvement applied after approval

	// Transient UI-facing states around generation. Never stored as a
	// record's final status.
	StatusGenerating ScriptStatus = "generating"
	StatusError      ScriptStatus = "error"
)

// ScriptRecord is the mutable unit of work for one chapter: the canonical
// script text plus its review metadata. At most one record exists per
// chapter index within a session.
type ScriptRecord struct {
	ScriptID       string       `json:"script_id,omitempty"`
	SessionID      string       `json:"session_id,omitempty"`
	ChapterIndex   int          `json:"chapter_index"`
	ChapterTitle   string       `json:"chapter_title"`
	ChapterSummary string       `json:"chapter_summary,omitempty"`
	ScriptContent  string       `json:"script_content"`
	ImprovedScript string       `json:"improved_script,omitempty"`
	Status         ScriptStatus `json:"status"`

	// PriorStatus remembers the status the record held when the reject
	// that produced the pending improvement was issued. It decides the
	// post-apply status: approved -> completed, everything else -> draft.
	PriorStatus ScriptStatus `json:"prior_status,omitempty"`

	// Feedback is append-only; insertion order is chronological.
	Feedback []string `json:"feedback"`

	Analysis        string    `json:"analysis,omitempty"`
	Passed          *bool     `json:"passed,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// HasImprovement reports whether a revision is pending acceptance.
func (r *ScriptRecord) HasImprovement() bool {
	return r != nil && r.ImprovedScript != ""
}

// Clone returns a deep copy so callers cannot mutate stored state through
// the feedback slice or the passed pointer.
func (r *ScriptRecord) Clone() *ScriptRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Feedback = make([]string, len(r.Feedback))
	copy(cp.Feedback, r.Feedback)
	if r.Passed != nil {
		v := *r.Passed
		cp.Passed = &v
	}
	return &cp
}
