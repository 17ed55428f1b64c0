// Package model defines data structures shared by the assistant client.
package model

import (
	"time"
)

// Mode is the conversational intent a chat session is created with.
type Mode string

const (
	ModePropertySearch Mode = "property-search"
	ModeGeneralInquiry Mode = "general-inquiry"
	ModeRecommendation Mode = "recommendation"
	ModeSupport        Mode = "support"
)

// Valid reports whether m is a known conversation mode.
func (m Mode) Valid() bool {
	switch m {
	case ModePropertySearch, ModeGeneralInquiry, ModeRecommendation, ModeSupport:
		return true
	}
	return false
}

// SessionStatus is the lifecycle status of a chat session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusArchived  SessionStatus = "archived"
)

// Context is the free-form key/value context attached to a session.
type Context map[string]any

// Merge returns a shallow copy of c with patch applied on top.
func (c Context) Merge(patch Context) Context {
	out := make(Context, len(c)+len(patch))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// SessionStats are aggregate counters echoed from the backend.
type SessionStats struct {
	MessageCount     int     `json:"message_count"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	AverageLatencyMs float64 `json:"average_latency_ms,omitempty"`
}

// ChatSession represents one AI-assisted conversation thread.
type ChatSession struct {
	ID        string        `json:"id"`
	Mode      Mode          `json:"mode"`
	Messages  []Message     `json:"messages"`
	Context   Context       `json:"context,omitempty"`
	Status    SessionStatus `json:"status"`
	Stats     SessionStats  `json:"stats"`
	Feedback  *Feedback     `json:"feedback,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a deep enough copy of the session for callers to read without holding locks.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.Context = Context{}.Merge(s.Context)
	if s.Feedback != nil {
		fb := *s.Feedback
		out.Feedback = &fb
	}
	return &out
}

// Summary builds the history view entry for the session.
func (s *ChatSession) Summary() SessionSummary {
	sum := SessionSummary{
		ID:           s.ID,
		Mode:         s.Mode,
		Status:       s.Status,
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			sum.Title = m.Content
			break
		}
	}
	if n := len(s.Messages); n > 0 {
		last := s.Messages[n-1]
		sum.LastMessage = &last
	}
	return sum
}

// SessionSummary is the lightweight form of a session returned by list calls.
type SessionSummary struct {
	ID           string        `json:"id"`
	Mode         Mode          `json:"mode"`
	Status       SessionStatus `json:"status"`
	Title        string        `json:"title,omitempty"`
	MessageCount int           `json:"message_count"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SessionPage is one page of session summaries.
type SessionPage struct {
	Items      []SessionSummary `json:"items"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

// PaginationCursor tracks how far a paged list has been loaded.
type PaginationCursor struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// HasMore reports whether another page can be requested.
func (c PaginationCursor) HasMore() bool {
	return c.Page < c.TotalPages
}
