package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ActionType is a suggested follow-up attached to an assistant message.
type ActionType string

const (
	ActionScheduleViewing ActionType = "schedule-viewing"
	ActionRequestInfo     ActionType = "request-info"
	ActionSaveProperty    ActionType = "save-property"
	ActionContactAgent    ActionType = "contact-agent"
)

// Action is a suggested follow-up.
type Action struct {
	Type       ActionType `json:"type"`
	Label      string     `json:"label"`
	PropertyID string     `json:"property_id,omitempty"`
}

// PropertySuggestion is an opaque property reference returned by the assistant.
// Fields beyond the id are whatever the backend chose to echo.
type PropertySuggestion struct {
	ID         string         `json:"id"`
	Title      string         `json:"title,omitempty"`
	MatchScore float64        `json:"match_score,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Feedback is a rating left on a message or a whole session.
type Feedback struct {
	Rating  int    `json:"rating"`
	Helpful *bool  `json:"helpful,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Validate checks the rating range.
func (f Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return ErrInvalidFeedback
	}
	return nil
}

// Message represents a chat message.
type Message struct {
	ID         string               `json:"id"`
	Role       Role                 `json:"role"`
	Content    string               `json:"content"`
	Timestamp  time.Time            `json:"timestamp"`
	Properties []PropertySuggestion `json:"properties,omitempty"`
	Actions    []Action             `json:"actions,omitempty"`
	Feedback   *Feedback            `json:"feedback,omitempty"`

	// Set locally when the backend never acknowledged a user message.
	DeliveryFailed bool `json:"delivery_failed,omitempty"`
}
