package model

import (
	"time"
)

// Severity is the presentation variant of an ephemeral alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// AlertAction is an optional button on an alert.
type AlertAction struct {
	Label string `json:"label"`
	Do    func() `json:"-"`
}

// Alert is a transient, never persisted message.
type Alert struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Body      string        `json:"body,omitempty"`
	Severity  Severity      `json:"severity"`
	Action    *AlertAction  `json:"action,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// SeverityFor maps a notification type onto an alert variant.
func SeverityFor(t NotificationType) Severity {
	switch t {
	case NotificationSuccess:
		return SeveritySuccess
	case NotificationWarning:
		return SeverityWarning
	case NotificationError:
		return SeverityError
	default:
		return SeverityInfo
	}
}
