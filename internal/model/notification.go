package model

import (
	"time"
)

// NotificationType categorises a durable notification.
type NotificationType string

const (
	NotificationProperty NotificationType = "property"
	NotificationMessage  NotificationType = "message"
	NotificationSuccess  NotificationType = "success"
	NotificationWarning  NotificationType = "warning"
	NotificationError    NotificationType = "error"
	NotificationSystem   NotificationType = "system"
)

// NotificationMetadata carries optional references attached by the backend.
type NotificationMetadata struct {
	PropertyID    string   `json:"property_id,omitempty"`
	PropertyTitle string   `json:"property_title,omitempty"`
	SenderName    string   `json:"sender_name,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
}

// Notification is an entry in the durable notification list.
type Notification struct {
	ID        string                `json:"id"`
	Type      NotificationType      `json:"type"`
	Title     string                `json:"title"`
	Body      string                `json:"body"`
	Read      bool                  `json:"read"`
	Metadata  *NotificationMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// Live channel event names.
const (
	EventJoin               = "join"
	EventLeave              = "leave"
	EventNotificationAdd    = "notification:add"
	EventNotificationRead   = "notification:read"
	EventNotificationDelete = "notification:delete"
)
