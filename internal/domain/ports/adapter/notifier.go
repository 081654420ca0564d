package adapter

import "context"

type NotificationLevel string

const (
	NotifyInfo    NotificationLevel = "info"
	NotifySuccess NotificationLevel = "success"
	NotifyWarning NotificationLevel = "warning"
	NotifyError   NotificationLevel = "error"
)

// Notification is a user-visible message (a toast in the UI).
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Details []string          `json:"details,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
