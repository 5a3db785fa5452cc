// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

type TaskType string

const (
	TaskEmail    TaskType = "email"
	TaskWhatsApp TaskType = "whatsapp"
	TaskLinkedIn TaskType = "linkedin"
	TaskUnknown  TaskType = "unknown"
)

// ParseTaskType maps a header value to a known TaskType, or TaskUnknown.
func ParseTaskType(s string) TaskType {
	switch TaskType(s) {
	case TaskEmail, TaskWhatsApp, TaskLinkedIn:
		return TaskType(s)
	}
	return TaskUnknown
}

type TaskStatus string

const TaskPending TaskStatus = "pending"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

type MessageSource string

const (
	SourceMain     MessageSource = "main"
	SourceArchived MessageSource = "archived"
)

// ChannelMessage is one conversation row scraped from a messaging surface.
type ChannelMessage struct {
	Title           string        `json:"title"`
	Preview         string        `json:"last_message"`
	UnreadCount     int           `json:"unread"`
	Source          MessageSource `json:"source"`
	MatchedKeywords []string      `json:"matched_keywords,omitempty"`
}

type CheckOptions struct {
	Keywords        []string
	IncludeArchived bool
	Limit           int
}

type CheckResult struct {
	Success  bool             `json:"success"`
	Messages []ChannelMessage `json:"messages"`
	Error    string           `json:"error,omitempty"`
}

type SendResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EmailItem is an unread message handed over by the email collaborator.
type EmailItem struct {
	ID         string    `json:"id"`
	From       string    `json:"sender"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	Body       string    `json:"body,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// TaskFile is one unit of work persisted in the vault.
type TaskFile struct {
	ID       TaskID          `yaml:"id"`
	Type     TaskType        `yaml:"type"`
	Source   string          `yaml:"source"`
	Received time.Time       `yaml:"received"`
	Status   TaskStatus      `yaml:"status"`
	Priority Priority        `yaml:"priority"`
	DedupKey DedupKey        `yaml:"dedup_key,omitempty"`
	Body     string          `yaml:"-"`
	Payload  json.RawMessage `yaml:"-"`
}

type Lead struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	EmailFrom   string    `json:"email_from"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryEntry is one record in the daily activity log.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	Text      string    `json:"text"`
	Reply     string    `json:"reply,omitempty"`
}
