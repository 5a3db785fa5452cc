// internal/types/interfaces.go
package types

import (
	"context"
)

// EmailClient is the narrow surface of the mail provider.
type EmailClient interface {
	FetchUnread(ctx context.Context) ([]EmailItem, error)
	Send(ctx context.Context, to, subject, body string) error
}

// CRMClient is the narrow surface of the CRM integration.
type CRMClient interface {
	CreateLead(ctx context.Context, name, emailFrom, description string) (int64, error)
	ListRecentLeads(ctx context.Context, limit int) ([]Lead, error)
}

// Responder produces a conversational reply for a message.
type Responder interface {
	Respond(ctx context.Context, message string, history []HistoryEntry) (string, error)
}

// HistoryLog records activity for later inspection.
type HistoryLog interface {
	Append(ctx context.Context, entry *HistoryEntry) error
}
