package models

import "time"

// EventType names a domain event consumed by the presentation layer.
type EventType string

const (
	EventTaskStateChanged EventType = "taskStateChanged"
	EventCreditsAwarded   EventType = "creditsAwarded"
	EventBadgeEarned      EventType = "badgeEarned"
	EventSnapshotUpdated  EventType = "snapshotUpdated"
)

// DomainEvent is emitted after a state change commits.
// Key is the idempotency key used to drop duplicates across instances.
type DomainEvent struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	TaskID     string    `json:"task_id,omitempty"`
	Key        string    `json:"key"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
