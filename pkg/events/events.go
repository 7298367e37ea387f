// Package events defines the change events published when the saved-response collection mutates.
package events

import (
	"time"

	"careerkit-go/internal/model"
)

// Type 标识事件种类。
type Type string

const (
	SavedResponseCreated Type = "saved_response.created"
	SavedResponseDeleted Type = "saved_response.deleted"
)

// SavedResponseEvent is the payload written to Kafka. Record is set for created events only.
type SavedResponseEvent struct {
	Type       Type                 `json:"type"`
	ID         int64                `json:"id"`
	Record     *model.SavedResponse `json:"record,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}
