package event

import (
	"fmt"
	"time"
)

// Batch groups events produced by one turn into a single envelope. Events
// missing turn or source metadata inherit the envelope's values before
// their identity fields are derived.
type Batch struct {
	ID        string  `json:"batch_id"`
	TurnID    string  `json:"turn_id"`
	Source    string  `json:"source"`
	CreatedAt int64   `json:"created_at"`
	Events    []Event `json:"events"`
}

// BatchMeta carries optional envelope metadata for NewBatch.
type BatchMeta struct {
	TurnID    string
	Source    string
	CreatedAt int64
}

// NewBatch wraps events in a batch envelope. Each event is normalized with
// the envelope's turn and source as fallbacks.
func NewBatch(events []Event, meta BatchMeta) Batch {
	turnID := orFallback(meta.TurnID, fallbackTurn)
	source := orFallback(meta.Source, fallbackSource)
	createdAt := meta.CreatedAt
	if createdAt <= 0 {
		createdAt = time.Now().UnixMilli()
	}

	normalized := make([]Event, 0, len(events))
	for _, evt := range events {
		if evt.TurnID == "" {
			evt.TurnID = turnID
		}
		if evt.Source == "" {
			evt.Source = source
		}
		normalized = append(normalized, New(evt))
	}

	return Batch{
		ID:        fmt.Sprintf("svb_%s_%d", turnID, createdAt),
		TurnID:    turnID,
		Source:    source,
		CreatedAt: createdAt,
		Events:    normalized,
	}
}
