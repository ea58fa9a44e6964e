package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event is a notification emitted exactly once per successful state
// transition, persisted to the outbox in the same transaction as the
// transition itself.
type Event struct {
	Type          string
	AggregateType string
	AggregateID   uuid.UUID
	Payload       []byte
}

func NewEvent(eventType, aggregateType string, aggregateID uuid.UUID, payload map[string]interface{}) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		// An unencodable payload is a caller bug. Keep the event and
		// surface the failure in its body rather than publishing an
		// empty one.
		data, _ = json.Marshal(map[string]string{"payload_error": err.Error()})
	}
	return Event{
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       data,
	}
}
