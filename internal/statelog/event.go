package statelog

import (
	"fmt"
	"time"

	"arm-ai/internal/storage"
)

// Field names the client writes on every risk event.
const (
	FieldType        = "type"
	FieldTimestamp   = "timestamp"
	FieldProcessed   = "processed"
	FieldProcessedAt = "processed_at"
)

const unknownEventType = "unknown"

// EventData is the caller-supplied body of a risk event.
type EventData map[string]any

// Type reports the declared event type, or "unknown".
func (e EventData) Type() string {
	switch v := e[FieldType].(type) {
	case nil:
		return unknownEventType
	case string:
		if v == "" {
			return unknownEventType
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

// RiskEvent is a stored risk event.
type RiskEvent struct {
	ID        string
	Type      string
	Timestamp time.Time
	Processed bool
	Fields    map[string]any
}

func riskEventFromDocument(doc storage.Document) RiskEvent {
	event := RiskEvent{
		ID:     doc.ID,
		Type:   EventData(doc.Fields).Type(),
		Fields: doc.Fields,
	}
	if ts, ok := doc.Time(FieldTimestamp); ok {
		event.Timestamp = ts
	} else {
		event.Timestamp = doc.CreateTime
	}
	event.Processed, _ = doc.Bool(FieldProcessed)
	return event
}
