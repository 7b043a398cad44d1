// Package events publishes strategy lifecycle events on a Redis pub/sub
// bus, one channel per event type.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventStrategyValidated = "strategy_validated"
	EventStrategyInvalid   = "strategy_invalid"
	EventBacktestCompleted = "backtest_completed"
)

// Source is stamped on every event this service publishes.
const Source = "stratgraph"

// Event is one message on the bus.
type Event struct {
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	Source        string         `json:"source"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent returns an event with a fresh correlation id. An empty
// correlationID generates one.
func NewEvent(eventType, correlationID string, payload map[string]any) *Event {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &Event{
		EventType:     eventType,
		Payload:       payload,
		Source:        Source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// wireEvent is the JSON envelope on the bus. Timestamps travel as
// RFC 3339 strings in UTC.
type wireEvent struct {
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	Source        string         `json:"source"`
	Timestamp     string         `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// Marshal encodes the event envelope.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(wireEvent{
		EventType:     e.EventType,
		Payload:       e.Payload,
		Source:        e.Source,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		CorrelationID: e.CorrelationID,
	})
}

// UnmarshalEvent decodes an event envelope. The event type is required.
func UnmarshalEvent(data []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if w.EventType == "" {
		return nil, errors.New("event has no event_type")
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return nil, err
	}
	return &Event{
		EventType:     w.EventType,
		Payload:       w.Payload,
		Source:        w.Source,
		Timestamp:     ts,
		CorrelationID: w.CorrelationID,
	}, nil
}

// timestampLayouts are tried in order; publishers outside this service may
// omit the zone or the T separator.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("event timestamp %q: unrecognised format", s)
}
