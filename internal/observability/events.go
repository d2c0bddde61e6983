package observability

import "time"

// EventEnvelope is the wire schema for connection lifecycle events published
// to the broker.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	Service    string      `json:"service"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// NewEventEnvelope stamps the service name and occurrence time.
func NewEventEnvelope(eventType, eventName string, payload interface{}) EventEnvelope {
	return EventEnvelope{
		EventType:  eventType,
		EventName:  eventName,
		Service:    "toolswap-chat",
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
}

// BuildHeaders assembles AMQP headers for correlation. Empty values are left
// out so consumers can rely on header presence.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
