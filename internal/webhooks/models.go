package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// EventVideoReady is the only event type that starts background work
const EventVideoReady = "video.ready"

const (
	StatusSuccess = "success"

	MessageVideoJobStarted = "Video processing job started"
	MessageNoVideoTask     = "Webhook received and processed (no video task)"
)

// Event is an inbound webhook notification. Data is opaque until an event-specific
// constructor validates it.
type Event struct {
	EventType string
	Data      map[string]any
}

// eventEnvelope is the wire shape; pointers and the required tag reject absent or null fields
type eventEnvelope struct {
	EventType *string        `json:"event_type" validate:"required"`
	Data      map[string]any `json:"data" validate:"required"`
}

// StatusResponse acknowledges a processed webhook
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse carries a client-facing failure description
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NotFoundResponse is returned for unmatched routes
type NotFoundResponse struct {
	Description string `json:"description"`
}

// HealthStatus is the liveness payload
type HealthStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

var envelopeValidator = validator.New()

// DecodeEvent parses a request body into an Event. It fails when the body is not a JSON
// object with a string event_type and an object data.
func DecodeEvent(r io.Reader) (Event, error) {
	var env eventEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return Event{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := envelopeValidator.Struct(env); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Event{}, fmt.Errorf("field %s is required", jsonName(verrs[0].StructField()))
		}
		return Event{}, fmt.Errorf("invalid webhook envelope: %w", err)
	}
	return Event{EventType: *env.EventType, Data: env.Data}, nil
}

func jsonName(structField string) string {
	switch structField {
	case "EventType":
		return "event_type"
	case "Data":
		return "data"
	}
	return structField
}
