package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"

	"github.com/google/uuid"

	"github.com/brunamourao/usermail-backend/pkg/config"
	"github.com/brunamourao/usermail-backend/pkg/db/models"
	"github.com/brunamourao/usermail-backend/pkg/enums"
	"github.com/brunamourao/usermail-backend/pkg/outbox"
	"github.com/brunamourao/usermail-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its broker topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedMessage is the result of decoding an outbox row.
type ResolvedMessage struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the relay should quarantine a row instead of
// retrying it.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.EmailTopic == "" {
		return nil, fmt.Errorf("email topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	reg.register(EventDescriptor{
		EventType:      enums.EventUserCreated,
		Topic:          cfg.EmailTopic,
		PayloadFactory: func() interface{} { return &payloads.UserCreatedEvent{} },
	})
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload. Every failure here
// is non-retryable: a row that cannot be decoded today will not decode
// tomorrow either.
func (r *EventRegistry) Resolve(msg models.OutboxMessage) (*ResolvedMessage, error) {
	desc, ok := r.entries[msg.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", msg.EventType))
	}
	if msg.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", msg.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", msg.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", msg.EventType, err))
	}
	if err := validatePayload(payload); err != nil {
		return nil, NewNonRetryableError(err)
	}

	return &ResolvedMessage{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

func validatePayload(payload interface{}) error {
	event, ok := payload.(*payloads.UserCreatedEvent)
	if !ok {
		return nil
	}
	if event.UserID == uuid.Nil {
		return fmt.Errorf("userId is required")
	}
	if event.Subject == "" || event.Text == "" {
		return fmt.Errorf("subject and text are required")
	}
	if _, err := mail.ParseAddress(event.EmailTo); err != nil {
		return fmt.Errorf("emailTo %q is not a valid address", event.EmailTo)
	}
	return nil
}
