package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brunamourao/usermail-backend/pkg/db/models"
	"github.com/brunamourao/usermail-backend/pkg/enums"
	"github.com/brunamourao/usermail-backend/pkg/logger"
)

// Message describes a notification intent to be recorded alongside a
// business write.
type Message struct {
	EventType   enums.OutboxEventType
	AggregateID uuid.UUID
	Data        interface{}
	Version     int
	OccurredAt  time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit serializes the message into the stable envelope and inserts a pending
// row inside the caller's transaction. If the transaction rolls back, the
// message vanishes with the business row.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, msg Message) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !msg.EventType.IsValid() {
		return errors.New("unknown event type")
	}
	payload, err := json.Marshal(msg.Data)
	if err != nil {
		return err
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now()
	}
	if msg.Version <= 0 {
		msg.Version = 1
	}
	envelope := PayloadEnvelope{
		Version:    msg.Version,
		MessageID:  uuid.NewString(),
		OccurredAt: msg.OccurredAt,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := models.OutboxMessage{
		EventType:   msg.EventType,
		AggregateID: msg.AggregateID,
		Payload:     json.RawMessage(payloadJSON),
		Status:      enums.OutboxStatusPending,
	}
	if err := s.repo.Insert(tx, &row); err != nil {
		return err
	}
	if s.logg != nil {
		fields := map[string]any{
			"message_id":   envelope.MessageID,
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateID.String(),
		}
		logCtx := s.logg.WithFields(ctx, fields)
		s.logg.Info(logCtx, "outbox message queued")
	}
	return nil
}
