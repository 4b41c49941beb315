package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brunamourao/usermail-backend/api/responses"
	"github.com/brunamourao/usermail-backend/pkg/db/models"
	"github.com/brunamourao/usermail-backend/pkg/enums"
	pkgerrors "github.com/brunamourao/usermail-backend/pkg/errors"
	"github.com/brunamourao/usermail-backend/pkg/logger"
)

// DLQReader exposes the quarantined-message surface used by operators.
type DLQReader interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	FindByMessageID(ctx context.Context, messageID uuid.UUID) (*models.OutboxDLQ, error)
}

// DLQEntryDTO is the operator-facing view of a quarantined message.
type DLQEntryDTO struct {
	ID           uuid.UUID                  `json:"id"`
	MessageID    uuid.UUID                  `json:"message_id"`
	EventType    enums.OutboxEventType      `json:"event_type"`
	AggregateID  uuid.UUID                  `json:"aggregate_id"`
	ErrorReason  enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage *string                    `json:"error_message"`
	AttemptCount int                        `json:"attempt_count"`
	FailedAt     time.Time                  `json:"failed_at"`
}

func dlqEntryFromModel(entry models.OutboxDLQ) DLQEntryDTO {
	return DLQEntryDTO{
		ID:           entry.ID,
		MessageID:    entry.MessageID,
		EventType:    entry.EventType,
		AggregateID:  entry.AggregateID,
		ErrorReason:  entry.ErrorReason,
		ErrorMessage: entry.ErrorMessage,
		AttemptCount: entry.AttemptCount,
		FailedAt:     entry.FailedAt,
	}
}

// ListDLQ surfaces terminally failed outbox messages, newest first.
func ListDLQ(reader DLQReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "dlq repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit := queryInt(r, "limit", 50)
		entries, err := reader.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dlq"))
			return
		}

		dtos := make([]DLQEntryDTO, 0, len(entries))
		for _, entry := range entries {
			dtos = append(dtos, dlqEntryFromModel(entry))
		}
		responses.WriteSuccess(w, map[string][]DLQEntryDTO{
			"entries": dtos,
		})
	}
}

// GetDLQMessage looks up the quarantine record for one outbox message.
func GetDLQMessage(reader DLQReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "dlq repository unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		messageID, err := uuid.Parse(chi.URLParam(r, "messageId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid message id"))
			return
		}

		entry, err := reader.FindByMessageID(r.Context(), messageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dlq entry"))
			return
		}
		if entry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "message not quarantined"))
			return
		}

		dto := dlqEntryFromModel(*entry)
		responses.WriteSuccess(w, map[string]DLQEntryDTO{
			"entry": dto,
		})
	}
}
