package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brunamourao/usermail-backend/pkg/db/models"
	"github.com/brunamourao/usermail-backend/pkg/enums"
)

const maxLastErrorLen = 1024

// Repository owns the outbox_messages table. Writers insert through an
// ambient transaction; the relay claims, publishes and updates status.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Insert appends a pending message inside the caller's transaction. It never
// commits on its own, which is what keeps the user row and the message atomic.
func (r *Repository) Insert(tx *gorm.DB, msg *models.OutboxMessage) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = enums.OutboxStatusPending
	}
	return tx.Create(msg).Error
}

// ClaimBatch returns up to limit pending messages with attempt_count below
// maxAttempts, oldest first, and stamps a claim lease on each. Row locks with
// SKIP LOCKED keep concurrent relay instances from claiming the same rows; an
// expired lease makes rows from a crashed worker claimable again.
func (r *Repository) ClaimBatch(tx *gorm.DB, limit, maxAttempts int, lease time.Duration) ([]models.OutboxMessage, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	now := r.now().UTC()

	query := tx.
		Where("status = ?", enums.OutboxStatusPending).
		Where("attempt_count < ?", maxAttempts).
		Where("claimed_until IS NULL OR claimed_until < ?", now).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if tx.Dialector.Name() == "postgres" {
		// sqlite (tests) has no row locks
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var rows []models.OutboxMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}

	claimedUntil := now.Add(lease)
	ids := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].ID)
		rows[i].ClaimedUntil = &claimedUntil
	}
	err := tx.Model(&models.OutboxMessage{}).
		Where("id IN ?", ids).
		Update("claimed_until", claimedUntil).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPublished records a successful delivery. Idempotent: repeating the call
// leaves the row published.
func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.OutboxStatusPublished,
			"published_at":  r.now().UTC(),
			"claimed_until": nil,
		}).Error
}

// MarkFailed records a transient delivery failure and releases the claim so
// the row is retried on a later cycle.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return r.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateError(cause),
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"claimed_until": nil,
		}).Error
}

// MarkTerminal quarantines a message after retries are exhausted or the row is
// undeliverable. The attempt count is pinned so it never exceeds the budget.
// Runs inside the caller's transaction so the DLQ copy and the status flip
// land together.
func (r *Repository) MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.OutboxStatusFailed,
			"last_error":    truncateError(cause),
			"attempt_count": terminalAttempts,
			"claimed_until": nil,
		}).Error
}

// FindByID loads a single message, mostly for operator tooling and tests.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OutboxMessage, error) {
	var msg models.OutboxMessage
	if err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// CountByStatus reports how many rows sit in the given status.
func (r *Repository) CountByStatus(ctx context.Context, status enums.OutboxStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// DeletePublishedBefore removes published rows older than the cutoff. Pending
// and failed rows are never touched by retention.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	result := tx.WithContext(ctx).
		Where("status = ?", enums.OutboxStatusPublished).
		Where("published_at < ?", cutoff).
		Delete(&models.OutboxMessage{})
	return result.RowsAffected, result.Error
}

func truncateError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return &msg
}
