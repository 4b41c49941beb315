package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brunamourao/usermail-backend/pkg/config"
	"github.com/brunamourao/usermail-backend/pkg/db/models"
	"github.com/brunamourao/usermail-backend/pkg/enums"
	"github.com/brunamourao/usermail-backend/pkg/logger"
	"github.com/brunamourao/usermail-backend/pkg/metrics"
	"github.com/brunamourao/usermail-backend/pkg/outbox"
	"github.com/brunamourao/usermail-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 1000
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 3
	defaultLease          = 60 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int, lease time.Duration) ([]models.OutboxMessage, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error
	CountByStatus(ctx context.Context, status enums.OutboxStatus) (int64, error)
}

type dlqRepository interface {
	Insert(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxMessage) (*registry.ResolvedMessage, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxRelayMetrics
	PublisherFactory publisherFactory
}

// Service drains outbox_messages: it claims pending rows under a lease,
// publishes them to the broker outside the claim transaction and records the
// outcome per message. Rows that exhaust their attempts or fail permanently
// move to outbox_dlq.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	relayMetrics     *metrics.OutboxRelayMetrics
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	claimLease       time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if params.DLQRepository == nil {
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			pub := params.PubSub.Publisher(topic)
			if pub == nil {
				return nil
			}
			return newGCPPublisher(pub)
		}
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	lease := params.Config.Outbox.Lease()
	if lease <= 0 {
		lease = defaultLease
	}

	return &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		relayMetrics:     params.Metrics,
		publisherFactory: factory,
		batchSize:        batch,
		maxAttempts:      maxAttempts,
		pollInterval:     time.Duration(pollMs) * time.Millisecond,
		claimLease:       lease,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	if interval <= 0 {
		interval = time.Duration(defaultPollMs) * time.Millisecond
	}
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch claims a batch under a short transaction and delivers each
// claimed row outside of it. The lease keeps other relay instances off the
// rows while delivery is in flight; each row's outcome is recorded
// independently so one bad message never blocks its neighbors.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	start := time.Now()
	defer func() {
		s.relayMetrics.ObserveCycle(time.Since(start))
	}()

	var claimed []models.OutboxMessage
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.ClaimBatch(tx, s.batchSize, s.maxAttempts, s.claimLease)
		if err != nil {
			return err
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim batch: %w", err)
	}
	if len(claimed) == 0 {
		s.updatePendingGauge(ctx)
		return false, nil
	}

	for _, msg := range claimed {
		if err := s.deliver(ctx, msg); err != nil {
			return true, err
		}
	}

	s.updatePendingGauge(ctx)
	return true, nil
}

func (s *Service) deliver(ctx context.Context, msg models.OutboxMessage) error {
	resolved, err := s.registry.Resolve(msg)
	if err != nil {
		return s.handleTerminal(ctx, msg, enums.OutboxDLQReasonNonRetryable, err, "", nil)
	}

	fields := s.messageFields(msg, resolved.Envelope, resolved.Descriptor.Topic)
	if err := s.publishResolved(ctx, msg, resolved); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return s.handleTerminal(ctx, msg, enums.OutboxDLQReasonNonRetryable, err, resolved.Descriptor.Topic, fields)
		}

		nextAttempt := msg.AttemptCount + 1
		fields["attempt_count"] = nextAttempt

		if nextAttempt >= s.maxAttempts {
			fields["terminal_reason"] = "max_attempts"
			terminalErr := fmt.Errorf("max publish attempts reached: %w", err)
			return s.handleTerminal(ctx, msg, enums.OutboxDLQReasonMaxAttempts, terminalErr, resolved.Descriptor.Topic, fields)
		}

		ctxWithFields := s.logg.WithFields(ctx, fields)
		ctxWithFields = s.logg.WithField(ctxWithFields, "error", err.Error())
		s.logg.Warn(ctxWithFields, "outbox publish failed")
		s.relayMetrics.IncFailed(string(msg.EventType))
		if markErr := s.repo.MarkFailed(ctx, msg.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", msg.ID, markErr)
		}
		return nil
	}

	if markErr := s.repo.MarkPublished(ctx, msg.ID); markErr != nil {
		return fmt.Errorf("mark published %s: %w", msg.ID, markErr)
	}
	s.relayMetrics.IncPublished(string(msg.EventType))
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox message published")
	return nil
}

func (s *Service) handleTerminal(ctx context.Context, msg models.OutboxMessage, reason enums.OutboxDLQErrorReason, cause error, topic string, fields map[string]any) error {
	if fields == nil {
		fields = s.messageFields(msg, outbox.PayloadEnvelope{}, topic)
	}
	fields["error_reason"] = reason
	ctxWithFields := s.logg.WithFields(ctx, fields)
	ctxWithFields = s.logg.WithField(ctxWithFields, "error", cause.Error())
	s.logg.Warn(ctxWithFields, "outbox message will not be retried")

	dlqEntry := models.OutboxDLQ{
		MessageID:    msg.ID,
		EventType:    msg.EventType,
		AggregateID:  msg.AggregateID,
		Payload:      msg.Payload,
		ErrorReason:  reason,
		ErrorMessage: dlqErrorMessage(cause),
		AttemptCount: msg.AttemptCount,
		FailedAt:     time.Now().UTC(),
	}
	// one tx: a crash must never quarantine the row without its DLQ copy,
	// or duplicate the copy on the next cycle
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if dlqErr := s.dlq.Insert(tx, dlqEntry); dlqErr != nil {
			return fmt.Errorf("insert dlq %s: %w", msg.ID, dlqErr)
		}
		if markErr := s.repo.MarkTerminal(tx, msg.ID, cause, s.maxAttempts); markErr != nil {
			return fmt.Errorf("mark terminal %s: %w", msg.ID, markErr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.relayMetrics.IncQuarantined(string(msg.EventType), string(reason))
	return nil
}

func dlqErrorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func (s *Service) publishResolved(ctx context.Context, msg models.OutboxMessage, resolved *registry.ResolvedMessage) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	brokerMsg := &gcppubsub.Message{
		Data: msg.Payload,
		Attributes: map[string]string{
			"message_id":   resolved.Envelope.MessageID,
			"event_type":   string(msg.EventType),
			"aggregate_id": msg.AggregateID.String(),
			"created_at":   msg.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, brokerMsg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		return err
	}
	return nil
}

func (s *Service) updatePendingGauge(ctx context.Context) {
	pending, err := s.repo.CountByStatus(ctx, enums.OutboxStatusPending)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to count pending outbox rows")
		return
	}
	s.relayMetrics.SetPending(pending)
}

func (s *Service) messageFields(msg models.OutboxMessage, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":     msg.ID.String(),
		"event_type":    msg.EventType,
		"aggregate_id":  msg.AggregateID.String(),
		"batch_size":    s.batchSize,
		"attempt_count": msg.AttemptCount,
	}
	if envelope.MessageID != "" {
		fields["message_id"] = envelope.MessageID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if msg.LastError != nil {
		fields["last_error"] = *msg.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
