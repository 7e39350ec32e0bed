// Package worker delivers outbox notifications with retries.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resortbook/internal/domain"
	"resortbook/internal/metrics"
	"resortbook/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// NotificationFromIntent builds an unsaved outbox row for intent.
func NotificationFromIntent(intent models.NotificationIntent) (models.Notification, error) {
	if intent.Kind != models.NoticeApproval && intent.Kind != models.NoticeRefund {
		return models.Notification{}, fmt.Errorf("unknown notice kind %q", intent.Kind)
	}
	if intent.BookingID == 0 {
		return models.Notification{}, errors.New("booking id is required")
	}

	payload, err := json.Marshal(intent)
	if err != nil {
		return models.Notification{}, fmt.Errorf("encode payload: %w", err)
	}

	return models.Notification{
		IdempotencyKey: fmt.Sprintf("%s:%s:%d:%s", intent.Kind, intent.BookingKind, intent.BookingID, uuid.NewString()),
		Kind:           intent.Kind,
		Recipient:      intent.Recipient,
		BookingKind:    intent.BookingKind,
		BookingID:      intent.BookingID,
		Payload:        string(payload),
		Status:         models.NotificationPending,
	}, nil
}

// Dispatcher consumes the notification outbox and hands each row to the
// notifier. Delivery is at-least-once.
type Dispatcher struct {
	store         domain.NotificationStore
	notifier      domain.Notifier
	redis         *redis.Client
	limiter       *rate.Limiter
	retryPolicy   RetryPolicy
	queue         chan models.Notification
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewDispatcher(store domain.NotificationStore, notifier domain.Notifier, redisClient *redis.Client, retry RetryPolicy, limiter *rate.Limiter, logger *zerolog.Logger) *Dispatcher {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Dispatcher{
		store:         store,
		notifier:      notifier,
		redis:         redisClient,
		limiter:       limiter,
		retryPolicy:   retry,
		queue:         make(chan models.Notification, 128),
		redisQueueKey: "notifications:queue",
		deadLetterKey: "notifications:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// WithPolling overrides the outbox poll interval and batch size.
func (d *Dispatcher) WithPolling(interval time.Duration, batchSize int) *Dispatcher {
	if interval > 0 {
		d.pollInterval = interval
	}
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

// Schedule hands an already persisted notification to the fast path. Rows
// that miss it are still picked up by polling.
func (d *Dispatcher) Schedule(ctx context.Context, n models.Notification) error {
	if n.ID == 0 {
		return errors.New("notification must be persisted before scheduling")
	}

	if d.redis != nil {
		if err := d.pushRedis(ctx, d.redisQueueKey, n); err != nil {
			d.logger.Warn().Err(err).Int64("notification_id", n.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case d.queue <- n:
	default:
		d.logger.Warn().Int64("notification_id", n.ID).Msg("in-memory queue full, left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Msg("notification dispatcher started")
	defer d.logger.Info().Msg("notification dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if n, ok := d.tryLocalQueue(); ok {
			d.processNotification(ctx, n)
			continue
		}

		if n, ok := d.tryRedis(ctx, time.Second); ok {
			d.processNotification(ctx, n)
			continue
		}

		pending, err := d.store.GetPendingNotifications(ctx, d.batchSize)
		if err != nil {
			d.logger.Error().Err(err).Msg("fetch pending notifications")
			d.sleep(ctx)
			continue
		}
		if len(pending) == 0 {
			d.sleep(ctx)
			continue
		}

		attempted := 0
		for i := range pending {
			if d.processNotification(ctx, pending[i]) {
				attempted++
			}
		}
		// Back off when every row in the batch was skipped.
		if attempted == 0 {
			d.sleep(ctx)
		}
	}
}

// RunOnce drains the queues and one outbox batch, returning how many rows
// were attempted.
func (d *Dispatcher) RunOnce(ctx context.Context) int {
	attempted := 0
	for {
		n, ok := d.tryLocalQueue()
		if !ok {
			break
		}
		if d.processNotification(ctx, n) {
			attempted++
		}
	}
	for {
		n, ok := d.tryRedis(ctx, 0)
		if !ok {
			break
		}
		if d.processNotification(ctx, n) {
			attempted++
		}
	}

	pending, err := d.store.GetPendingNotifications(ctx, d.batchSize)
	if err != nil {
		d.logger.Error().Err(err).Msg("fetch pending notifications")
		return attempted
	}
	for i := range pending {
		if d.processNotification(ctx, pending[i]) {
			attempted++
		}
	}
	return attempted
}

func (d *Dispatcher) sleep(ctx context.Context) {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (d *Dispatcher) tryLocalQueue() (models.Notification, bool) {
	select {
	case n := <-d.queue:
		return n, true
	default:
		return models.Notification{}, false
	}
}

// tryRedis pops one queued row; wait of zero does not block.
func (d *Dispatcher) tryRedis(ctx context.Context, wait time.Duration) (models.Notification, bool) {
	if d.redis == nil {
		return models.Notification{}, false
	}

	var raw string
	if wait > 0 {
		res, err := d.redis.BRPop(ctx, wait, d.redisQueueKey).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				d.logger.Error().Err(err).Msg("redis BRPOP error")
			}
			return models.Notification{}, false
		}
		if len(res) != 2 {
			return models.Notification{}, false
		}
		raw = res[1]
	} else {
		val, err := d.redis.RPop(ctx, d.redisQueueKey).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				d.logger.Error().Err(err).Msg("redis RPOP error")
			}
			return models.Notification{}, false
		}
		raw = val
	}

	var n models.Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		d.logger.Error().Err(err).Msg("decode redis notification")
		return models.Notification{}, false
	}
	return n, true
}

// processNotification reports whether a delivery was attempted.
func (d *Dispatcher) processNotification(ctx context.Context, n models.Notification) bool {
	// Queued copies may be stale when polling already handled the row.
	current, err := d.store.GetNotification(ctx, n.ID)
	if err != nil {
		d.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("load notification")
		return false
	}
	if current.Status != models.NotificationPending && current.Status != models.NotificationRetry {
		return false
	}
	if current.NextRetryAt != nil && current.NextRetryAt.After(time.Now()) {
		return false
	}

	intent, err := decodePayload(current.Payload)
	if err != nil {
		d.fail(ctx, current, fmt.Errorf("decode payload: %w", err))
		return true
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return false
		}
	}

	if err := d.deliver(ctx, intent); err != nil {
		d.retryOrFail(ctx, current, err)
		return true
	}

	if err := d.store.UpdateNotificationStatus(ctx, current.ID, models.NotificationCompleted, "", nil); err != nil {
		d.logger.Error().Err(err).Int64("notification_id", current.ID).Msg("mark completed")
	}
	metrics.IncNotification(string(current.Kind), "sent")
	d.logger.Debug().
		Int64("notification_id", current.ID).
		Str("notice", string(current.Kind)).
		Str("booking_ref", intent.BookingRef).
		Msg("notification delivered")
	return true
}

func (d *Dispatcher) deliver(ctx context.Context, intent models.NotificationIntent) error {
	switch intent.Kind {
	case models.NoticeApproval:
		return d.notifier.SendApprovalNotice(ctx, intent.Recipient, intent.BookingRef)
	case models.NoticeRefund:
		return d.notifier.SendRefundNotice(ctx, intent.Recipient, intent.BookingRef, intent.Reason)
	default:
		return fmt.Errorf("unknown notice kind: %s", intent.Kind)
	}
}

func (d *Dispatcher) retryOrFail(ctx context.Context, n *models.Notification, cause error) {
	attempt := n.RetryCount + 1
	if d.retryPolicy.Exhausted(attempt) {
		d.fail(ctx, n, cause)
		return
	}

	nextTime := d.retryPolicy.RetryAt(time.Now(), attempt)
	if err := d.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationRetry, cause.Error(), &nextTime); err != nil {
		d.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark retry")
	}
	metrics.IncNotification(string(n.Kind), "retry")
	d.logger.Warn().Err(cause).Int64("notification_id", n.ID).Int("attempt", attempt).Msg("notification delivery failed, will retry")
}

func (d *Dispatcher) fail(ctx context.Context, n *models.Notification, cause error) {
	if err := d.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationFailed, cause.Error(), nil); err != nil {
		d.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark failed")
	}
	metrics.IncNotification(string(n.Kind), "failed")
	d.logger.Error().Err(cause).Int64("notification_id", n.ID).Msg("notification moved to dead letter")

	if d.redis != nil {
		if err := d.pushRedis(ctx, d.deadLetterKey, *n); err != nil {
			d.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("deadletter push")
		}
	}
}

func decodePayload(raw string) (models.NotificationIntent, error) {
	var intent models.NotificationIntent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return intent, err
	}
	return intent, nil
}

func (d *Dispatcher) pushRedis(ctx context.Context, key string, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return d.redis.LPush(ctx, key, data).Err()
}
