package workflow

import (
	"context"
	"math"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationDispatcher drains the notification outbox and publishes each
// event to Pub/Sub. Rows are claimed with a lease so several instances can
// run the dispatcher concurrently; a crashed worker's claims expire after
// LockTTL and are picked up again. Publishing is at-least-once.
type NotificationDispatcher struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewNotificationDispatcher(db *gorm.DB, logger *logrus.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		DB:        db,
		Logger:    logger,
		WorkerID:  "dispatcher-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

type publishRetryConfig struct {
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func getPublishRetryConfig() publishRetryConfig {
	cfg := publishRetryConfig{
		maxAttempts: 10,
		baseBackoff: 5 * time.Second,
		maxBackoff:  10 * time.Minute,
	}
	if v := os.Getenv("NOTIFICATION_PUBLISH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxAttempts = n
		}
	}
	if v := os.Getenv("NOTIFICATION_PUBLISH_BASE_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.baseBackoff = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("NOTIFICATION_PUBLISH_MAX_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxBackoff = time.Duration(n) * time.Second
		}
	}
	return cfg
}

func publishBackoff(attempt int, cfg publishRetryConfig) time.Duration {
	if attempt <= 0 {
		return cfg.baseBackoff
	}
	// base * 2^(attempt-1), capped.
	exp := float64(attempt - 1)
	delay := time.Duration(float64(cfg.baseBackoff) * math.Pow(2, exp))
	if delay > cfg.maxBackoff {
		return cfg.maxBackoff
	}
	return delay
}

func (d *NotificationDispatcher) Run(ctx context.Context) {
	if d == nil || d.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.Interval):
		}
	}
}

func (d *NotificationDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTTL)

	var claimed []models.NotificationEvent
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("publish_status IN ?", []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed, models.OutboxPublishStatusProcessing}).
			Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.WorkerID
			err := tx.Model(&models.NotificationEvent{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"publish_status": models.OutboxPublishStatusProcessing,
					"locked_at":      claimed[i].LockedAt,
					"locked_by":      claimed[i].LockedBy,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "workflow", "dispatchOnce", "claim outbox rows", nil, err)
		return
	}

	for _, event := range claimed {
		msg := config.NotificationMessage{
			ID:               event.ID,
			CompanyId:        event.CompanyId,
			Kind:             string(event.Kind),
			RecipientRole:    event.RecipientRole,
			RecipientContact: event.RecipientContact,
			DocumentType:     string(event.DocumentType),
			DocumentId:       event.DocumentId,
			Detail:           event.Detail,
			CorrelationId:    event.CorrelationId,
		}
		messageId, pubErr := config.PublishNotificationWithResult(ctx, event.CompanyId, msg)
		if pubErr != nil {
			d.markPublishFailed(ctx, event, pubErr)
			continue
		}
		d.markPublishSent(ctx, event, messageId)
	}
}

func (d *NotificationDispatcher) markPublishSent(ctx context.Context, event models.NotificationEvent, messageId string) {
	now := time.Now().UTC()
	err := d.DB.WithContext(ctx).Model(&models.NotificationEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &messageId,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "workflow", "markPublishSent", "update outbox row", event.ID, err)
	}
}

func (d *NotificationDispatcher) markPublishFailed(ctx context.Context, event models.NotificationEvent, pubErr error) {
	cfg := getPublishRetryConfig()
	now := time.Now().UTC()
	errMsg := pubErr.Error()

	attempts := event.PublishAttempts + 1
	status := models.OutboxPublishStatusFailed
	var nextAttemptAt *time.Time
	if attempts >= cfg.maxAttempts {
		status = models.OutboxPublishStatusDead
	} else {
		t := now.Add(publishBackoff(attempts, cfg))
		nextAttemptAt = &t
	}

	err := d.DB.WithContext(ctx).Model(&models.NotificationEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"publish_status":     status,
			"publish_attempts":   attempts,
			"next_attempt_at":    nextAttemptAt,
			"last_publish_error": &errMsg,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "workflow", "markPublishFailed", "update outbox row", event.ID, err)
		return
	}

	d.Logger.WithFields(logrus.Fields{
		"field":            "NotificationDispatcher",
		"company_id":       event.CompanyId,
		"kind":             event.Kind,
		"document_type":    event.DocumentType,
		"document_id":      event.DocumentId,
		"event_id":         event.ID,
		"publish_status":   status,
		"publish_attempts": attempts,
	}).Error("notification publish failed: " + errMsg)
}
