package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"github.com/ttacon/libphonenumber"
	"gorm.io/gorm"
)

// NotificationEvent is the transactional outbox for the external dispatcher.
// The engine writes the row inside the business transaction but does NOT
// publish; publishing is performed asynchronously by the notification
// dispatcher after commit.
type NotificationEvent struct {
	ID               int              `gorm:"primary_key" json:"id"`
	CompanyId        string           `gorm:"index;not null" json:"company_id"`
	Kind             NotificationKind `gorm:"size:50;not null" json:"kind"`
	RecipientRole    string           `gorm:"size:50" json:"recipient_role"`
	RecipientContact string           `gorm:"size:100" json:"recipient_contact"`
	DocumentType     DocumentType     `gorm:"size:20;not null" json:"document_type"`
	DocumentId       int              `gorm:"index;not null" json:"document_id"`
	Detail           string           `gorm:"type:text" json:"detail"`
	CorrelationId    string           `gorm:"size:64;index" json:"correlation_id"`

	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:64" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:64" json:"pub_sub_message_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (n NotificationEvent) GetId() int {
	return n.ID
}

// QueueNotification appends an outbox row inside the caller's transaction.
// Phone contacts are normalized to E.164 so the downstream SMS/WhatsApp
// channels receive a stable format; non-phone contacts pass through.
func QueueNotification(ctx context.Context, tx *gorm.DB, kind NotificationKind, recipientRole string, recipientContact string, documentType DocumentType, documentId int, detail string) error {
	companyId, err := utils.RequireCompanyId(ctx)
	if err != nil {
		return err
	}

	event := NotificationEvent{
		CompanyId:        companyId,
		Kind:             kind,
		RecipientRole:    recipientRole,
		RecipientContact: normalizeContact(recipientContact),
		DocumentType:     documentType,
		DocumentId:       documentId,
		Detail:           detail,
		CorrelationId:    utils.CorrelationIdOrNew(ctx),
		PublishStatus:    OutboxPublishStatusPending,
	}
	return tx.Create(&event).Error
}

func normalizeContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if contact == "" || strings.Contains(contact, "@") {
		return contact
	}
	num, err := libphonenumber.Parse(contact, defaultPhoneRegion())
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return contact
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}

func defaultPhoneRegion() string {
	// Region used when a contact number carries no country prefix.
	return "MM"
}
