package models

import (
	"time"

	"gorm.io/gorm"
)

// Broadcast statuses
const (
	BroadcastStatusQueued    = "queued"
	BroadcastStatusScheduled = "scheduled"
	BroadcastStatusSending   = "sending"
	BroadcastStatusSent      = "sent"
	BroadcastStatusFailed    = "failed"
)

// Delivery statuses. "sent" means the message was handed off to the mail
// provider; transport-level delivery is not tracked here.
const (
	DeliveryStatusQueued = "queued"
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

// Recipient selector modes
const (
	SelectorAll    = "all"
	SelectorRole   = "role"
	SelectorEmails = "emails"
	SelectorUpload = "upload"
)

// UploadedRow is one caller-supplied (email, name) pair for upload-mode
// broadcasts. The name is taken verbatim.
type UploadedRow struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// RecipientSelector describes how the recipient set of a broadcast is
// resolved. Stored on the Broadcast so scheduled sends can be resolved later.
type RecipientSelector struct {
	Mode   string        `json:"mode"` // all, role, emails, upload
	Role   string        `json:"role,omitempty"`
	Emails []string      `json:"emails,omitempty"`
	Rows   []UploadedRow `json:"rows,omitempty"`
}

// Broadcast represents one bulk send operation
type Broadcast struct {
	gorm.Model
	TemplateID uint              `gorm:"not null;index" json:"template_id"`
	Selector   RecipientSelector `gorm:"type:jsonb;serializer:json" json:"selector"`

	Status      string     `gorm:"default:'queued'" json:"status"` // queued, scheduled, sending, sent, failed
	ScheduledAt *time.Time `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Aggregate counts (filled in as dispatch completes)
	TotalRecipients int `gorm:"default:0" json:"total_recipients"`
	SentCount       int `gorm:"default:0" json:"sent_count"`
	FailedCount     int `gorm:"default:0" json:"failed_count"`

	Advisory string `json:"advisory,omitempty"`

	// Relations
	Template        EmailTemplate    `json:"-"`
	DeliveryRecords []DeliveryRecord `gorm:"foreignKey:BroadcastID" json:"delivery_records,omitempty"`
}

// DeliveryRecord is the per-recipient ledger row for one broadcast. Created
// queued in bulk at resolution time, updated exactly once when that
// recipient's dispatch attempt completes.
type DeliveryRecord struct {
	gorm.Model
	BroadcastID uint `gorm:"not null;index" json:"broadcast_id"`

	Email       string `gorm:"not null;index" json:"email"`
	Name        string `json:"name"` // display name snapshot
	Status      string `gorm:"default:'queued'" json:"status"` // queued, sent, failed
	ErrorDetail string `json:"error_detail,omitempty"`
	TrackingID  string `gorm:"index" json:"tracking_id"`

	SentAt *time.Time `json:"sent_at"`

	// Open tracking (pixel hits; no transport receipts)
	OpenedAt  *time.Time `json:"opened_at"`
	OpenCount int        `gorm:"default:0" json:"open_count"`

	// Relations
	Broadcast Broadcast `json:"-"`
}
