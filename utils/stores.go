package utils

import (
	"context"
	"strings"
	"time"

	"edublast/models"

	"gorm.io/gorm"
)

// IdentityStore reads the canonical identity profiles of the platform.
type IdentityStore interface {
	FindByRole(ctx context.Context, role string) ([]models.User, error)
	FindByEmails(ctx context.Context, emails []string) ([]models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

// EnrollmentStore reads participant and enrollment data for program lookups.
type EnrollmentStore interface {
	ParticipantByUserID(ctx context.Context, userID uint) (*models.Participant, error)
	RecentEnrollments(ctx context.Context, participantID uint, limit int) ([]models.Enrollment, error)
}

// TemplateStore fetches stored email templates.
type TemplateStore interface {
	GetByID(ctx context.Context, id uint) (*models.EmailTemplate, error)
}

// TrackingLedger owns the Broadcast and DeliveryRecord rows. Delivery rows
// are created queued in bulk and updated exactly once per recipient.
type TrackingLedger interface {
	CreateBroadcast(ctx context.Context, bc *models.Broadcast) error
	StartBroadcast(ctx context.Context, broadcastID uint, totalRecipients int, advisory string) error
	CreateDeliveryRecords(ctx context.Context, records []models.DeliveryRecord) error
	MarkDelivery(ctx context.Context, recordID uint, status, errorDetail, name string) error
	FinalizeBroadcast(ctx context.Context, broadcastID uint, status string, sent, failed int) error
	RecordOpen(ctx context.Context, trackingID string) error
}

// GormIdentityStore implements IdentityStore over the users table.
type GormIdentityStore struct {
	DB *gorm.DB
}

func (s *GormIdentityStore) FindByRole(ctx context.Context, role string) ([]models.User, error) {
	var users []models.User
	q := s.DB.WithContext(ctx).Where("is_active = ?", true)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormIdentityStore) FindByEmails(ctx context.Context, emails []string) ([]models.User, error) {
	lowered := make([]string, 0, len(emails))
	for _, e := range emails {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(e)))
	}

	var users []models.User
	if err := s.DB.WithContext(ctx).
		Where("LOWER(email) IN ?", lowered).
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormIdentityStore) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GormEnrollmentStore implements EnrollmentStore over the participants and
// enrollments tables.
type GormEnrollmentStore struct {
	DB *gorm.DB
}

func (s *GormEnrollmentStore) ParticipantByUserID(ctx context.Context, userID uint) (*models.Participant, error) {
	var participant models.Participant
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&participant).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

func (s *GormEnrollmentStore) RecentEnrollments(ctx context.Context, participantID uint, limit int) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := s.DB.WithContext(ctx).
		Preload("Program").
		Where("participant_id = ?", participantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

// GormTemplateStore implements TemplateStore over the email_templates table.
type GormTemplateStore struct {
	DB *gorm.DB
}

func (s *GormTemplateStore) GetByID(ctx context.Context, id uint) (*models.EmailTemplate, error) {
	var tmpl models.EmailTemplate
	if err := s.DB.WithContext(ctx).First(&tmpl, id).Error; err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// GormLedger implements TrackingLedger over the broadcasts and
// delivery_records tables.
type GormLedger struct {
	DB *gorm.DB
}

func (l *GormLedger) CreateBroadcast(ctx context.Context, bc *models.Broadcast) error {
	return l.DB.WithContext(ctx).Create(bc).Error
}

func (l *GormLedger) StartBroadcast(ctx context.Context, broadcastID uint, totalRecipients int, advisory string) error {
	return l.DB.WithContext(ctx).
		Model(&models.Broadcast{}).
		Where("id = ?", broadcastID).
		Updates(map[string]interface{}{
			"status":           models.BroadcastStatusSending,
			"started_at":       time.Now(),
			"total_recipients": totalRecipients,
			"advisory":         advisory,
		}).Error
}

func (l *GormLedger) CreateDeliveryRecords(ctx context.Context, records []models.DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}
	return l.DB.WithContext(ctx).Create(&records).Error
}

func (l *GormLedger) MarkDelivery(ctx context.Context, recordID uint, status, errorDetail, name string) error {
	updates := map[string]interface{}{
		"status":       status,
		"error_detail": errorDetail,
		"name":         name,
	}
	if status == models.DeliveryStatusSent {
		updates["sent_at"] = time.Now()
	}

	// Terminal update; records that already left the queued state stay put.
	return l.DB.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Where("id = ? AND status = ?", recordID, models.DeliveryStatusQueued).
		Updates(updates).Error
}

func (l *GormLedger) FinalizeBroadcast(ctx context.Context, broadcastID uint, status string, sent, failed int) error {
	return l.DB.WithContext(ctx).
		Model(&models.Broadcast{}).
		Where("id = ?", broadcastID).
		Updates(map[string]interface{}{
			"status":       status,
			"sent_count":   sent,
			"failed_count": failed,
			"completed_at": time.Now(),
		}).Error
}

func (l *GormLedger) RecordOpen(ctx context.Context, trackingID string) error {
	var record models.DeliveryRecord
	if err := l.DB.WithContext(ctx).
		Where("tracking_id = ?", trackingID).
		First(&record).Error; err != nil {
		return err
	}

	if record.OpenedAt == nil {
		record.OpenedAt = Pointer(time.Now())
	}
	record.OpenCount++
	return l.DB.WithContext(ctx).Save(&record).Error
}
