package utils

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"edublast/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func gormModel(id uint) gorm.Model {
	return gorm.Model{ID: id}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeIdentityStore struct {
	users   []models.User
	byIDErr error
	listErr error
}

func (f *fakeIdentityStore) FindByRole(_ context.Context, role string) ([]models.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.User
	for _, u := range f.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeIdentityStore) FindByEmails(_ context.Context, emails []string) ([]models.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	wanted := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		wanted[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	var out []models.User
	for _, u := range f.users {
		if _, ok := wanted[strings.ToLower(u.Email)]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeIdentityStore) FindByID(_ context.Context, id uint) (*models.User, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	for i := range f.users {
		if f.users[i].ID == id {
			return &f.users[i], nil
		}
	}
	return nil, errors.New("user not found")
}

type fakeDirectory struct {
	entries []AccountEntry
	getErr  error
	listErr error

	listCalls int
}

func (f *fakeDirectory) GetByID(_ context.Context, uid string) (*AccountEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.entries {
		if f.entries[i].ID == uid {
			return &f.entries[i], nil
		}
	}
	return nil, errors.New("account not found")
}

func (f *fakeDirectory) ListAll(_ context.Context) ([]AccountEntry, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

type fakeEnrollmentStore struct {
	participants map[uint]*models.Participant // keyed by user id
	enrollments  map[uint][]models.Enrollment // keyed by participant id
	lookupErr    error

	lastLimit    int
	panicUserIDs map[uint]bool
}

func (f *fakeEnrollmentStore) ParticipantByUserID(_ context.Context, userID uint) (*models.Participant, error) {
	if f.panicUserIDs[userID] {
		panic("enrollment store corrupted")
	}
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	p, ok := f.participants[userID]
	if !ok {
		return nil, errors.New("participant not found")
	}
	return p, nil
}

func (f *fakeEnrollmentStore) RecentEnrollments(_ context.Context, participantID uint, limit int) ([]models.Enrollment, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	f.lastLimit = limit
	enrollments := f.enrollments[participantID]
	if len(enrollments) > limit {
		enrollments = enrollments[:limit]
	}
	return enrollments, nil
}

type fakeTemplateStore struct {
	templates map[uint]*models.EmailTemplate
}

func (f *fakeTemplateStore) GetByID(_ context.Context, id uint) (*models.EmailTemplate, error) {
	tmpl, ok := f.templates[id]
	if !ok {
		return nil, errors.New("template not found")
	}
	return tmpl, nil
}

// memoryLedger is an in-memory TrackingLedger that mimics the ID assignment
// the GORM implementation gets from the database.
type memoryLedger struct {
	mu         sync.Mutex
	broadcasts []models.Broadcast
	records    map[uint]*models.DeliveryRecord
	nextID     uint
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: make(map[uint]*models.DeliveryRecord)}
}

func (l *memoryLedger) CreateBroadcast(_ context.Context, bc *models.Broadcast) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	bc.ID = l.nextID
	l.broadcasts = append(l.broadcasts, *bc)
	return nil
}

func (l *memoryLedger) StartBroadcast(_ context.Context, broadcastID uint, totalRecipients int, advisory string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.broadcasts {
		if l.broadcasts[i].ID == broadcastID {
			l.broadcasts[i].Status = models.BroadcastStatusSending
			l.broadcasts[i].TotalRecipients = totalRecipients
			l.broadcasts[i].Advisory = advisory
		}
	}
	return nil
}

func (l *memoryLedger) CreateDeliveryRecords(_ context.Context, records []models.DeliveryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range records {
		l.nextID++
		records[i].ID = l.nextID
		stored := records[i]
		l.records[stored.ID] = &stored
	}
	return nil
}

func (l *memoryLedger) MarkDelivery(_ context.Context, recordID uint, status, errorDetail, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[recordID]
	if !ok {
		return errors.New("record not found")
	}
	if record.Status != models.DeliveryStatusQueued {
		return nil
	}
	record.Status = status
	record.ErrorDetail = errorDetail
	record.Name = name
	return nil
}

func (l *memoryLedger) FinalizeBroadcast(_ context.Context, broadcastID uint, status string, sent, failed int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.broadcasts {
		if l.broadcasts[i].ID == broadcastID {
			l.broadcasts[i].Status = status
			l.broadcasts[i].SentCount = sent
			l.broadcasts[i].FailedCount = failed
		}
	}
	return nil
}

func (l *memoryLedger) RecordOpen(_ context.Context, trackingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range l.records {
		if record.TrackingID == trackingID {
			record.OpenCount++
			return nil
		}
	}
	return errors.New("record not found")
}

func (l *memoryLedger) recordsByStatus(status string) []models.DeliveryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.DeliveryRecord
	for _, record := range l.records {
		if record.Status == status {
			out = append(out, *record)
		}
	}
	return out
}

func (l *memoryLedger) recordByEmail(email string) *models.DeliveryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range l.records {
		if strings.EqualFold(record.Email, email) {
			copied := *record
			return &copied
		}
	}
	return nil
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []OutboundEmail
	failFn func(email OutboundEmail) error
}

func (m *fakeMailer) Send(_ context.Context, email OutboundEmail) error {
	if m.failFn != nil {
		if err := m.failFn(email); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

func (m *fakeMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
