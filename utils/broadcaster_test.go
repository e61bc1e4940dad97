package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"edublast/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	broadcaster *Broadcaster
	identity    *fakeIdentityStore
	directory   *fakeDirectory
	enrollments *fakeEnrollmentStore
	templates   *fakeTemplateStore
	ledger      *memoryLedger
	mailer      *fakeMailer
}

func newEngineFixture() *engineFixture {
	logger := testLogger()
	f := &engineFixture{
		identity:    &fakeIdentityStore{},
		directory:   &fakeDirectory{},
		enrollments: &fakeEnrollmentStore{},
		templates: &fakeTemplateStore{templates: map[uint]*models.EmailTemplate{
			1: {Model: gormModel(1), Name: "welcome", Subject: "Halo {{name}}", Body: "<p>Hi {{name}}, program {{program}}</p>"},
		}},
		ledger: newMemoryLedger(),
		mailer: &fakeMailer{},
	}
	f.broadcaster = &Broadcaster{
		Resolver:     &RecipientResolver{Identity: f.identity, Directory: f.directory, Logger: logger},
		Enricher:     &NameEnricher{Identity: f.identity, Directory: f.directory, Logger: logger},
		Personalizer: &Personalizer{Enrollments: f.enrollments, Logger: logger},
		Templates:    f.templates,
		Ledger:       f.ledger,
		Mailer:       f.mailer,
		Logger:       logger,
		AppURL:       "https://app.example.com",
		Provider:     "resend",
		ProviderMode: "production",
		Concurrency:  4,
	}
	return f
}

func (f *engineFixture) sentEmailTo(t *testing.T, address string) OutboundEmail {
	t.Helper()
	f.mailer.mu.Lock()
	defer f.mailer.mu.Unlock()
	for _, email := range f.mailer.sent {
		if email.To == address {
			return email
		}
	}
	t.Fatalf("no email sent to %s", address)
	return OutboundEmail{}
}

func TestSendEndToEndWithTieredNames(t *testing.T) {
	f := newEngineFixture()
	f.identity.users = []models.User{
		{Model: gormModel(1), Email: "citra@example.com", FullName: "Citra Ayu", Role: models.RoleParticipant},
	}
	// Present only in the external account directory, legacy metadata field.
	f.directory.entries = []AccountEntry{
		{ID: "uid-legacy", Email: "legacy@example.com", RawMetadata: AccountMetadata{Name: "Bambang Legacy"}},
	}

	var (
		mu     sync.Mutex
		events []ProgressEvent
	)
	f.broadcaster.OnProgress = func(ev ProgressEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	result, err := f.broadcaster.Send(context.Background(), 1, models.RecipientSelector{
		Mode:   models.SelectorEmails,
		Emails: []string{"citra@example.com", "legacy@example.com", "jane.doe@example.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, result.QueuedCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, 3, f.mailer.sentCount())

	// Names resolved through three different tiers.
	assert.Equal(t, "Halo Citra Ayu", f.sentEmailTo(t, "citra@example.com").Subject)
	assert.Equal(t, "Halo Bambang Legacy", f.sentEmailTo(t, "legacy@example.com").Subject)
	assert.Equal(t, "Halo Jane Doe", f.sentEmailTo(t, "jane.doe@example.com").Subject)

	// Every ledger row reached sent with the resolved name snapshot.
	assert.Len(t, f.ledger.recordsByStatus(models.DeliveryStatusSent), 3)
	record := f.ledger.recordByEmail("jane.doe@example.com")
	require.NotNil(t, record)
	assert.Equal(t, "Jane Doe", record.Name)

	require.Len(t, f.ledger.broadcasts, 1)
	assert.Equal(t, models.BroadcastStatusSent, f.ledger.broadcasts[0].Status)
	assert.Equal(t, 3, f.ledger.broadcasts[0].SentCount)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.Equal(t, models.BroadcastStatusSent, final.Status)
	assert.Equal(t, 3, final.Completed)
	assert.Equal(t, 0, final.Failed)
}

func TestSendIsolatesSingleRecipientPanic(t *testing.T) {
	f := newEngineFixture()
	for i := 1; i <= 10; i++ {
		f.identity.users = append(f.identity.users, models.User{
			Model:    gormModel(uint(i)),
			Email:    fmt.Sprintf("user%02d@example.com", i),
			FullName: fmt.Sprintf("User %02d", i),
			Role:     models.RoleParticipant,
		})
	}
	// Personalization blows up for exactly one recipient.
	f.enrollments.panicUserIDs = map[uint]bool{3: true}

	result, err := f.broadcaster.Send(context.Background(), 1, models.RecipientSelector{Mode: models.SelectorAll})

	require.NoError(t, err)
	assert.Equal(t, 9, result.QueuedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 9, f.mailer.sentCount())

	assert.Len(t, f.ledger.recordsByStatus(models.DeliveryStatusSent), 9)
	failedRecords := f.ledger.recordsByStatus(models.DeliveryStatusFailed)
	require.Len(t, failedRecords, 1)
	assert.Equal(t, "user03@example.com", failedRecords[0].Email)
	assert.Contains(t, failedRecords[0].ErrorDetail, "panic during dispatch")

	require.Len(t, f.ledger.broadcasts, 1)
	assert.Equal(t, 9, f.ledger.broadcasts[0].SentCount)
	assert.Equal(t, 1, f.ledger.broadcasts[0].FailedCount)
}

func TestSendMailerFailureMarksOnlyThatRecord(t *testing.T) {
	f := newEngineFixture()
	f.identity.users = []models.User{
		{Model: gormModel(1), Email: "ok@example.com", FullName: "Ok", Role: models.RoleParticipant},
		{Model: gormModel(2), Email: "reject@example.com", FullName: "Reject", Role: models.RoleParticipant},
	}
	f.mailer.failFn = func(email OutboundEmail) error {
		if email.To == "reject@example.com" {
			return errors.New("550 mailbox unavailable")
		}
		return nil
	}

	result, err := f.broadcaster.Send(context.Background(), 1, models.RecipientSelector{Mode: models.SelectorAll})

	require.NoError(t, err)
	assert.Equal(t, 1, result.QueuedCount)
	assert.Equal(t, 1, result.FailedCount)

	record := f.ledger.recordByEmail("reject@example.com")
	require.NotNil(t, record)
	assert.Equal(t, models.DeliveryStatusFailed, record.Status)
	assert.Contains(t, record.ErrorDetail, "550")
}

func TestSendUnknownTemplateWritesNothing(t *testing.T) {
	f := newEngineFixture()
	f.identity.users = []models.User{{Model: gormModel(1), Email: "a@example.com"}}

	_, err := f.broadcaster.Send(context.Background(), 99, models.RecipientSelector{Mode: models.SelectorAll})

	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Empty(t, f.ledger.broadcasts)
	assert.Zero(t, f.mailer.sentCount())
}

func TestSendEmptyRecipientSetWritesNothing(t *testing.T) {
	f := newEngineFixture()

	_, err := f.broadcaster.Send(context.Background(), 1, models.RecipientSelector{Mode: models.SelectorAll})

	assert.ErrorIs(t, err, ErrEmptyRecipientSet)
	assert.Empty(t, f.ledger.broadcasts)
	assert.Zero(t, f.mailer.sentCount())
}

func TestSendCanceledContextFailsRemainingRecords(t *testing.T) {
	f := newEngineFixture()
	for i := 1; i <= 4; i++ {
		f.identity.users = append(f.identity.users, models.User{
			Model: gormModel(uint(i)),
			Email: fmt.Sprintf("u%d@example.com", i),
			Role:  models.RoleParticipant,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.broadcaster.Send(ctx, 1, models.RecipientSelector{Mode: models.SelectorAll})

	require.NoError(t, err)
	assert.Equal(t, 0, result.QueuedCount)
	assert.Equal(t, 4, result.FailedCount)
	assert.Zero(t, f.mailer.sentCount())

	failed := f.ledger.recordsByStatus(models.DeliveryStatusFailed)
	require.Len(t, failed, 4)
	for _, record := range failed {
		assert.Contains(t, record.ErrorDetail, "canceled")
	}
}

func TestSendAttachesAdvisory(t *testing.T) {
	f := newEngineFixture()
	f.broadcaster.ProviderMode = "sandbox"
	for i := 1; i <= 95; i++ {
		f.identity.users = append(f.identity.users, models.User{
			Model: gormModel(uint(i)),
			Email: fmt.Sprintf("bulk%03d@example.com", i),
			Role:  models.RoleParticipant,
		})
	}

	result, err := f.broadcaster.Send(context.Background(), 1, models.RecipientSelector{Mode: models.SelectorAll})

	require.NoError(t, err)
	require.NotNil(t, result.Advisory)
	assert.Contains(t, *result.Advisory, "close to")
	require.Len(t, f.ledger.broadcasts, 1)
	assert.NotEmpty(t, f.ledger.broadcasts[0].Advisory)
	// The advisory never blocks dispatch.
	assert.Equal(t, 95, result.QueuedCount)
}

func TestRunDispatchesScheduledBroadcast(t *testing.T) {
	f := newEngineFixture()
	f.identity.users = []models.User{
		{Model: gormModel(1), Email: "sched@example.com", FullName: "Sched", Role: models.RoleParticipant},
	}

	bc := &models.Broadcast{
		TemplateID: 1,
		Selector:   models.RecipientSelector{Mode: models.SelectorAll},
		Status:     models.BroadcastStatusScheduled,
	}
	require.NoError(t, f.ledger.CreateBroadcast(context.Background(), bc))

	result, err := f.broadcaster.Run(context.Background(), bc)

	require.NoError(t, err)
	assert.Equal(t, 1, result.QueuedCount)
	assert.Equal(t, models.BroadcastStatusSent, f.ledger.broadcasts[0].Status)
	assert.Equal(t, 1, f.ledger.broadcasts[0].TotalRecipients)
}

func TestRunUnknownTemplateFailsBroadcast(t *testing.T) {
	f := newEngineFixture()

	bc := &models.Broadcast{TemplateID: 99, Selector: models.RecipientSelector{Mode: models.SelectorAll}}
	require.NoError(t, f.ledger.CreateBroadcast(context.Background(), bc))

	_, err := f.broadcaster.Run(context.Background(), bc)

	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Equal(t, models.BroadcastStatusFailed, f.ledger.broadcasts[0].Status)
}

func TestPreviewRendersWithoutSideEffects(t *testing.T) {
	f := newEngineFixture()

	subject, html, err := f.broadcaster.Preview(context.Background(), 1, "jane.doe@example.com")

	require.NoError(t, err)
	assert.Equal(t, "Halo Jane Doe", subject)
	assert.Contains(t, html, "Hi Jane Doe")
	assert.Contains(t, html, DefaultProgramLabel)
	assert.NotContains(t, html, "/track/open/")
	assert.Empty(t, f.ledger.broadcasts)
	assert.Zero(t, f.mailer.sentCount())
}
