package utils

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"edublast/models"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ProgressEvent is emitted after every recipient completes.
type ProgressEvent struct {
	BroadcastID uint   `json:"broadcast_id"`
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Status      string `json:"status"`
}

// BroadcastResult is the caller-facing aggregate of one broadcast.
type BroadcastResult struct {
	BroadcastID uint    `json:"broadcast_id"`
	QueuedCount int     `json:"queued_count"`
	FailedCount int     `json:"failed_count"`
	Advisory    *string `json:"advisory_message"`
}

// Broadcaster runs the full pipeline: resolve, enrich, personalize, assemble,
// dispatch and ledger. One recipient's failure never aborts, delays or
// corrupts another recipient's processing.
type Broadcaster struct {
	Resolver     *RecipientResolver
	Enricher     *NameEnricher
	Personalizer *Personalizer
	Templates    TemplateStore
	Ledger       TrackingLedger
	Mailer       MailServiceInterface
	Logger       *logrus.Logger

	AppURL       string
	Provider     string
	ProviderMode string
	Concurrency  int
	SendTimeout  time.Duration

	// OnProgress, when set, receives an event after every recipient
	// completes. Must be safe for concurrent calls.
	OnProgress func(ProgressEvent)
}

// NewBroadcaster wires the engine against GORM-backed stores and the given
// account directory and mailer.
func NewBroadcaster(db *gorm.DB, directory AccountDirectory, mailer MailServiceInterface, logger *logrus.Logger) *Broadcaster {
	identity := &GormIdentityStore{DB: db}
	return &Broadcaster{
		Resolver:     &RecipientResolver{Identity: identity, Directory: directory, Logger: logger},
		Enricher:     &NameEnricher{Identity: identity, Directory: directory, Logger: logger},
		Personalizer: &Personalizer{Enrollments: &GormEnrollmentStore{DB: db}, Logger: logger},
		Templates:    &GormTemplateStore{DB: db},
		Ledger:       &GormLedger{DB: db},
		Mailer:       mailer,
		Logger:       logger,
	}
}

// Send creates a broadcast for the selector and dispatches it, returning the
// aggregate once every recipient has completed. Fatal errors (unknown
// template, empty recipient set) abort before any row is written.
func (b *Broadcaster) Send(ctx context.Context, templateID uint, sel models.RecipientSelector) (*BroadcastResult, error) {
	tmpl, err := b.Templates.GetByID(ctx, templateID)
	if err != nil || tmpl == nil {
		return nil, ErrTemplateNotFound
	}

	recipients, err := b.Resolver.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}

	advisory := AdviseVolume(len(recipients), b.Provider, b.ProviderMode)

	bc := &models.Broadcast{
		TemplateID:      templateID,
		Selector:        sel,
		Status:          models.BroadcastStatusSending,
		StartedAt:       Pointer(time.Now()),
		TotalRecipients: len(recipients),
	}
	if advisory != nil {
		bc.Advisory = *advisory
	}
	if err := b.Ledger.CreateBroadcast(ctx, bc); err != nil {
		return nil, fmt.Errorf("failed to create broadcast: %w", err)
	}

	result := b.dispatch(ctx, bc, tmpl, recipients)
	result.Advisory = advisory
	return result, nil
}

// Run dispatches an already persisted broadcast (the scheduled path). Fatal
// resolution errors mark the broadcast failed instead of aborting silently.
func (b *Broadcaster) Run(ctx context.Context, bc *models.Broadcast) (*BroadcastResult, error) {
	tmpl, err := b.Templates.GetByID(ctx, bc.TemplateID)
	if err != nil || tmpl == nil {
		b.failBroadcast(ctx, bc.ID)
		return nil, ErrTemplateNotFound
	}

	recipients, err := b.Resolver.Resolve(ctx, bc.Selector)
	if err != nil {
		b.failBroadcast(ctx, bc.ID)
		return nil, err
	}

	advisory := AdviseVolume(len(recipients), b.Provider, b.ProviderMode)
	advisoryText := ""
	if advisory != nil {
		advisoryText = *advisory
	}
	if err := b.Ledger.StartBroadcast(ctx, bc.ID, len(recipients), advisoryText); err != nil {
		return nil, fmt.Errorf("failed to start broadcast: %w", err)
	}

	result := b.dispatch(ctx, bc, tmpl, recipients)
	result.Advisory = advisory
	return result, nil
}

// Preview renders one recipient's personalized, assembled document without
// touching the ledger or the delivery boundary.
func (b *Broadcaster) Preview(ctx context.Context, templateID uint, email string) (subject, html string, err error) {
	tmpl, err := b.Templates.GetByID(ctx, templateID)
	if err != nil || tmpl == nil {
		return "", "", ErrTemplateNotFound
	}

	recipients, err := b.Resolver.Resolve(ctx, models.RecipientSelector{
		Mode:   models.SelectorEmails,
		Emails: []string{email},
	})
	if err != nil {
		return "", "", err
	}

	rec := &recipients[0]
	b.Enricher.Enrich(ctx, rec, nil)
	rec.Program = b.Personalizer.ProgramLabel(ctx, rec)
	vars := b.Personalizer.VariableBag(rec)

	subject = Substitute(tmpl.Subject, vars)
	body := Substitute(tmpl.Body, vars)
	return subject, AssembleDocument(body, tmpl, vars), nil
}

func (b *Broadcaster) dispatch(ctx context.Context, bc *models.Broadcast, tmpl *models.EmailTemplate, recipients []Recipient) *BroadcastResult {
	records := make([]models.DeliveryRecord, len(recipients))
	for i, rec := range recipients {
		records[i] = models.DeliveryRecord{
			BroadcastID: bc.ID,
			Email:       rec.Email,
			Name:        rec.Name,
			Status:      models.DeliveryStatusQueued,
			TrackingID:  NewTrackingID(),
		}
	}
	if err := b.Ledger.CreateDeliveryRecords(ctx, records); err != nil {
		b.Logger.WithError(err).Error("failed to create delivery records")
		sentry.CaptureException(err)
		b.failBroadcast(ctx, bc.ID)
		return &BroadcastResult{BroadcastID: bc.ID, FailedCount: len(recipients)}
	}

	// The tier-3 listing scan shares one directory fetch across all tasks.
	var listing []AccountEntry
	for i := range recipients {
		if strings.TrimSpace(recipients[i].Name) == "" {
			listing = b.Enricher.FetchListing(ctx)
			break
		}
	}

	var sent, failed, completed atomic.Int64

	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	// Finalization and cancellation cleanup must outlive the caller's ctx.
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i := range recipients {
		// Caller cancellation stops scheduling; in-flight sends drain.
		if ctx.Err() != nil {
			for j := i; j < len(recipients); j++ {
				b.markFailed(detached, &records[j], recipients[j].Name, "broadcast canceled before dispatch")
				failed.Add(1)
				completed.Add(1)
			}
			break
		}

		rec, record := &recipients[i], &records[i]
		g.Go(func() error {
			ok := b.deliverOne(detached, tmpl, rec, record, listing)
			if ok {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
			completed.Add(1)
			b.emitProgress(bc.ID, len(recipients), int(completed.Load()), int(failed.Load()), models.BroadcastStatusSending)
			return nil
		})
	}
	_ = g.Wait()

	if err := b.Ledger.FinalizeBroadcast(detached, bc.ID, models.BroadcastStatusSent, int(sent.Load()), int(failed.Load())); err != nil {
		b.Logger.WithError(err).Error("failed to finalize broadcast")
		sentry.CaptureException(err)
	}
	b.emitProgress(bc.ID, len(recipients), int(completed.Load()), int(failed.Load()), models.BroadcastStatusSent)

	b.Logger.WithFields(logrus.Fields{
		"broadcast_id": bc.ID,
		"sent":         sent.Load(),
		"failed":       failed.Load(),
	}).Info("broadcast dispatch completed")

	return &BroadcastResult{
		BroadcastID: bc.ID,
		QueuedCount: int(sent.Load()),
		FailedCount: int(failed.Load()),
	}
}

// deliverOne runs enrichment, personalization, assembly and the handoff for a
// single recipient. Any local failure, including a panic, is captured into
// that recipient's ledger row only.
func (b *Broadcaster) deliverOne(ctx context.Context, tmpl *models.EmailTemplate, rec *Recipient, record *models.DeliveryRecord, listing []AccountEntry) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			b.markFailed(ctx, record, rec.Name, fmt.Sprintf("panic during dispatch: %v", p))
			ok = false
		}
	}()

	if strings.TrimSpace(rec.Email) == "" {
		b.markFailed(ctx, record, rec.Name, "recipient has no email address")
		return false
	}

	b.Enricher.Enrich(ctx, rec, listing)
	rec.Program = b.Personalizer.ProgramLabel(ctx, rec)
	vars := b.Personalizer.VariableBag(rec)

	subject := Substitute(tmpl.Subject, vars)
	body := Substitute(tmpl.Body, vars)
	if HasUnresolvedPlaceholders(subject) || HasUnresolvedPlaceholders(body) {
		b.Logger.WithFields(logrus.Fields{
			"to":          rec.Email,
			"template_id": tmpl.ID,
		}).Warn("unresolved placeholders after substitution")
	}

	html := AssembleDocument(body, tmpl, vars)
	html = InjectOpenTracking(html, b.AppURL, record.TrackingID)

	sendTimeout := b.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := b.Mailer.Send(sendCtx, OutboundEmail{
		To:         rec.Email,
		ToName:     rec.Name,
		Subject:    subject,
		HTML:       html,
		TrackingID: record.TrackingID,
	}); err != nil {
		b.markFailed(ctx, record, rec.Name, err.Error())
		return false
	}

	if err := b.Ledger.MarkDelivery(ctx, record.ID, models.DeliveryStatusSent, "", rec.Name); err != nil {
		b.Logger.WithError(err).WithField("record_id", record.ID).Error("failed to mark delivery sent")
	}
	return true
}

func (b *Broadcaster) markFailed(ctx context.Context, record *models.DeliveryRecord, name, detail string) {
	b.Logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"email":     record.Email,
		"error":     detail,
	}).Warn("recipient dispatch failed")

	if err := b.Ledger.MarkDelivery(ctx, record.ID, models.DeliveryStatusFailed, detail, name); err != nil {
		b.Logger.WithError(err).WithField("record_id", record.ID).Error("failed to mark delivery failed")
		sentry.CaptureException(err)
	}
}

func (b *Broadcaster) failBroadcast(ctx context.Context, broadcastID uint) {
	if err := b.Ledger.FinalizeBroadcast(context.WithoutCancel(ctx), broadcastID, models.BroadcastStatusFailed, 0, 0); err != nil {
		b.Logger.WithError(err).WithField("broadcast_id", broadcastID).Error("failed to mark broadcast failed")
	}
}

func (b *Broadcaster) emitProgress(broadcastID uint, total, completed, failed int, status string) {
	if b.OnProgress == nil {
		return
	}
	b.OnProgress(ProgressEvent{
		BroadcastID: broadcastID,
		Total:       total,
		Completed:   completed,
		Failed:      failed,
		Status:      status,
	})
}
