package utils

import (
	"context"
	"errors"
	"strings"
	"time"

	"edublast/models"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyRecipientSet aborts a broadcast before any row is written.
	ErrEmptyRecipientSet = errors.New("no recipients resolved for broadcast")

	// ErrTemplateNotFound aborts a broadcast before any row is written.
	ErrTemplateNotFound = errors.New("email template not found")
)

// Recipient is a resolved addressee. Recipients only live in memory for the
// duration of one broadcast; they are rebuilt from the identity stores on
// every invocation and never persisted.
type Recipient struct {
	Email        string
	Name         string
	UserID       uint   // canonical identity id, 0 when absent
	AuthUID      string // account directory id, empty when absent
	Role         string
	ReferralCode string
	Program      string // filled during personalization
	CreatedAt    *time.Time
}

// RecipientResolver turns a RecipientSelector into a deduplicated set of
// recipients.
type RecipientResolver struct {
	Identity  IdentityStore
	Directory AccountDirectory
	Logger    *logrus.Logger
}

func (r *RecipientResolver) Resolve(ctx context.Context, sel models.RecipientSelector) ([]Recipient, error) {
	var (
		recipients []Recipient
		err        error
	)

	switch sel.Mode {
	case models.SelectorAll:
		recipients, err = r.resolveByRole(ctx, "")
	case models.SelectorRole:
		recipients, err = r.resolveByRole(ctx, sel.Role)
	case models.SelectorEmails:
		recipients, err = r.resolveEmails(ctx, sel.Emails)
	case models.SelectorUpload:
		recipients = r.resolveUpload(sel.Rows)
	default:
		return nil, errors.New("unknown recipient selector mode: " + sel.Mode)
	}
	if err != nil {
		return nil, err
	}

	recipients = dedupeByEmail(recipients)
	if len(recipients) == 0 {
		return nil, ErrEmptyRecipientSet
	}
	return recipients, nil
}

func (r *RecipientResolver) resolveByRole(ctx context.Context, role string) ([]Recipient, error) {
	users, err := r.Identity.FindByRole(ctx, role)
	if err != nil {
		return nil, err
	}

	recipients := make([]Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, recipientFromUser(u))
	}
	return recipients, nil
}

// resolveEmails looks every address up in the canonical store first. Unknown
// addresses fall back to the account directory listing to recover an id and
// name; addresses not known anywhere become bare email-only recipients.
func (r *RecipientResolver) resolveEmails(ctx context.Context, emails []string) ([]Recipient, error) {
	users, err := r.Identity.FindByEmails(ctx, emails)
	if err != nil {
		return nil, err
	}

	byEmail := make(map[string]models.User, len(users))
	for _, u := range users {
		byEmail[strings.ToLower(u.Email)] = u
	}

	// Fetched lazily, at most once; the directory has no email filter.
	var listing []AccountEntry
	listingLoaded := false

	recipients := make([]Recipient, 0, len(emails))
	for _, raw := range emails {
		email := strings.TrimSpace(raw)
		if email == "" {
			continue
		}

		if u, ok := byEmail[strings.ToLower(email)]; ok {
			recipients = append(recipients, recipientFromUser(u))
			continue
		}

		if !listingLoaded {
			listingLoaded = true
			listing, err = r.Directory.ListAll(ctx)
			if err != nil {
				r.Logger.WithError(err).Warn("account directory listing unavailable, resolving bare recipients")
				listing = nil
			}
		}

		if entry := findEntryByEmail(listing, email); entry != nil {
			recipients = append(recipients, Recipient{
				Email:   email,
				Name:    entry.DisplayName(),
				AuthUID: entry.ID,
				Role:    models.RoleParticipant,
			})
			continue
		}

		recipients = append(recipients, Recipient{
			Email: email,
			Role:  models.RoleParticipant,
		})
	}
	return recipients, nil
}

// resolveUpload takes caller-supplied rows verbatim. Rows with a malformed
// address are dropped so one bad row cannot poison the whole upload.
func (r *RecipientResolver) resolveUpload(rows []models.UploadedRow) []Recipient {
	recipients := make([]Recipient, 0, len(rows))
	for _, row := range rows {
		email := strings.TrimSpace(row.Email)
		if email == "" {
			continue
		}
		if err := checkmail.ValidateFormat(email); err != nil {
			r.Logger.WithField("email", email).Warn("skipping uploaded row with invalid email")
			continue
		}
		recipients = append(recipients, Recipient{
			Email: email,
			Name:  strings.TrimSpace(row.Name),
			Role:  models.RoleParticipant,
		})
	}
	return recipients
}

func recipientFromUser(u models.User) Recipient {
	role := u.Role
	if role == "" {
		role = models.RoleParticipant
	}
	createdAt := u.CreatedAt
	return Recipient{
		Email:        u.Email,
		Name:         u.FullName,
		UserID:       u.ID,
		AuthUID:      u.AuthUID,
		Role:         role,
		ReferralCode: u.ReferralCode,
		CreatedAt:    &createdAt,
	}
}

func findEntryByEmail(listing []AccountEntry, email string) *AccountEntry {
	for i := range listing {
		if strings.EqualFold(listing[i].Email, email) {
			return &listing[i]
		}
	}
	return nil
}

// dedupeByEmail keeps the first occurrence of every lower-cased address.
func dedupeByEmail(recipients []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(recipients))
	out := recipients[:0]
	for _, rec := range recipients {
		key := strings.ToLower(rec.Email)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}
