package utils

import (
	"context"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// NameEnricher fills missing display names through an ordered fallback chain:
// canonical profile, account directory by id, directory listing scan by
// email, and finally a name derived from the email itself. The chain never
// overwrites a non-empty name and never fails a broadcast; a tier that errors
// simply produces nothing.
type NameEnricher struct {
	Identity  IdentityStore
	Directory AccountDirectory
	Logger    *logrus.Logger
}

// nameResolver is one tier of the fallback chain. It returns an empty string
// when the tier has nothing to offer.
type nameResolver func(ctx context.Context, rec *Recipient) string

// FetchListing loads the full account directory listing once per broadcast so
// the tier-3 linear scan is shared across all recipient tasks. A directory
// error degrades to an empty listing.
func (ne *NameEnricher) FetchListing(ctx context.Context) []AccountEntry {
	listing, err := ne.Directory.ListAll(ctx)
	if err != nil {
		ne.Logger.WithError(err).Debug("account directory listing unavailable for enrichment")
		return nil
	}
	return listing
}

// Enrich resolves the recipient's display name in place. Re-running it on an
// already enriched recipient is a no-op.
func (ne *NameEnricher) Enrich(ctx context.Context, rec *Recipient, listing []AccountEntry) {
	if strings.TrimSpace(rec.Name) != "" {
		return
	}

	resolvers := []nameResolver{
		ne.fromProfile,
		ne.fromDirectoryByID,
		listingScanResolver(listing),
		emailLocalPartResolver,
	}

	for _, resolve := range resolvers {
		if name := strings.TrimSpace(resolve(ctx, rec)); name != "" {
			rec.Name = name
			return
		}
	}
}

func (ne *NameEnricher) fromProfile(ctx context.Context, rec *Recipient) string {
	if rec.UserID == 0 {
		return ""
	}
	user, err := ne.Identity.FindByID(ctx, rec.UserID)
	if err != nil {
		ne.Logger.WithError(err).WithField("user_id", rec.UserID).Debug("profile lookup failed during enrichment")
		return ""
	}
	return user.FullName
}

func (ne *NameEnricher) fromDirectoryByID(ctx context.Context, rec *Recipient) string {
	if rec.AuthUID == "" {
		return ""
	}
	entry, err := ne.Directory.GetByID(ctx, rec.AuthUID)
	if err != nil {
		ne.Logger.WithError(err).WithField("auth_uid", rec.AuthUID).Debug("directory lookup failed during enrichment")
		return ""
	}
	return entry.DisplayName()
}

func listingScanResolver(listing []AccountEntry) nameResolver {
	return func(_ context.Context, rec *Recipient) string {
		if entry := findEntryByEmail(listing, rec.Email); entry != nil {
			return entry.DisplayName()
		}
		return ""
	}
}

func emailLocalPartResolver(_ context.Context, rec *Recipient) string {
	return DeriveNameFromEmail(rec.Email)
}

// DeriveNameFromEmail turns the email's local part into a readable name:
// "jane.doe@example.com" becomes "Jane Doe".
func DeriveNameFromEmail(email string) string {
	local := email
	if at := strings.Index(email, "@"); at != -1 {
		local = email[:at]
	}

	segments := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(segments) == 0 {
		return ""
	}

	for i, seg := range segments {
		segments[i] = titleCase(seg)
	}
	return strings.Join(segments, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
