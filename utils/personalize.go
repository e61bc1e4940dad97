package utils

import (
	"context"
	"strings"

	"edublast/models"

	"github.com/sirupsen/logrus"
)

// DefaultProgramLabel is used when no enrollment yields a program title.
const DefaultProgramLabel = "General Program"

// enrollmentLookback caps how many recent enrollments are consulted when
// deriving the recipient's program label.
const enrollmentLookback = 5

// Substitute replaces every {{key}} placeholder present in vars. It is pure:
// the same template and bag always yield the same output.
func Substitute(text string, vars map[string]string) string {
	out := text
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

// HasUnresolvedPlaceholders reports whether any {{ token survived
// substitution. Used as a log-only diagnostic, never an error.
func HasUnresolvedPlaceholders(text string) bool {
	return strings.Contains(text, "{{")
}

// Personalizer builds the per-recipient variable bag, including the derived
// program label looked up from enrollment data.
type Personalizer struct {
	Enrollments EnrollmentStore
	Logger      *logrus.Logger
}

// ProgramLabel derives the recipient's current program from their most
// recent enrollments. Multiple distinct titles are joined with a comma;
// recipients without enrollment data get the default label. Lookup failures
// degrade to the default label and never fail the broadcast.
func (p *Personalizer) ProgramLabel(ctx context.Context, rec *Recipient) string {
	if rec.UserID == 0 {
		return DefaultProgramLabel
	}

	participant, err := p.Enrollments.ParticipantByUserID(ctx, rec.UserID)
	if err != nil || participant == nil {
		if err != nil {
			p.Logger.WithError(err).WithField("user_id", rec.UserID).Debug("participant lookup failed")
		}
		return DefaultProgramLabel
	}

	enrollments, err := p.Enrollments.RecentEnrollments(ctx, participant.ID, enrollmentLookback)
	if err != nil {
		p.Logger.WithError(err).WithField("participant_id", participant.ID).Debug("enrollment lookup failed")
		return DefaultProgramLabel
	}

	var titles []string
	seen := make(map[string]struct{})
	for _, e := range enrollments {
		title := strings.TrimSpace(e.Program.Title)
		if title == "" {
			continue
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		titles = append(titles, title)
	}

	if len(titles) == 0 {
		return DefaultProgramLabel
	}
	return strings.Join(titles, ", ")
}

// VariableBag returns the substitution variables for one recipient. The
// recipient should already be enriched and carry its program label.
func (p *Personalizer) VariableBag(rec *Recipient) map[string]string {
	role := rec.Role
	if role == "" {
		role = models.RoleParticipant
	}

	registrationDate := ""
	if rec.CreatedAt != nil {
		registrationDate = rec.CreatedAt.Format("2 January 2006")
	}

	program := rec.Program
	if program == "" {
		program = DefaultProgramLabel
	}

	return map[string]string{
		"name":              rec.Name,
		"email":             rec.Email,
		"program":           program,
		"referral_code":     rec.ReferralCode,
		"registration_date": registrationDate,
		"role":              role,
	}
}
