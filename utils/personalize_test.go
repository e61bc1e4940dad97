package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"edublast/models"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteReplacesEveryPlaceholder(t *testing.T) {
	vars := map[string]string{
		"nama":    "Ahmad",
		"program": "AI 101",
	}

	out := Substitute("Hi {{nama}}, program {{program}}", vars)

	assert.Equal(t, "Hi Ahmad, program AI 101", out)
	assert.False(t, HasUnresolvedPlaceholders(out))
}

func TestSubstituteIsPure(t *testing.T) {
	vars := map[string]string{"name": "Dewi", "email": "dewi@example.com"}
	text := "{{name}} <{{email}}> {{name}}"

	first := Substitute(text, vars)
	second := Substitute(text, vars)

	assert.Equal(t, first, second)
	assert.Equal(t, "Dewi <dewi@example.com> Dewi", first)
}

func TestSubstituteLeavesUnknownPlaceholders(t *testing.T) {
	out := Substitute("Hello {{name}}, see {{unknown}}", map[string]string{"name": "Eka"})

	assert.Equal(t, "Hello Eka, see {{unknown}}", out)
	assert.True(t, HasUnresolvedPlaceholders(out))
}

func TestProgramLabelJoinsDistinctTitles(t *testing.T) {
	store := &fakeEnrollmentStore{
		participants: map[uint]*models.Participant{4: {Model: gormModel(40), UserID: 4}},
		enrollments: map[uint][]models.Enrollment{40: {
			{Program: models.Program{Title: "AI 101"}},
			{Program: models.Program{Title: "Data Engineering"}},
			{Program: models.Program{Title: "AI 101"}}, // duplicate title collapses
		}},
	}
	p := &Personalizer{Enrollments: store, Logger: testLogger()}

	label := p.ProgramLabel(context.Background(), &Recipient{UserID: 4})

	assert.Equal(t, "AI 101, Data Engineering", label)
	assert.Equal(t, 5, store.lastLimit)
}

func TestProgramLabelDefaults(t *testing.T) {
	p := &Personalizer{Enrollments: &fakeEnrollmentStore{}, Logger: testLogger()}

	// No canonical identity at all.
	assert.Equal(t, DefaultProgramLabel, p.ProgramLabel(context.Background(), &Recipient{}))

	// Known user without a participant record.
	assert.Equal(t, DefaultProgramLabel, p.ProgramLabel(context.Background(), &Recipient{UserID: 9}))
}

func TestProgramLabelDegradesOnLookupFailure(t *testing.T) {
	store := &fakeEnrollmentStore{lookupErr: errors.New("db down")}
	p := &Personalizer{Enrollments: store, Logger: testLogger()}

	assert.Equal(t, DefaultProgramLabel, p.ProgramLabel(context.Background(), &Recipient{UserID: 4}))
}

func TestVariableBag(t *testing.T) {
	p := &Personalizer{Enrollments: &fakeEnrollmentStore{}, Logger: testLogger()}
	created := time.Date(2025, time.March, 9, 10, 0, 0, 0, time.UTC)

	vars := p.VariableBag(&Recipient{
		Email:        "ahmad@example.com",
		Name:         "Ahmad",
		Role:         models.RoleTrainer,
		ReferralCode: "REF123",
		Program:      "AI 101",
		CreatedAt:    &created,
	})

	assert.Equal(t, map[string]string{
		"name":              "Ahmad",
		"email":             "ahmad@example.com",
		"program":           "AI 101",
		"referral_code":     "REF123",
		"registration_date": "9 March 2025",
		"role":              models.RoleTrainer,
	}, vars)
}

func TestVariableBagDefaults(t *testing.T) {
	p := &Personalizer{Enrollments: &fakeEnrollmentStore{}, Logger: testLogger()}

	vars := p.VariableBag(&Recipient{Email: "bare@example.com"})

	assert.Equal(t, DefaultProgramLabel, vars["program"])
	assert.Equal(t, models.RoleParticipant, vars["role"])
	assert.Equal(t, "", vars["registration_date"])
}
