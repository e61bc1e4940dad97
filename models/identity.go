package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleParticipant = "participant"
	RoleTrainer     = "trainer"
	RoleAdmin       = "admin"
)

// User is the canonical identity profile of the platform. AuthUID links the
// profile to the external account directory entry it was provisioned from.
type User struct {
	gorm.Model
	AuthUID      string `gorm:"uniqueIndex" json:"auth_uid"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	FullName     string `json:"full_name"`
	Role         string `gorm:"default:'participant';index" json:"role"` // participant, trainer, admin
	ReferralCode string `json:"referral_code"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`

	Participant *Participant `gorm:"foreignKey:UserID" json:"participant,omitempty"`
}

// Participant holds the training-side record of a user
type Participant struct {
	gorm.Model
	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`

	Enrollments []Enrollment `gorm:"foreignKey:ParticipantID" json:"enrollments,omitempty"`
}

// Program is a training program participants enroll in
type Program struct {
	gorm.Model
	Title    string `gorm:"not null" json:"title"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// Enrollment joins a participant to a program
type Enrollment struct {
	gorm.Model
	ParticipantID uint       `gorm:"not null;index" json:"participant_id"`
	ProgramID     uint       `gorm:"not null;index" json:"program_id"`
	EnrolledAt    *time.Time `json:"enrolled_at"`
	Status        string     `gorm:"default:'active'" json:"status"`

	Program Program `json:"program"`
}
