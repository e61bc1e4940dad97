package models

import (
	"gorm.io/gorm"
)

// EmailTemplate is the stored message template a broadcast renders from.
// Template editing is owned by the admin UI; this service only reads it.
type EmailTemplate struct {
	gorm.Model
	Name    string `gorm:"not null" json:"name"`
	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`

	// Optional header image shown above the body
	HeaderImageURL string `json:"header_image_url"`

	// Optional call-to-action button (rendered only when text AND url are set)
	ButtonText  string `json:"button_text"`
	ButtonURL   string `json:"button_url"`
	ButtonColor string `gorm:"default:'#3498db'" json:"button_color"`

	// Optional signature block
	SignatureEnabled bool   `gorm:"default:false" json:"signature_enabled"`
	SignatureLogoURL string `json:"signature_logo_url"`
	SignatureName    string `json:"signature_name"`
	SignatureTitle   string `json:"signature_title"`
	SignatureEmail   string `json:"signature_email"`
	SignaturePhone   string `json:"signature_phone"`
	SignatureWebsite string `json:"signature_website"`
	SignatureAddress string `json:"signature_address"`
}
