package utils

import (
	"strings"
	"testing"

	"edublast/models"

	"github.com/stretchr/testify/assert"
)

func TestAssembleDocumentWrapsBodyInShell(t *testing.T) {
	out := AssembleDocument("<p>Hello</p>", &models.EmailTemplate{}, nil)

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<p>Hello</p>")
	assert.Contains(t, out, `width="600"`)
	assert.Contains(t, out, "</body>")
}

func TestAssembleDocumentHeaderImage(t *testing.T) {
	tmpl := &models.EmailTemplate{HeaderImageURL: "https://cdn.example.com/banner.png"}

	out := AssembleDocument("<p>Body</p>", tmpl, nil)

	assert.Contains(t, out, "https://cdn.example.com/banner.png")
	assert.Less(t, strings.Index(out, "banner.png"), strings.Index(out, "<p>Body</p>"))
}

func TestAssembleDocumentButtonRequiresTextAndURL(t *testing.T) {
	textOnly := AssembleDocument("<p>x</p>", &models.EmailTemplate{ButtonText: "Join"}, nil)
	assert.NotContains(t, textOnly, "Join")

	urlOnly := AssembleDocument("<p>x</p>", &models.EmailTemplate{ButtonURL: "https://example.com/join"}, nil)
	assert.NotContains(t, urlOnly, "https://example.com/join")

	both := AssembleDocument("<p>x</p>", &models.EmailTemplate{
		ButtonText: "Join {{program}}",
		ButtonURL:  "https://example.com/join?ref={{referral_code}}",
	}, map[string]string{"program": "AI 101", "referral_code": "REF9"})
	assert.Contains(t, both, ">Join AI 101</a>")
	assert.Contains(t, both, "https://example.com/join?ref=REF9")
	assert.Contains(t, both, defaultButtonColor)
}

func TestAssembleDocumentButtonCustomColor(t *testing.T) {
	out := AssembleDocument("<p>x</p>", &models.EmailTemplate{
		ButtonText: "Go", ButtonURL: "https://example.com", ButtonColor: "#112233",
	}, nil)

	assert.Contains(t, out, "#112233")
	assert.NotContains(t, out, defaultButtonColor)
}

func TestSignatureBlockOmitsEmptyFields(t *testing.T) {
	out := AssembleDocument("<p>x</p>", &models.EmailTemplate{
		SignatureEnabled: true,
		SignatureName:    "Rina Putri",
		SignatureEmail:   "rina@example.com",
		SignatureWebsite: "example.com",
	}, nil)

	assert.Contains(t, out, "<strong>Rina Putri</strong>")
	assert.Contains(t, out, "rina@example.com | example.com")
	assert.NotContains(t, out, "<img")
}

func TestSignatureBlockDisabled(t *testing.T) {
	out := AssembleDocument("<p>x</p>", &models.EmailTemplate{
		SignatureEnabled: false,
		SignatureName:    "Rina Putri",
	}, nil)

	assert.NotContains(t, out, "Rina Putri")
}

func TestCleanupMarkup(t *testing.T) {
	dirty := "<p>Real</p><p>&nbsp;</p><p style=\"x\"> <br/> </p>\n\n\n\n<p>Content</p>"

	clean := CleanupMarkup(dirty)

	assert.NotContains(t, clean, "&nbsp;")
	assert.NotContains(t, clean, "<p>&nbsp;</p>")
	assert.Contains(t, clean, "<p>Real</p>")
	assert.Contains(t, clean, "<p>Content</p>")
	assert.NotContains(t, clean, "\n\n\n")
}

func TestCleanupMarkupIdempotent(t *testing.T) {
	dirty := "<p>Keep</p><p>&nbsp;</p>\n\n\n\n<p>Also</p>"

	once := CleanupMarkup(dirty)
	twice := CleanupMarkup(once)

	assert.Equal(t, once, twice)
}
