package utils

import (
	"fmt"
	"regexp"
	"strings"

	"edublast/models"
)

const defaultButtonColor = "#3498db"

// AssembleDocument composes the final HTML document around a personalized
// body: optional header image, optional CTA button, optional signature block,
// an artifact cleanup pass and the fixed outer shell.
func AssembleDocument(body string, tmpl *models.EmailTemplate, vars map[string]string) string {
	out := body

	if tmpl.HeaderImageURL != "" {
		out = headerImageBlock(tmpl.HeaderImageURL) + out
	}

	if tmpl.ButtonText != "" && tmpl.ButtonURL != "" {
		text := Substitute(tmpl.ButtonText, vars)
		url := Substitute(tmpl.ButtonURL, vars)
		color := tmpl.ButtonColor
		if color == "" {
			color = defaultButtonColor
		}
		out += ctaBlock(text, url, color)
	}

	if tmpl.SignatureEnabled {
		out += signatureBlock(tmpl)
	}

	out = CleanupMarkup(out)
	return renderShell(out)
}

func headerImageBlock(imageURL string) string {
	return fmt.Sprintf(
		`<div style="text-align: center; margin-bottom: 20px;"><img src="%s" alt="" style="max-width: 100%%; height: auto;"></div>`,
		imageURL,
	)
}

func ctaBlock(text, url, color string) string {
	return fmt.Sprintf(
		`<p style="text-align: center; margin: 30px 0;"><a href="%s" style="display: inline-block; padding: 12px 28px; background-color: %s; color: #ffffff; text-decoration: none; border-radius: 4px; font-weight: bold;">%s</a></p>`,
		url, color, text,
	)
}

// signatureBlock renders whichever signature fields are set; empty fields are
// omitted and contact fields share one separator-joined line.
func signatureBlock(tmpl *models.EmailTemplate) string {
	var b strings.Builder
	b.WriteString(`<div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 13px; color: #555;">`)

	if tmpl.SignatureLogoURL != "" {
		fmt.Fprintf(&b, `<img src="%s" alt="" style="max-height: 48px; margin-bottom: 8px;"><br>`, tmpl.SignatureLogoURL)
	}
	if tmpl.SignatureName != "" {
		fmt.Fprintf(&b, `<strong>%s</strong><br>`, tmpl.SignatureName)
	}
	if tmpl.SignatureTitle != "" {
		fmt.Fprintf(&b, `%s<br>`, tmpl.SignatureTitle)
	}

	var contact []string
	for _, field := range []string{tmpl.SignatureEmail, tmpl.SignaturePhone, tmpl.SignatureWebsite} {
		if field != "" {
			contact = append(contact, field)
		}
	}
	if len(contact) > 0 {
		b.WriteString(strings.Join(contact, " | "))
		b.WriteString("<br>")
	}

	if tmpl.SignatureAddress != "" {
		fmt.Fprintf(&b, `%s<br>`, tmpl.SignatureAddress)
	}

	b.WriteString(`</div>`)
	return b.String()
}

var (
	emptyParagraphRe = regexp.MustCompile(`<p[^>]*>(\s|&nbsp;|<br\s*/?>)*</p>`)
	excessNewlinesRe = regexp.MustCompile(`\n{3,}`)
)

// CleanupMarkup strips artifacts left over by the rich-text editor the
// templates are authored in. Safe to apply more than once; already-clean
// content passes through unchanged.
func CleanupMarkup(html string) string {
	out := strings.ReplaceAll(html, " ", " ")
	out = emptyParagraphRe.ReplaceAllString(out, "")
	out = excessNewlinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// renderShell wraps the assembled content in the fixed single-column outer
// document used for every broadcast, for consistent rendering across clients.
func renderShell(content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; background-color: #f4f4f4;">
    <table role="presentation" width="100%%" cellpadding="0" cellspacing="0" style="background-color: #f4f4f4;">
        <tr>
            <td align="center" style="padding: 20px 0;">
                <table role="presentation" width="600" cellpadding="0" cellspacing="0" style="max-width: 600px; width: 100%%; background-color: #ffffff; border-radius: 6px;">
                    <tr>
                        <td style="padding: 30px; font-family: Arial, sans-serif; font-size: 14px; line-height: 1.6; color: #333;">
%s
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>`, content)
}
