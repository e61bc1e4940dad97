package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewTrackingID returns the per-recipient identifier carried on the outbound
// message and its ledger row.
func NewTrackingID() string {
	return uuid.New().String()
}

// OpenTrackingPixelURL builds the pixel URL recorded against a delivery.
func OpenTrackingPixelURL(baseURL, trackingID string) string {
	return fmt.Sprintf("%s/track/open/%s", strings.TrimRight(baseURL, "/"), trackingID)
}

// InjectOpenTracking appends an invisible open-tracking pixel to the
// assembled document.
func InjectOpenTracking(html, baseURL, trackingID string) string {
	pixel := fmt.Sprintf(
		`<img src="%s" alt="" width="1" height="1" style="display:none">`,
		OpenTrackingPixelURL(baseURL, trackingID),
	)

	if idx := strings.LastIndex(html, "</body>"); idx != -1 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}
