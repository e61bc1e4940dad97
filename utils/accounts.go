package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AccountDirectory is the secondary identity/account store: the admin API of
// the external auth service the platform was provisioned on. It only supports
// read-by-id and list-all; there is no email filter.
type AccountDirectory interface {
	GetByID(ctx context.Context, uid string) (*AccountEntry, error)
	ListAll(ctx context.Context) ([]AccountEntry, error)
}

// AccountMetadata is one metadata payload of a directory entry.
type AccountMetadata struct {
	Name string `json:"name,omitempty"`
}

// AccountEntry is one directory account. The directory is inconsistent about
// where the display name lives: newer entries carry it in user_metadata,
// older ones only in raw_user_meta_data. DisplayName resolves that in one
// place instead of each call site probing both fields.
type AccountEntry struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Metadata    AccountMetadata `json:"user_metadata"`
	RawMetadata AccountMetadata `json:"raw_user_meta_data"`
}

// DisplayName returns the entry's display name, preferring the primary
// metadata field over the legacy raw one. Empty when neither is set.
func (e *AccountEntry) DisplayName() string {
	if name := strings.TrimSpace(e.Metadata.Name); name != "" {
		return name
	}
	return strings.TrimSpace(e.RawMetadata.Name)
}

// HTTPAccountDirectory talks to the directory's admin REST API with a
// service key.
type HTTPAccountDirectory struct {
	BaseURL    string
	ServiceKey string
	Client     *http.Client
	Logger     *logrus.Logger
}

func NewHTTPAccountDirectory(baseURL, serviceKey string, logger *logrus.Logger) *HTTPAccountDirectory {
	return &HTTPAccountDirectory{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		Client:     &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

func (d *HTTPAccountDirectory) GetByID(ctx context.Context, uid string) (*AccountEntry, error) {
	var entry AccountEntry
	if err := d.getJSON(ctx, "/admin/users/"+uid, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (d *HTTPAccountDirectory) ListAll(ctx context.Context) ([]AccountEntry, error) {
	var payload struct {
		Users []AccountEntry `json:"users"`
	}
	if err := d.getJSON(ctx, "/admin/users", &payload); err != nil {
		return nil, err
	}
	return payload.Users, nil
}

func (d *HTTPAccountDirectory) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.ServiceKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode directory response: %w", err)
	}
	return nil
}
