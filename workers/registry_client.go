// workers/registry_client.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"delivery-impact-service/models"
)

const (
	donationsPath  = "/api/v1/public/donations"
	volunteersPath = "/api/v1/public/volunteers"
)

// RemoteDonation is a donation record as served by the donation registry.
type RemoteDonation struct {
	ID          string    `json:"id"`
	DonorID     string    `json:"donor_id"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Category    string    `json:"category"`
	Quantity    float64   `json:"quantity"`
	Unit        string    `json:"unit"`
	Status      string    `json:"status"`
	ServingSize *string   `json:"serving_size,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r RemoteDonation) toModel() models.Donation {
	return models.Donation{
		ID:          r.ID,
		DonorID:     r.DonorID,
		RecipientID: r.RecipientID,
		Category:    r.Category,
		Quantity:    r.Quantity,
		Unit:        r.Unit,
		Status:      r.Status,
		ServingSize: r.ServingSize,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// RemoteVolunteer is the roster slice of a user profile.
type RemoteVolunteer struct {
	UserID    string    `json:"user_id"`
	IsActive  bool      `json:"is_active"`
	AvgRating float64   `json:"avg_rating"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RegistryClient polls the registry's public change feeds.
type RegistryClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func (c *RegistryClient) ChangedDonations(ctx context.Context, since time.Time) ([]RemoteDonation, error) {
	var response struct {
		Donations []RemoteDonation `json:"donations"`
	}
	if err := c.getChanges(ctx, donationsPath, since, &response); err != nil {
		return nil, err
	}
	return response.Donations, nil
}

func (c *RegistryClient) ChangedVolunteers(ctx context.Context, since time.Time) ([]RemoteVolunteer, error) {
	var response struct {
		Volunteers []RemoteVolunteer `json:"volunteers"`
	}
	if err := c.getChanges(ctx, volunteersPath, since, &response); err != nil {
		return nil, err
	}
	return response.Volunteers, nil
}

func (c *RegistryClient) getChanges(ctx context.Context, path string, since time.Time, out any) error {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid registry URL '%s': %w", c.BaseURL, err)
	}
	endpoint := base.JoinPath(path)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", endpoint, err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("registry returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode registry response: %w", err)
	}
	return nil
}
