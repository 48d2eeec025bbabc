// Package checkout is the narrow outbound contract to the hosted payment
// provider. The engine never speaks the provider's own protocol; it only
// asks for a redirect URL and later receives the result on the webhook.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type SessionParams struct {
	BookingID       uuid.UUID `json:"booking_id"`
	TotalPrice      float64   `json:"total_price"`
	SuccessRedirect string    `json:"success_redirect"`
	CancelRedirect  string    `json:"cancel_redirect"`
}

// Provider creates hosted checkout sessions. Implementations must not block
// longer than the request context allows; the pending booking already holds
// the capacity, so a failed session is recovered by the reclaimer.
type Provider interface {
	CreateSession(ctx context.Context, p SessionParams) (string, error)
}

type sessionResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// HTTPProvider posts session requests to the provider's session endpoint.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

func NewHTTPProvider(endpoint string) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPProvider) CreateSession(ctx context.Context, params SessionParams) (string, error) {
	const op = "checkout.HTTPProvider.CreateSession"

	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s: provider returned %d", op, resp.StatusCode)
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	if out.RedirectURL == "" {
		return "", fmt.Errorf("%s: provider returned empty redirect url", op)
	}

	return out.RedirectURL, nil
}
