package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-fulfillment/internal/logger"
)

// EventRequest describes the calendar entry for a confirmed booking.
type EventRequest struct {
	BookingID string     `json:"booking_id"`
	BoxID     string     `json:"box_id"`
	Title     string     `json:"title"`
	StartTime *time.Time `json:"start_time,omitempty"`
}

type eventResponse struct {
	EventID string `json:"event_id"`
	Error   string `json:"error,omitempty"`
}

// Client talks to the calendar synchronizer. Callers guard idempotency
// with the booking's stored external event id; the client itself is a
// plain one-shot POST.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// CreateEvent creates one calendar event and returns its external id.
func (c *Client) CreateEvent(ctx context.Context, req EventRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal calendar event: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calendar service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("calendar event creation failed: status %d", resp.StatusCode)
	}

	var parsed eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode calendar response: %w", err)
	}
	if parsed.EventID == "" {
		return "", fmt.Errorf("calendar service returned no event id: %s", parsed.Error)
	}

	c.log.Info("CALENDAR", fmt.Sprintf("Created calendar event %s for booking %s", parsed.EventID, req.BookingID))
	return parsed.EventID, nil
}
