package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
	"github.com/citaflow/booking-backend/internal/timerange"
)

const callTimeout = 10 * time.Second

// HTTPClient talks to the calendar provider's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: callTimeout},
	}
}

type freeBusyRequest struct {
	CalendarID string    `json:"calendar_id"`
	TimeMin    time.Time `json:"time_min"`
	TimeMax    time.Time `json:"time_max"`
}

type freeBusyResponse struct {
	Busy []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"busy"`
}

type eventBody struct {
	CalendarID  string    `json:"calendar_id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees,omitempty"`
}

type eventResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) GetFreeBusy(ctx context.Context, cred Credential, calendarID string, from, to time.Time) ([]timerange.TimeRange, error) {
	body := freeBusyRequest{CalendarID: calendarID, TimeMin: from, TimeMax: to}

	var resp freeBusyResponse
	if err := c.do(ctx, cred, http.MethodPost, "/freeBusy", body, &resp); err != nil {
		return nil, err
	}

	busy := make([]timerange.TimeRange, 0, len(resp.Busy))
	for _, b := range resp.Busy {
		busy = append(busy, timerange.TimeRange{Start: b.Start, End: b.End})
	}
	return busy, nil
}

func (c *HTTPClient) CreateEvent(ctx context.Context, cred Credential, calendarID string, details EventDetails) (string, error) {
	body := eventBody{
		CalendarID:  calendarID,
		Summary:     details.Summary,
		Description: details.Description,
		Start:       details.Range.Start,
		End:         details.Range.End,
		Attendees:   details.Attendees,
	}

	var resp eventResponse
	if err := c.do(ctx, cred, http.MethodPost, "/events", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) UpdateEvent(ctx context.Context, cred Credential, calendarID, eventID string, details EventDetails) error {
	body := eventBody{
		CalendarID:  calendarID,
		Summary:     details.Summary,
		Description: details.Description,
		Start:       details.Range.Start,
		End:         details.Range.End,
		Attendees:   details.Attendees,
	}
	return c.do(ctx, cred, http.MethodPut, "/events/"+url.PathEscape(eventID), body, nil)
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, cred Credential, calendarID, eventID string) error {
	return c.do(ctx, cred, http.MethodDelete, "/events/"+url.PathEscape(eventID)+"?calendar_id="+url.QueryEscape(calendarID), nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, cred Credential, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal calendar request failed: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build calendar request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperror.Upstream(err, "calendar provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperror.Upstream(
			fmt.Errorf("calendar provider returned status %d", resp.StatusCode),
			"calendar provider request failed",
		)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperror.Upstream(err, "calendar provider returned malformed response")
		}
	}
	return nil
}
