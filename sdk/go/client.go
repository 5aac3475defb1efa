package tidelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Tideline HTTP API client.
type Client struct {
	BaseURL     string
	TripID      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tripID string) *Client {
	return &Client{
		BaseURL: baseURL,
		TripID:  tripID,
		Timeout: 10 * time.Second,
	}
}

// Trip represents the API trip model.
type Trip struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CaptainID string `json:"captain_id"`
	TripDate  string `json:"trip_date"`
	Phase     string `json:"phase"`
}

// PhaseStatus is the current lifecycle snapshot for a trip.
type PhaseStatus struct {
	TripID            string      `json:"trip_id"`
	Phase             string      `json:"phase"`
	NextPhase         string      `json:"next_phase"`
	CurrentTransition *Transition `json:"current_transition,omitempty"`
}

// Transition represents one phase change request.
type Transition struct {
	ID          string   `json:"id"`
	From        string   `json:"from_phase"`
	To          string   `json:"to_phase"`
	Trigger     string   `json:"trigger"`
	Status      string   `json:"status"`
	TriggeredAt string   `json:"triggered_at"`
	CompletedAt *string  `json:"completed_at,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	Errors      []string `json:"errors,omitempty"`
}

// ValidationResult reports transition eligibility.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// HistoryEntry is one stay in a phase.
type HistoryEntry struct {
	Phase      string  `json:"phase"`
	EnteredAt  string  `json:"entered_at"`
	ExitedAt   *string `json:"exited_at,omitempty"`
	DurationMS int64   `json:"duration_ms"`
	Trigger    string  `json:"trigger"`
}

// History is the full phase ledger.
type History struct {
	TripID          string         `json:"trip_id"`
	Entries         []HistoryEntry `json:"entries"`
	TotalDurationMS int64          `json:"total_duration_ms"`
	TransitionCount int            `json:"transition_count"`
}

// Event represents a log entry.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	TripID  string `json:"trip_id"`
	ActorID string `json:"actor_id"`
	Payload string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTrip creates a trip and points the client at it.
func (c *Client) CreateTrip(ctx context.Context, name, captainID, tripDate string) (Trip, error) {
	body := map[string]any{
		"name":       name,
		"captain_id": captainID,
		"trip_date":  tripDate,
	}
	var resp Trip
	if err := c.do(ctx, http.MethodPost, "v0/trips", body, &resp); err != nil {
		return resp, err
	}
	if c.TripID == "" {
		c.TripID = resp.ID
	}
	return resp, nil
}

// PhaseStatus returns the current phase and any in-flight transition.
func (c *Client) PhaseStatus(ctx context.Context) (PhaseStatus, error) {
	var resp PhaseStatus
	err := c.do(ctx, http.MethodGet, c.tripPath("phase"), nil, &resp)
	return resp, err
}

// ValidateTransition dry-runs a transition to the target phase.
func (c *Client) ValidateTransition(ctx context.Context, to string, data map[string]any) (ValidationResult, error) {
	body := map[string]any{"to": to}
	if data != nil {
		body["data"] = data
	}
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, c.tripPath("phase/validate"), body, &resp)
	return resp, err
}

// RequestTransition asks for a phase change.
func (c *Client) RequestTransition(ctx context.Context, to string, data map[string]any) (Transition, error) {
	body := map[string]any{"to": to}
	if data != nil {
		body["data"] = data
	}
	var resp Transition
	err := c.do(ctx, http.MethodPost, c.tripPath("phase/transitions"), body, &resp)
	return resp, err
}

// History returns the phase ledger.
func (c *Client) History(ctx context.Context) (History, error) {
	var resp History
	err := c.do(ctx, http.MethodGet, c.tripPath("phase/history"), nil, &resp)
	return resp, err
}

// Events returns recent trip events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.tripPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddCatch records a catch during the live phase.
func (c *Client) AddCatch(ctx context.Context, species string, weight float64, spot string) error {
	body := map[string]any{
		"species": species,
		"weight":  weight,
		"spot":    spot,
	}
	return c.do(ctx, http.MethodPost, c.tripPath("catches"), body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) tripPath(p string) string {
	trip := url.PathEscape(c.TripID)
	return fmt.Sprintf("v0/trips/%s/%s", trip, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
