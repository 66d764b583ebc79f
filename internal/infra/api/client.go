package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"liveclass-agent/internal/domain"
)

// Client talks to the dashboard REST backend: the session directory query and
// the network telemetry side-channel. Auth is a bearer credential issued by
// the external auth collaborator; this client only forwards it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type sessionsResponse struct {
	Success  bool          `json:"success"`
	Sessions []wireSession `json:"sessions"`
}

type wireSession struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CourseName string `json:"courseName"`
	CourseCode string `json:"courseCode"`
	Status     string `json:"status"`
	Zoom       struct {
		MeetingID string `json:"meetingId"`
	} `json:"zoom"`
}

// FetchSessions queries the session directory. Implements app.DirectoryFetcher.
func (c *Client) FetchSessions(ctx context.Context) ([]domain.SessionRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sessions", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sessions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sessions: status %d", resp.StatusCode)
	}

	var body sessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	records := make([]domain.SessionRecord, 0, len(body.Sessions))
	for _, s := range body.Sessions {
		records = append(records, domain.SessionRecord{
			ID:         s.ID,
			Title:      s.Title,
			CourseName: s.CourseName,
			CourseCode: s.CourseCode,
			Status:     domain.SessionStatus(s.Status),
			RoomAlias:  s.Zoom.MeetingID,
		})
	}
	return records, nil
}

// SendReport posts one aggregated latency report. The server decides whether
// to persist it based on the role; the client always sends so local
// monitoring stays live. Implements app.ReportSink.
func (c *Client) SendReport(ctx context.Context, report domain.TelemetryReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/engagement/network", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send report: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
