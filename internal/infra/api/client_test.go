package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"liveclass-agent/internal/domain"
)

func TestFetchSessionsMapsDirectory(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"sessions": [
				{"id": "s1", "title": "Networks L1", "courseName": "Networks", "courseCode": "CS305",
				 "status": "live", "zoom": {"meetingId": "820111"}},
				{"id": "s2", "title": "Databases L5", "courseName": "Databases", "courseCode": "CS310",
				 "status": "upcoming", "zoom": {}}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok-123")
	records, err := client.FetchSessions(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Status != domain.StatusLive || records[0].RoomAlias != "820111" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].RoomAlias != "" || records[1].RoomKey() != "s2" {
		t.Fatalf("expected ID fallback for aliasless session: %+v", records[1])
	}
}

func TestFetchSessionsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "").FetchSessions(context.Background()); err == nil {
		t.Fatalf("expected error on 401")
	}
}

func TestSendReportPostsPayload(t *testing.T) {
	reports := make(chan domain.TelemetryReport, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/engagement/network" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var report domain.TelemetryReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			t.Errorf("decode report: %v", err)
		}
		reports <- report
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sent := domain.TelemetryReport{
		ID:        "r1",
		SessionID: "s1",
		StudentID: "stu-1",
		Role:      "student",
		RTTMs:     82.5,
		JitterMs:  6.25,
		Stability: 93,
		Quality:   "Good",
		SentAt:    time.Now(),
	}
	if err := NewClient(srv.URL, "").SendReport(context.Background(), sent); err != nil {
		t.Fatalf("send report: %v", err)
	}

	got := <-reports
	if got.SessionID != "s1" || got.Role != "student" || got.RTTMs != 82.5 || got.Quality != "Good" {
		t.Fatalf("unexpected report on wire: %+v", got)
	}
}
