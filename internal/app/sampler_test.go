package app

import (
	"context"
	"testing"
	"time"

	"liveclass-agent/internal/domain"
)

func TestQualityCallbackIsEdgeTriggered(t *testing.T) {
	s := newSamplerWithClock(SamplerConfig{}, nil, time.Now)

	var levels []domain.QualityLevel
	s.OnQualityChange(func(level domain.QualityLevel) {
		levels = append(levels, level)
	})

	for _, ms := range []int{40, 45, 42} {
		s.observe(time.Duration(ms) * time.Millisecond)
	}
	if len(levels) != 1 || levels[0] != domain.QualityExcellent {
		t.Fatalf("expected single Excellent callback, got %v", levels)
	}

	s.observe(120 * time.Millisecond)
	if len(levels) != 2 || levels[1] != domain.QualityFair {
		t.Fatalf("expected Fair transition, got %v", levels)
	}

	// Same classification again: no additional callback.
	s.observe(150 * time.Millisecond)
	if len(levels) != 2 {
		t.Fatalf("expected no callback on repeated level, got %v", levels)
	}
}

func TestQualityUnknownBeforeFirstSample(t *testing.T) {
	s := newSamplerWithClock(SamplerConfig{}, nil, time.Now)

	if _, ok := s.Quality(); ok {
		t.Fatalf("expected no quality before first sample")
	}
	if snap := s.Snapshot(); snap != nil {
		t.Fatalf("expected nil snapshot before first sample, got %+v", snap)
	}

	s.observe(600 * time.Millisecond)
	level, ok := s.Quality()
	if !ok || level != domain.QualityCritical {
		t.Fatalf("expected measured Critical, got %s ok=%v", level, ok)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	s := newSamplerWithClock(SamplerConfig{WindowSize: 3}, nil, time.Now)

	for _, ms := range []int{10, 20, 30, 40} {
		s.observe(time.Duration(ms) * time.Millisecond)
	}
	stats, ok := s.Stats()
	if !ok {
		t.Fatalf("expected stats")
	}
	if stats.Samples != 3 {
		t.Fatalf("expected window of 3, got %d", stats.Samples)
	}
	// Window is [20,30,40]: mean 30ms.
	if stats.MeanRTT != 30*time.Millisecond {
		t.Fatalf("expected mean 30ms, got %v", stats.MeanRTT)
	}
}

func TestComputeStats(t *testing.T) {
	now := time.Now()
	window := []domain.LatencySample{
		{RTT: 40 * time.Millisecond, At: now},
		{RTT: 60 * time.Millisecond, At: now},
		{RTT: 50 * time.Millisecond, At: now},
	}
	stats := computeStats(window)

	if stats.MeanRTT != 50*time.Millisecond {
		t.Fatalf("mean = %v, want 50ms", stats.MeanRTT)
	}
	// |60-40| + |50-60| = 30ms over 2 gaps.
	if stats.Jitter != 15*time.Millisecond {
		t.Fatalf("jitter = %v, want 15ms", stats.Jitter)
	}
	// All three samples are within 15ms of the 50ms mean.
	if stats.Stability != 100 {
		t.Fatalf("stability = %d, want 100", stats.Stability)
	}
}

func TestComputeStatsSingleSample(t *testing.T) {
	stats := computeStats([]domain.LatencySample{{RTT: 80 * time.Millisecond}})
	if stats.MeanRTT != 80*time.Millisecond || stats.Jitter != 0 {
		t.Fatalf("unexpected stats for single sample: %+v", stats)
	}
	if stats.Stability != 100 {
		t.Fatalf("single sample should be fully stable, got %d", stats.Stability)
	}
}

type fakeChannel struct {
	open  bool
	pings []string
	err   error
}

func (f *fakeChannel) Ping(payload string) error {
	f.pings = append(f.pings, payload)
	return f.err
}

func (f *fakeChannel) IsOpen() bool { return f.open }

func TestUnansweredPingCountsAsLost(t *testing.T) {
	clock := time.Now()
	s := newSamplerWithClock(SamplerConfig{}, nil, func() time.Time { return clock })
	s.running = true
	ch := &fakeChannel{open: true}

	s.sendPing(ch)
	clock = clock.Add(42 * time.Millisecond)
	s.RecordPong(ch.pings[0])

	stats, _ := s.Stats()
	if stats.Samples != 1 || stats.MeanRTT != 42*time.Millisecond {
		t.Fatalf("expected one 42ms sample, got %+v", stats)
	}

	// Two pings with no reply in between: the first is superseded and lost.
	s.sendPing(ch)
	s.sendPing(ch)
	if s.Lost() != 1 {
		t.Fatalf("expected 1 lost ping, got %d", s.Lost())
	}

	// A late pong for the superseded ping must not enter the window.
	s.RecordPong(ch.pings[1])
	stats, _ = s.Stats()
	if stats.Samples != 1 {
		t.Fatalf("superseded pong was recorded: %+v", stats)
	}

	// The outstanding ping still resolves normally.
	clock = clock.Add(55 * time.Millisecond)
	s.RecordPong(ch.pings[2])
	stats, _ = s.Stats()
	if stats.Samples != 2 {
		t.Fatalf("expected second sample, got %+v", stats)
	}
}

func TestStartResetsSessionState(t *testing.T) {
	clock := time.Now()
	s := newSamplerWithClock(SamplerConfig{PingInterval: time.Hour, ReportInterval: time.Hour}, nil, func() time.Time { return clock })
	s.running = true
	s.done = make(chan struct{})
	ch := &fakeChannel{open: true}

	// First session: one 40ms sample and one lost ping.
	s.sendPing(ch)
	clock = clock.Add(40 * time.Millisecond)
	s.RecordPong(ch.pings[0])
	s.sendPing(ch)
	s.sendPing(ch)
	s.Stop()

	var levels []domain.QualityLevel
	s.OnQualityChange(func(level domain.QualityLevel) { levels = append(levels, level) })

	if err := s.Start(ch, "session-b", domain.Identity{ID: "stu-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if _, ok := s.Stats(); ok {
		t.Fatalf("previous session's samples leaked into the new window")
	}
	if snap := s.Snapshot(); snap != nil {
		t.Fatalf("expected nil snapshot after restart, got %+v", snap)
	}
	if s.Lost() != 0 {
		t.Fatalf("lost counter survived restart: %d", s.Lost())
	}

	// The new session's first sample classifies at the same level as the old
	// session's last one; the transition callback must still fire.
	s.observe(42 * time.Millisecond)
	if len(levels) != 1 || levels[0] != domain.QualityExcellent {
		t.Fatalf("expected fresh Excellent callback, got %v", levels)
	}
	stats, ok := s.Stats()
	if !ok || stats.Samples != 1 || stats.MeanRTT != 42*time.Millisecond {
		t.Fatalf("expected a single fresh sample, got %+v", stats)
	}
}

type recordingSink struct {
	reports []domain.TelemetryReport
}

func (r *recordingSink) SendReport(_ context.Context, report domain.TelemetryReport) error {
	r.reports = append(r.reports, report)
	return nil
}

func TestNoReportBeforeFirstSample(t *testing.T) {
	sink := &recordingSink{}
	s := newSamplerWithClock(SamplerConfig{}, sink, time.Now)
	s.sessionID = "sess-1"

	s.sendReport()
	if len(sink.reports) != 0 {
		t.Fatalf("report sent with nothing measured: %+v", sink.reports)
	}

	s.observe(80 * time.Millisecond)
	s.sendReport()
	if len(sink.reports) != 1 {
		t.Fatalf("expected one report, got %d", len(sink.reports))
	}
	report := sink.reports[0]
	if report.Quality != "Good" || report.RTTMs != 80 || report.SessionID != "sess-1" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestStartRefusesClosedChannel(t *testing.T) {
	s := NewSampler(SamplerConfig{}, nil)
	err := s.Start(&fakeChannel{open: false}, "s1", domain.Identity{ID: "u1"})
	if err != domain.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewSampler(SamplerConfig{PingInterval: time.Hour, ReportInterval: time.Hour}, nil)

	// Never started.
	s.Stop()
	s.Stop()

	if err := s.Start(&fakeChannel{open: true}, "s1", domain.Identity{ID: "u1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
	s.Stop()
}
