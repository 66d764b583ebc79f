package app

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"liveclass-agent/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultPingInterval   = 3 * time.Second
	defaultReportInterval = 5 * time.Second
	defaultWindowSize     = 15
)

// PingChannel is the slice of the realtime connection the sampler needs:
// a way to send a ping payload and a way to check the channel is open.
type PingChannel interface {
	Ping(payload string) error
	IsOpen() bool
}

// ReportSink receives the periodic aggregated latency reports.
type ReportSink interface {
	SendReport(ctx context.Context, report domain.TelemetryReport) error
}

// SamplerConfig tunes the measurement cadence. Zero values fall back to
// the defaults (3s pings, 5s reports, window of 15).
type SamplerConfig struct {
	PingInterval   time.Duration
	ReportInterval time.Duration
	WindowSize     int
}

// Sampler measures round trips over an open channel and keeps windowed
// statistics. Pings and reports run on independent timers so report chatter
// stays bounded regardless of ping cadence. Sustained loss only degrades the
// reported quality; the sampler never closes the connection.
type Sampler struct {
	cfg  SamplerConfig
	sink ReportSink
	now  func() time.Time

	mu          sync.Mutex
	running     bool
	done        chan struct{}
	window      []domain.LatencySample
	stats       domain.LatencyStats
	measured    bool
	level       domain.QualityLevel
	lost        int
	seq         uint64
	pendingSeq  string
	pendingAt   time.Time
	onQuality   func(domain.QualityLevel)
	sessionID   string
	identity    domain.Identity
}

func NewSampler(cfg SamplerConfig, sink ReportSink) *Sampler {
	return newSamplerWithClock(cfg, sink, time.Now)
}

// newSamplerWithClock allows deterministic timestamps in tests.
func newSamplerWithClock(cfg SamplerConfig, sink ReportSink, now func() time.Time) *Sampler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = defaultReportInterval
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	return &Sampler{cfg: cfg, sink: sink, now: now}
}

// OnQualityChange registers the edge-triggered quality callback. It fires once
// per transition; repeated samples at the same level produce no calls.
func (s *Sampler) OnQualityChange(fn func(domain.QualityLevel)) {
	s.mu.Lock()
	s.onQuality = fn
	s.mu.Unlock()
}

// Start begins the ping and report timers against ch. It refuses to attach to
// a channel that is not open; callers must wait for the connection to settle.
// Calling Start while already running restarts cleanly (stop-before-restart),
// and every start begins a fresh measurement window.
func (s *Sampler) Start(ch PingChannel, sessionID string, ident domain.Identity) error {
	if !ch.IsOpen() {
		log.Printf("sampler: channel not open, not starting")
		return domain.ErrNotConnected
	}
	s.Stop()

	s.mu.Lock()
	s.running = true
	s.done = make(chan struct{})
	s.sessionID = sessionID
	s.identity = ident
	// A new session starts empty: samples, loss, and the last classified
	// level from a previous room never carry into this session's reports.
	s.window = nil
	s.stats = domain.LatencyStats{}
	s.measured = false
	s.level = domain.QualityExcellent
	s.lost = 0
	s.pendingSeq = ""
	done := s.done
	s.mu.Unlock()

	go s.loop(ch, done)
	return nil
}

// Stop cancels both timers. Idempotent; safe to call when never started.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.pendingSeq = ""
	s.mu.Unlock()
}

func (s *Sampler) loop(ch PingChannel, done chan struct{}) {
	ping := time.NewTicker(s.cfg.PingInterval)
	report := time.NewTicker(s.cfg.ReportInterval)
	defer ping.Stop()
	defer report.Stop()

	s.sendPing(ch)
	for {
		select {
		case <-done:
			return
		case <-ping.C:
			s.sendPing(ch)
		case <-report.C:
			s.sendReport()
		}
	}
}

func (s *Sampler) sendPing(ch PingChannel) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if s.pendingSeq != "" {
		// The previous ping never got a reply before the next one fired.
		// Treat it as lost rather than recording a bogus zero RTT.
		s.lost++
	}
	s.seq++
	payload := strconv.FormatUint(s.seq, 10)
	s.pendingSeq = payload
	s.pendingAt = s.now()
	s.mu.Unlock()

	if err := ch.Ping(payload); err != nil {
		log.Printf("sampler: ping failed: %v", err)
	}
}

// RecordPong matches a pong payload against the outstanding ping and records
// the round trip. Replies to superseded pings are ignored.
func (s *Sampler) RecordPong(payload string) {
	s.mu.Lock()
	if payload == "" || payload != s.pendingSeq {
		s.mu.Unlock()
		return
	}
	rtt := s.now().Sub(s.pendingAt)
	s.pendingSeq = ""
	s.mu.Unlock()

	s.observe(rtt)
}

// observe pushes one sample into the window, recomputes the aggregate, and
// fires the quality callback when the classification changed.
func (s *Sampler) observe(rtt time.Duration) {
	s.mu.Lock()
	if len(s.window) == s.cfg.WindowSize {
		s.window = s.window[1:]
	}
	s.window = append(s.window, domain.LatencySample{RTT: rtt, At: s.now()})
	s.stats = computeStats(s.window)

	level := domain.Classify(rtt)
	changed := !s.measured || level != s.level
	s.measured = true
	s.level = level
	fn := s.onQuality
	s.mu.Unlock()

	if changed && fn != nil {
		fn(level)
	}
}

// Stats returns the current aggregate; ok is false before the first sample.
func (s *Sampler) Stats() (domain.LatencyStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.measured
}

// Quality returns the last classified level; ok is false before the first
// sample, which is a distinct state from "measured as critical".
func (s *Sampler) Quality() (domain.QualityLevel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.measured
}

// Snapshot freezes the current stats/quality pair for answer submission.
// Returns nil when nothing has been measured yet.
func (s *Sampler) Snapshot() *domain.NetworkSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.measured {
		return nil
	}
	return &domain.NetworkSnapshot{
		Quality:  s.level,
		RTTMs:    float64(s.stats.MeanRTT.Microseconds()) / 1000,
		JitterMs: float64(s.stats.Jitter.Microseconds()) / 1000,
	}
}

// Lost reports how many pings went unanswered before the next ping fired.
func (s *Sampler) Lost() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}

// sendReport posts one aggregated report. Ticks before the first measured
// sample are skipped; the side-channel only ever carries real numbers.
func (s *Sampler) sendReport() {
	s.mu.Lock()
	if !s.measured {
		s.mu.Unlock()
		return
	}
	report := domain.TelemetryReport{
		ID:        uuid.NewString(),
		SessionID: s.sessionID,
		StudentID: s.identity.ID,
		Role:      s.identity.Role,
		RTTMs:     float64(s.stats.MeanRTT.Microseconds()) / 1000,
		JitterMs:  float64(s.stats.Jitter.Microseconds()) / 1000,
		Stability: s.stats.Stability,
		Quality:   s.level.String(),
		SentAt:    s.now(),
	}
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	if err := sink.SendReport(ctx, report); err != nil {
		log.Printf("sampler: report failed: %v", err)
	}
}

func computeStats(window []domain.LatencySample) domain.LatencyStats {
	if len(window) == 0 {
		return domain.LatencyStats{}
	}

	var sum time.Duration
	for _, sample := range window {
		sum += sample.RTT
	}
	mean := sum / time.Duration(len(window))

	var jitter time.Duration
	if len(window) > 1 {
		var diffs time.Duration
		for i := 1; i < len(window); i++ {
			d := window[i].RTT - window[i-1].RTT
			if d < 0 {
				d = -d
			}
			diffs += d
		}
		jitter = diffs / time.Duration(len(window)-1)
	}

	within := 0
	for _, sample := range window {
		d := sample.RTT - mean
		if d < 0 {
			d = -d
		}
		if d <= jitter {
			within++
		}
	}

	return domain.LatencyStats{
		MeanRTT:   mean,
		Jitter:    jitter,
		Stability: within * 100 / len(window),
		Samples:   len(window),
	}
}
