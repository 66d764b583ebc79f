package domain

import "time"

// SessionStatus is the lifecycle state of a class session as reported by the directory.
type SessionStatus string

const (
	StatusUpcoming  SessionStatus = "upcoming"
	StatusLive      SessionStatus = "live"
	StatusCompleted SessionStatus = "completed"
)

// SessionRecord is the local view of one session from the directory.
// RoomAlias is the key used to address the real-time room (the meeting ID in
// the hosted deployment); it may differ from the persistent ID, and some
// lifecycle events only carry one of the two.
type SessionRecord struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	CourseName   string        `json:"courseName"`
	CourseCode   string        `json:"courseCode"`
	Status       SessionStatus `json:"status"`
	RoomAlias    string        `json:"roomAlias,omitempty"`
	Participants int           `json:"participants"`
}

// RoomKey returns the key used to join the session's real-time room,
// falling back to the record ID when no alias exists.
func (r SessionRecord) RoomKey() string {
	if r.RoomAlias != "" {
		return r.RoomAlias
	}
	return r.ID
}

// Matches reports whether a lifecycle event addressed by key refers to this
// record. Senders may use either the session ID or the room alias.
func (r SessionRecord) Matches(key string) bool {
	if key == "" {
		return false
	}
	return key == r.ID || key == r.RoomAlias
}

// Identity identifies the student on the wire. Name and Email are used only
// for server-side report attribution.
type Identity struct {
	ID    string `json:"studentId"`
	Name  string `json:"studentName"`
	Email string `json:"studentEmail"`
	Role  string `json:"role"`
}

// LatencySample is one measured round trip.
type LatencySample struct {
	RTT time.Duration
	At  time.Time
}

// LatencyStats is the windowed aggregate derived from recent samples.
// Jitter is the mean absolute difference between consecutive samples;
// Stability is the percentage of samples within one jitter of the mean.
type LatencyStats struct {
	MeanRTT   time.Duration
	Jitter    time.Duration
	Stability int // 0-100
	Samples   int
}

// NetworkSnapshot is the stats/quality pair frozen at answer-submission time.
type NetworkSnapshot struct {
	Quality  QualityLevel `json:"quality"`
	RTTMs    float64      `json:"rttMs"`
	JitterMs float64      `json:"jitterMs"`
}

// QuizChallenge is a pushed question with a hard deadline. It lives from push
// until answered, dismissed, or expired, whichever comes first.
type QuizChallenge struct {
	ID        string
	Question  string
	Options   []string
	TimeLimit int // seconds
	PushedAt  time.Time
}

// QuizAnswer is the single outbound submission for a challenge.
// Network is nil when no latency sample existed at submission time.
type QuizAnswer struct {
	QuestionID  string           `json:"questionId"`
	AnswerIndex int              `json:"answerIndex"`
	TimeTaken   int              `json:"timeTaken"`
	StudentID   string           `json:"studentId"`
	SessionID   string           `json:"sessionId"`
	Network     *NetworkSnapshot `json:"networkStrength"`
}

// Outcome is the terminal state of a challenge.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeExpired   Outcome = "expired"
	OutcomeDismissed Outcome = "dismissed"
)

// QuizOutcomeRecord is the archived terminal state of one challenge.
// AnswerIndex and TimeTaken are meaningful only for OutcomeAnswered.
type QuizOutcomeRecord struct {
	ChallengeID string
	SessionID   string
	StudentID   string
	Outcome     Outcome
	AnswerIndex int
	TimeTaken   int
	ClosedAt    time.Time
}

// TelemetryReport is one periodic aggregated latency report.
type TelemetryReport struct {
	ID        string    `json:"reportId"`
	SessionID string    `json:"sessionId"`
	StudentID string    `json:"studentId"`
	Role      string    `json:"role"`
	RTTMs     float64   `json:"rttMs"`
	JitterMs  float64   `json:"jitterMs"`
	Stability int       `json:"stability"`
	Quality   string    `json:"quality"`
	SentAt    time.Time `json:"sentAt"`
}
