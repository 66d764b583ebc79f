package realtime

import (
	"time"

	"liveclass-agent/internal/domain"
)

// Inbound messages are discriminated by their "type" field. Recognized kinds
// are dispatched to registered handlers; anything else is ignored.
const (
	KindQuiz            = "quiz"
	KindSessionJoined   = "session_joined"
	KindSessionStarted  = "session_started"
	KindMeetingEnded    = "meeting_ended"
	KindParticipantJoin = "participant_joined"
	KindParticipantLeft = "participant_left"
)

type envelope struct {
	Type string `json:"type"`
}

// QuizMessage is the inbound quiz push.
type QuizMessage struct {
	Type       string   `json:"type"`
	SessionID  string   `json:"sessionId"`
	QuestionID string   `json:"questionId"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	TimeLimit  int      `json:"timeLimit"`
}

// Challenge converts the wire push into the domain challenge.
func (m QuizMessage) Challenge(now time.Time) domain.QuizChallenge {
	return domain.QuizChallenge{
		ID:        m.QuestionID,
		Question:  m.Question,
		Options:   m.Options,
		TimeLimit: m.TimeLimit,
		PushedAt:  now,
	}
}

// LifecycleMessage covers session and participant lifecycle events. Senders
// address the session by ID, meeting (room) key, or both.
type LifecycleMessage struct {
	Type             string `json:"type"`
	SessionID        string `json:"sessionId"`
	MeetingID        string `json:"meetingId"`
	StudentID        string `json:"studentId"`
	Name             string `json:"name"`
	ParticipantCount int    `json:"participantCount"`
}

// answerMessage wraps the outbound answer with its discriminator.
type answerMessage struct {
	Type string `json:"type"`
	domain.QuizAnswer
}
