package app

import (
	"context"
	"log"
	"sync"
	"time"

	"liveclass-agent/internal/domain"
)

// AnswerSender delivers the packaged answer over the realtime channel.
type AnswerSender interface {
	SendAnswer(answer domain.QuizAnswer) error
}

// SnapshotSource supplies the network snapshot frozen into an answer.
type SnapshotSource interface {
	Snapshot() *domain.NetworkSnapshot
}

// OutcomeRecorder archives terminal challenge outcomes. Implementations may
// be no-ops; archiving never blocks or fails the interaction itself.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, rec domain.QuizOutcomeRecord) error
}

// QuizController turns an inbound quiz push into a bounded interactive window
// and at most one outbound answer. A challenge closes by exactly one of:
// submission, dismissal, or the countdown reaching zero.
type QuizController struct {
	sender    AnswerSender
	snapshots SnapshotSource
	recorder  OutcomeRecorder
	now       func() time.Time
	tickEvery time.Duration

	mu        sync.Mutex
	sessionID string
	identity  domain.Identity
	active    *activeChallenge

	onChallenge func(domain.QuizChallenge)
	onTick      func(challengeID string, remaining int)
	onClosed    func(challengeID string, outcome domain.Outcome)
}

type activeChallenge struct {
	challenge domain.QuizChallenge
	remaining int
	closed    bool
	done      chan struct{}
}

func NewQuizController(sender AnswerSender, snapshots SnapshotSource, recorder OutcomeRecorder) *QuizController {
	return newQuizControllerWithClock(sender, snapshots, recorder, time.Now, time.Second)
}

// newQuizControllerWithClock is test-only: it shrinks the countdown tick so
// deadline behavior can be exercised without real seconds passing.
func newQuizControllerWithClock(sender AnswerSender, snapshots SnapshotSource, recorder OutcomeRecorder, now func() time.Time, tickEvery time.Duration) *QuizController {
	return &QuizController{
		sender:    sender,
		snapshots: snapshots,
		recorder:  recorder,
		now:       now,
		tickEvery: tickEvery,
	}
}

// Attach binds the controller to the currently joined session. Answers and
// archived outcomes are keyed by this session and identity.
func (c *QuizController) Attach(sessionID string, ident domain.Identity) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.identity = ident
	c.mu.Unlock()
}

// OnChallenge registers the callback fired when a new challenge opens.
func (c *QuizController) OnChallenge(fn func(domain.QuizChallenge)) {
	c.mu.Lock()
	c.onChallenge = fn
	c.mu.Unlock()
}

// OnTick registers the once-per-second countdown callback.
func (c *QuizController) OnTick(fn func(challengeID string, remaining int)) {
	c.mu.Lock()
	c.onTick = fn
	c.mu.Unlock()
}

// OnClosed registers the terminal callback. It fires exactly once per
// challenge with the outcome that won: answered, dismissed, or expired.
func (c *QuizController) OnClosed(fn func(challengeID string, outcome domain.Outcome)) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

// Begin opens a challenge and starts its countdown. A push arriving while
// another challenge is open is dropped; the server sends one question at a
// time and a second push is operator error, not a queue.
func (c *QuizController) Begin(challenge domain.QuizChallenge) error {
	c.mu.Lock()
	if c.active != nil && !c.active.closed {
		c.mu.Unlock()
		log.Printf("quiz: dropping push %s, challenge %s still active", challenge.ID, c.active.challenge.ID)
		return domain.ErrChallengeActive
	}
	if challenge.TimeLimit <= 0 {
		challenge.TimeLimit = 30
	}
	if challenge.PushedAt.IsZero() {
		challenge.PushedAt = c.now()
	}
	ac := &activeChallenge{
		challenge: challenge,
		remaining: challenge.TimeLimit,
		done:      make(chan struct{}),
	}
	c.active = ac
	fn := c.onChallenge
	c.mu.Unlock()

	if fn != nil {
		fn(challenge)
	}
	go c.countdown(ac)
	return nil
}

func (c *QuizController) countdown(ac *activeChallenge) {
	ticker := time.NewTicker(c.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ac.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.active != ac || ac.closed {
				c.mu.Unlock()
				return
			}
			ac.remaining--
			remaining := ac.remaining
			tick := c.onTick
			c.mu.Unlock()

			if tick != nil {
				tick(ac.challenge.ID, remaining)
			}
			if remaining <= 0 {
				c.expire(ac)
				return
			}
		}
	}
}

func (c *QuizController) expire(ac *activeChallenge) {
	c.mu.Lock()
	if c.active != ac || ac.closed {
		c.mu.Unlock()
		return
	}
	closed := c.closeLocked(ac, domain.OutcomeExpired)
	c.mu.Unlock()
	closed()
}

// Submit sends exactly one answer for the active challenge. Submitting twice,
// after dismissal, or after expiry is rejected with a sentinel error rather
// than silently succeeding. On a send failure the challenge stays open so the
// user can retry.
func (c *QuizController) Submit(optionIndex int) (domain.QuizAnswer, error) {
	c.mu.Lock()
	ac := c.active
	if ac == nil {
		c.mu.Unlock()
		return domain.QuizAnswer{}, domain.ErrNoActiveChallenge
	}
	if ac.closed {
		c.mu.Unlock()
		return domain.QuizAnswer{}, domain.ErrChallengeClosed
	}
	if optionIndex < 0 || optionIndex >= len(ac.challenge.Options) {
		c.mu.Unlock()
		return domain.QuizAnswer{}, domain.ErrInvalidOption
	}

	answer := domain.QuizAnswer{
		QuestionID:  ac.challenge.ID,
		AnswerIndex: optionIndex,
		TimeTaken:   ac.challenge.TimeLimit - ac.remaining,
		StudentID:   c.identity.ID,
		SessionID:   c.sessionID,
		Network:     c.snapshots.Snapshot(),
	}
	if err := c.sender.SendAnswer(answer); err != nil {
		c.mu.Unlock()
		return domain.QuizAnswer{}, err
	}
	closed := c.closeLocked(ac, domain.OutcomeAnswered)
	c.mu.Unlock()
	closed()
	c.archive(ac, domain.OutcomeAnswered, optionIndex, answer.TimeTaken)
	return answer, nil
}

// Dismiss closes the active challenge without sending an answer, with the
// same effect as a timeout. Safe to call with no challenge open.
func (c *QuizController) Dismiss() {
	c.mu.Lock()
	ac := c.active
	if ac == nil || ac.closed {
		c.mu.Unlock()
		return
	}
	closed := c.closeLocked(ac, domain.OutcomeDismissed)
	c.mu.Unlock()
	closed()
	c.archive(ac, domain.OutcomeDismissed, -1, 0)
}

// Active returns the open challenge and its remaining seconds.
func (c *QuizController) Active() (domain.QuizChallenge, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.closed {
		return domain.QuizChallenge{}, 0, false
	}
	return c.active.challenge, c.active.remaining, true
}

// closeLocked marks the challenge closed and returns the deferred callback
// invocation, to be run after the lock is released.
func (c *QuizController) closeLocked(ac *activeChallenge, outcome domain.Outcome) func() {
	ac.closed = true
	close(ac.done)
	fn := c.onClosed
	id := ac.challenge.ID
	if outcome == domain.OutcomeExpired {
		// The expiry path archives here because no caller follows it up.
		go c.archive(ac, outcome, -1, ac.challenge.TimeLimit)
	}
	return func() {
		if fn != nil {
			fn(id, outcome)
		}
	}
}

func (c *QuizController) archive(ac *activeChallenge, outcome domain.Outcome, answerIndex, timeTaken int) {
	c.mu.Lock()
	recorder := c.recorder
	sessionID := c.sessionID
	studentID := c.identity.ID
	c.mu.Unlock()
	if recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	rec := domain.QuizOutcomeRecord{
		ChallengeID: ac.challenge.ID,
		SessionID:   sessionID,
		StudentID:   studentID,
		Outcome:     outcome,
		AnswerIndex: answerIndex,
		TimeTaken:   timeTaken,
		ClosedAt:    c.now(),
	}
	if err := recorder.RecordOutcome(ctx, rec); err != nil {
		log.Printf("quiz: outcome archive failed: %v", err)
	}
}
