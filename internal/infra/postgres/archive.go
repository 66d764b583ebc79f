package postgres

import (
	"context"
	"fmt"

	"liveclass-agent/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Archive persists the agent's own telemetry reports and quiz outcomes so
// session reports can be reconstructed offline. It implements both
// app.ReportSink and app.OutcomeRecorder.
type Archive struct {
	pool *pgxpool.Pool
}

func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

func (a *Archive) SendReport(ctx context.Context, report domain.TelemetryReport) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO telemetry_reports (id, session_id, student_id, role, rtt_ms, jitter_ms, stability, quality, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		report.ID, report.SessionID, report.StudentID, report.Role,
		report.RTTMs, report.JitterMs, report.Stability, report.Quality, report.SentAt)
	if err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	return nil
}

func (a *Archive) RecordOutcome(ctx context.Context, rec domain.QuizOutcomeRecord) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO quiz_outcomes (challenge_id, session_id, student_id, outcome, answer_index, time_taken, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (challenge_id) DO NOTHING`,
		rec.ChallengeID, rec.SessionID, rec.StudentID, string(rec.Outcome),
		rec.AnswerIndex, rec.TimeTaken, rec.ClosedAt)
	if err != nil {
		return fmt.Errorf("archive outcome: %w", err)
	}
	return nil
}

// RecentReports returns the newest archived reports for a session.
func (a *Archive) RecentReports(ctx context.Context, sessionID string, limit int) ([]domain.TelemetryReport, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT id, session_id, student_id, role, rtt_ms, jitter_ms, stability, quality, sent_at
		 FROM telemetry_reports WHERE session_id=$1 ORDER BY sent_at DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.TelemetryReport
	for rows.Next() {
		var r domain.TelemetryReport
		if err := rows.Scan(&r.ID, &r.SessionID, &r.StudentID, &r.Role,
			&r.RTTMs, &r.JitterMs, &r.Stability, &r.Quality, &r.SentAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Outcomes returns the archived terminal outcomes for a session.
func (a *Archive) Outcomes(ctx context.Context, sessionID string) ([]domain.QuizOutcomeRecord, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT challenge_id, session_id, student_id, outcome, answer_index, time_taken, closed_at
		 FROM quiz_outcomes WHERE session_id=$1 ORDER BY closed_at`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	defer rows.Close()

	var recs []domain.QuizOutcomeRecord
	for rows.Next() {
		var rec domain.QuizOutcomeRecord
		var outcome string
		if err := rows.Scan(&rec.ChallengeID, &rec.SessionID, &rec.StudentID,
			&outcome, &rec.AnswerIndex, &rec.TimeTaken, &rec.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
