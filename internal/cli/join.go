package cli

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"liveclass-agent/internal/app"
	"liveclass-agent/internal/config"
	"liveclass-agent/internal/domain"
	"liveclass-agent/internal/infra/api"
	pgarchive "liveclass-agent/internal/infra/postgres"
	"liveclass-agent/internal/realtime"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewJoinCmd connects to a session room and runs until interrupted.
func NewJoinCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join <session-id-or-room-key>",
		Short: "Join a live session and run the quiz/telemetry loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context(), *configPath, args[0])
		},
	}
}

func runJoin(ctx context.Context, configPath, sessionKey string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ident := domain.Identity{
		ID:    cfg.Identity.ID,
		Name:  cfg.Identity.Name,
		Email: cfg.Identity.Email,
		Role:  cfg.Identity.Role,
	}
	if ident.Role == "" {
		ident.Role = "student"
	}

	apiClient := api.NewClient(cfg.API.BaseURL, cfg.API.Token)
	directory := app.NewDirectory(apiClient, newRecordCache(cfg))
	if _, err := directory.Refresh(ctx); err != nil {
		return err
	}
	record, err := directory.Find(sessionKey)
	if err != nil {
		return err
	}

	var archive *pgarchive.Archive
	sinks := app.FanoutSink{apiClient}
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		archive = pgarchive.NewArchive(pool)
		sinks = append(sinks, archive)
	}

	sampler := app.NewSampler(app.SamplerConfig{
		PingInterval:   config.Duration(cfg.Realtime.PingInterval, 3*time.Second),
		ReportInterval: config.Duration(cfg.Realtime.ReportInterval, 5*time.Second),
		WindowSize:     cfg.Realtime.WindowSize,
	}, sinks)

	client := realtime.NewClient(cfg.Realtime.Endpoint, sampler)

	var recorder app.OutcomeRecorder
	if archive != nil {
		recorder = archive
	}
	quiz := app.NewQuizController(client, sampler, recorder)
	quiz.Attach(record.ID, ident)

	wireHandlers(client, directory, quiz)

	sampler.OnQualityChange(func(level domain.QualityLevel) {
		log.Printf("network quality is now %s", level)
	})
	quiz.OnChallenge(func(ch domain.QuizChallenge) {
		log.Printf("quiz %s pushed: %s (%d options, %ds)", ch.ID, ch.Question, len(ch.Options), ch.TimeLimit)
	})
	quiz.OnClosed(func(id string, outcome domain.Outcome) {
		log.Printf("quiz %s closed: %s", id, outcome)
	})
	client.OnJoined(func(roomKey string) {
		directory.MarkConnected()
		log.Printf("joined room %s as %s", roomKey, ident.ID)
	})
	client.OnDisconnected(func(err error) {
		if err != nil {
			log.Printf("connection lost: %v", err)
			return
		}
		log.Printf("left room")
	})

	directory.StartPolling(ctx, 30*time.Second)

	if err := client.Join(ctx, record.RoomKey(), ident); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down...")
	}

	client.Leave()
	return nil
}

// wireHandlers routes inbound message kinds: quiz pushes to the controller,
// lifecycle events to the directory.
func wireHandlers(client *realtime.Client, directory *app.Directory, quiz *app.QuizController) {
	client.Handle(realtime.KindQuiz, func(raw json.RawMessage) {
		var msg realtime.QuizMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("dropping malformed quiz push: %v", err)
			return
		}
		if err := quiz.Begin(msg.Challenge(time.Now())); err != nil {
			log.Printf("quiz push %s not opened: %v", msg.QuestionID, err)
		}
	})

	lifecycle := func(raw json.RawMessage) {
		var msg realtime.LifecycleMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("dropping malformed lifecycle event: %v", err)
			return
		}
		directory.ApplyEvent(msg.Type, msg.SessionID, msg.MeetingID)
	}
	client.Handle(realtime.KindSessionStarted, lifecycle)
	client.Handle(realtime.KindMeetingEnded, lifecycle)
	client.Handle(realtime.KindParticipantJoin, lifecycle)
	client.Handle(realtime.KindParticipantLeft, lifecycle)

	client.Handle(realtime.KindSessionJoined, func(raw json.RawMessage) {
		var msg realtime.LifecycleMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		log.Printf("server acknowledged join (%d participants)", msg.ParticipantCount)
	})
}
