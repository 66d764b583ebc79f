package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"liveclass-agent/internal/app"
	"liveclass-agent/internal/config"
	"liveclass-agent/internal/infra/api"
	"liveclass-agent/internal/infra/memory"
	redisinfra "liveclass-agent/internal/infra/redis"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewSessionsCmd lists the session directory.
func NewSessionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions from the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			directory := app.NewDirectory(api.NewClient(cfg.API.BaseURL, cfg.API.Token), newRecordCache(cfg))
			records, err := directory.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tCOURSE\tSTATUS\tROOM")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s (%s)\t%s\t%s\n", r.ID, r.Title, r.CourseName, r.CourseCode, r.Status, r.RoomKey())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if directory.Stale() {
				fmt.Fprintln(os.Stderr, "warning: directory unreachable, showing cached records")
			}
			return nil
		},
	}
}

// newRecordCache picks Redis when configured, in-memory otherwise, the same
// graceful degradation the rest of the agent uses.
func newRecordCache(cfg config.Config) app.RecordCache {
	if cfg.Redis.Addr == "" {
		return memory.NewRecordCache()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return redisinfra.NewRecordCache(client, config.Duration(cfg.Redis.TTL, 10*time.Minute))
}
