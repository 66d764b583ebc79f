package app

import (
	"context"
	"log"

	"liveclass-agent/internal/domain"
)

// FanoutSink delivers each report to every sink. A failing sink is logged and
// skipped so the REST side-channel and the local archive fail independently.
type FanoutSink []ReportSink

func (f FanoutSink) SendReport(ctx context.Context, report domain.TelemetryReport) error {
	for _, sink := range f {
		if err := sink.SendReport(ctx, report); err != nil {
			log.Printf("report: sink failed: %v", err)
		}
	}
	return nil
}
