package cli

import (
	"fmt"
	"log/slog"

	"github.com/eshaffer321/propledger/internal/adapters/bankfeed"
	"github.com/eshaffer321/propledger/internal/adapters/events"
	"github.com/eshaffer321/propledger/internal/api"
	"github.com/eshaffer321/propledger/internal/application/ingest"
	"github.com/eshaffer321/propledger/internal/application/matching"
	"github.com/eshaffer321/propledger/internal/application/reconciliation"
	"github.com/eshaffer321/propledger/internal/application/reporting"
	"github.com/eshaffer321/propledger/internal/domain/matcher"
	"github.com/eshaffer321/propledger/internal/infrastructure/config"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// NewEventSink logs every event and records it in the audit table
func NewEventSink(store storage.EventRepository, logger *slog.Logger) events.Sink {
	return events.FanOut{events.NewLogSink(logger), events.NewStoreSink(store)}
}

// NewServices builds the application services from configuration. Reports
// cached by the reporting service are invalidated whenever an entry is posted.
func NewServices(cfg *config.Config, store storage.Repository, logger *slog.Logger) (api.Services, error) {
	params, err := cfg.Reconciliation.Params()
	if err != nil {
		return api.Services{}, fmt.Errorf("invalid reconciliation config: %w", err)
	}

	matcherCfg := matcher.DefaultConfig()
	matcherCfg.AmountTolerance = params.Tolerance
	matcherCfg.DateTolerance = params.FuzzyDateWindowDays
	matcherCfg.SimilarityThreshold = params.SimilarityThreshold

	sink := NewEventSink(store, logger)
	reports := reporting.NewService(store, cfg.API.CacheTTL(), logger)

	matchingSvc := matching.NewService(store, sink, logger, matching.Config{
		AutoPost: params.AutoPost,
		Matcher:  matcherCfg,
	})
	matchingSvc.OnPosted(reports.Invalidate)

	reconSvc := reconciliation.NewService(store, sink, logger, reconciliation.Config{
		NSFFee:                 params.NSFFee,
		LargeVarianceThreshold: params.LargeVarianceThreshold,
		Matcher:                matcherCfg,
	})
	reconSvc.OnPosted(reports.Invalidate)

	return api.Services{
		Repo:           store,
		Matching:       matchingSvc,
		Reconciliation: reconSvc,
		Reporting:      reports,
	}, nil
}

// NewImporter builds the CSV bank-feed importer over the matching service
func NewImporter(path string, services api.Services, logger *slog.Logger) *ingest.Service {
	source := bankfeed.NewCSVSource(path)
	return ingest.NewService(source, services.Repo, services.Matching, NewEventSink(services.Repo, logger), logger)
}
