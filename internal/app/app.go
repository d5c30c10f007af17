// Package app wires configuration into the runnable pipelines. Each process
// invocation executes exactly one pipeline and exits; scheduling belongs to
// the external trigger (cron, CI job, manual call).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"MarketScanner/internal/adapter"
	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/engine"
	"MarketScanner/internal/infrastructure/judge"
	"MarketScanner/internal/infrastructure/marketplace"
	"MarketScanner/internal/infrastructure/storage"
	"MarketScanner/internal/infrastructure/telegram"
	"MarketScanner/internal/logging"
	"MarketScanner/internal/normalize"
	"MarketScanner/internal/pipeline"
	"MarketScanner/internal/ports"
)

// Pipeline names accepted by Run.
const (
	PipelineIngest = "ingest"
	PipelineAssess = "assess"
	PipelineNotify = "notify"
)

// Result carries one run's summary together with its per-source or per-item
// outcomes, depending on which pipeline ran.
type Result struct {
	Run     domain.PipelineRun     `json:"run"`
	Sources []domain.SourceOutcome `json:"sources,omitempty"`
	Items   []domain.ItemOutcome   `json:"items,omitempty"`
}

// Application wires configs to pipelines over one shared store connection.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sqlx.DB

	ingest *pipeline.Ingest
	assess *pipeline.Assess
	notify *pipeline.Notify
}

// New builds a runnable application instance. It connects to the store once;
// Close releases the connection.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	store := storage.NewPostgres(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	registry := adapter.NewRegistry()
	registry.Register(marketplace.NewHTMLPageAdapter(nil))
	registry.Register(marketplace.NewHTTPAPIAdapter(nil))

	mappings := make(map[string]map[string]string, len(cfg.Sources))
	for _, src := range cfg.Sources {
		mappings[src.ID] = src.Mapping
	}
	normalizer := normalize.New(mappings)

	var judgeClient ports.Judge
	if cfg.Assess.Judge.Endpoint != "" && cfg.Assess.Judge.Model != "" {
		judgeClient = judge.NewClient(cfg.Assess.Judge)
	}

	var messenger ports.Messenger
	if cfg.Notify.Telegram.BotToken != "" {
		messenger = telegram.NewNotifier(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	ingest := pipeline.NewIngest(pipeline.IngestDeps{
		Sources:    cfg.Sources,
		Registry:   registry,
		Normalizer: normalizer,
		Listings:   store,
		Gates:      store,
		Logger:     baseLogger.With("component", "pipeline.ingest"),
	})

	assess := pipeline.NewAssess(pipeline.AssessDeps{
		Store:  store,
		Judge:  judgeClient,
		Cfg:    cfg.Assess,
		Logger: baseLogger.With("component", "pipeline.assess"),
	})

	notify := pipeline.NewNotify(pipeline.NotifyDeps{
		Store:     store,
		Messenger: messenger,
		Cfg:       cfg.Notify,
		Logger:    baseLogger.With("component", "pipeline.notify"),
	})

	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		db:     db,
		ingest: ingest,
		assess: assess,
		notify: notify,
	}, nil
}

// Run executes the named pipeline once and returns its outcomes. The run
// summary's status tells the caller how the run ended; the error return is
// reserved for an unknown pipeline name.
func (a *Application) Run(ctx context.Context, name string) (Result, error) {
	now := time.Now().UTC()

	switch name {
	case PipelineIngest:
		state, run := engine.Execute(ctx, a.ingest.Definition(), &pipeline.IngestState{Now: now}, a.logger)
		return Result{Run: run, Sources: state.Outcomes}, nil
	case PipelineAssess:
		state, run := engine.Execute(ctx, a.assess.Definition(), &pipeline.AssessState{Now: now}, a.logger)
		return Result{Run: run, Items: state.Outcomes}, nil
	case PipelineNotify:
		state, run := engine.Execute(ctx, a.notify.Definition(), &pipeline.NotifyState{Now: now}, a.logger)
		return Result{Run: run, Items: state.Outcomes}, nil
	default:
		return Result{}, fmt.Errorf("unknown pipeline %q", name)
	}
}

// Close releases the store connection.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
