package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rag-document-assistant/internal/config"
	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/ports"
	"github.com/kirillkom/rag-document-assistant/internal/core/session"
	"github.com/kirillkom/rag-document-assistant/internal/core/usecase"
	natsevents "github.com/kirillkom/rag-document-assistant/internal/infrastructure/events/nats"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/inspector/pdf"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/ragapi"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/rag-document-assistant/internal/observability/metrics"
)

const (
	serviceName    = "ragclient"
	publishTimeout = 2 * time.Second
)

type Options struct {
	Progress usecase.ProgressFactory
}

type App struct {
	Config config.Config

	Sessions *session.Controller
	API      ports.RAGAPI
	Metrics  *metrics.ClientMetrics
	Storage  *localfs.Storage

	UploadUC ports.DocumentUploader
	QueryUC  ports.QuestionAsker
	ExportUC *usecase.ExportUseCase
	StatusUC *usecase.StatusUseCase

	closeFns []func()
}

func New(_ context.Context, cfg config.Config, options Options) (*App, error) {
	storage, err := localfs.New(cfg.ExportDir)
	if err != nil {
		return nil, fmt.Errorf("init export storage: %w", err)
	}

	clientMetrics := metrics.NewClientMetrics(serviceName)
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	api := ragapi.NewWithOptions(cfg.APIURL, cfg.APIKey, ragapi.Options{
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		ResilienceExecutor: executor,
		Observer:           clientMetrics,
	})

	sessions := session.NewController(session.NewStore(uuid.NewString()))
	sessions.Subscribe(clientMetrics.ObserveSession)

	app := &App{
		Config:   cfg,
		Sessions: sessions,
		API:      api,
		Metrics:  clientMetrics,
		Storage:  storage,

		UploadUC: usecase.NewUploadDocumentUseCase(api, sessions, pdf.New(), options.Progress),
		QueryUC:  usecase.NewQueryUseCase(api, sessions),
		ExportUC: usecase.NewExportUseCase(sessions, storage, xlsx.New()),
		StatusUC: usecase.NewStatusUseCase(api, api.BaseURL()),
	}

	if cfg.NATSURL != "" {
		publisher, err := natsevents.NewWithOptions(cfg.NATSURL, cfg.EventsSubject, natsevents.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		unsubscribe := sessions.Subscribe(publishEvents(publisher))
		app.closeFns = append(app.closeFns, publisher.Close, unsubscribe)
	}

	if cfg.UsesDefaultAPIKey() {
		slog.Warn("default_api_key_in_use", "endpoint", api.BaseURL())
	}
	return app, nil
}

func publishEvents(publisher ports.EventPublisher) session.Subscriber {
	return func(event domain.SessionEvent, _ domain.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := publisher.PublishSessionEvent(ctx, event); err != nil {
			slog.Warn("session_event_publish_failed", "kind", string(event.Kind), "error", err)
		}
	}
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
}
