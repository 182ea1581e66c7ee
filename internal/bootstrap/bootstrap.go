package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/invoice-extraction/internal/config"
	"github.com/kirillkom/invoice-extraction/internal/core/fallback"
	"github.com/kirillkom/invoice-extraction/internal/core/matching"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
	"github.com/kirillkom/invoice-extraction/internal/core/training"
	"github.com/kirillkom/invoice-extraction/internal/core/usecase"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/catalog/yamlfile"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/corpus/filestore"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/externaltool"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/extractor/document"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/inference/remote"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/queue/nats"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/invoice-extraction/internal/infrastructure/validation"
)

// Observer collects pipeline metrics. Both metrics registries implement it.
type Observer interface {
	fallback.Observer
	training.Observer
	usecase.StatusObserver
	ObserveBreakerState(operation, from, to string)
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Samples   ports.SampleRepository
	Templates ports.TemplateRepository

	IngestUC  ports.SampleIngestor
	ProcessUC ports.SampleExtractor
	QueryUC   *usecase.SampleQueryUseCase

	Importer  *yamlfile.Importer
	Corpus    ports.TrainingCorpus
	Scheduler *training.Scheduler

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, observer Observer, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	samples := postgres.NewSampleRepository(db)
	templates := postgres.NewTemplateRepository(db)
	logs := postgres.NewExtractionLogRepository(db)
	quota := postgres.NewQuotaRepository(db, map[string]int64{
		usecase.QuotaResourceSamples: int64(cfg.QuotaSamplesPerOrg),
	})

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executorOpts := []resilience.Option{resilience.WithLogger(logger)}
	if observer != nil {
		executorOpts = append(executorOpts, resilience.WithStateObserver(observer.ObserveBreakerState))
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig(), executorOpts...),
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	runner := externaltool.NewRunner(cfg.ToolTimeout, cfg.ToolMaxOutputBytes, logger)
	script := func(path string) externaltool.Command {
		return externaltool.Command{Interpreter: cfg.PythonBin, Script: path}
	}
	classifier := externaltool.NewClassifier(runner, script(cfg.ClassifierScriptPath), cfg.ClassifierModelPath)
	docModel := externaltool.NewDocumentModel(runner, externaltool.Command{
		Binary: cfg.DocModelBin, Interpreter: cfg.PythonBin, Script: cfg.DocModelScriptPath,
	})
	redactor := externaltool.NewRedactor(runner, externaltool.Command{
		Binary: cfg.RedactorBin, Interpreter: cfg.PythonBin, Script: cfg.RedactorScriptPath,
	})

	var inference ports.TextInference
	if cfg.RemoteInference() {
		inference = remote.New(remote.Config{
			Endpoint:   cfg.InferenceEndpoint,
			APIKey:     cfg.InferenceAPIKey,
			Provider:   cfg.InferenceProvider,
			Region:     cfg.InferenceRegion,
			Timeout:    cfg.ToolTimeout,
			RatePerSec: cfg.InferenceRatePerSec,
		}, resilience.NewExecutor(resilience.SingleAttempt(), executorOpts...))
	} else {
		inference = externaltool.NewLocalInference(runner, script(cfg.InferenceScriptPath))
	}

	corpus, err := filestore.NewCorpus(cfg.TrainingDataPath, logger)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init training corpus: %w", err)
	}
	metaStore, err := filestore.NewMetaStore(cfg.TrainingMetaPath)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init training meta: %w", err)
	}

	var fallbackObserver fallback.Observer
	var trainingObserver training.Observer
	if observer != nil {
		fallbackObserver = observer
		trainingObserver = observer
	}

	scheduler := training.NewScheduler(
		externaltool.NewRetrainer(script(cfg.RetrainScriptPath), logger),
		corpus,
		training.NewMetaCache(metaStore),
		training.SchedulerConfig{MinSamples: cfg.RetrainMinSamples, MinInterval: cfg.RetrainMinInterval},
		trainingObserver,
		logger,
	)
	collector := training.NewCollector(corpus, scheduler, trainingObserver, logger)
	trainingQueue := training.NewQueue(collector, cfg.TrainingQueueSize, logger)
	// Draining on shutdown must outlive the signal context.
	go trainingQueue.Run(context.WithoutCancel(ctx))

	processUC := usecase.NewProcessSampleUseCase(
		samples,
		templates,
		logs,
		document.NewReader(storage, 0),
		matching.NewEngine(classifier, logger),
		fallback.NewAdapter(docModel, redactor, inference, fallback.Config{Sanitize: cfg.SanitizeText}, fallbackObserver, logger),
		trainingQueue,
		validation.NewConsistencyValidator(samples, logs),
		logger,
	)
	if observer != nil {
		processUC.WithStatusObserver(observer)
	}

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Samples:   samples,
		Templates: templates,

		IngestUC:  usecase.NewIngestSampleUseCase(samples, logs, storage, queue, quota),
		ProcessUC: processUC,
		QueryUC:   usecase.NewSampleQueryUseCase(samples, logs, xlsx.NewRenderer()),

		Importer:  yamlfile.NewImporter(templates, logger),
		Corpus:    corpus,
		Scheduler: scheduler,

		closeFn: func() {
			trainingQueue.Close()
			scheduler.Close()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
