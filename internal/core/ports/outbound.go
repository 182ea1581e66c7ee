package ports

import (
	"context"
	"io"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

// SampleRepository persists sample state.
type SampleRepository interface {
	Create(ctx context.Context, sample *domain.Sample) error
	GetByID(ctx context.Context, id string) (*domain.Sample, error)
	// UpdateStatus replaces status and result together; result must be nil
	// unless the status carries one.
	UpdateStatus(ctx context.Context, id string, status domain.SampleStatus, result *domain.ExtractionResult) error
	SetTemplate(ctx context.Context, id string, templateID int64) error
	ListByEntry(ctx context.Context, entryID string, limit int) ([]domain.Sample, error)
}

// TemplateRepository reads the template catalog.
type TemplateRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Template, error)
	// FindCandidates returns active templates ordered by priority asc, updated_at desc.
	FindCandidates(ctx context.Context, filter domain.TemplateFilter) ([]domain.Template, error)
	Upsert(ctx context.Context, tpl *domain.Template) error
}

// ExtractionLogRepository is the append-only audit trail.
type ExtractionLogRepository interface {
	Append(ctx context.Context, sampleID string, level domain.LogLevel, message string, logContext map[string]any) (*domain.ExtractionLog, error)
	// ListBySample returns entries newest first.
	ListBySample(ctx context.Context, sampleID string, limit int) ([]domain.ExtractionLog, error)
}

// QuotaGuard reserves capacity before a resource is created.
type QuotaGuard interface {
	EnsureQuota(ctx context.Context, organizationID, resource string, amount int) error
}

// EntryValidator runs downstream consistency checks for an entry.
// It returns true when no issues were found.
type EntryValidator interface {
	Validate(ctx context.Context, entryID, sampleID string) (bool, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Resolve(key string) string
}

// MessageQueue publishes/consumes sample upload events.
type MessageQueue interface {
	PublishSampleUploaded(ctx context.Context, sampleID string) error
	SubscribeSampleUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// ContentReader reads and decodes a sample's stored document.
type ContentReader interface {
	Read(ctx context.Context, sample *domain.Sample) (domain.DocumentContent, error)
}

// TemplateClassifier is the external classifier process.
// A nil verdict with nil error means the tool is not applicable.
type TemplateClassifier interface {
	Classify(ctx context.Context, text string, candidateIDs []int64) (*domain.ClassifierVerdict, error)
}

// DocumentUnderstanding runs a document model over a file.
// A nil output with nil error means the tool is not applicable.
type DocumentUnderstanding interface {
	Analyze(ctx context.Context, filePath string) (*domain.InferenceOutput, error)
}

// Redactor writes a masked copy of inputPath and returns its location.
type Redactor interface {
	Redact(ctx context.Context, inputPath, outputPath string) (string, error)
}

// TextInference runs a model over sanitized text, locally or remotely.
type TextInference interface {
	Infer(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceOutput, error)
	// Describe names the provider for result payloads and compliance records.
	Describe() domain.Compliance
}

// TrainingSubmitter accepts training samples without blocking the caller
// on the corpus write.
type TrainingSubmitter interface {
	Submit(ctx context.Context, sample domain.TrainingSample) error
}

// TrainingCorpus is the durable training set.
type TrainingCorpus interface {
	Append(ctx context.Context, sample domain.TrainingSample) (int, error)
	Count(ctx context.Context) (int, error)
}

// TrainingMetaStore persists the retrain scheduler state.
type TrainingMetaStore interface {
	Load(ctx context.Context) (domain.TrainingMeta, error)
	Save(ctx context.Context, meta domain.TrainingMeta) error
}

// Retrainer launches the retraining job.
type Retrainer interface {
	Available() bool
	Run(ctx context.Context) error
}

// ResultRenderer turns a batch of samples into a downloadable document.
type ResultRenderer interface {
	RenderSamples(samples []domain.Sample) ([]byte, error)
}
