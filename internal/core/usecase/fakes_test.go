package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/fallback"
	"github.com/kirillkom/invoice-extraction/internal/core/matching"
)

type statusCall struct {
	status domain.SampleStatus
	result *domain.ExtractionResult
}

type sampleRepoFake struct {
	sample      *domain.Sample
	getErr      error
	created     *domain.Sample
	statusCalls []statusCall
	templateIDs []int64

	setTemplateErr error
	// updateErr is returned for UpdateStatus calls with status failOn.
	failOn    domain.SampleStatus
	updateErr error
}

func (f *sampleRepoFake) Create(_ context.Context, sample *domain.Sample) error {
	copySample := *sample
	f.created = &copySample
	return nil
}

func (f *sampleRepoFake) GetByID(_ context.Context, id string) (*domain.Sample, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.sample == nil || f.sample.ID != id {
		return nil, domain.WrapError(domain.ErrSampleNotFound, "get sample", errors.New("id="+id))
	}
	copySample := *f.sample
	return &copySample, nil
}

func (f *sampleRepoFake) UpdateStatus(_ context.Context, _ string, status domain.SampleStatus, result *domain.ExtractionResult) error {
	if f.updateErr != nil && status == f.failOn {
		return f.updateErr
	}
	f.statusCalls = append(f.statusCalls, statusCall{status: status, result: result})
	f.sample.Status = status
	f.sample.Result = result
	return nil
}

func (f *sampleRepoFake) SetTemplate(_ context.Context, _ string, templateID int64) error {
	if f.setTemplateErr != nil {
		return f.setTemplateErr
	}
	f.templateIDs = append(f.templateIDs, templateID)
	id := templateID
	f.sample.TemplateID = &id
	return nil
}

func (f *sampleRepoFake) ListByEntry(context.Context, string, int) ([]domain.Sample, error) {
	return nil, nil
}

func (f *sampleRepoFake) lastStatus() statusCall {
	return f.statusCalls[len(f.statusCalls)-1]
}

type templateRepoFake struct {
	templates []domain.Template
	findErr   error
}

func (f *templateRepoFake) GetByID(_ context.Context, id int64) (*domain.Template, error) {
	for i := range f.templates {
		if f.templates[i].ID == id {
			tpl := f.templates[i]
			return &tpl, nil
		}
	}
	return nil, domain.WrapError(domain.ErrTemplateNotFound, "get template", errors.New("missing"))
}

func (f *templateRepoFake) FindCandidates(context.Context, domain.TemplateFilter) ([]domain.Template, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return append([]domain.Template(nil), f.templates...), nil
}

func (f *templateRepoFake) Upsert(context.Context, *domain.Template) error { return nil }

type logRepoFake struct {
	entries []domain.ExtractionLog
}

func (f *logRepoFake) Append(_ context.Context, sampleID string, level domain.LogLevel, message string, logContext map[string]any) (*domain.ExtractionLog, error) {
	entry := domain.ExtractionLog{ID: int64(len(f.entries) + 1), SampleID: sampleID, Level: level, Message: message, Context: logContext}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *logRepoFake) ListBySample(context.Context, string, int) ([]domain.ExtractionLog, error) {
	return f.entries, nil
}

func (f *logRepoFake) levels() string {
	parts := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		parts = append(parts, string(e.Level))
	}
	return strings.Join(parts, ",")
}

type readerFake struct {
	content domain.DocumentContent
	err     error
}

func (f *readerFake) Read(context.Context, *domain.Sample) (domain.DocumentContent, error) {
	if f.err != nil {
		return domain.DocumentContent{}, f.err
	}
	return f.content, nil
}

type fallbackFake struct {
	result *domain.ExtractionResult
	err    error
	calls  int
	req    fallback.Request
}

func (f *fallbackFake) Extract(_ context.Context, req fallback.Request) (*domain.ExtractionResult, error) {
	f.calls++
	f.req = req
	return f.result, f.err
}

type submitterFake struct {
	mu      sync.Mutex
	samples []domain.TrainingSample
	err     error
}

func (f *submitterFake) Submit(_ context.Context, sample domain.TrainingSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sample)
	return f.err
}

type validatorFake struct {
	clean bool
	err   error
	calls int
}

func (f *validatorFake) Validate(context.Context, string, string) (bool, error) {
	f.calls++
	return f.clean, f.err
}

type storageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.savedBody)), nil
}

func (f *storageFake) Resolve(key string) string { return "/data/" + key }

type queueFake struct {
	sampleID string
	err      error
}

func (f *queueFake) PublishSampleUploaded(_ context.Context, sampleID string) error {
	if f.err != nil {
		return f.err
	}
	f.sampleID = sampleID
	return nil
}

func (f *queueFake) SubscribeSampleUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type quotaFake struct {
	err   error
	calls int
}

func (f *quotaFake) EnsureQuota(context.Context, string, string, int) error {
	f.calls++
	return f.err
}

var _ TemplateMatcher = (*matching.Engine)(nil)
