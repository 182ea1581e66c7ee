package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

type rendererFake struct {
	got []domain.Sample
	err error
}

func (f *rendererFake) RenderSamples(samples []domain.Sample) ([]byte, error) {
	f.got = samples
	if f.err != nil {
		return nil, f.err
	}
	return []byte("xlsx"), nil
}

type listingRepoFake struct {
	sampleRepoFake
	listed    []domain.Sample
	lastLimit int
}

func (f *listingRepoFake) ListByEntry(_ context.Context, _ string, limit int) ([]domain.Sample, error) {
	f.lastLimit = limit
	return f.listed, nil
}

func TestQueryListByEntryClampsLimit(t *testing.T) {
	repo := &listingRepoFake{listed: []domain.Sample{{ID: "a"}, {ID: "b"}}}
	uc := NewSampleQueryUseCase(repo, &logRepoFake{}, nil)

	cases := map[int]int{0: 50, -3: 50, 20: 20, 10_000: 500}
	for in, want := range cases {
		out, err := uc.ListByEntry(context.Background(), "entry-1", in)
		if err != nil {
			t.Fatalf("ListByEntry(%d) error = %v", in, err)
		}
		if len(out) != 2 || repo.lastLimit != want {
			t.Fatalf("ListByEntry(%d): limit=%d, want %d", in, repo.lastLimit, want)
		}
	}
}

func TestQueryRejectsBlankIdentifiers(t *testing.T) {
	uc := NewSampleQueryUseCase(&sampleRepoFake{}, &logRepoFake{}, &rendererFake{})

	if _, err := uc.GetByID(context.Background(), " "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("GetByID: expected invalid input, got %v", err)
	}
	if _, err := uc.ListByEntry(context.Background(), "", 10); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("ListByEntry: expected invalid input, got %v", err)
	}
	if _, err := uc.ExportEntry(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("ExportEntry: expected invalid input, got %v", err)
	}
}

func TestQueryListLogsRequiresSample(t *testing.T) {
	logs := &logRepoFake{}
	_, _ = logs.Append(context.Background(), "s-1", domain.LogInfo, "x", nil)
	uc := NewSampleQueryUseCase(&sampleRepoFake{sample: &domain.Sample{ID: "s-1"}}, logs, nil)

	entries, err := uc.ListLogs(context.Background(), "s-1", 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListLogs() = %v, %v", entries, err)
	}
	if _, err := uc.ListLogs(context.Background(), "s-2", 0); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown sample, got %v", err)
	}
}

func TestQueryExportEntry(t *testing.T) {
	repo := &listingRepoFake{listed: []domain.Sample{{ID: "a"}}}
	renderer := &rendererFake{}
	uc := NewSampleQueryUseCase(repo, &logRepoFake{}, renderer)

	raw, err := uc.ExportEntry(context.Background(), "entry-1")
	if err != nil || string(raw) != "xlsx" {
		t.Fatalf("ExportEntry() = %q, %v", raw, err)
	}
	if len(renderer.got) != 1 || repo.lastLimit != maxExportSamples {
		t.Fatalf("unexpected render input %+v limit=%d", renderer.got, repo.lastLimit)
	}

	renderer.err = errors.New("disk full")
	if _, err := uc.ExportEntry(context.Background(), "entry-1"); err == nil {
		t.Fatalf("expected render error")
	}
}

func TestQueryExportWithoutRenderer(t *testing.T) {
	uc := NewSampleQueryUseCase(&sampleRepoFake{}, &logRepoFake{}, nil)
	if _, err := uc.ExportEntry(context.Background(), "entry-1"); !domain.IsKind(err, domain.ErrToolUnavailable) {
		t.Fatalf("expected tool unavailable, got %v", err)
	}
}
