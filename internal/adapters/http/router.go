package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/invoice-extraction/internal/config"
	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
	"github.com/kirillkom/invoice-extraction/internal/observability/metrics"
)

const (
	defaultMaxUploadBytes = 32 << 20
	xlsxContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Router struct {
	cfg       config.Config
	ingest    ports.SampleIngestor
	extractor ports.SampleExtractor
	reader    ports.SampleReader
	exporter  ports.EntryExporter
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ingest ports.SampleIngestor,
	extractor ports.SampleExtractor,
	reader ports.SampleReader,
	exporter ports.EntryExporter,
) *Router {
	return &Router{
		cfg:       cfg,
		ingest:    ingest,
		extractor: extractor,
		reader:    reader,
		exporter:  exporter,
	}
}

// WithMetrics exposes /metrics and records request metrics.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/samples", rt.uploadSample)
	mux.HandleFunc("GET /v1/samples/{id}", rt.getSample)
	mux.HandleFunc("GET /v1/samples/{id}/logs", rt.listSampleLogs)
	mux.HandleFunc("POST /v1/samples/{id}/process", rt.processSample)
	mux.HandleFunc("PUT /v1/samples/{id}/template", rt.assignTemplate)
	mux.HandleFunc("POST /v1/samples/{id}/corrections", rt.recordCorrection)
	mux.HandleFunc("GET /v1/entries/{id}/samples", rt.listEntrySamples)
	mux.HandleFunc("GET /v1/entries/{id}/export.xlsx", rt.exportEntry)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
		// Scrapes bypass rate limiting and backpressure.
		outer := http.NewServeMux()
		outer.Handle("GET /metrics", rt.metrics.Handler())
		outer.Handle("/", handler)
		handler = outer
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadSample(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.APIMaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	sample, err := rt.ingest.Upload(r.Context(), ports.UploadRequest{
		OrganizationID: strings.TrimSpace(r.FormValue("organizationId")),
		SubUnitID:      optionalForm(r, "subUnitId"),
		EntryID:        optionalForm(r, "entryId"),
		Filename:       fileHeader.Filename,
		MimeType:       fileHeader.Header.Get("Content-Type"),
		Body:           file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(sample.SizeBytes)
	}

	writeJSON(w, http.StatusAccepted, sample)
}

func (rt *Router) getSample(w http.ResponseWriter, r *http.Request) {
	sample, err := rt.reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (rt *Router) listSampleLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	logs, err := rt.reader.ListLogs(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (rt *Router) processSample(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := rt.extractor.Process(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	sample, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (rt *Router) assignTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID int64 `json:"templateId"`
		Reprocess  *bool `json:"reprocess"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.TemplateID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "templateId must be a positive integer"})
		return
	}
	reprocess := true
	if req.Reprocess != nil {
		reprocess = *req.Reprocess
	}

	sample, err := rt.extractor.AssignTemplate(r.Context(), r.PathValue("id"), req.TemplateID, reprocess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (rt *Router) recordCorrection(w http.ResponseWriter, r *http.Request) {
	var correction domain.Correction
	if err := json.NewDecoder(r.Body).Decode(&correction); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.extractor.RecordCorrection(r.Context(), r.PathValue("id"), correction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listEntrySamples(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	samples, err := rt.reader.ListByEntry(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

func (rt *Router) exportEntry(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")
	raw, err := rt.exporter.ExportEntry(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="entry-%s.xlsx"`, sanitizeFilename(entryID)))
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse limit", fmt.Errorf("limit=%q", raw))
	}
	return limit, nil
}

func optionalForm(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
