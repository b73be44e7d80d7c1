package api

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/domain"
	"catalog/repricer/internal/filter"
	"catalog/repricer/internal/service"
	"catalog/repricer/internal/source"
)

// PricingService is what the handlers need from service.Service.
type PricingService interface {
	Calculate(rows []domain.Row) []domain.PricingResult
	Preview(rows []domain.Row, opts filter.Options) filter.PreviewReport
	Enqueue(ctx context.Context, batchID string, rows []domain.Row) (string, int, error)
	Status(ctx context.Context, batchID string) (*service.BatchStatus, error)
	CategoryTree(ctx context.Context, batchID string) (*category.Selection, error)
	Selection(ctx context.Context) ([]string, error)
	ReplaceSelection(ctx context.Context, batchID string, paths []string) (*category.Selection, error)
	CheckCategory(ctx context.Context, batchID, path string, checked bool) (*category.Selection, error)
	SelectAllCategories(ctx context.Context, batchID string) (*category.Selection, error)
	ClearSelection(ctx context.Context, batchID string) (*category.Selection, error)
	ExportSelection(ctx context.Context, rows []domain.Row) ([]string, error)
}

// ExportRunner is satisfied by *service.Exporter.
type ExportRunner interface {
	Run(ctx context.Context, batchID string, sheet *domain.Sheet, selected []string, progress func(service.Event)) (*service.ExportSummary, error)
}

type Handler struct {
	service  PricingService
	exporter ExportRunner
	fetcher  source.Fetcher
}

func NewHandler(svc PricingService, exporter ExportRunner, fetcher source.Fetcher) *Handler {
	return &Handler{
		service:  svc,
		exporter: exporter,
		fetcher:  fetcher,
	}
}

// --- Request DTOs ---

type CalculateRequest struct {
	Rows []domain.Row `json:"rows" validate:"required,min=1"`
}

type PreviewRequest struct {
	Rows []domain.Row `json:"rows" validate:"required"`
	filter.Options
}

type SelectionRequest struct {
	BatchID string   `json:"batch_id" validate:"required,max=128"`
	Paths   []string `json:"paths" validate:"required"`
}

type CheckRequest struct {
	BatchID string `json:"batch_id" validate:"required,max=128"`
	Path    string `json:"path" validate:"required"`
	Checked bool   `json:"checked"`
}

type SelectAllRequest struct {
	BatchID string `json:"batch_id" validate:"required,max=128"`
}

type BatchRequest struct {
	BatchID string       `json:"batch_id" validate:"omitempty,max=128"`
	Rows    []domain.Row `json:"rows" validate:"required,min=1"`
}

type ImportRequest struct {
	BatchID string `json:"batch_id" validate:"omitempty,max=128"`
	URL     string `json:"url" validate:"required"`
}

type ExportRequest struct {
	BatchID string       `json:"batch_id" validate:"omitempty,max=128"`
	URL     string       `json:"url"`
	Headers []string     `json:"headers"`
	Rows    []domain.Row `json:"rows" validate:"required_without=URL"`
}

// --- Response DTOs ---

type BatchResponse struct {
	BatchID string `json:"batch_id"`
	Chunks  int    `json:"chunks"`
	Rows    int    `json:"rows"`
}

type SelectionResponse struct {
	Selected []string `json:"selected"`
}

// --- Handlers ---

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Calculate handles POST /api/v1/pricing/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if !decode(w, r, &req) {
		return
	}

	writeData(w, http.StatusOK, h.service.Calculate(req.Rows))
}

// Preview handles POST /api/v1/pricing/preview
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decode(w, r, &req) {
		return
	}

	writeData(w, http.StatusOK, h.service.Preview(req.Rows, req.Options))
}

// Categories handles GET /api/v1/categories?batch_id=
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	batchID := r.URL.Query().Get("batch_id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "batch_id is required")
		return
	}

	sel, err := h.service.CategoryTree(r.Context(), batchID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeData(w, http.StatusOK, newTreeResponse(sel))
}

// GetSelection handles GET /api/v1/categories/selection
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	selected, err := h.service.Selection(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeData(w, http.StatusOK, SelectionResponse{Selected: selected})
}

// PutSelection handles PUT /api/v1/categories/selection. The paths replace
// the checked set of the batch tree.
func (h *Handler) PutSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decode(w, r, &req) {
		return
	}

	sel, err := h.service.ReplaceSelection(r.Context(), req.BatchID, req.Paths)
	h.writeTree(w, r, sel, err)
}

// CheckCategory handles POST /api/v1/categories/selection/check
func (h *Handler) CheckCategory(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decode(w, r, &req) {
		return
	}

	sel, err := h.service.CheckCategory(r.Context(), req.BatchID, req.Path, req.Checked)
	h.writeTree(w, r, sel, err)
}

// SelectAll handles POST /api/v1/categories/selection/all
func (h *Handler) SelectAll(w http.ResponseWriter, r *http.Request) {
	var req SelectAllRequest
	if !decode(w, r, &req) {
		return
	}

	sel, err := h.service.SelectAllCategories(r.Context(), req.BatchID)
	h.writeTree(w, r, sel, err)
}

// ClearSelection handles DELETE /api/v1/categories/selection?batch_id=
func (h *Handler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	batchID := r.URL.Query().Get("batch_id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "batch_id is required")
		return
	}

	sel, err := h.service.ClearSelection(r.Context(), batchID)
	h.writeTree(w, r, sel, err)
}

func (h *Handler) writeTree(w http.ResponseWriter, r *http.Request, sel *category.Selection, err error) {
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newTreeResponse(sel))
}

// CreateBatch handles POST /api/v1/batches
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}

	h.enqueue(w, r, req.BatchID, req.Rows)
}

// ImportBatch handles POST /api/v1/batches/import
func (h *Handler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decode(w, r, &req) {
		return
	}

	sheet, err := h.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		log.Warnf("⚠️ Import from %s failed: %v", req.URL, err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error())
		return
	}

	h.enqueue(w, r, req.BatchID, sheet.Rows)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, batchID string, rows []domain.Row) {
	batchID, chunks, err := h.service.Enqueue(r.Context(), batchID, rows)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		writeInternal(w, r, err)
		return
	}

	writeData(w, http.StatusAccepted, BatchResponse{BatchID: batchID, Chunks: chunks, Rows: len(rows)})
}

// GetBatch handles GET /api/v1/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeData(w, http.StatusOK, status)
}

// CreateExport handles POST /api/v1/exports. The rows come from the request
// or are fetched from url; the persisted category selection is restored onto
// their category tree and applies.
func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decode(w, r, &req) {
		return
	}

	sheet := &domain.Sheet{Headers: req.Headers, Rows: req.Rows}
	if len(req.Rows) == 0 {
		fetched, err := h.fetcher.Fetch(r.Context(), req.URL)
		if err != nil {
			log.Warnf("⚠️ Export source %s failed: %v", req.URL, err)
			writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error())
			return
		}
		sheet = fetched
	}
	if len(sheet.Headers) == 0 {
		sheet.Headers = headersOf(sheet.Rows)
	}

	selected, err := h.service.ExportSelection(r.Context(), sheet.Rows)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	summary, err := h.exporter.Run(r.Context(), req.BatchID, sheet, selected, nil)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeData(w, http.StatusOK, summary)
}

// headersOf collects the keys of all rows, sorted.
func headersOf(rows []domain.Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for key := range row {
			seen[key] = struct{}{}
		}
	}
	headers := make([]string, 0, len(seen))
	for key := range seen {
		headers = append(headers, key)
	}
	sort.Strings(headers)
	return headers
}
