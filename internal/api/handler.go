// Package api exposes the CDR pipeline over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/auth"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/export"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/filter"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/pipeline"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/source"
)

const (
	HeaderDatasetID  = "X-Dataset-Id"
	HeaderGeneration = "X-Generation"
)

// Exporter stores a rendered snapshot workbook
type Exporter interface {
	Upload(ctx context.Context, snap *pipeline.Snapshot, limit int) (*export.UploadResult, error)
}

// Options configures a Handler
type Options struct {
	Coordinator *pipeline.Coordinator
	Source      source.Source
	// Exporter may be nil, in which case POST /export answers 501
	Exporter       Exporter
	MaxUploadBytes int64
	TableRowLimit  int
	Logger         zerolog.Logger
}

// Handler serves dataset loading, filtering and the computed views
type Handler struct {
	coord     *pipeline.Coordinator
	source    source.Source
	exporter  Exporter
	maxUpload int64
	rowLimit  int
	logger    zerolog.Logger
	timeNow   func() time.Time
}

// NewHandler creates a Handler
func NewHandler(opts Options) *Handler {
	src := opts.Source
	if src == nil {
		src = source.NewNoopSource()
	}
	return &Handler{
		coord:     opts.Coordinator,
		source:    src,
		exporter:  opts.Exporter,
		maxUpload: opts.MaxUploadBytes,
		rowLimit:  opts.TableRowLimit,
		logger:    opts.Logger.With().Str("component", "api").Logger(),
		timeNow:   time.Now,
	}
}

// Register mounts the routes on r. Reads need the viewer role, anything
// that changes the dataset or filters needs analyst.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleViewer))
		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/filters", h.GetFilters)
		r.Get("/destinations", h.GetDestinations)
		r.Get("/calls", h.GetCalls)
		r.Get("/export.xlsx", h.DownloadWorkbook)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAnalyst))
		r.Post("/dataset", h.LoadDataset)
		r.Post("/query", h.LoadQuery)
		r.Put("/filters", h.SetFilters)
		r.Post("/export", h.UploadWorkbook)
	})
}

// LoadDataset handles POST /api/dataset
func (h *Handler) LoadDataset(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}

	var ds cdr.Dataset
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "dataset exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.coord.Load(r.Context(), ds)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	h.logger.Info().
		Str("dataset_id", snap.DatasetID).
		Int("records", snap.RecordCount).
		Str("user", userEmail(r)).
		Msg("dataset uploaded")
	writeSnapshot(w, http.StatusCreated, snap)
}

// LoadQuery handles POST /api/query
func (h *Handler) LoadQuery(w http.ResponseWriter, r *http.Request) {
	var q source.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ds, err := h.source.Fetch(r.Context(), q)
	switch {
	case errors.Is(err, source.ErrNotConfigured):
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	case errors.Is(err, source.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("remote query failed")
		writeError(w, http.StatusBadGateway, "remote query failed")
		return
	}

	snap, err := h.coord.Load(r.Context(), ds)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeSnapshot(w, http.StatusCreated, snap)
}

// GetSnapshot handles GET /api/snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.coord.Snapshot()
	if snap == nil {
		writeError(w, http.StatusNotFound, pipeline.ErrNoDataset.Error())
		return
	}
	writeSnapshot(w, http.StatusOK, snap)
}

// GetFilters handles GET /api/filters
func (h *Handler) GetFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Filters())
}

// SetFilters handles PUT /api/filters
func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var st filter.State
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	snap, err := h.coord.SetFilters(r.Context(), st)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeSnapshot(w, http.StatusOK, snap)
}

// GetDestinations handles GET /api/destinations
func (h *Handler) GetDestinations(w http.ResponseWriter, r *http.Request) {
	dests, err := h.coord.Destinations()
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"destinations": dests})
}

// GetCalls handles GET /api/calls?limit=N
func (h *Handler) GetCalls(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	view, err := h.coord.Calls(limit)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	setSnapshotHeaders(w, view.DatasetID, view.Generation)
	writeJSON(w, http.StatusOK, view)
}

// DownloadWorkbook handles GET /api/export.xlsx
func (h *Handler) DownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	snap := h.coord.Snapshot()
	if snap == nil {
		writeError(w, http.StatusNotFound, pipeline.ErrNoDataset.Error())
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, snap, limit); err != nil {
		h.logger.Error().Err(err).Msg("failed to render workbook")
		writeError(w, http.StatusInternalServerError, "failed to render workbook")
		return
	}

	setSnapshotHeaders(w, snap.DatasetID, snap.Generation)
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(snap, h.timeNow())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// UploadWorkbook handles POST /api/export
func (h *Handler) UploadWorkbook(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusNotImplemented, export.ErrNotConfigured.Error())
		return
	}

	snap := h.coord.Snapshot()
	if snap == nil {
		writeError(w, http.StatusNotFound, pipeline.ErrNoDataset.Error())
		return
	}

	res, err := h.exporter.Upload(r.Context(), snap, h.rowLimit)
	if err != nil {
		h.logger.Error().Err(err).Msg("workbook export failed")
		writeError(w, http.StatusBadGateway, "export failed")
		return
	}
	setSnapshotHeaders(w, snap.DatasetID, snap.Generation)
	writeJSON(w, http.StatusCreated, res)
}

// limit reads ?limit, falling back to the configured row limit
func (h *Handler) limit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.rowLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if h.rowLimit > 0 && n > h.rowLimit {
		n = h.rowLimit
	}
	return n, true
}

func (h *Handler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cdr.ErrMalformedDataset):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNoDataset):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		h.logger.Error().Err(err).Msg("pipeline error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func userEmail(r *http.Request) string {
	if claims, ok := auth.GetUserFromContext(r.Context()); ok {
		return claims.Email
	}
	return ""
}

func setSnapshotHeaders(w http.ResponseWriter, datasetID string, generation uint64) {
	w.Header().Set(HeaderDatasetID, datasetID)
	w.Header().Set(HeaderGeneration, strconv.FormatUint(generation, 10))
}

func writeSnapshot(w http.ResponseWriter, status int, snap *pipeline.Snapshot) {
	setSnapshotHeaders(w, snap.DatasetID, snap.Generation)
	writeJSON(w, status, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
