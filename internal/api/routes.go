// Package api provides HTTP handlers for the ScatterView server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/scatterview/server/internal/cache"
	"github.com/scatterview/server/internal/events"
	"github.com/scatterview/server/internal/ingeststore"
	"github.com/scatterview/server/internal/legend"
	"github.com/scatterview/server/internal/scatter"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry      *DatasetRegistry
	CORSOrigins   []string
	IngestManager *IngestManager
	Caches        *cache.Manager
	Bus           *events.Bus
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global datasets endpoint (not dataset-scoped)
	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// Bundle upload; the ingest job registers the dataset when it completes
	r.Post("/api/datasets/{dataset}", uploadHandler(cfg.IngestManager))

	// Global ingest job endpoints (not dataset-scoped)
	r.Route("/api/ingest/jobs", func(r chi.Router) {
		r.Get("/", ingestJobListHandler(cfg.IngestManager))
		r.Get("/{job_id}", ingestJobStatusHandler(cfg.IngestManager))
		r.Delete("/{job_id}", ingestJobDeleteHandler(cfg.IngestManager))
	})

	wsPatterns := wsOriginPatterns(cfg.CORSOrigins)

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Get("/frame.png", frameHandler)
		r.Get("/events", eventsHandler(cfg.Bus, wsPatterns))

		// API endpoints
		r.Route("/api", func(r chi.Router) {
			r.Get("/export", exportHandler)
			r.Get("/categories", categoriesHandler)
			r.Get("/category", categoryGetHandler)
			r.Put("/category", categorySetHandler)
			r.Get("/projections", projectionsHandler)
			r.Put("/projection", projectionSetHandler)
			r.Get("/stats", statsHandler(cfg.Caches, cfg.Bus))
			r.Get("/pick", pickHandler(cfg.Caches))
			r.Post("/hover", hoverHandler)

			r.Route("/legend", func(r chi.Router) {
				r.Get("/", legendHandler(cfg.Caches))
				r.Post("/sort", legendSortHandler)
				r.Post("/limit", legendLimitHandler)
				r.Post("/hide", legendHideHandler)
				r.Post("/show", legendShowHandler)
				r.Post("/isolate-value", legendIsolateValueHandler)
				r.Post("/extract", legendExtractHandler)
				r.Post("/merge", legendMergeHandler)
				r.Post("/reorder", legendReorderHandler)
				r.Post("/color", legendColorHandler)
				r.Post("/shape", legendShapeHandler)
				r.Post("/reset", legendResetHandler)
			})

			r.Route("/view", func(r chi.Router) {
				r.Post("/pan", viewPanHandler)
				r.Post("/zoom", viewZoomHandler)
				r.Post("/reset", viewResetHandler)
				r.Post("/resize", viewResizeHandler)
			})

			r.Route("/select", func(r chi.Router) {
				r.Post("/rect", selectRectHandler)
				r.Post("/ids", selectIDsHandler)
				r.Post("/clear", selectClearHandler)
			})

			r.Route("/isolate", func(r chi.Router) {
				r.Post("/", isolateHandler)
				r.Post("/undo", isolateUndoHandler)
			})
			r.Get("/isolation", isolationHandler)
		})
	})

	return r
}

// Context key for dataset engine
type ctxKey string

const datasetEngineKey ctxKey = "datasetEngine"

// datasetMiddleware resolves the dataset from URL and injects its engine into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			eng := registry.Get(datasetID)
			if eng == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetEngineKey, eng)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getEngine(r *http.Request) *scatter.Engine {
	if eng, ok := r.Context().Value(datasetEngineKey).(*scatter.Engine); ok {
		return eng
	}
	return nil
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
			"title":    registry.Title(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// uploadHandler accepts a bundle as a multipart "file" field or a raw body
// and submits it as an ingest job.
func uploadHandler(im *IngestManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if im == nil {
			http.Error(w, "ingest manager not configured", http.StatusNotImplemented)
			return
		}

		datasetID := strings.TrimSpace(chi.URLParam(r, "dataset"))
		if datasetID == "" {
			http.Error(w, "dataset id is required", http.StatusBadRequest)
			return
		}

		payload := io.Reader(r.Body)
		filename := datasetID + ".bundle"
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			file, header, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "invalid multipart upload: "+err.Error(), http.StatusBadRequest)
				return
			}
			defer file.Close()
			payload = file
			if header.Filename != "" {
				filename = header.Filename
			}
		}

		job, err := im.Submit(datasetID, filename, payload)
		if err != nil {
			http.Error(w, "failed to submit job: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}

func ingestJobListHandler(im *IngestManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if im == nil {
			http.Error(w, "ingest manager not configured", http.StatusNotImplemented)
			return
		}

		datasetID := strings.TrimSpace(r.URL.Query().Get("dataset"))
		if datasetID == "" {
			http.Error(w, "missing required query param: dataset", http.StatusBadRequest)
			return
		}

		jobs := im.Jobs(datasetID)
		if jobs == nil {
			jobs = []*ingeststore.IngestJob{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jobs": jobs,
		})
	}
}

func ingestJobStatusHandler(im *IngestManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if im == nil {
			http.Error(w, "ingest manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := im.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(job)
	}
}

// ingestJobDeleteHandler cancels a pending job, or purges the record of a
// finished one.
func ingestJobDeleteHandler(im *IngestManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if im == nil {
			http.Error(w, "ingest manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := im.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		if jobFinished(job.Status) {
			if err := im.Delete(jobID); err != nil {
				http.Error(w, "failed to delete job: "+err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"job_id":  jobID,
				"deleted": true,
			})
			return
		}

		im.Cancel(jobID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id":    jobID,
			"cancelled": true,
		})
	}
}

func jobFinished(s ingeststore.JobStatus) bool {
	return s == ingeststore.JobStatusCompleted || s == ingeststore.JobStatusFailed || s == ingeststore.JobStatusCancelled
}

// Dataset-scoped handlers (get engine from context)

// frameHandler renders the dataset's current state as a PNG. Frames track
// server-side interaction state, so clients must not cache them.
func frameHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var opts scatter.FrameOptions
	if raw := strings.TrimSpace(r.URL.Query().Get("w")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid w", http.StatusBadRequest)
			return
		}
		opts.Width = v
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("h")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid h", http.StatusBadRequest)
			return
		}
		opts.Height = v
	}

	data, err := eng.RenderFrame(opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func exportHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	data, err := eng.ExportBundle()
	if err != nil {
		http.Error(w, "failed to export bundle: "+err.Error(), http.StatusInternalServerError)
		return
	}

	filename := eng.Name() + ".bundle"
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	} else {
		w.Header().Set("Content-Disposition", "attachment")
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func categoriesHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	categories := eng.Categories()
	if categories == nil {
		categories = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"categories": categories,
		"active":     eng.ActiveCategory(),
	})
}

func categoryGetHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"category": eng.ActiveCategory(),
	})
}

type categoryRequest struct {
	Category string `json:"category"`
}

// categorySetHandler switches the active category and returns its legend.
// An empty category clears the selection.
func categorySetHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := eng.SetCategory(req.Category); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, eng.Legend())
}

func projectionsHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	projections := eng.Projections()
	if projections == nil {
		projections = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"projections": projections,
		"active":      eng.ActiveProjection(),
	})
}

type projectionRequest struct {
	Projection string `json:"projection"`
}

func projectionSetHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req projectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := eng.SetProjection(req.Projection); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"projection": eng.ActiveProjection(),
		"transform":  eng.Transform(),
	})
}

func statsHandler(caches *cache.Manager, bus *events.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng := getEngine(r)
		if eng == nil {
			http.Error(w, "dataset engine not available", http.StatusInternalServerError)
			return
		}

		stats := eng.Stats()
		if caches != nil {
			stats["cache"] = caches.Stats()
		}
		if bus != nil {
			stats["events"] = map[string]interface{}{
				"subscribers": bus.SubscriberCount(),
				"dropped":     bus.Dropped(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

// pickHandler resolves the point under a canvas coordinate. Results are
// cached until the data, style, or view changes.
func pickHandler(caches *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng := getEngine(r)
		if eng == nil {
			http.Error(w, "dataset engine not available", http.StatusInternalServerError)
			return
		}

		x, err := parseFloatParam(r, "x")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		y, err := parseFloatParam(r, "y")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var key string
		if caches != nil {
			t := eng.Transform()
			sig := fmt.Sprintf("%s|%s|r%d|s=%.6g|t=%.6g,%.6g",
				eng.ActiveCategory(), eng.ActiveProjection(), eng.Revision(),
				t.Scale, t.TranslateX, t.TranslateY)
			key = cache.PickKey(eng.Name(), eng.Generation(), sig, x, y)
			if data, ok := caches.GetQuery(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Write(data)
				return
			}
		}

		result, found := eng.Pick(x, y)
		data, err := json.Marshal(map[string]interface{}{
			"found":  found,
			"result": result,
		})
		if err != nil {
			http.Error(w, "failed to encode pick result: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if caches != nil {
			caches.SetQuery(key, data)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

type pointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func hoverHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req pointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, found := eng.Hover(req.X, req.Y)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"found":  found,
		"result": result,
	})
}

// Legend handlers

func legendHandler(caches *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eng := getEngine(r)
		if eng == nil {
			http.Error(w, "dataset engine not available", http.StatusInternalServerError)
			return
		}

		var key string
		if caches != nil {
			key = cache.LegendKey(eng.Name(), eng.Generation(), eng.ActiveCategory(), eng.Revision())
			if data, ok := caches.GetQuery(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Write(data)
				return
			}
		}

		snap := eng.Legend()
		if snap == nil {
			snap = &legend.Snapshot{Items: []legend.Item{}}
		}
		data, err := json.Marshal(snap)
		if err != nil {
			http.Error(w, "failed to encode legend: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if caches != nil {
			caches.SetQuery(key, data)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func writeLegend(w http.ResponseWriter, snap *legend.Snapshot) {
	if snap == nil {
		snap = &legend.Snapshot{Items: []legend.Item{}}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

type sortModeRequest struct {
	Mode string `json:"mode"`
}

func legendSortHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req sortModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		http.Error(w, "mode is required", http.StatusBadRequest)
		return
	}

	snap, err := eng.SetSortMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

type maxVisibleRequest struct {
	MaxVisible int `json:"max_visible"`
}

func legendLimitHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req maxVisibleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := eng.SetMaxVisible(req.MaxVisible)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

type valueRequest struct {
	Value string `json:"value"`
}

func decodeValueRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return "", false
	}
	if req.Value == "" {
		http.Error(w, "value is required", http.StatusBadRequest)
		return "", false
	}
	return req.Value, true
}

func legendHideHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	value, ok := decodeValueRequest(w, r)
	if !ok {
		return
	}
	snap, err := eng.HideValue(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

func legendShowHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	value, ok := decodeValueRequest(w, r)
	if !ok {
		return
	}
	snap, err := eng.ShowValue(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

func legendIsolateValueHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	value, ok := decodeValueRequest(w, r)
	if !ok {
		return
	}
	snap, err := eng.IsolateValue(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

func legendExtractHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	value, ok := decodeValueRequest(w, r)
	if !ok {
		return
	}
	snap, err := eng.Extract(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

func legendMergeHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	value, ok := decodeValueRequest(w, r)
	if !ok {
		return
	}
	snap, err := eng.Merge(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

type reorderRequest struct {
	Value string `json:"value"`
	Rank  int    `json:"rank"`
}

func legendReorderHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Value == "" {
		http.Error(w, "value is required", http.StatusBadRequest)
		return
	}

	snap, err := eng.Reorder(req.Value, req.Rank)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

type colorRequest struct {
	Value string `json:"value"`
	Color string `json:"color"`
}

func legendColorHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req colorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Value == "" {
		http.Error(w, "value is required", http.StatusBadRequest)
		return
	}
	if req.Color == "" {
		http.Error(w, "color is required", http.StatusBadRequest)
		return
	}

	snap, err := eng.SetColor(req.Value, req.Color)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

type shapeRequest struct {
	Value string `json:"value"`
	Shape string `json:"shape"`
}

func legendShapeHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req shapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Value == "" {
		http.Error(w, "value is required", http.StatusBadRequest)
		return
	}
	if req.Shape == "" {
		http.Error(w, "shape is required", http.StatusBadRequest)
		return
	}

	snap, err := eng.SetShape(req.Value, req.Shape)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

func legendResetHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	snap, err := eng.ResetSettings()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeLegend(w, snap)
}

// View handlers

func writeTransform(w http.ResponseWriter, eng *scatter.Engine) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transform": eng.Transform(),
	})
}

type panRequest struct {
	Dx float64 `json:"dx"`
	Dy float64 `json:"dy"`
}

func viewPanHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req panRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	eng.ViewPan(req.Dx, req.Dy)
	writeTransform(w, eng)
}

type zoomRequest struct {
	Factor float64 `json:"factor"`
	Cx     float64 `json:"cx"`
	Cy     float64 `json:"cy"`
}

func viewZoomHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req zoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := eng.ViewZoom(req.Factor, req.Cx, req.Cy); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeTransform(w, eng)
}

func viewResetHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	eng.ViewReset()
	writeTransform(w, eng)
}

type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func viewResizeHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := eng.ViewResize(req.Width, req.Height); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeTransform(w, eng)
}

// Selection handlers

func writeSelection(w http.ResponseWriter, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"selection": ids,
	})
}

type rectRequest struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func selectRectHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req rectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeSelection(w, eng.SelectRect(req.X0, req.Y0, req.X1, req.Y1))
}

type selectionRequest struct {
	IDs []string `json:"ids"`
}

func selectIDsHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeSelection(w, eng.SetSelection(req.IDs))
}

func selectClearHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	eng.ClearSelection()
	writeSelection(w, nil)
}

// Isolation handlers

func writeIsolation(w http.ResponseWriter, eng *scatter.Engine) {
	depth := eng.IsolationDepth()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"active":         depth > 0,
		"depth":          depth,
		"points_working": eng.NumPoints(),
		"points_total":   eng.TotalPoints(),
	})
}

func isolateHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	if err := eng.Isolate(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeIsolation(w, eng)
}

func isolateUndoHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}

	eng.UndoIsolation()
	writeIsolation(w, eng)
}

func isolationHandler(w http.ResponseWriter, r *http.Request) {
	eng := getEngine(r)
	if eng == nil {
		http.Error(w, "dataset engine not available", http.StatusInternalServerError)
		return
	}
	writeIsolation(w, eng)
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing required query param: %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", name, raw)
	}
	return v, nil
}
