package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/shopforge/shopforge/internal/app"
	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/domain/collection"
	"github.com/shopforge/shopforge/internal/app/metrics"
	"github.com/shopforge/shopforge/internal/app/storage"
	"github.com/shopforge/shopforge/internal/jobqueue"
	"github.com/shopforge/shopforge/internal/plugin"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the admin REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	r := mux.NewRouter()

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	r.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.updateProduct).Methods(http.MethodPut)
	r.HandleFunc("/products/{id}", h.deleteProduct).Methods(http.MethodDelete)
	r.HandleFunc("/products/{id}/variants", h.createVariant).Methods(http.MethodPost)
	r.HandleFunc("/products/{id}/variants", h.listVariants).Methods(http.MethodGet)
	r.HandleFunc("/variants/{id}", h.updateVariant).Methods(http.MethodPut)
	r.HandleFunc("/variants/{id}/stock", h.adjustStock).Methods(http.MethodPost)
	r.HandleFunc("/facet-values", h.createFacetValue).Methods(http.MethodPost)
	r.HandleFunc("/facet-values", h.listFacetValues).Methods(http.MethodGet)

	r.HandleFunc("/collections", h.createCollection).Methods(http.MethodPost)
	r.HandleFunc("/collections", h.listCollections).Methods(http.MethodGet)
	r.HandleFunc("/collections/{id}", h.getCollection).Methods(http.MethodGet)
	r.HandleFunc("/collections/{id}", h.updateCollection).Methods(http.MethodPut)
	r.HandleFunc("/collections/{id}", h.deleteCollection).Methods(http.MethodDelete)
	r.HandleFunc("/collections/{id}/members", h.collectionMembers).Methods(http.MethodGet)
	r.HandleFunc("/collections/{id}/rebuild", h.rebuildCollection).Methods(http.MethodPost)
	r.HandleFunc("/collection-filters", h.listFilterCodes).Methods(http.MethodGet)

	r.HandleFunc("/assets", h.uploadAsset).Methods(http.MethodPost)
	r.HandleFunc("/assets", h.listAssets).Methods(http.MethodGet)
	r.HandleFunc("/assets/{id}", h.getAsset).Methods(http.MethodGet)
	r.HandleFunc("/assets/{id}", h.deleteAsset).Methods(http.MethodDelete)
	r.HandleFunc("/assets/{id}/file", h.serveAssetFile).Methods(http.MethodGet)

	r.HandleFunc("/customers", h.registerCustomer).Methods(http.MethodPost)
	r.HandleFunc("/customers", h.listCustomers).Methods(http.MethodGet)
	r.HandleFunc("/customers/verify", h.verifyCustomer).Methods(http.MethodPost)
	r.HandleFunc("/customers/login", h.loginCustomer).Methods(http.MethodPost)
	r.HandleFunc("/customers/password-reset/request", h.requestPasswordReset).Methods(http.MethodPost)
	r.HandleFunc("/customers/password-reset/confirm", h.confirmPasswordReset).Methods(http.MethodPost)
	r.HandleFunc("/customers/{id}", h.getCustomer).Methods(http.MethodGet)

	r.HandleFunc("/jobs", h.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", h.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/cancel", h.cancelJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/retry", h.retryJob).Methods(http.MethodPost)
	r.HandleFunc("/queues", h.listQueues).Methods(http.MethodGet)
	r.HandleFunc("/scheduler/tasks", h.listScheduledTasks).Methods(http.MethodGet)
	r.HandleFunc("/plugins", h.listPlugins).Methods(http.MethodGet)

	r.HandleFunc("/ws/jobs", newJobSocket(application.Bus).serveWS).Methods(http.MethodGet)

	if application.Plugins != nil {
		application.Plugins.MountRoutes(r)
	}
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	report := h.app.Health.Report(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name          string   `json:"name"`
		Slug          string   `json:"slug"`
		Description   string   `json:"description"`
		Enabled       *bool    `json:"enabled"`
		FacetValueIDs []string `json:"facet_value_ids"`
		AssetIDs      []string `json:"asset_ids"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p := catalog.Product{
		Name:          payload.Name,
		Slug:          payload.Slug,
		Description:   payload.Description,
		Enabled:       true,
		FacetValueIDs: payload.FacetValueIDs,
		AssetIDs:      payload.AssetIDs,
	}
	if payload.Enabled != nil {
		p.Enabled = *payload.Enabled
	}

	created, err := h.app.Catalog.CreateProduct(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	if slug := strings.TrimSpace(r.URL.Query().Get("slug")); slug != "" {
		p, err := h.app.Catalog.GetProductBySlug(r.Context(), slug)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, []catalog.Product{p})
		return
	}

	products, err := h.app.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(r.Body, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p.ID = mux.Vars(r)["id"]

	updated, err := h.app.Catalog.UpdateProduct(r.Context(), p)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) createVariant(w http.ResponseWriter, r *http.Request) {
	var v catalog.ProductVariant
	if err := decodeJSON(r.Body, &v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v.ProductID = mux.Vars(r)["id"]

	created, err := h.app.Catalog.CreateVariant(r.Context(), v)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.app.Catalog.ListVariants(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, variants)
}

func (h *handler) updateVariant(w http.ResponseWriter, r *http.Request) {
	var v catalog.ProductVariant
	if err := decodeJSON(r.Body, &v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v.ID = mux.Vars(r)["id"]

	updated, err := h.app.Catalog.UpdateVariant(r.Context(), v)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Delta int `json:"delta"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Catalog.AdjustStock(r.Context(), mux.Vars(r)["id"], payload.Delta)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) createFacetValue(w http.ResponseWriter, r *http.Request) {
	var fv catalog.FacetValue
	if err := decodeJSON(r.Body, &fv); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Catalog.CreateFacetValue(r.Context(), fv)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listFacetValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.app.Catalog.ListFacetValues(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *handler) createCollection(w http.ResponseWriter, r *http.Request) {
	var c collection.Collection
	if err := decodeJSON(r.Body, &c); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Collections.CreateCollection(r.Context(), c)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.app.Collections.ListCollections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

func (h *handler) getCollection(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Collections.GetCollection(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) updateCollection(w http.ResponseWriter, r *http.Request) {
	var c collection.Collection
	if err := decodeJSON(r.Body, &c); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c.ID = mux.Vars(r)["id"]

	updated, err := h.app.Collections.UpdateCollection(r.Context(), c)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Collections.DeleteCollection(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) collectionMembers(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.app.Collections.GetCollection(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	members, err := h.app.Collections.Members(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if members == nil {
		members = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection_id": id, "variant_ids": members})
}

func (h *handler) rebuildCollection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.app.Collections.GetCollection(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := h.app.Collections.ScheduleRebuild(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (h *handler) listFilterCodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Collections.Registry().Codes())
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	opts := jobqueue.ListOptions{
		Queue: strings.TrimSpace(r.URL.Query().Get("queue")),
	}
	for _, s := range r.URL.Query()["state"] {
		if s = strings.TrimSpace(s); s != "" {
			opts.States = append(opts.States, jobqueue.State(s))
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		opts.Limit = limit
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, errors.New("offset must be a non-negative integer"))
			return
		}
		opts.Offset = offset
	}

	jobs, total, err := h.app.Jobs.Strategy().FindMany(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if jobs == nil {
		jobs = []jobqueue.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs, "total": total})
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.app.Jobs.Strategy().FindByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.app.Jobs.CancelJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) retryJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ExtraRetries int `json:"extra_retries"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	job, err := h.app.Jobs.RetryJob(r.Context(), mux.Vars(r)["id"], payload.ExtraRetries)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) listQueues(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Jobs.Strategy().Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if stats == nil {
		stats = []jobqueue.QueueStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) listScheduledTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Scheduler.Tasks())
}

func (h *handler) listPlugins(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, plugin.AllInfo())
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, jobqueue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobqueue.ErrAlreadySettled):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
