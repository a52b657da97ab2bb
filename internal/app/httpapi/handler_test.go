package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/shopforge/shopforge/internal/app"
	"github.com/shopforge/shopforge/internal/app/domain/catalog"
	"github.com/shopforge/shopforge/internal/app/domain/collection"
)

func newTestHandler(t *testing.T) (http.Handler, *app.Application) {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })
	return NewHandler(application), application
}

func doJSON(t *testing.T, handler http.Handler, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, reader)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response %q: %v", resp.Body.String(), err)
	}
}

func TestHandlerCatalogLifecycle(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := doJSON(t, handler, http.MethodPost, "/products", map[string]any{
		"name":        "Aero Bottle",
		"slug":        "aero-bottle",
		"description": "Insulated bottle",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create product, got %d: %s", resp.Code, resp.Body.String())
	}
	var product catalog.Product
	decodeBody(t, resp, &product)
	if product.ID == "" || !product.Enabled {
		t.Fatalf("unexpected product: %+v", product)
	}

	resp = doJSON(t, handler, http.MethodGet, "/products/"+product.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 get product, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/products?slug=aero-bottle", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 slug lookup, got %d", resp.Code)
	}
	var bySlug []catalog.Product
	decodeBody(t, resp, &bySlug)
	if len(bySlug) != 1 || bySlug[0].ID != product.ID {
		t.Fatalf("expected single slug match, got %+v", bySlug)
	}

	product.Description = "Vacuum insulated bottle"
	resp = doJSON(t, handler, http.MethodPut, "/products/"+product.ID, product)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 update product, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, handler, http.MethodPost, "/products/"+product.ID+"/variants", map[string]any{
		"sku":           "AB-500-BLK",
		"name":          "Aero Bottle 500ml Black",
		"price_cents":   2499,
		"currency":      "USD",
		"stock_on_hand": 10,
		"enabled":       true,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create variant, got %d: %s", resp.Code, resp.Body.String())
	}
	var variant catalog.ProductVariant
	decodeBody(t, resp, &variant)
	if variant.ProductID != product.ID {
		t.Fatalf("expected variant bound to product, got %+v", variant)
	}

	resp = doJSON(t, handler, http.MethodPost, "/variants/"+variant.ID+"/stock", map[string]any{"delta": -3})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 adjust stock, got %d: %s", resp.Code, resp.Body.String())
	}
	var adjusted catalog.ProductVariant
	decodeBody(t, resp, &adjusted)
	if adjusted.StockOnHand != 7 {
		t.Fatalf("expected stock 7, got %d", adjusted.StockOnHand)
	}

	resp = doJSON(t, handler, http.MethodGet, "/products/"+product.ID+"/variants", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 list variants, got %d", resp.Code)
	}
	var variants []catalog.ProductVariant
	decodeBody(t, resp, &variants)
	if len(variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(variants))
	}

	resp = doJSON(t, handler, http.MethodPost, "/facet-values", map[string]any{
		"facet_code": "color",
		"code":       "black",
		"name":       "Black",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create facet value, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, handler, http.MethodGet, "/facet-values", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 list facet values, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodDelete, "/products/"+product.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 delete product, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/products/"+product.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestHandlerCollectionsAndJobs(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := doJSON(t, handler, http.MethodPost, "/collections", map[string]any{
		"name": "Sale",
		"slug": "sale",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create collection, got %d: %s", resp.Code, resp.Body.String())
	}
	var col collection.Collection
	decodeBody(t, resp, &col)

	resp = doJSON(t, handler, http.MethodGet, "/collections/"+col.ID+"/members", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 members, got %d", resp.Code)
	}
	var members struct {
		CollectionID string   `json:"collection_id"`
		VariantIDs   []string `json:"variant_ids"`
	}
	decodeBody(t, resp, &members)
	if members.CollectionID != col.ID || members.VariantIDs == nil {
		t.Fatalf("unexpected members payload: %+v", members)
	}

	resp = doJSON(t, handler, http.MethodGet, "/collections/missing/members", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 members of missing collection, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/collection-filters", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 filter codes, got %d", resp.Code)
	}
	var codes []string
	decodeBody(t, resp, &codes)
	if len(codes) == 0 {
		t.Fatalf("expected registered filter codes")
	}

	// Workers are disabled in this test, so the rebuild job stays pending
	// and can be driven through the job endpoints.
	resp = doJSON(t, handler, http.MethodPost, "/collections/"+col.ID+"/rebuild", nil)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 rebuild, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, handler, http.MethodGet, "/jobs?queue=apply-collection-filters", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 list jobs, got %d", resp.Code)
	}
	var page struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	decodeBody(t, resp, &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected one pending job, got %+v", page)
	}
	jobID, _ := page.Items[0]["id"].(string)
	if jobID == "" {
		t.Fatalf("expected job id, got %+v", page.Items[0])
	}

	resp = doJSON(t, handler, http.MethodGet, "/jobs/"+jobID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 get job, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPost, "/jobs/"+jobID+"/cancel", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 cancel job, got %d: %s", resp.Code, resp.Body.String())
	}
	var cancelled map[string]any
	decodeBody(t, resp, &cancelled)
	if cancelled["state"] != "cancelled" {
		t.Fatalf("expected cancelled state, got %v", cancelled["state"])
	}

	resp = doJSON(t, handler, http.MethodPost, "/jobs/"+jobID+"/cancel", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 cancelling settled job, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPost, "/jobs/"+jobID+"/retry", map[string]any{"extra_retries": 2})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 retry job, got %d: %s", resp.Code, resp.Body.String())
	}
	var retried map[string]any
	decodeBody(t, resp, &retried)
	if retried["state"] != "pending" {
		t.Fatalf("expected pending after retry, got %v", retried["state"])
	}

	resp = doJSON(t, handler, http.MethodGet, "/jobs/missing", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 missing job, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/jobs?limit=-1", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 negative limit, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/queues", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 queue stats, got %d", resp.Code)
	}
}

func TestHandlerAssets(t *testing.T) {
	handler, _ := newTestHandler(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "logo.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	content := []byte("fake png bytes")
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 upload, got %d: %s", resp.Code, resp.Body.String())
	}
	var asset map[string]any
	decodeBody(t, resp, &asset)
	assetID, _ := asset["id"].(string)
	if assetID == "" {
		t.Fatalf("expected asset id, got %v", asset)
	}

	resp = doJSON(t, handler, http.MethodGet, "/assets/"+assetID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 get asset, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/assets/"+assetID+"/file", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 serve file, got %d", resp.Code)
	}
	if !bytes.Equal(resp.Body.Bytes(), content) {
		t.Fatalf("served file differs from upload")
	}

	resp = doJSON(t, handler, http.MethodDelete, "/assets/"+assetID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 delete asset, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/assets/"+assetID, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPost, "/assets", map[string]any{"name": "not multipart"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 non-multipart upload, got %d", resp.Code)
	}
}

func TestHandlerCustomers(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := doJSON(t, handler, http.MethodPost, "/customers", map[string]any{
		"email":      "jamie@example.com",
		"first_name": "Jamie",
		"last_name":  "Lee",
		"password":   "hunter2hunter2",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 register, got %d: %s", resp.Code, resp.Body.String())
	}
	var cust map[string]any
	decodeBody(t, resp, &cust)
	if _, leaked := cust["PasswordHash"]; leaked {
		t.Fatalf("password hash leaked in response: %v", cust)
	}
	custID, _ := cust["id"].(string)
	if custID == "" {
		t.Fatalf("expected customer id, got %v", cust)
	}

	resp = doJSON(t, handler, http.MethodGet, "/customers/"+custID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 get customer, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPost, "/customers/login", map[string]any{
		"email":    "jamie@example.com",
		"password": "hunter2hunter2",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 login, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, handler, http.MethodPost, "/customers/login", map[string]any{
		"email":    "jamie@example.com",
		"password": "wrong-password",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 bad password, got %d", resp.Code)
	}

	// Unknown emails get the same response as known ones.
	resp = doJSON(t, handler, http.MethodPost, "/customers/password-reset/request", map[string]any{
		"email": "nobody@example.com",
	})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 reset request, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPost, "/customers", map[string]any{
		"email":    "not-an-email",
		"password": "hunter2hunter2",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid email, got %d", resp.Code)
	}
}

func TestHandlerSystemEndpoints(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := doJSON(t, handler, http.MethodGet, "/health", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 health, got %d: %s", resp.Code, resp.Body.String())
	}
	var report map[string]any
	decodeBody(t, resp, &report)
	if report["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", report["status"])
	}

	resp = doJSON(t, handler, http.MethodGet, "/metrics", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 metrics, got %d", resp.Code)
	}
	if resp.Body.Len() == 0 {
		t.Fatalf("expected metrics output to be non-empty")
	}

	resp = doJSON(t, handler, http.MethodGet, "/scheduler/tasks", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 scheduler tasks, got %d", resp.Code)
	}
	var tasks []map[string]any
	decodeBody(t, resp, &tasks)
	if len(tasks) == 0 {
		t.Fatalf("expected registered scheduler tasks")
	}

	resp = doJSON(t, handler, http.MethodGet, "/plugins", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 plugins, got %d", resp.Code)
	}
}
