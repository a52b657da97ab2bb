package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

// maxUploadBytes bounds multipart asset uploads.
const maxUploadBytes = 64 << 20

func (h *handler) uploadAsset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	created, err := h.app.Assets.Upload(r.Context(), header.Filename, mimeType, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.app.Assets.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

func (h *handler) getAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.app.Assets.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) deleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Assets.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) serveAssetFile(w http.ResponseWriter, r *http.Request) {
	a, rc, err := h.app.Assets.Open(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer rc.Close()

	if a.MimeType != "" {
		w.Header().Set("Content-Type", a.MimeType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = io.Copy(w, rc)
}
