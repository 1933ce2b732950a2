package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/wstore/internal/apperr"
	"github.com/starford/wstore/internal/fileservice"
	"github.com/starford/wstore/internal/models"
)

// Handler holds the storage route handlers.
type Handler struct {
	svc          *fileservice.Service
	maxBodyBytes int64
}

// NewHandler creates a new Handler. A non-positive limit selects DefaultMaxBodyBytes.
func NewHandler(svc *fileservice.Service, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{svc: svc, maxBodyBytes: maxBodyBytes}
}

// resourcePath extracts the storage-relative path from the URL. chi matches
// against RawPath when it is set, so only then is the wildcard still escaped
// (e.g. reports%2Fq1.json).
func resourcePath(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Read handles GET /*: file bytes with an inferred content type, or a JSON
// listing for directories.
func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	rel := resourcePath(r)
	res, err := h.svc.Read(r.Context(), rel)
	if err != nil {
		h.fail(w, rel, "reading", err)
		return
	}

	if res.Kind == models.KindDirectory {
		files := res.Children
		if files == nil {
			files = []string{}
		}
		writeJSON(w, http.StatusOK, ListingResponse{Files: files})
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Content); err != nil {
		slog.Debug("write file body failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

// Create handles POST /*. Existing files are never overwritten.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	rel := resourcePath(r)
	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, rel, "creating", err)
		return
	}
	if err := h.svc.Create(r.Context(), rel, body); err != nil {
		h.fail(w, rel, "creating", err)
		return
	}
	writeText(w, http.StatusCreated, MsgCreated)
}

// Upsert handles PUT /*.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	rel := resourcePath(r)
	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, rel, "updating", err)
		return
	}
	if err := h.svc.Upsert(r.Context(), rel, body); err != nil {
		h.fail(w, rel, "updating", err)
		return
	}
	writeText(w, http.StatusOK, MsgUpdated)
}

// Delete handles DELETE /*.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	rel := resourcePath(r)
	if err := h.svc.Delete(r.Context(), rel); err != nil {
		h.fail(w, rel, "deleting", err)
		return
	}
	writeText(w, http.StatusOK, MsgDeleted)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.ContentLength > h.maxBodyBytes {
		return nil, fmt.Errorf("api: body of %d bytes: %w", r.ContentLength, apperr.ErrPayloadTooLarge)
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fmt.Errorf("api: body over %d bytes: %w", mbe.Limit, apperr.ErrPayloadTooLarge)
		}
		return nil, fmt.Errorf("api: read body: %w: %w", apperr.ErrIO, err)
	}
	return data, nil
}

// fail maps a storage outcome to its status code and plain-text message.
// action names the verb for the generic "Error <action> file" message.
func (h *Handler) fail(w http.ResponseWriter, rel, action string, err error) {
	status := apperr.Status(err)
	switch {
	case errors.Is(err, apperr.ErrInvalidPath):
		writeText(w, status, MsgInvalidPath)
	case errors.Is(err, apperr.ErrNotFound):
		writeText(w, status, MsgNotFound)
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeText(w, status, MsgAlreadyExists)
	case errors.Is(err, apperr.ErrPayloadTooLarge):
		writeText(w, status, MsgPayloadTooLarge)
	case errors.Is(err, apperr.ErrDirectoryRead):
		slog.Error("directory read failed", slog.String("path", rel), slog.String("error", err.Error()))
		writeText(w, status, MsgDirectoryRead)
	default:
		slog.Error(action+" file failed", slog.String("path", rel), slog.String("error", err.Error()))
		writeText(w, status, fmt.Sprintf("Error %s file: %s", action, apperr.Detail(err)))
	}
}
