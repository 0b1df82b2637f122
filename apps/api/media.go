package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/media"
)

// Upload accepts a multipart "file" field and stores it under the category
// from the path.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	category, err := media.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		h.Error(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.DefaultMaxBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(w, r, media.ErrTooLarge)
			return
		}
		h.Error(w, r, apperr.InvalidArg("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	url, err := h.media.Upload(r.Context(), category, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, map[string]string{"url": url})
}

const maxBatchFiles = 10

// UploadResult is one entry of a batch upload response.
type UploadResult struct {
	Filename string       `json:"filename"`
	Status   media.Status `json:"status"`
	URL      string       `json:"url,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// UploadBatch accepts several "file" fields and stores them concurrently.
// Each file reports its own outcome; one failure does not fail the request.
func (h *Handler) UploadBatch(w http.ResponseWriter, r *http.Request) {
	category, err := media.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		h.Error(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBatchFiles*media.DefaultMaxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(w, r, media.ErrTooLarge)
			return
		}
		h.Error(w, r, apperr.InvalidArg("invalid multipart body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		h.Error(w, r, apperr.InvalidArg("multipart field \"file\" is required"))
		return
	}
	if len(headers) > maxBatchFiles {
		h.Error(w, r, apperr.InvalidArg("too many files"))
		return
	}

	files := make([]media.File, len(headers))
	for i, fh := range headers {
		fh := fh
		files[i] = media.File{
			Category:    category,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		}
	}

	assets := h.media.UploadAll(r.Context(), files)
	out := make([]UploadResult, len(assets))
	for i, a := range assets {
		out[i] = UploadResult{Filename: headers[i].Filename, Status: a.Status, URL: a.URL}
		if a.Err != nil {
			out[i].Error = apperr.Message(a.Err)
		}
	}
	h.JSON(w, http.StatusOK, out)
}
