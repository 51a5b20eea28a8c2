package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"imagegen/imagegen"
	"imagegen/logger"
	"imagegen/models"
)

func rawParams(r *http.Request) models.RawParams {
	q := r.URL.Query()
	return models.RawParams{
		Quality:   q.Get("q"),
		Format:    q.Get("fm"),
		Width:     q.Get("w"),
		Height:    q.Get("h"),
		Greyscale: q.Get("gray"),
	}
}

// ImageHandler serves GET /image-generator/images/{objectKey...}
func (s *Server) ImageHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	objectKey := r.PathValue("objectKey")

	res, err := s.svc.Serve(r.Context(), imagegen.Request{
		Tenant:    tenant,
		ObjectKey: objectKey,
		Params:    rawParams(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	cacheState := "MISS"
	if res.CacheHit {
		cacheState = "HIT"
	}
	h := w.Header()
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(res.Payload)))
	h.Set("X-Cache", cacheState)
	h.Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(s.svc.CacheTTL().Seconds())))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Payload); err != nil {
		logger.Debugf("client went away while writing %s: %v", objectKey, err)
	}
}

// ListHandler serves GET /image-generator/images
func (s *Server) ListHandler(w http.ResponseWriter, r *http.Request) {
	objects, err := s.svc.List(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"objects": objects,
		"count":   len(objects),
	})
}

// UploadHandler serves POST /image-generator/images/{objectKey...} with the
// image in the multipart "file" field.
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to get file from form")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read file data")
		return
	}

	info, err := s.svc.Upload(r.Context(), tenantFrom(r.Context()), r.PathValue("objectKey"), data)
	if err != nil {
		if imagegen.KindOf(err) == imagegen.KindValidation {
			writeJSONError(w, http.StatusBadRequest, "file is not a supported image")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}
