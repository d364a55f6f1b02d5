package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/cv"
	"resume-matcher/internal/llm"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/ranking"
	"resume-matcher/internal/resources"

	"go.uber.org/zap"
)

const serviceName = "resume-matcher"

// Options tune the HTTP layer.
type Options struct {
	MaxUploadBytes     int64
	IndexBackend       string
	PublicURL          string
	CacheSweepInterval time.Duration
}

type API struct {
	manager   *resources.Manager
	engine    *ranking.Engine
	extractor *cv.Extractor
	cache     *llm.Cache
	opts      Options
	log       *zap.Logger

	workersDone chan struct{}
}

// NewAPI wires the handlers. cache may be nil when explanations are disabled.
func NewAPI(manager *resources.Manager, engine *ranking.Engine, extractor *cv.Extractor, cache *llm.Cache, opts Options, log *zap.Logger) *API {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.CacheSweepInterval <= 0 {
		opts.CacheSweepInterval = 5 * time.Minute
	}
	return &API{
		manager:   manager,
		engine:    engine,
		extractor: extractor,
		cache:     cache,
		opts:      opts,
		log:       logger.Named(log, "api"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status              string `json:"status"`
	Service             string `json:"service"`
	ExplanationsEnabled bool   `json:"explanations_enabled"`
	ContactExtraction   bool   `json:"contact_extraction"`
	IndexBackend        string `json:"index_backend"`
}

// HealthHandler reports service identity and optional capabilities
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} healthResponse
// @Router /health [get]
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              "healthy",
		Service:             serviceName,
		ExplanationsEnabled: a.engine.ExplanationsEnabled(),
		ContactExtraction:   a.extractor.Enabled(),
		IndexBackend:        a.opts.IndexBackend,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Unprocessable:
		return http.StatusUnprocessableEntity
	case apperr.Dependency:
		return http.StatusBadGateway
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	a.writeErrorBody(w, r, err, errorResponse{Error: apperr.Message(err)})
}

// writeErrorBody logs err and writes body under the status for its kind.
func (a *API) writeErrorBody(w http.ResponseWriter, r *http.Request, err error, body any) {
	status := statusFor(apperr.KindOf(err))
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	} else {
		a.log.Debug("request rejected",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.Validation, "invalid JSON", err)
	}
	return nil
}

// parseMultipart bounds the request body and parses the form.
func (a *API) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Newf(apperr.Validation, "upload too large (max %d bytes)", a.opts.MaxUploadBytes)
		}
		return apperr.Wrap(apperr.Validation, "invalid multipart form", err)
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) (resources.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return resources.Upload{}, apperr.Wrap(apperr.Validation, "unreadable upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return resources.Upload{}, apperr.Wrap(apperr.Validation, "unreadable upload", err)
	}
	return resources.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// formFile reads the single file sent under field.
func formFile(r *http.Request, field string) (resources.Upload, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return resources.Upload{}, apperr.New(apperr.Validation, "no file uploaded")
	}
	return readUpload(r.MultipartForm.File[field][0])
}

// cachedResult is a stored ranking, or {"cached": false} when none exists.
type cachedResult struct {
	Cached bool `json:"cached"`
	*ranking.Result
}
