package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/ranking"
	"resume-matcher/internal/storage"

	"go.uber.org/zap"
)

type matchRequest struct {
	Jobs []ranking.JobInput `json:"jobs"`
}

// UploadResumeHandler stores a job-seeker resume
// @Summary Upload personal resume
// @Tags resumes
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF resume"
// @Param name formData string true "Display name"
// @Success 201 {object} storage.Resume
// @Failure 400 {object} errorResponse
// @Failure 422 {object} errorResponse
// @Failure 502 {object} errorResponse
// @Router /api/resumes [post]
func (a *API) UploadResumeHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	u, err := formFile(r, "file")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resume, err := a.manager.UploadUserResume(r.Context(), r.FormValue("name"), u)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resume)
}

// ListResumesHandler lists personal resumes
// @Summary List personal resumes
// @Tags resumes
// @Produce json
// @Success 200 {object} map[string][]storage.Resume
// @Router /api/resumes [get]
func (a *API) ListResumesHandler(w http.ResponseWriter, r *http.Request) {
	resumes, err := a.manager.ListUserResumes(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resumes": resumes})
}

// ResumeFileHandler streams the stored PDF
// @Summary Download resume PDF
// @Tags resumes
// @Produce application/pdf
// @Param id path string true "Resume ID"
// @Success 200 {file} binary
// @Failure 404 {object} errorResponse
// @Router /api/resumes/{id}/file [get]
func (a *API) ResumeFileHandler(w http.ResponseWriter, r *http.Request) {
	resume, data, err := a.manager.GetResumeFile(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	name := strings.ReplaceAll(filepath.Base(resume.Filename), `"`, "")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		a.log.Warn("failed to write resume file", zap.String("id", resume.ID), zap.Error(err))
	}
}

// DeleteResumeHandler deletes a resume and its stored file
// @Summary Delete resume
// @Tags resumes
// @Produce json
// @Param id path string true "Resume ID"
// @Success 200 {object} resources.DeleteResult
// @Failure 404 {object} errorResponse
// @Router /api/resumes/{id} [delete]
func (a *API) DeleteResumeHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.manager.DeleteResume(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MatchAdHocHandler matches a resume against job descriptions sent in the request
// @Summary Match resume against ad-hoc jobs
// @Tags resumes
// @Accept json
// @Produce json
// @Param id path string true "Resume ID"
// @Param jobs body matchRequest true "Job descriptions"
// @Success 200 {object} ranking.Result
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/resumes/{id}/match [post]
func (a *API) MatchAdHocHandler(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.engine.MatchAdHoc(r.Context(), r.PathValue("id"), req.Jobs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MatchSavedHandler matches a resume against the saved job library
// @Summary Match resume against saved jobs
// @Tags resumes
// @Produce json
// @Param id path string true "Resume ID"
// @Success 200 {object} ranking.Result
// @Failure 404 {object} errorResponse
// @Router /api/resumes/{id}/match/saved [post]
func (a *API) MatchSavedHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.MatchSavedJobs(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LatestMatchesHandler returns the most recent saved-library match for a resume
// @Summary Latest saved-job match
// @Tags resumes
// @Produce json
// @Param id path string true "Resume ID"
// @Success 200 {object} cachedResult
// @Router /api/resumes/{id}/matches [get]
func (a *API) LatestMatchesHandler(w http.ResponseWriter, r *http.Request) {
	a.writeLatest(w, r, storage.KeyResumeID, ranking.ResultSavedJobMatch)
}

// ExtractHandler pulls contact details out of a PDF resume
// @Summary Extract contact details
// @Description Extracts name, email, phone and address with the configured LLM. Nothing is stored.
// @Tags resumes
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF resume"
// @Success 200 {object} llm.Contact
// @Failure 400 {object} errorResponse
// @Failure 422 {object} errorResponse
// @Failure 502 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /api/extract [post]
func (a *API) ExtractHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	u, err := formFile(r, "file")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	text, err := a.manager.ExtractText(r.Context(), u)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !a.extractor.Enabled() {
		a.writeError(w, r, apperr.New(apperr.Unavailable, "LLM not configured"))
		return
	}
	contact, err := a.extractor.Extract(r.Context(), text)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}
