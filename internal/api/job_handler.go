package api

import (
	"net/http"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/ranking"
	"resume-matcher/internal/resources"
	"resume-matcher/internal/storage"

	"go.uber.org/zap"
)

type jobRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type uploadResponse struct {
	JobID    string                   `json:"job_id"`
	Accepted []resources.AcceptedFile `json:"accepted"`
	Skipped  []resources.SkippedFile  `json:"skipped"`
	Count    int                      `json:"count"`
}

// uploadFailureResponse reports an aborted batch together with the files
// that were stored before the failure.
type uploadFailureResponse struct {
	Error    string                   `json:"error"`
	JobID    string                   `json:"job_id"`
	Accepted []resources.AcceptedFile `json:"accepted"`
	Skipped  []resources.SkippedFile  `json:"skipped"`
}

// CreateJobHandler creates a job posting
// @Summary Create job posting
// @Description Embed a job description and store it as a new job posting
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body jobRequest true "Job posting"
// @Success 201 {object} storage.JobDescription
// @Failure 400 {object} errorResponse
// @Failure 502 {object} errorResponse
// @Router /api/jobs [post]
func (a *API) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	job, err := a.manager.CreateJob(r.Context(), req.Name, req.Description)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ListJobsHandler lists job postings
// @Summary List job postings
// @Tags jobs
// @Produce json
// @Success 200 {object} map[string][]resources.JobSummary
// @Failure 502 {object} errorResponse
// @Router /api/jobs [get]
func (a *API) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.manager.ListJobs(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// GetJobHandler returns a job posting with its resumes
// @Summary Get job posting
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} resources.JobDetail
// @Failure 404 {object} errorResponse
// @Router /api/jobs/{id} [get]
func (a *API) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := a.manager.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DeleteJobHandler deletes a job posting and every resume filed under it
// @Summary Delete job posting
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} resources.JobDeleteResult
// @Failure 404 {object} errorResponse
// @Router /api/jobs/{id} [delete]
func (a *API) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.manager.DeleteJob(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadJobResumesHandler uploads resumes for a job
// @Summary Upload resumes for a job
// @Description Non-PDF, empty and unreadable files are skipped. When the store fails mid-batch the error body lists the files already accepted; they stay stored.
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Job ID"
// @Param files formData file true "PDF resumes"
// @Success 200 {object} uploadResponse
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 502 {object} uploadFailureResponse
// @Router /api/jobs/{id}/resumes [post]
func (a *API) UploadJobResumesHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := a.parseMultipart(w, r); err != nil {
		a.writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	uploads := make([]resources.Upload, 0, len(headers))
	for _, fh := range headers {
		u, err := readUpload(fh)
		if err != nil {
			a.log.Warn("skipping unreadable upload", zap.String("filename", fh.Filename), zap.Error(err))
			continue
		}
		uploads = append(uploads, u)
	}

	res, err := a.manager.UploadJobResumes(r.Context(), jobID, uploads)
	if err != nil {
		if res == nil {
			a.writeError(w, r, err)
			return
		}
		a.writeErrorBody(w, r, err, uploadFailureResponse{
			Error:    apperr.Message(err),
			JobID:    jobID,
			Accepted: res.Accepted,
			Skipped:  res.Skipped,
		})
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		JobID:    jobID,
		Accepted: res.Accepted,
		Skipped:  res.Skipped,
		Count:    len(res.Accepted),
	})
}

// RankJobHandler ranks a job's resumes
// @Summary Rank resumes for a job
// @Description Scores every resume filed under the job, explains the top matches and stores the result
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} ranking.Result
// @Failure 404 {object} errorResponse
// @Failure 502 {object} errorResponse
// @Router /api/jobs/{id}/rank [post]
func (a *API) RankJobHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.RankJob(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LatestRankingHandler returns the most recent stored ranking for a job
// @Summary Latest job ranking
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} cachedResult
// @Router /api/jobs/{id}/ranking [get]
func (a *API) LatestRankingHandler(w http.ResponseWriter, r *http.Request) {
	a.writeLatest(w, r, storage.KeyJobID, ranking.ResultJobRanking)
}

func (a *API) writeLatest(w http.ResponseWriter, r *http.Request, key, resultType string) {
	res, ok, err := a.engine.LatestSnapshot(r.Context(), key, r.PathValue("id"), resultType)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, cachedResult{Cached: false})
		return
	}
	writeJSON(w, http.StatusOK, cachedResult{Cached: true, Result: res})
}
