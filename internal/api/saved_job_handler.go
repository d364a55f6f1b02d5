package api

import "net/http"

// SaveJobHandler adds a job description to the personal library
// @Summary Save job description
// @Tags saved-jobs
// @Accept json
// @Produce json
// @Param job body jobRequest true "Job description"
// @Success 201 {object} storage.JobDescription
// @Failure 400 {object} errorResponse
// @Router /api/saved-jobs [post]
func (a *API) SaveJobHandler(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	job, err := a.manager.SaveJobDescription(r.Context(), req.Name, req.Description)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ListSavedJobsHandler lists the personal library
// @Summary List saved job descriptions
// @Tags saved-jobs
// @Produce json
// @Success 200 {object} map[string][]storage.JobDescription
// @Router /api/saved-jobs [get]
func (a *API) ListSavedJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.manager.ListSavedJobs(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved_jobs": jobs})
}

// DeleteSavedJobHandler removes a saved job description
// @Summary Delete saved job description
// @Tags saved-jobs
// @Produce json
// @Param id path string true "Saved job ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} errorResponse
// @Router /api/saved-jobs/{id} [delete]
func (a *API) DeleteSavedJobHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.manager.DeleteSavedJob(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
