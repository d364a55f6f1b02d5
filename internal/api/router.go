package api

import (
	"net/http"
	"strings"

	httpSwagger "github.com/swaggo/http-swagger"
)

func NewRouter(a *API) http.Handler {
	mux := http.NewServeMux()

	docURL := strings.TrimRight(a.opts.PublicURL, "/") + "/swagger/doc.json"
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL(docURL)))

	mux.HandleFunc("GET /health", a.HealthHandler)

	// HR flow
	mux.HandleFunc("POST /api/jobs", a.CreateJobHandler)
	mux.HandleFunc("GET /api/jobs", a.ListJobsHandler)
	mux.HandleFunc("GET /api/jobs/{id}", a.GetJobHandler)
	mux.HandleFunc("DELETE /api/jobs/{id}", a.DeleteJobHandler)
	mux.HandleFunc("POST /api/jobs/{id}/resumes", a.UploadJobResumesHandler)
	mux.HandleFunc("POST /api/jobs/{id}/rank", a.RankJobHandler)
	mux.HandleFunc("GET /api/jobs/{id}/ranking", a.LatestRankingHandler)

	// Job-seeker flow
	mux.HandleFunc("POST /api/resumes", a.UploadResumeHandler)
	mux.HandleFunc("GET /api/resumes", a.ListResumesHandler)
	mux.HandleFunc("GET /api/resumes/{id}/file", a.ResumeFileHandler)
	mux.HandleFunc("DELETE /api/resumes/{id}", a.DeleteResumeHandler)
	mux.HandleFunc("POST /api/resumes/{id}/match", a.MatchAdHocHandler)
	mux.HandleFunc("POST /api/resumes/{id}/match/saved", a.MatchSavedHandler)
	mux.HandleFunc("GET /api/resumes/{id}/matches", a.LatestMatchesHandler)

	mux.HandleFunc("POST /api/saved-jobs", a.SaveJobHandler)
	mux.HandleFunc("GET /api/saved-jobs", a.ListSavedJobsHandler)
	mux.HandleFunc("DELETE /api/saved-jobs/{id}", a.DeleteSavedJobHandler)

	mux.HandleFunc("POST /api/extract", a.ExtractHandler)

	return mux
}
