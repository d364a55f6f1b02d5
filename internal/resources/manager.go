// Package resources owns job postings, resumes and saved job descriptions.
// Every resume lives in two places, a point in the vector index and a PDF
// under the upload root, and Manager keeps both sides together.
package resources

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"strings"
	"time"

	"resume-matcher/internal/apperr"
	"resume-matcher/internal/cv"
	"resume-matcher/internal/embedding"
	"resume-matcher/internal/logger"
	"resume-matcher/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PreviewLength is the number of characters kept in text_preview.
const PreviewLength = 500

const defaultListLimit = 1000

// Upload is one file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type JobSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatedAt   string `json:"created_at"`
	ResumeCount int    `json:"resume_count"`
}

type JobDetail struct {
	storage.JobDescription
	Resumes []storage.Resume `json:"resumes"`
}

type AcceptedFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type SkippedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type UploadResult struct {
	Accepted []AcceptedFile `json:"accepted"`
	Skipped  []SkippedFile  `json:"skipped"`
}

type DeleteResult struct {
	ID          string `json:"id"`
	FileRemoved bool   `json:"file_removed"`
}

type JobDeleteResult struct {
	JobID          string `json:"job_id"`
	ResumesDeleted int    `json:"resumes_deleted"`
	FilesRemoved   int    `json:"files_removed"`
}

type Manager struct {
	index     storage.VectorIndex
	embedder  embedding.Embedder
	text      cv.TextExtractor
	files     *FileStore
	log       *zap.Logger
	listLimit int

	now   func() time.Time
	newID func() string
}

func NewManager(index storage.VectorIndex, embedder embedding.Embedder, text cv.TextExtractor, files *FileStore, log *zap.Logger) *Manager {
	return &Manager{
		index:     index,
		embedder:  embedder,
		text:      text,
		files:     files,
		log:       logger.Named(log, "resources"),
		listLimit: defaultListLimit,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateJob embeds the description and stores a new job posting.
func (m *Manager) CreateJob(ctx context.Context, name, description string) (*storage.JobDescription, error) {
	job, err := m.storeDescription(ctx, storage.CollectionJobDescriptions, name, description, "")
	if err != nil {
		return nil, err
	}
	m.log.Info("job created", zap.String(logger.FieldJobID, job.ID), zap.String("name", job.Name))
	return job, nil
}

// ListJobs returns every job posting, newest first, with its resume count.
func (m *Manager) ListJobs(ctx context.Context) ([]JobSummary, error) {
	jobs, err := m.listDescriptions(ctx, storage.CollectionJobDescriptions, storage.Filter{})
	if err != nil {
		return nil, err
	}

	out := make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		n, err := m.index.Count(ctx, storage.CollectionResumes, storage.Match(storage.KeyJobID, j.ID))
		if err != nil {
			return nil, storeError(err)
		}
		out = append(out, JobSummary{ID: j.ID, Name: j.Name, CreatedAt: j.CreatedAt, ResumeCount: n})
	}
	return out, nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (*JobDetail, error) {
	job, err := m.job(ctx, id)
	if err != nil {
		return nil, err
	}
	resumes, err := m.listResumes(ctx, storage.Match(storage.KeyJobID, id))
	if err != nil {
		return nil, err
	}
	return &JobDetail{JobDescription: *job, Resumes: resumes}, nil
}

// UploadJobResumes ingests files one at a time under jobID. Files that fail
// validation or text extraction are skipped. Store failures abort the batch
// and return the partial result alongside the error; files accepted before
// the failure stay stored.
func (m *Manager) UploadJobResumes(ctx context.Context, jobID string, uploads []Upload) (*UploadResult, error) {
	if _, err := m.job(ctx, jobID); err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, apperr.New(apperr.Validation, "at least one file is required")
	}

	log := m.log.With(zap.String(logger.FieldJobID, jobID))
	res := &UploadResult{Accepted: []AcceptedFile{}, Skipped: []SkippedFile{}}
	for _, u := range uploads {
		r, err := m.ingest(ctx, u, storage.Resume{JobID: jobID}, false)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.Validation, apperr.Unprocessable:
				log.Warn("skipping resume", zap.String("filename", u.Filename), zap.Error(err))
				res.Skipped = append(res.Skipped, SkippedFile{Filename: u.Filename, Reason: apperr.Message(err)})
				continue
			}
			log.Error("resume upload aborted", zap.String("filename", u.Filename),
				zap.Int("accepted", len(res.Accepted)), zap.Error(err))
			return res, err
		}
		res.Accepted = append(res.Accepted, AcceptedFile{ID: r.ID, Filename: r.Filename})
	}

	log.Info("resumes uploaded", zap.Int("accepted", len(res.Accepted)), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// UploadUserResume stores a job-seeker resume, keeping its full text.
func (m *Manager) UploadUserResume(ctx context.Context, name string, u Upload) (*storage.Resume, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.Validation, "resume name is required")
	}
	meta := storage.Resume{
		UserUploaded: true,
		UserID:       storage.DefaultUserID,
		ResumeName:   name,
	}
	r, err := m.ingest(ctx, u, meta, true)
	if err != nil {
		return nil, err
	}
	m.log.Info("personal resume uploaded", zap.String(logger.FieldResumeID, r.ID))
	return r, nil
}

func (m *Manager) ListUserResumes(ctx context.Context) ([]storage.Resume, error) {
	filter := storage.Match(storage.KeyUserUploaded, true).And(storage.KeyUserID, storage.DefaultUserID)
	resumes, err := m.listResumes(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(resumes, func(i, j int) bool {
		return resumes[i].UploadedAt > resumes[j].UploadedAt
	})
	return resumes, nil
}

// GetResumeFile returns the resume record and its stored PDF.
func (m *Manager) GetResumeFile(ctx context.Context, id string) (*storage.Resume, []byte, error) {
	r, err := m.resume(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := m.files.Read(r.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperr.Newf(apperr.NotFound, "file for resume %s not found", id)
		}
		return nil, nil, apperr.Wrap(apperr.Internal, "failed to read resume file", err)
	}
	return r, data, nil
}

// DeleteResume removes the index record and then the backing file. A file
// that is already gone is not an error.
func (m *Manager) DeleteResume(ctx context.Context, id string) (*DeleteResult, error) {
	r, err := m.resume(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.index.Delete(ctx, storage.CollectionResumes, id); err != nil {
		return nil, storeError(err)
	}
	removed := m.removeFile(r)
	m.log.Info("resume deleted", zap.String(logger.FieldResumeID, id), zap.Bool("file_removed", removed))
	return &DeleteResult{ID: id, FileRemoved: removed}, nil
}

// DeleteJob deletes every resume filed under the job, then the job itself.
// Files that cannot be removed lower FilesRemoved but do not fail the call.
func (m *Manager) DeleteJob(ctx context.Context, id string) (*JobDeleteResult, error) {
	if _, err := m.job(ctx, id); err != nil {
		return nil, err
	}

	res := &JobDeleteResult{JobID: id}
	filter := storage.Match(storage.KeyJobID, id)
	for {
		points, err := m.index.Scroll(ctx, storage.CollectionResumes, filter, m.listLimit, false)
		if err != nil {
			return nil, storeError(err)
		}
		if len(points) == 0 {
			break
		}

		ids := make([]string, 0, len(points))
		resumes := make([]storage.Resume, 0, len(points))
		for _, p := range points {
			var r storage.Resume
			if err := storage.DecodePayload(p.Payload, &r); err != nil {
				m.log.Warn("corrupt resume record", zap.String("id", p.ID), zap.Error(err))
			}
			ids = append(ids, p.ID)
			resumes = append(resumes, r)
		}
		if err := m.index.Delete(ctx, storage.CollectionResumes, ids...); err != nil {
			return nil, storeError(err)
		}
		res.ResumesDeleted += len(ids)
		for i := range resumes {
			if m.removeFile(&resumes[i]) {
				res.FilesRemoved++
			}
		}
	}

	if err := m.index.Delete(ctx, storage.CollectionJobDescriptions, id); err != nil {
		return nil, storeError(err)
	}
	m.log.Info("job deleted",
		zap.String(logger.FieldJobID, id),
		zap.Int("resumes_deleted", res.ResumesDeleted),
		zap.Int("files_removed", res.FilesRemoved))
	return res, nil
}

func (m *Manager) SaveJobDescription(ctx context.Context, name, description string) (*storage.JobDescription, error) {
	return m.storeDescription(ctx, storage.CollectionUserJobDescriptions, name, description, storage.DefaultUserID)
}

func (m *Manager) ListSavedJobs(ctx context.Context) ([]storage.JobDescription, error) {
	return m.listDescriptions(ctx, storage.CollectionUserJobDescriptions, storage.Match(storage.KeyUserID, storage.DefaultUserID))
}

func (m *Manager) DeleteSavedJob(ctx context.Context, id string) error {
	if _, err := m.retrieve(ctx, storage.CollectionUserJobDescriptions, id, "saved job"); err != nil {
		return err
	}
	if err := m.index.Delete(ctx, storage.CollectionUserJobDescriptions, id); err != nil {
		return storeError(err)
	}
	return nil
}

// ExtractText validates an upload and returns its text without storing anything.
func (m *Manager) ExtractText(ctx context.Context, u Upload) (string, error) {
	if err := cv.ValidatePDF(u.ContentType, u.Data); err != nil {
		return "", err
	}
	text, err := m.text.ExtractText(ctx, u.Data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", apperr.New(apperr.Unprocessable, "no extractable text found in PDF")
	}
	return text, nil
}

// ingest validates, extracts, embeds, writes the PDF and upserts the record.
// meta supplies the ownership fields.
func (m *Manager) ingest(ctx context.Context, u Upload, meta storage.Resume, keepFullText bool) (*storage.Resume, error) {
	text, err := m.ExtractText(ctx, u)
	if err != nil {
		return nil, err
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	r := meta
	r.ID = m.newID()
	r.Filename = u.Filename
	r.UploadedAt = storage.FormatTimestamp(m.now())
	r.TextPreview = cv.Preview(text, PreviewLength)
	if keepFullText {
		r.FullText = text
	}

	r.FilePath, err = m.files.Write(r.ID, u.Data)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to store resume file", err)
	}

	payload, err := storage.EncodePayload(r)
	if err != nil {
		m.removeFile(&r)
		return nil, apperr.Wrap(apperr.Internal, "failed to encode resume", err)
	}
	if err := m.index.Upsert(ctx, storage.CollectionResumes, storage.Point{ID: r.ID, Vector: vec, Payload: payload}); err != nil {
		m.removeFile(&r)
		return nil, storeError(err)
	}

	m.log.Debug("resume ingested",
		zap.String(logger.FieldResumeID, r.ID),
		zap.String("filename", r.Filename),
		zap.String("preview", logger.TruncateForLog(r.TextPreview, 80)))
	return &r, nil
}

func (m *Manager) storeDescription(ctx context.Context, collection, name, description, userID string) (*storage.JobDescription, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.Validation, "name is required")
	}
	if strings.TrimSpace(description) == "" {
		return nil, apperr.New(apperr.Validation, "description is required")
	}

	vec, err := m.embedder.Embed(ctx, description)
	if err != nil {
		return nil, err
	}

	job := storage.JobDescription{
		ID:          m.newID(),
		Name:        name,
		Description: description,
		CreatedAt:   storage.FormatTimestamp(m.now()),
		UserID:      userID,
	}
	payload, err := storage.EncodePayload(job)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to encode job description", err)
	}
	if err := m.index.Upsert(ctx, collection, storage.Point{ID: job.ID, Vector: vec, Payload: payload}); err != nil {
		return nil, storeError(err)
	}
	return &job, nil
}

func (m *Manager) listDescriptions(ctx context.Context, collection string, filter storage.Filter) ([]storage.JobDescription, error) {
	points, err := m.index.Scroll(ctx, collection, filter, m.listLimit, false)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]storage.JobDescription, 0, len(points))
	for _, p := range points {
		var j storage.JobDescription
		if err := storage.DecodePayload(p.Payload, &j); err != nil {
			m.log.Warn("skipping corrupt job record", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		j.ID = p.ID
		out = append(out, j)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

func (m *Manager) listResumes(ctx context.Context, filter storage.Filter) ([]storage.Resume, error) {
	points, err := m.index.Scroll(ctx, storage.CollectionResumes, filter, m.listLimit, false)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]storage.Resume, 0, len(points))
	for _, p := range points {
		var r storage.Resume
		if err := storage.DecodePayload(p.Payload, &r); err != nil {
			m.log.Warn("skipping corrupt resume record", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		r.ID = p.ID
		out = append(out, r)
	}
	return out, nil
}

func (m *Manager) job(ctx context.Context, id string) (*storage.JobDescription, error) {
	p, err := m.retrieve(ctx, storage.CollectionJobDescriptions, id, "job")
	if err != nil {
		return nil, err
	}
	var j storage.JobDescription
	if err := storage.DecodePayload(p.Payload, &j); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "corrupt job record", err)
	}
	j.ID = p.ID
	return &j, nil
}

func (m *Manager) resume(ctx context.Context, id string) (*storage.Resume, error) {
	p, err := m.retrieve(ctx, storage.CollectionResumes, id, "resume")
	if err != nil {
		return nil, err
	}
	var r storage.Resume
	if err := storage.DecodePayload(p.Payload, &r); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "corrupt resume record", err)
	}
	r.ID = p.ID
	return &r, nil
}

func (m *Manager) retrieve(ctx context.Context, collection, id, what string) (*storage.Point, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Newf(apperr.Validation, "%s id is required", what)
	}
	p, err := m.index.Retrieve(ctx, collection, id, false)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Newf(apperr.NotFound, "%s %s not found", what, id)
		}
		return nil, storeError(err)
	}
	return p, nil
}

// removeFile reports whether a file was actually removed.
func (m *Manager) removeFile(r *storage.Resume) bool {
	removed, err := m.files.Remove(r.FilePath)
	if err != nil {
		m.log.Warn("failed to remove resume file",
			zap.String(logger.FieldResumeID, r.ID), zap.String("path", r.FilePath), zap.Error(err))
		return false
	}
	if !removed {
		m.log.Warn("resume file already absent", zap.String(logger.FieldResumeID, r.ID), zap.String("path", r.FilePath))
	}
	return removed
}

func storeError(err error) error {
	return apperr.Wrap(apperr.Dependency, "vector store unavailable", err)
}
