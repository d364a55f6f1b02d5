package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Payload keys used in filters.
const (
	KeyID           = "id"
	KeyJobID        = "job_id"
	KeyResumeID     = "resume_id"
	KeyUserID       = "user_id"
	KeyUserUploaded = "user_uploaded"
	KeyResultType   = "result_type"
	KeyTimestamp    = "timestamp"
)

// DefaultUserID scopes personal resumes and saved job descriptions. There is
// no authentication, so every caller shares it.
const DefaultUserID = "default"

// TimestampLayout is fixed-width so that lexical order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Resume is the payload of a point in the resumes collection.
type Resume struct {
	ID           string `mapstructure:"id" json:"id"`
	Filename     string `mapstructure:"filename" json:"filename"`
	FilePath     string `mapstructure:"file_path" json:"-"`
	UploadedAt   string `mapstructure:"uploaded_at" json:"uploaded_at"`
	TextPreview  string `mapstructure:"text_preview" json:"text_preview"`
	FullText     string `mapstructure:"full_text,omitempty" json:"-"`
	JobID        string `mapstructure:"job_id,omitempty" json:"job_id,omitempty"`
	UserUploaded bool   `mapstructure:"user_uploaded,omitempty" json:"user_uploaded,omitempty"`
	UserID       string `mapstructure:"user_id,omitempty" json:"-"`
	ResumeName   string `mapstructure:"resume_name,omitempty" json:"name,omitempty"`
}

// ExcerptSource prefers the retained full text over the preview.
func (r Resume) ExcerptSource() string {
	if r.FullText != "" {
		return r.FullText
	}
	return r.TextPreview
}

// DisplayName is the user-supplied name, else the uploaded filename.
func (r Resume) DisplayName() string {
	if r.ResumeName != "" {
		return r.ResumeName
	}
	return r.Filename
}

// JobDescription is the payload of job_descriptions and user_job_descriptions points.
type JobDescription struct {
	ID          string `mapstructure:"id" json:"id"`
	Name        string `mapstructure:"name" json:"name"`
	Description string `mapstructure:"description" json:"description"`
	CreatedAt   string `mapstructure:"created_at" json:"created_at"`
	UserID      string `mapstructure:"user_id,omitempty" json:"-"`
}

// Snapshot is the payload of an analysis_results point. Results holds the
// JSON-encoded ordered match list.
type Snapshot struct {
	ID         string `mapstructure:"id"`
	JobID      string `mapstructure:"job_id,omitempty"`
	ResumeID   string `mapstructure:"resume_id,omitempty"`
	ResultType string `mapstructure:"result_type"`
	Results    string `mapstructure:"results"`
	Timestamp  string `mapstructure:"timestamp"`
	Count      int    `mapstructure:"count"`
}

// EncodePayload flattens a payload struct into a map.
func EncodePayload(v any) (map[string]any, error) {
	out := map[string]any{}
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}

// DecodePayload fills out from a stored payload map.
func DecodePayload(payload map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// normalizePayload turns json.Number values into float64 so payloads look
// the same regardless of backend.
func normalizePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				out[k] = f
				continue
			}
			out[k] = n.String()
			continue
		}
		out[k] = v
	}
	return out
}
