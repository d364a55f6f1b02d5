package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Collection names. The set is closed; backends reject anything else.
const (
	CollectionResumes             = "resumes"
	CollectionJobDescriptions     = "job_descriptions"
	CollectionUserJobDescriptions = "user_job_descriptions"
	CollectionAnalysisResults     = "analysis_results"
)

var Collections = []string{
	CollectionResumes,
	CollectionJobDescriptions,
	CollectionUserJobDescriptions,
	CollectionAnalysisResults,
}

var ErrNotFound = errors.New("point not found")

// Point is one stored vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a Query hit. Score is the backend's own similarity and is
// informational only.
type ScoredPoint struct {
	Point
	Score float64
}

// Condition is an equality match on a top-level payload key.
type Condition struct {
	Key   string
	Value any
}

type Filter struct {
	Must []Condition
}

func Match(key string, value any) Filter {
	return Filter{Must: []Condition{{Key: key, Value: value}}}
}

func (f Filter) And(key string, value any) Filter {
	must := make([]Condition, 0, len(f.Must)+1)
	must = append(must, f.Must...)
	return Filter{Must: append(must, Condition{Key: key, Value: value})}
}

// VectorIndex stores (id, vector, payload) triples in named collections.
type VectorIndex interface {
	Upsert(ctx context.Context, collection string, points ...Point) error
	Retrieve(ctx context.Context, collection, id string, withVector bool) (*Point, error)
	// Scroll returns up to limit points matching filter, ordered by id.
	Scroll(ctx context.Context, collection string, filter Filter, limit int, withVector bool) ([]Point, error)
	// Latest returns the matching point with the greatest payload value under
	// orderKey, ties going to the greater id. ErrNotFound when none match.
	Latest(ctx context.Context, collection string, filter Filter, orderKey string) (*Point, error)
	// Query returns up to limit nearest neighbours of vector, vectors included.
	Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredPoint, error)
	Delete(ctx context.Context, collection string, ids ...string) error
	Count(ctx context.Context, collection string, filter Filter) (int, error)
	Backend() string
	Close() error
}

var payloadKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func validateCollection(name string) error {
	for _, c := range Collections {
		if c == name {
			return nil
		}
	}
	return fmt.Errorf("unknown collection %q", name)
}

func validateFilter(f Filter) error {
	for _, c := range f.Must {
		if !payloadKeyPattern.MatchString(c.Key) {
			return fmt.Errorf("invalid payload key %q", c.Key)
		}
		switch c.Value.(type) {
		case string, bool, int, int64, float64:
		default:
			return fmt.Errorf("unsupported filter value %T for key %q", c.Value, c.Key)
		}
	}
	return nil
}

func validateOrderKey(key string) error {
	if !payloadKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid order key %q", key)
	}
	return nil
}

func validatePoints(points []Point, dim int) error {
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point id is required")
		}
		if len(p.Vector) != dim {
			return fmt.Errorf("point %s: expected %d dimensions, got %d", p.ID, dim, len(p.Vector))
		}
	}
	return nil
}
