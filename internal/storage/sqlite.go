package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type pointRow struct {
	Collection string            `gorm:"primaryKey;size:64"`
	ID         string            `gorm:"primaryKey;size:64"`
	Vector     []byte            `gorm:"not null"`
	Payload    datatypes.JSONMap `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (pointRow) TableName() string { return "points" }

// SQLiteIndex is the embedded VectorIndex. Vectors are stored as float32
// blobs; Query scores every filtered row in process.
type SQLiteIndex struct {
	db  *gorm.DB
	dim int
	log *zap.Logger
}

func NewSQLiteIndex(path string, dim int, log *zap.Logger) (*SQLiteIndex, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&pointRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate points: %w", err)
	}

	log.Info("sqlite vector index opened", zap.String("path", path), zap.Int("dimension", dim))
	return &SQLiteIndex{db: db, dim: dim, log: log}, nil
}

func (s *SQLiteIndex) Backend() string { return "sqlite" }

func (s *SQLiteIndex) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Upsert(ctx context.Context, collection string, points ...Point) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points, s.dim); err != nil {
		return err
	}

	rows := make([]pointRow, 0, len(points))
	for _, p := range points {
		payload := datatypes.JSONMap{}
		for k, v := range p.Payload {
			payload[k] = v
		}
		rows = append(rows, pointRow{
			Collection: collection,
			ID:         p.ID,
			Vector:     EncodeVector(p.Vector),
			Payload:    payload,
		})
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vector", "payload", "updated_at"}),
	}).Create(&rows)
	if tx.Error != nil {
		return fmt.Errorf("upsert %s: %w", collection, tx.Error)
	}
	return nil
}

func (s *SQLiteIndex) Retrieve(ctx context.Context, collection, id string, withVector bool) (*Point, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	var row pointRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("retrieve %s/%s: %w", collection, id, err)
	}

	p, err := row.toPoint(withVector)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteIndex) Scroll(ctx context.Context, collection string, filter Filter, limit int, withVector bool) ([]Point, error) {
	db, err := s.filtered(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		db = db.Limit(limit)
	}

	var rows []pointRow
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scroll %s: %w", collection, err)
	}

	points := make([]Point, 0, len(rows))
	for _, row := range rows {
		p, err := row.toPoint(withVector)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *SQLiteIndex) Latest(ctx context.Context, collection string, filter Filter, orderKey string) (*Point, error) {
	if err := validateOrderKey(orderKey); err != nil {
		return nil, err
	}
	db, err := s.filtered(ctx, collection, filter)
	if err != nil {
		return nil, err
	}

	var rows []pointRow
	err = db.Order(fmt.Sprintf("json_extract(payload, '$.%s') DESC", orderKey)).
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", collection, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	p, err := rows[0].toPoint(false)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteIndex) Query(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query vector: expected %d dimensions, got %d", s.dim, len(vector))
	}
	points, err := s.Scroll(ctx, collection, filter, 0, true)
	if err != nil {
		return nil, err
	}

	hits := make([]ScoredPoint, 0, len(points))
	for _, p := range points {
		score, err := CosineSimilarity(vector, p.Vector)
		if err != nil {
			s.log.Warn("skipping point with unusable vector",
				zap.String(logCollection, collection), zap.String("id", p.ID), zap.Error(err))
			continue
		}
		hits = append(hits, ScoredPoint{Point: p, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, collection string, ids ...string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id IN ?", collection, ids).
		Delete(&pointRow{}).Error
	if err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

func (s *SQLiteIndex) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	db, err := s.filtered(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return int(n), nil
}

func (s *SQLiteIndex) filtered(ctx context.Context, collection string, filter Filter) (*gorm.DB, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx).Model(&pointRow{}).Where("collection = ?", collection)
	for _, c := range filter.Must {
		value := c.Value
		// json_extract yields 1/0 for JSON booleans
		if b, ok := value.(bool); ok {
			if b {
				value = 1
			} else {
				value = 0
			}
		}
		db = db.Where("json_extract(payload, ?) = ?", "$."+c.Key, value)
	}
	return db, nil
}

func (r pointRow) toPoint(withVector bool) (Point, error) {
	p := Point{ID: r.ID, Payload: normalizePayload(r.Payload)}
	if withVector {
		v, err := DecodeVector(r.Vector)
		if err != nil {
			return Point{}, fmt.Errorf("point %s: %w", r.ID, err)
		}
		p.Vector = v
	}
	return p, nil
}

const logCollection = "collection"
