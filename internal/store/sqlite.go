// Package store implements keyed persistence for submissions and AI
// responses. This file contains the durable SQLite backend and the Open
// factory that degrades through two drivers down to the volatile fallback.
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	glebarez "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	mattn "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frayze/stackbuilder-backend/internal/config"
	"github.com/frayze/stackbuilder-backend/internal/domain"
)

// SQLiteStore is the durable backend. All methods convert driver errors to
// plain error returns; callers translate them into absent/failed responses
// rather than crashing the serving process.
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// Open selects a backend. It tries the primary pure-Go SQLite driver, then
// the secondary cgo driver, and finally constructs the volatile map-backed
// store. It never returns an unusable Store: every failure downgrades.
func Open(cfg config.StoreConfig) Store {
	if s, err := openSQLite(glebarez.Open(cfg.DBPath), cfg.DBPath); err == nil {
		return s
	} else {
		log.Warn().Err(err).Str("path", cfg.DBPath).Msg("primary sqlite driver unavailable")
	}

	fallbackPath := cfg.FallbackDBPath
	if fallbackPath == "" {
		fallbackPath = cfg.DBPath
	}
	if s, err := openSQLite(mattn.Open(fallbackPath), fallbackPath); err == nil {
		return s
	} else {
		log.Warn().Err(err).Str("path", fallbackPath).Msg("secondary sqlite driver unavailable")
	}

	log.Warn().Msg("storage degraded to in-memory fallback; data will not survive a restart")
	return NewMemoryStore()
}

// openSQLite opens one SQLite database, applies PRAGMAs, and ensures the two
// record tables exist (idempotent schema creation).
func openSQLite(dialector gorm.Dialector, path string) (*SQLiteStore, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.AutoMigrate(&domain.Submission{}, &domain.AIResponse{}); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStore wraps an already-open gorm DB. Used by tests and by callers
// that manage the connection lifecycle themselves.
func NewSQLiteStore(db *gorm.DB, path string) *SQLiteStore {
	return &SQLiteStore{db: db, path: path}
}

// UpsertSubmission writes or replaces the row for this submission id.
func (s *SQLiteStore) UpsertSubmission(ctx context.Context, submissionID, payload string) error {
	row := domain.Submission{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "submission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "created_at"}),
		}).
		Create(&row).Error
}

// UpsertResponse writes or replaces the AI response for this submission id.
func (s *SQLiteStore) UpsertResponse(ctx context.Context, submissionID, content, contentType string) error {
	if contentType == "" {
		contentType = "html"
	}
	row := domain.AIResponse{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Content:      content,
		ContentType:  contentType,
		CreatedAt:    time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "submission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "content_type", "created_at"}),
		}).
		Create(&row).Error
}

// GetSubmission fetches a submission by its id, or ErrNotFound.
func (s *SQLiteStore) GetSubmission(ctx context.Context, submissionID string) (*domain.Submission, error) {
	var row domain.Submission
	err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetResponse fetches the AI response for a submission id, or ErrNotFound.
func (s *SQLiteStore) GetResponse(ctx context.Context, submissionID string) (*domain.AIResponse, error) {
	var row domain.AIResponse
	err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestSubmission returns the newest submission row, or ErrNotFound.
func (s *SQLiteStore) LatestSubmission(ctx context.Context) (*domain.Submission, error) {
	var row domain.Submission
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListSubmissions returns up to limit submissions, newest first.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, limit int) ([]domain.Submission, error) {
	var out []domain.Submission
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListResponses returns up to limit AI responses, newest first.
func (s *SQLiteStore) ListResponses(ctx context.Context, limit int) ([]domain.AIResponse, error) {
	var out []domain.AIResponse
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// Mode reports the durable backend marker.
func (s *SQLiteStore) Mode() Mode { return ModeSQLite }

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }
