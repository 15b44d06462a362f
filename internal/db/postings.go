package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/model"
)

// Querier is the subset of *pgxpool.Pool the stores use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostingStore writes imported postings into job_feed with status PENDING,
// deduplicated by source_url.
type PostingStore struct {
	db  Querier
	log *zap.Logger
}

// NewPostingStore returns a PostingStore.
func NewPostingStore(db Querier, log *zap.Logger) *PostingStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostingStore{db: db, log: log}
}

const insertPosting = `
WITH ins AS (
  INSERT INTO job_feed (search_config_id, raw_data, source_url, fingerprint, status)
  SELECT NULLIF($1, '')::uuid, $2::jsonb, $3, $4, 'PENDING'
  WHERE NOT EXISTS (SELECT 1 FROM job_feed WHERE source_url = $3)
  RETURNING id::text
)
SELECT id FROM ins
UNION ALL
SELECT id::text FROM job_feed WHERE source_url = $3
LIMIT 1`

// Save stores a posting imported outside any search config and returns its
// job_feed id. An already stored posting returns the existing id.
func (s *PostingStore) Save(ctx context.Context, p model.Posting) (string, error) {
	return s.SaveForConfig(ctx, "", p)
}

// SaveForConfig stores a posting found by the given search config.
func (s *PostingStore) SaveForConfig(ctx context.Context, configID string, p model.Posting) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal posting: %w", err)
	}

	var id string
	if err := s.db.QueryRow(ctx, insertPosting, configID, string(raw), SourceKey(p), p.Fingerprint()).Scan(&id); err != nil {
		return "", fmt.Errorf("insert job_feed: %w", err)
	}
	return id, nil
}

// SaveAll stores every posting for configID and returns how many were
// written. Failures are logged and skipped.
func (s *PostingStore) SaveAll(ctx context.Context, configID string, postings []model.Posting) int {
	saved := 0
	for _, p := range postings {
		if _, err := s.SaveForConfig(ctx, configID, p); err != nil {
			s.log.Error("saving posting failed",
				zap.String("config_id", configID),
				zap.String("url", SourceKey(p)),
				zap.Error(err),
			)
			continue
		}
		saved++
	}
	return saved
}

// SourceKey is the job_feed dedup key: the posting URL, else the
// application URL, else the fingerprint.
func SourceKey(p model.Posting) string {
	if u := strings.TrimSpace(p.PostingURL); u != "" {
		return u
	}
	if u := strings.TrimSpace(p.ApplicationURL); u != "" {
		return u
	}
	return "fingerprint:" + p.Fingerprint()
}
