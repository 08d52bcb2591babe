package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/portwatch/internal/domain"
	"github.com/hamed0406/portwatch/internal/repo"
)

var (
	_ repo.ReportStore = (*Store)(nil)
	_ repo.AlertStore  = (*Store)(nil)
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reports (
  id          BIGSERIAL PRIMARY KEY,
  started_at  TIMESTAMPTZ NOT NULL,
  finished_at TIMESTAMPTZ NOT NULL,
  endpoints   INTEGER NOT NULL,
  down        INTEGER NOT NULL,
  body        JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_finished_at ON reports (finished_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
  endpoint     TEXT PRIMARY KEY,
  last_sent_at TIMESTAMPTZ NOT NULL,
  sent         INTEGER NOT NULL DEFAULT 1
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- ReportStore ----

func (s *Store) Save(ctx context.Context, r domain.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (started_at, finished_at, endpoints, down, body)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.StartedAt, r.FinishedAt, r.Len(), r.Count(domain.StatusDown), body,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	s.log.Debug("report_saved", zap.Int("endpoints", r.Len()), zap.Time("finished_at", r.FinishedAt))
	return nil
}

func (s *Store) Latest(ctx context.Context) (*domain.Report, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM reports ORDER BY finished_at DESC, id DESC LIMIT 1`,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	var r domain.Report
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// ---- AlertStore ----

func (s *Store) Get(ctx context.Context, key string) (*repo.AlertRecord, error) {
	r := repo.AlertRecord{Key: key}
	var lastSent time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_sent_at, sent FROM alerts WHERE endpoint = $1`, key,
	).Scan(&lastSent, &r.Sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	r.LastSentAt = &lastSent
	return &r, nil
}

func (s *Store) Set(ctx context.Context, key string, sentAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (endpoint, last_sent_at, sent)
		VALUES ($1, $2, 1)
		ON CONFLICT (endpoint)
		DO UPDATE SET last_sent_at = EXCLUDED.last_sent_at, sent = alerts.sent + 1`,
		key, sentAt,
	)
	if err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}
