package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/storage/models"
	"github.com/concept-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &Client{db: db}
	if err := client.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return client, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolution_history (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		summary TEXT,
		confidence REAL,
		profile_count INTEGER,
		event_count INTEGER,
		event_attr_count INTEGER,
		has_ambiguity INTEGER,
		latency_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_created_at ON resolution_history(created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// RecordResolution persists one resolution outcome.
func (c *Client) RecordResolution(rec models.ResolutionRecord) error {
	_, err := c.db.Exec(
		`INSERT INTO resolution_history
		(id, query_text, summary, confidence, profile_count, event_count, event_attr_count, has_ambiguity, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.QueryText, rec.Summary, rec.Confidence,
		rec.ProfileCount, rec.EventCount, rec.EventAttrCount,
		boolToInt(rec.HasAmbiguity), rec.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	return nil
}

// ListRecent returns the most recent resolutions, newest first.
func (c *Client) ListRecent(limit int) ([]models.ResolutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := c.db.Query(
		`SELECT id, query_text, summary, confidence, profile_count, event_count, event_attr_count, has_ambiguity, latency_ms, created_at
		FROM resolution_history
		ORDER BY created_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]models.ResolutionRecord, 0, limit)
	for rows.Next() {
		var rec models.ResolutionRecord
		var ambiguity int
		err := rows.Scan(
			&rec.ID, &rec.QueryText, &rec.Summary, &rec.Confidence,
			&rec.ProfileCount, &rec.EventCount, &rec.EventAttrCount,
			&ambiguity, &rec.LatencyMS, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.HasAmbiguity = ambiguity != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
