package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"mortgage-copilot/internal/domain"
)

// turnRow mirrors the DynamoDB item layout: rows are grouped by UTC day and
// expire after the journal TTL.
type turnRow struct {
	ID            uint      `gorm:"primaryKey"`
	Day           string    `gorm:"size:10;index:idx_chat_turns_day"`
	CorrelationID string    `gorm:"size:128;not null;uniqueIndex:idx_chat_turns_key"`
	FromStage     string    `gorm:"size:64"`
	ToStage       string    `gorm:"size:64"`
	RuleID        string    `gorm:"size:128"`
	Advanced      bool
	MessageCount  int
	CreatedAt     time.Time `gorm:"not null;uniqueIndex:idx_chat_turns_key"`
	ExpiresAt     time.Time `gorm:"index"`
}

func (turnRow) TableName() string {
	return "chat_turns"
}

// SQLiteJournal is the local stand-in for the DynamoDB journal, used by the
// dev server when no table is configured.
type SQLiteJournal struct {
	db  *gorm.DB
	ttl time.Duration
}

// OpenSQLite opens (or creates) the database at path and migrates the schema.
func OpenSQLite(path string, ttl time.Duration) (*SQLiteJournal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite %q: %w", path, err)
	}
	return NewSQLite(db, ttl)
}

func NewSQLite(db *gorm.DB, ttl time.Duration) (*SQLiteJournal, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	if err := db.AutoMigrate(&turnRow{}); err != nil {
		return nil, fmt.Errorf("repository: migrate chat_turns: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLiteJournal{db: db, ttl: ttl}, nil
}

func (j *SQLiteJournal) RecordTurn(ctx context.Context, rec domain.TurnRecord) error {
	if strings.TrimSpace(rec.CorrelationID) == "" {
		return errors.New("repository: RecordTurn: correlation id is required")
	}
	if rec.CreatedAt.IsZero() {
		return errors.New("repository: RecordTurn: created at is required")
	}

	created := rec.CreatedAt.UTC()
	row := turnRow{
		Day:           created.Format(dayLayout),
		CorrelationID: rec.CorrelationID,
		FromStage:     rec.FromStage,
		ToStage:       rec.ToStage,
		RuleID:        rec.RuleID,
		Advanced:      rec.Advanced,
		MessageCount:  rec.MessageCount,
		CreatedAt:     created,
		ExpiresAt:     created.Add(j.ttl),
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("repository: RecordTurn: %w", err)
	}
	return nil
}

// TurnsForDay returns up to limit turns recorded on the UTC day of day,
// oldest first. A non-positive limit returns all of them.
func (j *SQLiteJournal) TurnsForDay(ctx context.Context, day time.Time, limit int) ([]domain.TurnRecord, error) {
	q := j.db.WithContext(ctx).
		Where("day = ?", day.UTC().Format(dayLayout)).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []turnRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("repository: TurnsForDay query: %w", err)
	}

	recs := make([]domain.TurnRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, domain.TurnRecord{
			CorrelationID: row.CorrelationID,
			FromStage:     row.FromStage,
			ToStage:       row.ToStage,
			RuleID:        row.RuleID,
			Advanced:      row.Advanced,
			MessageCount:  row.MessageCount,
			CreatedAt:     row.CreatedAt.UTC(),
		})
	}
	return recs, nil
}

// Prune deletes turns whose TTL has passed as of now and reports how many
// were removed.
func (j *SQLiteJournal) Prune(ctx context.Context, now time.Time) (int64, error) {
	res := j.db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&turnRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("repository: Prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}
