package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"hatewatch/internal/models"
)

// TweetRepository stores classified records and serves the report aggregates.
type TweetRepository interface {
	BulkInsert(ctx context.Context, tweets []models.Tweet) error
	CountExisting(ctx context.Context, source, period string) (int, error)
	ListPeriods(ctx context.Context) ([]string, error)
	LabelCounts(ctx context.Context, periods []string) ([]models.LabelCount, error)
	HateTypeCounts(ctx context.Context, periods []string) ([]models.HateTypeCount, error)
	Export(ctx context.Context, period string, fn func(models.Tweet) error) error
	Ping(ctx context.Context) error
}

type tweetRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewTweetRepository(db *sqlx.DB, logger *zap.Logger) TweetRepository {
	return &tweetRepository{db: db, logger: logger}
}

func (r *tweetRepository) BulkInsert(ctx context.Context, tweets []models.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}
	query := `INSERT INTO tweets (tweet, clean_tweet, hate, hate_types, month, file_name)
	          VALUES (:tweet, :clean_tweet, :hate, :hate_types, :month, :file_name)`
	if _, err := r.db.NamedExecContext(ctx, query, tweets); err != nil {
		return fmt.Errorf("failed to insert %d tweets: %w", len(tweets), err)
	}
	return nil
}

func (r *tweetRepository) CountExisting(ctx context.Context, source, period string) (int, error) {
	var count int
	query := r.db.Rebind(`SELECT COUNT(*) FROM tweets WHERE file_name = ? AND month = ?`)
	if err := r.db.GetContext(ctx, &count, query, source, period); err != nil {
		return 0, fmt.Errorf("failed to count existing tweets: %w", err)
	}
	return count, nil
}

func (r *tweetRepository) ListPeriods(ctx context.Context) ([]string, error) {
	periods := []string{}
	query := `SELECT DISTINCT month FROM tweets ORDER BY month`
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	return periods, nil
}

// LabelCounts groups tweets by period and label. An empty periods slice means all periods.
func (r *tweetRepository) LabelCounts(ctx context.Context, periods []string) ([]models.LabelCount, error) {
	query, args, err := r.inPeriods(
		`SELECT month, hate, COUNT(*) AS count FROM tweets %s GROUP BY month, hate ORDER BY month, hate`,
		"", periods,
	)
	if err != nil {
		return nil, err
	}

	counts := []models.LabelCount{}
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	return counts, nil
}

// HateTypeCounts groups hateful tweets by period and stored category string.
func (r *tweetRepository) HateTypeCounts(ctx context.Context, periods []string) ([]models.HateTypeCount, error) {
	query, args, err := r.inPeriods(
		`SELECT month, hate_types, COUNT(*) AS count FROM tweets %s GROUP BY month, hate_types ORDER BY month, hate_types`,
		"hate = ?", periods, string(models.LabelHate),
	)
	if err != nil {
		return nil, err
	}

	counts := []models.HateTypeCount{}
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count hate types: %w", err)
	}
	return counts, nil
}

// Export streams the tweets of period in insertion order.
func (r *tweetRepository) Export(ctx context.Context, period string, fn func(models.Tweet) error) error {
	query := r.db.Rebind(`SELECT id, tweet, clean_tweet, hate, hate_types, month, file_name
	          FROM tweets WHERE month = ? ORDER BY id`)
	rows, err := r.db.QueryxContext(ctx, query, period)
	if err != nil {
		return fmt.Errorf("failed to query tweets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Tweet
		if err := rows.StructScan(&t); err != nil {
			return fmt.Errorf("failed to scan tweet: %w", err)
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *tweetRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inPeriods builds the WHERE clause from an optional leading condition and an
// optional month IN (...) filter, then rebinds for the driver.
func (r *tweetRepository) inPeriods(format, cond string, periods []string, condArgs ...any) (string, []any, error) {
	where := ""
	args := append([]any{}, condArgs...)
	if cond != "" {
		where = "WHERE " + cond
	}
	if len(periods) > 0 {
		if where == "" {
			where = "WHERE month IN (?)"
		} else {
			where += " AND month IN (?)"
		}
		args = append(args, periods)
	}

	query, args, err := sqlx.In(fmt.Sprintf(format, where), args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand query: %w", err)
	}
	return r.db.Rebind(query), args, nil
}
