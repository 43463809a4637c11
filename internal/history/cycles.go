package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const cycleColumns = `id, source, outcome, started_at, finished_at, before_labels, after_labels,
	taken, warnings, meal_kind, meal_text, meals, error_kind, error_message`

// Record inserts c, replacing an earlier row with the same id.
func (s *Store) Record(ctx context.Context, c Cycle) error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("cycle id is required")
	}
	before, err := marshalJSON(c.Before, "[]")
	if err != nil {
		return fmt.Errorf("encode before: %w", err)
	}
	after, err := marshalJSON(c.After, "[]")
	if err != nil {
		return fmt.Errorf("encode after: %w", err)
	}
	taken, err := marshalJSON(c.Taken, "{}")
	if err != nil {
		return fmt.Errorf("encode taken: %w", err)
	}
	warnings, err := marshalJSON(c.Warnings, "[]")
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	meals, err := marshalJSON(c.Meals, "[]")
	if err != nil {
		return fmt.Errorf("encode meals: %w", err)
	}

	return retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO cycles (`+cycleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Source, c.Outcome,
			formatTime(c.StartedAt), formatTime(c.FinishedAt),
			before, after, taken, warnings,
			c.MealKind, c.MealText, meals,
			c.ErrorKind, c.ErrorMessage,
		)
		return execErr
	})
}

// List returns the most recent cycles first. A non-positive limit uses the default.
func (s *Store) List(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles ORDER BY finished_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

// Get loads one cycle. Unknown ids return ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Cycle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Cycle{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, err
}

// Count returns the number of recorded cycles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM cycles").Scan(&n); err != nil {
		return 0, fmt.Errorf("count cycles: %w", err)
	}
	return n, nil
}

// Prune deletes cycles that finished before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, "DELETE FROM cycles WHERE finished_at < ?", formatTime(cutoff))
		if execErr != nil {
			return execErr
		}
		removed, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(row scanner) (Cycle, error) {
	var (
		c                 Cycle
		started, finished string
		before, after     string
		taken, warnings   string
		meals             string
	)
	if err := row.Scan(&c.ID, &c.Source, &c.Outcome, &started, &finished,
		&before, &after, &taken, &warnings,
		&c.MealKind, &c.MealText, &meals,
		&c.ErrorKind, &c.ErrorMessage,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cycle{}, err
		}
		return Cycle{}, fmt.Errorf("scan cycle: %w", err)
	}
	c.StartedAt = parseTime(started)
	c.FinishedAt = parseTime(finished)

	decoders := []struct {
		name string
		raw  string
		dst  any
	}{
		{"before", before, &c.Before},
		{"after", after, &c.After},
		{"taken", taken, &c.Taken},
		{"warnings", warnings, &c.Warnings},
		{"meals", meals, &c.Meals},
	}
	for _, d := range decoders {
		if err := json.Unmarshal([]byte(d.raw), d.dst); err != nil {
			return Cycle{}, fmt.Errorf("decode %s for cycle %s: %w", d.name, c.ID, err)
		}
	}
	return c, nil
}

func marshalJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

// timeLayout has fixed-width fractions so stored values sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
